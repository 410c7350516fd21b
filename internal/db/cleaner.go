package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartHistoryCleaner prunes blob_history rows older than retention every
// interval until ctx is canceled.
func StartHistoryCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention).UTC()
				res, err := db.ExecContext(ctx, `
                    DELETE FROM blob_history
                     WHERE archived_at < $1
                `, cutoff)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Error("failed to prune blob history", zap.Error(err))
					continue
				}
				if rows, _ := res.RowsAffected(); rows > 0 {
					log.Info("pruned blob history", zap.Int64("removed", rows))
				}
			}
		}
	}()
}
