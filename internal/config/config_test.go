package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atinyakov/GophOTP/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParse_Defaults(t *testing.T) {
	t.Setenv("CONFIG", filepath.Join(t.TempDir(), "missing.json"))
	opts, err := config.Parse(nil)
	require.NoError(t, err)

	want := config.Default()
	want.Config = os.Getenv("CONFIG")
	assert.Equal(t, &want, opts)
}

func TestParse_Precedence(t *testing.T) {
	path := writeConfig(t, `{
		"addr": "file:1",
		"backend": "postgres",
		"database_dsn": "postgres://file",
		"log_level": "debug",
		"history_retention": "48h"
	}`)
	t.Setenv("GOPHOTP_ADDR", "env:2")
	t.Setenv("DATABASE_DSN", "postgres://env")

	opts, err := config.Parse([]string{"-c", path, "-d", "postgres://flag", "-tls-ca-key", "certs/ca.key"})
	require.NoError(t, err)

	assert.Equal(t, "certs/ca.key", opts.TLSCAKey)

	assert.Equal(t, "env:2", opts.Addr, "env overrides file")
	assert.Equal(t, "postgres://flag", opts.DatabaseDSN, "flags override env")
	assert.Equal(t, config.BackendPostgres, opts.Backend)
	assert.Equal(t, "debug", opts.LogLevel)
	assert.Equal(t, config.Duration(48*time.Hour), opts.HistoryRetention)
	assert.Equal(t, path, opts.Config)
}

func TestParse_ConfigFromEnv(t *testing.T) {
	path := writeConfig(t, `{"backend":"s3","s3_bucket":"vault"}`)
	t.Setenv("CONFIG", path)

	opts, err := config.Parse([]string{"-history-interval", "5m"})
	require.NoError(t, err)
	assert.Equal(t, config.BackendS3, opts.Backend)
	assert.Equal(t, "vault", opts.S3Bucket)
	assert.Equal(t, config.Duration(5*time.Minute), opts.HistoryInterval)
}

func TestParse_Errors(t *testing.T) {
	t.Setenv("CONFIG", filepath.Join(t.TempDir(), "missing.json"))
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-nope"}},
		{"unknown backend", []string{"-backend", "ftp"}},
		{"postgres without dsn", []string{"-backend", "postgres"}},
		{"s3 without bucket", []string{"-backend", "s3"}},
		{"history on local backend", []string{"-list-history"}},
		{"bad duration", []string{"-history-interval", "soon"}},
		{"zero interval", []string{"-history-interval", "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse(tt.args)
			assert.Error(t, err)
		})
	}

	_, err := config.Parse([]string{"-c", writeConfig(t, "{broken")})
	assert.Error(t, err)
}

func TestParse_HistoryCommands(t *testing.T) {
	t.Setenv("CONFIG", filepath.Join(t.TempDir(), "missing.json"))
	opts, err := config.Parse([]string{"-backend", "postgres", "-d", "postgres://x", "-restore-history", "12"})
	require.NoError(t, err)
	assert.Equal(t, int64(12), opts.RestoreHistory)
	assert.False(t, opts.ListHistory)
}
