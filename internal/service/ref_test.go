package service_test

import (
	"testing"
	"time"

	"github.com/atinyakov/GophOTP/internal/models"
	"github.com/atinyakov/GophOTP/internal/otp"
	"github.com/atinyakov/GophOTP/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		in      string
		want    service.Ref
		wantErr bool
	}{
		{in: "0", want: service.Ref{Index: 0}},
		{in: "12", want: service.Ref{Index: 12}},
		{in: "-1", want: service.Ref{Index: -1}},
		{in: "6ba7b810-9dad-11d1-80b4-00c04fd430c8", want: service.Ref{Index: -1, ID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "1.5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := service.ParseRef(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, service.ErrInvalidRef)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestRefOperations(t *testing.T) {
	now := time.UnixMilli(45000)
	r := newUnlocked(t, &mockVault{}, service.WithClock(func() time.Time { return now }))
	_, err := r.Add(models.TotpEntry{Name: "a", Secret: secret})
	require.NoError(t, err)
	b, err := r.Add(models.TotpEntry{Name: "b", Secret: secret, Digits: 8})
	require.NoError(t, err)

	byIndex := service.Ref{Index: 1}
	byID := service.Ref{Index: -1, ID: b.ID}

	want, err := otp.GenerateTOTP(secret, 45000, otp.WithDigits(8))
	require.NoError(t, err)
	for _, ref := range []service.Ref{byIndex, byID} {
		code, err := r.GenerateRef(ref)
		require.NoError(t, err)
		assert.Equal(t, want, code.Code)

		ok, err := r.VerifyRef(ref, want, 0)
		require.NoError(t, err)
		assert.True(t, ok)

		uri, err := r.KeyURIRef(ref)
		require.NoError(t, err)
		assert.Contains(t, uri, "digits=8")
	}

	_, err = r.GenerateRef(service.Ref{Index: -1, ID: "missing"})
	assert.ErrorIs(t, err, service.ErrEntryNotFound)
	_, err = r.VerifyRef(service.Ref{Index: 5}, want, 0)
	assert.ErrorIs(t, err, service.ErrIndexOutOfRange)

	require.NoError(t, r.RemoveRef(byID))
	require.NoError(t, r.RemoveRef(service.Ref{Index: 0}))
	assert.Zero(t, r.Len())
}
