package otp_test

import (
	"testing"

	"github.com/atinyakov/GophOTP/internal/otp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyURI(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		uri     string
		want    otp.KeyInfo
		wantErr bool
	}{
		{
			name: "issuer in label and query",
			uri:  "otpauth://totp/GitHub:octocat?secret=JBSWY3DPEHPK3PXP&issuer=GitHub",
			want: otp.KeyInfo{Issuer: "GitHub", AccountName: "octocat", Secret: "JBSWY3DPEHPK3PXP", Period: 30, Digits: 6},
		},
		{
			name: "custom period and digits",
			uri:  "otpauth://totp/Acme:alice%40example.com?secret=JBSWY3DPEHPK3PXP&issuer=Acme&period=60&digits=8",
			want: otp.KeyInfo{Issuer: "Acme", AccountName: "alice@example.com", Secret: "JBSWY3DPEHPK3PXP", Period: 60, Digits: 8},
		},
		{
			name:    "hotp is rejected",
			uri:     "otpauth://hotp/Acme:alice?secret=JBSWY3DPEHPK3PXP&counter=1",
			wantErr: true,
		},
		{
			name:    "sha256 is rejected",
			uri:     "otpauth://totp/Acme:alice?secret=JBSWY3DPEHPK3PXP&algorithm=SHA256",
			wantErr: true,
		},
		{
			name:    "missing secret",
			uri:     "otpauth://totp/Acme:alice?issuer=Acme",
			wantErr: true,
		},
		{
			name:    "not a URI",
			uri:     "%%%",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := otp.ParseKeyURI(tt.uri)
			if tt.wantErr {
				assert.ErrorIs(t, err, otp.ErrInvalidURI)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyURI_RoundTrip(t *testing.T) {
	t.Parallel()
	info := otp.KeyInfo{
		Issuer:      "Test & App",
		AccountName: "bob@example.com",
		Secret:      "JBSWY3DPEHPK3PXP",
	}

	uri := otp.KeyURI(info)
	assert.Contains(t, uri, "otpauth://totp/Test%20&%20App:bob@example.com?")
	assert.Contains(t, uri, "secret=JBSWY3DPEHPK3PXP")

	parsed, err := otp.ParseKeyURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "Test & App", parsed.Issuer)
	assert.Equal(t, "bob@example.com", parsed.AccountName)
	assert.Equal(t, info.Secret, parsed.Secret)
	assert.Equal(t, otp.DefaultPeriod, parsed.Period)
	assert.Equal(t, otp.DefaultDigits, parsed.Digits)
}

func TestNewSecret(t *testing.T) {
	t.Parallel()
	secret, err := otp.NewSecret("", "")
	require.NoError(t, err)
	assert.Regexp(t, "^[A-Z2-7]+$", secret)
	assert.Len(t, otp.DecodeBase32(secret), 20)
}
