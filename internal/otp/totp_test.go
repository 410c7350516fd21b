package otp_test

import (
	"testing"
	"time"

	"github.com/atinyakov/GophOTP/internal/otp"

	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rfcSecret is the ASCII key "12345678901234567890" used by RFC 4226 and
// RFC 6238, Base32 encoded.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestHOTP_RFC4226(t *testing.T) {
	t.Parallel()
	key := []byte("12345678901234567890")
	want := []string{
		"755224", "287082", "359152", "969429", "338314",
		"254676", "287922", "162583", "399871", "520489",
	}
	for counter, code := range want {
		got, err := otp.HOTP(key, uint64(counter), 6)
		require.NoError(t, err)
		assert.Equal(t, code, got, "counter %d", counter)
	}
}

func TestHOTP_InvalidDigits(t *testing.T) {
	t.Parallel()
	key := []byte("12345678901234567890")
	for _, digits := range []int{-1, 0, 10, 64} {
		_, err := otp.HOTP(key, 1, digits)
		assert.ErrorIs(t, err, otp.ErrInvalidDigits, "digits %d", digits)
	}
	code, err := otp.HOTP(key, 1, 9)
	require.NoError(t, err)
	assert.Len(t, code, 9)
}

func TestGenerateTOTP_RFC6238(t *testing.T) {
	t.Parallel()
	tests := []struct {
		unix int64
		want string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		// Counter above 2^32 once multiplied back; needs the full 64-bit encoding.
		{20000000000, "65353130"},
	}

	for _, tt := range tests {
		code, err := otp.GenerateTOTP(rfcSecret, tt.unix*1000, otp.WithDigits(8))
		require.NoError(t, err)
		assert.Equal(t, tt.want, code, "time %d", tt.unix)
	}
}

func TestGenerateTOTP_GoldenVector(t *testing.T) {
	t.Parallel()
	const secret = "JBSWY3DPEHPK3PXP"

	want, err := hotp.GenerateCodeCustom(secret, 1, hotp.ValidateOpts{
		Digits:    potp.DigitsSix,
		Algorithm: potp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	// Every millisecond of the second window maps to counter 1.
	for _, ms := range []int64{30000, 45000, 59999} {
		got, err := otp.GenerateTOTP(secret, ms)
		require.NoError(t, err)
		assert.Equal(t, want, got, "ms %d", ms)
	}

	next, err := otp.GenerateTOTP(secret, 60000)
	require.NoError(t, err)
	ref, err := hotp.GenerateCodeCustom(secret, 2, hotp.ValidateOpts{
		Digits:    potp.DigitsSix,
		Algorithm: potp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	assert.Equal(t, ref, next)
}

func TestGenerateTOTP_MatchesReferenceNow(t *testing.T) {
	t.Parallel()
	secret, err := otp.NewSecret("Acme", "alice@example.com")
	require.NoError(t, err)

	now := time.Now()
	want, err := totp.GenerateCodeCustom(secret, now, totp.ValidateOpts{
		Period:    30,
		Digits:    potp.DigitsSix,
		Algorithm: potp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	got, err := otp.GenerateTOTP(secret, now.UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGenerateTOTP_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		secret  string
		now     int64
		opts    []otp.Option
		wantErr error
	}{
		{"empty secret", "", 0, nil, otp.ErrInvalidSecret},
		{"only invalid characters", "0189", 0, nil, otp.ErrInvalidSecret},
		{"negative time", rfcSecret, -1, nil, otp.ErrInvalidTime},
		{"zero digits", rfcSecret, 0, []otp.Option{otp.WithDigits(0)}, otp.ErrInvalidDigits},
		{"ten digits", rfcSecret, 0, []otp.Option{otp.WithDigits(10)}, otp.ErrInvalidDigits},
		{"zero period", rfcSecret, 0, []otp.Option{otp.WithPeriod(0)}, otp.ErrInvalidPeriod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := otp.GenerateTOTP(tt.secret, tt.now, tt.opts...)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGenerateTOTP_FixedWidth(t *testing.T) {
	t.Parallel()
	for ms := int64(0); ms < 200*30000; ms += 30000 {
		code, err := otp.GenerateTOTP(rfcSecret, ms)
		require.NoError(t, err)
		require.Len(t, code, 6)
	}
}

func TestCounterAndRemaining(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint64(0), otp.Counter(29999, 30))
	assert.Equal(t, uint64(1), otp.Counter(30000, 30))
	assert.Equal(t, uint64(666666666), otp.Counter(20000000000000, 30))

	assert.Equal(t, 30*time.Second, otp.Remaining(30000, 30))
	assert.Equal(t, time.Millisecond, otp.Remaining(59999, 30))
	assert.Equal(t, 15*time.Second, otp.Remaining(45000, 30))
}

func TestValidate(t *testing.T) {
	t.Parallel()
	now := int64(1700000000000)
	current, err := otp.GenerateTOTP(rfcSecret, now)
	require.NoError(t, err)
	previous, err := otp.GenerateTOTP(rfcSecret, now-30000)
	require.NoError(t, err)
	old, err := otp.GenerateTOTP(rfcSecret, now-90000)
	require.NoError(t, err)

	ok, err := otp.Validate(rfcSecret, current, now, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = otp.Validate(rfcSecret, previous, now, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = otp.Validate(rfcSecret, previous, now, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = otp.Validate(rfcSecret, old, now, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = otp.Validate(rfcSecret, "12345", now, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// Skew must not wrap below counter zero.
	first, err := otp.GenerateTOTP(rfcSecret, 0)
	require.NoError(t, err)
	ok, err = otp.Validate(rfcSecret, first, 0, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = otp.Validate("", current, now, 1)
	assert.ErrorIs(t, err, otp.ErrInvalidSecret)

	ok, err = otp.Validate(rfcSecret, current, now, otp.MaxSkew)
	require.NoError(t, err)
	assert.True(t, ok)
	for _, skew := range []int{-1, otp.MaxSkew + 1, 1 << 40} {
		_, err = otp.Validate(rfcSecret, current, now, skew)
		assert.ErrorIs(t, err, otp.ErrInvalidSkew, "skew %d", skew)
	}
}
