package otp

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"strconv"
	"time"
)

const (
	// DefaultPeriod is the TOTP time step in seconds.
	DefaultPeriod = 30
	// DefaultDigits is the number of digits in a generated code.
	DefaultDigits = 6

	// MaxSkew is the largest number of windows Validate accepts on either
	// side of the current one.
	MaxSkew = 10

	maxDigits = 9
)

var (
	ErrInvalidSecret = errors.New("otp: secret decodes to no key bytes")
	ErrInvalidDigits = errors.New("otp: digits must be between 1 and 9")
	ErrInvalidPeriod = errors.New("otp: period must be positive")
	ErrInvalidTime   = errors.New("otp: timestamp must not be negative")
	ErrInvalidSkew   = errors.New("otp: skew must be between 0 and 10")
)

var pow10 = [maxDigits + 1]uint32{1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000, 1000000000}

// params holds the TOTP settings.
type params struct {
	period int
	digits int
}

// Option customizes code generation.
type Option func(*params)

// WithPeriod sets the time step in seconds.
func WithPeriod(seconds int) Option {
	return func(p *params) { p.period = seconds }
}

// WithDigits sets the number of digits in the code.
func WithDigits(n int) Option {
	return func(p *params) { p.digits = n }
}

func newParams(opts []Option) (params, error) {
	p := params{period: DefaultPeriod, digits: DefaultDigits}
	for _, opt := range opts {
		opt(&p)
	}
	if p.period <= 0 {
		return p, ErrInvalidPeriod
	}
	if p.digits < 1 || p.digits > maxDigits {
		return p, ErrInvalidDigits
	}
	return p, nil
}

// HOTP returns the RFC 4226 code for key and counter, zero-padded to digits.
// digits must be between 1 and 9.
func HOTP(key []byte, counter uint64, digits int) (string, error) {
	if digits < 1 || digits > maxDigits {
		return "", ErrInvalidDigits
	}
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)
	sum := HMACSHA1(key, msg[:])

	// Dynamic truncation: the low nibble of the last byte picks a 4-byte
	// window; the top bit is masked to keep the value non-negative.
	offset := sum[Size-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	code := strconv.FormatUint(uint64(value%pow10[digits]), 10)
	for len(code) < digits {
		code = "0" + code
	}
	return code, nil
}

// Counter returns the number of whole periods elapsed at nowMillis.
func Counter(nowMillis int64, period int) uint64 {
	return uint64(nowMillis) / 1000 / uint64(period)
}

// Remaining returns the time left in the window containing nowMillis.
func Remaining(nowMillis int64, period int) time.Duration {
	window := int64(period) * 1000
	return time.Duration(window-nowMillis%window) * time.Millisecond
}

// GenerateTOTP returns the RFC 6238 code for a Base32 secret at nowMillis,
// milliseconds since the Unix epoch.
func GenerateTOTP(secret string, nowMillis int64, opts ...Option) (string, error) {
	p, err := newParams(opts)
	if err != nil {
		return "", err
	}
	if nowMillis < 0 {
		return "", ErrInvalidTime
	}
	key := DecodeBase32(secret)
	if len(key) == 0 {
		return "", ErrInvalidSecret
	}
	return HOTP(key, Counter(nowMillis, p.period), p.digits)
}

// Validate reports whether code matches the secret in the window containing
// nowMillis or in up to skew windows on either side.
func Validate(secret, code string, nowMillis int64, skew int, opts ...Option) (bool, error) {
	p, err := newParams(opts)
	if err != nil {
		return false, err
	}
	if nowMillis < 0 {
		return false, ErrInvalidTime
	}
	if skew < 0 || skew > MaxSkew {
		return false, ErrInvalidSkew
	}
	key := DecodeBase32(secret)
	if len(key) == 0 {
		return false, ErrInvalidSecret
	}
	if len(code) != p.digits {
		return false, nil
	}

	counter := Counter(nowMillis, p.period)
	match := 0
	for i := -skew; i <= skew; i++ {
		if i < 0 && uint64(-i) > counter {
			continue
		}
		candidate, err := HOTP(key, counter+uint64(int64(i)), p.digits)
		if err != nil {
			return false, err
		}
		match |= subtle.ConstantTimeCompare([]byte(candidate), []byte(code))
	}
	return match == 1, nil
}
