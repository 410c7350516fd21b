package otp

import "strings"

const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// base32Values maps an input byte to its 5-bit value, or -1 when the byte is
// not part of the alphabet. Lower-case letters map like upper-case ones.
var base32Values = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(base32Alphabet); i++ {
		c := base32Alphabet[i]
		t[c] = int8(i)
		if c >= 'A' && c <= 'Z' {
			t[c+('a'-'A')] = int8(i)
		}
	}
	return t
}()

// DecodeBase32 decodes an RFC 4648 Base32 string without requiring padding.
//
// Decoding is lenient on purpose: trailing '=' is stripped, case is ignored
// and any byte outside the alphabet (spaces, dashes, stray '=') is skipped
// instead of failing. Secrets copied from authenticator setup pages often
// carry such separators, and previously stored secrets rely on this. Bits
// left over after the last full byte are discarded.
func DecodeBase32(s string) []byte {
	s = strings.TrimRight(s, "=")

	out := make([]byte, 0, len(s)*5/8)
	var buf uint32
	var nbits uint
	for i := 0; i < len(s); i++ {
		v := base32Values[s[i]]
		if v < 0 {
			continue
		}
		buf = buf<<5 | uint32(v)
		nbits += 5
		if nbits >= 8 {
			nbits -= 8
			out = append(out, byte(buf>>nbits))
			buf &= 1<<nbits - 1
		}
	}
	return out
}
