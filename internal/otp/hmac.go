package otp

const (
	ipadByte = 0x36
	opadByte = 0x5c
)

// HMACSHA1 computes HMAC (RFC 2104) over msg with SHA-1 as the hash.
// Keys longer than one block are hashed first; shorter keys are zero-padded.
func HMACSHA1(key, msg []byte) [Size]byte {
	if len(key) > BlockSize {
		sum := SumSHA1(key)
		key = sum[:]
	}

	var ipad, opad [BlockSize]byte
	copy(ipad[:], key)
	copy(opad[:], key)
	for i := range ipad {
		ipad[i] ^= ipadByte
		opad[i] ^= opadByte
	}

	inner := NewSHA1()
	_, _ = inner.Write(ipad[:])
	_, _ = inner.Write(msg)
	innerSum := inner.Sum(nil)

	outer := NewSHA1()
	_, _ = outer.Write(opad[:])
	_, _ = outer.Write(innerSum)

	var out [Size]byte
	copy(out[:], outer.Sum(nil))
	return out
}
