package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, KeySize)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	type payload struct {
		Keys []string `json:"keys"`
		N    int      `json:"n"`
	}
	values := []payload{
		{},
		{Keys: []string{"JBSWY3DPEHPK3PXP"}, N: 1},
		{Keys: []string{string(bytes.Repeat([]byte("A"), 1000))}, N: 42},
	}

	for _, alg := range []Algorithm{AES256CBC, AES256GCM} {
		for _, v := range values {
			env, err := Encrypt(v, testKey(1), alg)
			require.NoError(t, err)
			assert.Len(t, env.IV, 2*IVSize)

			var got payload
			require.NoError(t, Decrypt(env, testKey(1), alg, &got))
			assert.Equal(t, v, got, "alg %s", alg)
		}
	}
}

func TestEncrypt_FreshIV(t *testing.T) {
	a, err := Encrypt(map[string]bool{"valid": true}, testKey(1), AES256GCM)
	require.NoError(t, err)
	b, err := Encrypt(map[string]bool{"valid": true}, testKey(1), AES256GCM)
	require.NoError(t, err)
	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Data, b.Data)
}

func TestDecrypt_WrongKey(t *testing.T) {
	for _, alg := range []Algorithm{AES256CBC, AES256GCM} {
		env, err := Encrypt(validationToken{Valid: true}, testKey(1), alg)
		require.NoError(t, err)

		var tok validationToken
		err = Decrypt(env, testKey(2), alg, &tok)
		assert.ErrorIs(t, err, ErrDecryption, "alg %s", alg)
	}
}

func TestDecrypt_Malformed(t *testing.T) {
	good, err := Encrypt(validationToken{Valid: true}, testKey(1), AES256CBC)
	require.NoError(t, err)

	tests := []struct {
		name string
		env  Envelope
	}{
		{"iv not hex", Envelope{IV: "zz", Data: good.Data}},
		{"short iv", Envelope{IV: "00ff", Data: good.Data}},
		{"data not hex", Envelope{IV: good.IV, Data: "xyz"}},
		{"empty data", Envelope{IV: good.IV, Data: ""}},
		{"partial block", Envelope{IV: good.IV, Data: good.Data[:len(good.Data)-2]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tok validationToken
			assert.ErrorIs(t, Decrypt(tt.env, testKey(1), AES256CBC, &tok), ErrDecryption)
		})
	}
}

func TestDecrypt_TamperedGCM(t *testing.T) {
	env, err := Encrypt(validationToken{Valid: true}, testKey(1), AES256GCM)
	require.NoError(t, err)

	data, err := hex.DecodeString(env.Data)
	require.NoError(t, err)
	data[0] ^= 0x01
	env.Data = hex.EncodeToString(data)

	var tok validationToken
	assert.ErrorIs(t, Decrypt(env, testKey(1), AES256GCM, &tok), ErrDecryption)
}

func TestDecrypt_ValidPaddingButNotJSON(t *testing.T) {
	key := testKey(3)
	iv := bytes.Repeat([]byte{0x42}, IVSize)
	plain := pkcs7Pad([]byte("not json at all"), aes.BlockSize)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	ct := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, plain)

	env := Envelope{IV: hex.EncodeToString(iv), Data: hex.EncodeToString(ct)}
	var tok validationToken
	assert.ErrorIs(t, Decrypt(env, key, AES256CBC, &tok), ErrDecryption)
}

func TestEncrypt_InvalidInput(t *testing.T) {
	_, err := Encrypt("x", []byte("short"), AES256GCM)
	assert.ErrorIs(t, err, ErrEncryption)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = Encrypt("x", testKey(1), Algorithm("rot13"))
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	_, err = Encrypt(make(chan int), testKey(1), AES256GCM)
	assert.ErrorIs(t, err, ErrEncryption)
}

func TestPKCS7(t *testing.T) {
	for n := 0; n <= 2*aes.BlockSize; n++ {
		in := bytes.Repeat([]byte{'a'}, n)
		padded := pkcs7Pad(in, aes.BlockSize)
		require.Zero(t, len(padded)%aes.BlockSize)
		require.Greater(t, len(padded), n)

		out, err := pkcs7Unpad(padded, aes.BlockSize)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}

	bad := append(bytes.Repeat([]byte{'a'}, 14), 0x01, 0x02)
	_, err := pkcs7Unpad(bad, aes.BlockSize)
	assert.Error(t, err)

	zero := append(bytes.Repeat([]byte{'a'}, 15), 0x00)
	_, err = pkcs7Unpad(zero, aes.BlockSize)
	assert.Error(t, err)
}
