// Package fieldcipher encrypts individual directory-store values with
// AES-256-GCM in the wire format base64(nonce(12) || ciphertext || tag(16)).
//
// The nonce is derived deterministically from the plaintext, so the
// same value always produces the same ciphertext. That keeps writes
// idempotent and matches every record already stored by existing
// deployments, at the cost of leaking equality between records. Do
// not reuse this scheme for data that needs semantic security; a
// redesign would use random nonces plus a separate index.
package fieldcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"unicode/utf16"
)

const (
	KeySize   = 32
	nonceSize = 12
	tagSize   = 16
)

var ErrKeySize = errors.New("fieldcipher: key must be 32 bytes")

type Cipher struct {
	aead cipher.AEAD
}

func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// NewFromHex builds a cipher from the hex key form used in tenant
// configuration.
func NewFromHex(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// Encrypt seals plaintext under the deterministic nonce and returns
// the base64 wire form.
func (c *Cipher) Encrypt(plaintext string) string {
	nonce := nonceFor(plaintext)
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+tagSize)
	copy(out, nonce)
	out = c.aead.Seal(out, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out)
}

// Decrypt opens a value produced by Encrypt. Any malformed input --
// bad base64, too short, corrupted tag -- yields ok == false rather
// than an error: a corrupt field degrades a feature, it must not kill
// the request that read it.
func (c *Cipher) Decrypt(encoded string) (string, bool) {
	if encoded == "" {
		return "", false
	}
	combined, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	if len(combined) < nonceSize+tagSize {
		return "", false
	}
	nonce := combined[:nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, combined[nonceSize:], nil)
	if err != nil {
		return "", false
	}
	return string(plaintext), true
}

// nonceFor seeds the first four nonce bytes with the 32-bit string
// hash of the plaintext (little-endian) and fills the rest with the
// fixed 13*i pattern.
func nonceFor(plaintext string) []byte {
	h := hashCode(plaintext)
	nonce := make([]byte, nonceSize)
	nonce[0] = byte(h)
	nonce[1] = byte(h >> 8)
	nonce[2] = byte(h >> 16)
	nonce[3] = byte(h >> 24)
	for i := 4; i < nonceSize; i++ {
		nonce[i] = byte(i * 13)
	}
	return nonce
}

// hashCode is the 32-bit signed rolling hash (h = 31*h + unit) over
// UTF-16 code units, matching the values already on disk.
func hashCode(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(u)
	}
	return h
}
