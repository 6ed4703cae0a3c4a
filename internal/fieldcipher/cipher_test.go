package fieldcipher

import (
	"encoding/base64"
	"strings"
	"testing"
)

const testKeyHex = "90083A40204036E21A98F25FDAD274D4A65E4A1A2F70C0B37013DD3FCDE3E277"

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewFromHex(testKeyHex)
	if err != nil {
		t.Fatalf("NewFromHex: %v", err)
	}
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()
	c := newTestCipher(t)

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "empty", plaintext: ""},
		{name: "boolean", plaintext: "true"},
		{name: "number", plaintext: "1700000000000"},
		{name: "identity", plaintext: "user_8f3a1b"},
		{name: "long", plaintext: strings.Repeat("coins-", 200)},
		{name: "non-ascii", plaintext: "नमस्ते दुनिया"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			encrypted := c.Encrypt(test.plaintext)
			got, ok := c.Decrypt(encrypted)
			if !ok {
				t.Fatalf("Decrypt failed for %q", test.plaintext)
			}
			if got != test.plaintext {
				t.Errorf("round trip: got %q, want %q", got, test.plaintext)
			}
		})
	}
}

func TestEncryptIsDeterministic(t *testing.T) {
	t.Parallel()
	c := newTestCipher(t)

	first := c.Encrypt("repeatable-value")
	second := c.Encrypt("repeatable-value")
	if first != second {
		t.Errorf("same plaintext produced different ciphertexts:\n%s\n%s", first, second)
	}
	if other := c.Encrypt("different-value"); other == first {
		t.Error("different plaintexts produced the same ciphertext")
	}
}

func TestNonceLayout(t *testing.T) {
	t.Parallel()
	c := newTestCipher(t)

	raw, err := base64.StdEncoding.DecodeString(c.Encrypt("layout-check"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) < nonceSize+tagSize {
		t.Fatalf("output too short: %d bytes", len(raw))
	}
	for i := 4; i < nonceSize; i++ {
		if raw[i] != byte(i*13) {
			t.Errorf("nonce[%d]: got 0x%02x, want 0x%02x", i, raw[i], byte(i*13))
		}
	}
	// ciphertext length = nonce + plaintext + tag
	if want := nonceSize + len("layout-check") + tagSize; len(raw) != want {
		t.Errorf("output length: got %d, want %d", len(raw), want)
	}
}

func TestDecryptMalformedInput(t *testing.T) {
	t.Parallel()
	c := newTestCipher(t)
	valid := c.Encrypt("victim")
	raw, _ := base64.StdEncoding.DecodeString(valid)

	corrupted := make([]byte, len(raw))
	copy(corrupted, raw)
	corrupted[len(corrupted)-1] ^= 0xff

	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "not base64", input: "!!not-base64!!"},
		{name: "too short", input: base64.StdEncoding.EncodeToString(raw[:10])},
		{name: "nonce only", input: base64.StdEncoding.EncodeToString(raw[:nonceSize])},
		{name: "truncated ciphertext", input: base64.StdEncoding.EncodeToString(raw[:len(raw)-4])},
		{name: "corrupted tag", input: base64.StdEncoding.EncodeToString(corrupted)},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if got, ok := c.Decrypt(test.input); ok {
				t.Errorf("Decrypt(%q) succeeded with %q, want failure", test.input, got)
			}
		})
	}
}

func TestNewRejectsBadKeys(t *testing.T) {
	t.Parallel()
	if _, err := New(make([]byte, 16)); err == nil {
		t.Error("New accepted a 16-byte key")
	}
	if _, err := NewFromHex("zz"); err == nil {
		t.Error("NewFromHex accepted invalid hex")
	}
}
