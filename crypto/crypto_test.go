package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

// TestNewAESEncryptor tests creation of AES encryptor with valid and invalid keys
func TestNewAESEncryptor(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		errorMsg  string
		wantError bool
	}{
		{
			name:      "empty key",
			key:       "",
			wantError: true,
			errorMsg:  "encryption key is empty",
		},
		{
			name:      "invalid base64",
			key:       "not-valid-base64!@#$",
			wantError: true,
			errorMsg:  "base64 decode failed",
		},
		{
			name:      "key too short",
			key:       base64.StdEncoding.EncodeToString(make([]byte, 16)),
			wantError: true,
			errorMsg:  "must be 32 bytes",
		},
		{
			name:      "key too long",
			key:       base64.StdEncoding.EncodeToString(make([]byte, 64)),
			wantError: true,
			errorMsg:  "must be 32 bytes",
		},
		{
			name:      "valid 32-byte key",
			key:       base64.StdEncoding.EncodeToString(make([]byte, 32)),
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewAESEncryptor(tt.key)
			if tt.wantError {
				if err == nil {
					t.Errorf("NewAESEncryptor() expected error but got nil")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("NewAESEncryptor() error = %v, want error containing %q", err, tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Errorf("NewAESEncryptor() unexpected error: %v", err)
				}
				if enc == nil {
					t.Error("NewAESEncryptor() returned nil encryptor")
				}
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error: %v", err)
	}

	plaintexts := [][]byte{
		[]byte("a"),
		[]byte("sensitive user data"),
		[]byte(`{"chat_history":[{"role":"user","parts":[{"text":"hi"}]}]}`),
		bytes.Repeat([]byte{0x00, 0xff}, 4096),
	}
	for _, pt := range plaintexts {
		ct, err := enc.Encrypt(pt)
		if err != nil {
			t.Fatalf("Encrypt() error: %v", err)
		}
		if bytes.Contains(ct, pt) && len(pt) > 4 {
			t.Error("ciphertext contains plaintext")
		}
		got, err := enc.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt() error: %v", err)
		}
		if !bytes.Equal(got, pt) {
			t.Error("round trip mismatch")
		}
	}
}

func TestEncryptEmptyPlaintext(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	if _, err := enc.Encrypt(nil); err == nil {
		t.Error("Encrypt(nil) expected error")
	}
}

func TestEncryptProducesUniqueCiphertexts(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	pt := []byte("same plaintext")
	a, err := enc.Encrypt(pt)
	if err != nil {
		t.Fatal(err)
	}
	b, err := enc.Encrypt(pt)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext produced identical ciphertext (nonce reuse?)")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	ct, err := enc.Encrypt([]byte("integrity matters"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{name: "flipped ciphertext byte", mutate: func(b []byte) []byte {
			b = append([]byte(nil), b...)
			b[len(b)/2] ^= 0x01
			return b
		}},
		{name: "flipped tag byte", mutate: func(b []byte) []byte {
			b = append([]byte(nil), b...)
			b[len(b)-1] ^= 0x01
			return b
		}},
		{name: "truncated to nonce only", mutate: func(b []byte) []byte { return b[:12] }},
		{name: "shorter than nonce", mutate: func(b []byte) []byte { return b[:4] }},
		{name: "empty", mutate: func([]byte) []byte { return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := enc.Decrypt(tt.mutate(ct)); err == nil {
				t.Error("Decrypt() expected error on corrupted input")
			}
		})
	}
}

func TestDecryptWrongKey(t *testing.T) {
	encA, _ := NewAESEncryptor(testKey(t))
	encB, _ := NewAESEncryptor(testKey(t))
	ct, err := encA.Encrypt([]byte("for A only"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := encB.Decrypt(ct); err == nil {
		t.Error("Decrypt() with wrong key expected error")
	}
}

func TestEncryptDecryptString(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))

	t.Run("empty round trips as empty", func(t *testing.T) {
		ct, err := EncryptString(enc, "")
		if err != nil || ct != "" {
			t.Errorf("EncryptString(empty) = %q, %v; want empty, nil", ct, err)
		}
		pt, err := DecryptString(enc, "")
		if err != nil || pt != "" {
			t.Errorf("DecryptString(empty) = %q, %v; want empty, nil", pt, err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		ct, err := EncryptString(enc, "hello")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := base64.StdEncoding.DecodeString(ct); err != nil {
			t.Errorf("EncryptString() output is not valid base64: %v", err)
		}
		pt, err := DecryptString(enc, ct)
		if err != nil {
			t.Fatal(err)
		}
		if pt != "hello" {
			t.Errorf("round trip = %q, want %q", pt, "hello")
		}
	})

	t.Run("invalid base64", func(t *testing.T) {
		if _, err := DecryptString(enc, "!!not base64!!"); err == nil {
			t.Error("DecryptString() expected error on invalid base64")
		}
	})
}
