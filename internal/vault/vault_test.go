package vault

import (
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := New("test-master-key")

	secrets := []string{"sk-abc123", "a", "密钥-with-unicode-✓", "  padded  "}
	for _, secret := range secrets {
		ciphertext, errEncrypt := v.Encrypt(secret)
		if errEncrypt != nil {
			t.Fatalf("encrypt %q: %v", secret, errEncrypt)
		}
		if ciphertext == secret {
			t.Fatalf("ciphertext equals plaintext for %q", secret)
		}
		plaintext, errDecrypt := v.Decrypt(ciphertext)
		if errDecrypt != nil {
			t.Fatalf("decrypt %q: %v", secret, errDecrypt)
		}
		if plaintext != secret {
			t.Fatalf("round trip mismatch: got %q want %q", plaintext, secret)
		}
	}
}

func TestEncryptWithoutKey(t *testing.T) {
	v := New("")
	if _, err := v.Encrypt("secret"); !errors.Is(err, ErrKeyNotSet) {
		t.Fatalf("expected ErrKeyNotSet, got %v", err)
	}
	if _, err := v.Decrypt("whatever"); !errors.Is(err, ErrKeyNotSet) {
		t.Fatalf("expected ErrKeyNotSet, got %v", err)
	}
}

func TestDecryptMalformedCiphertext(t *testing.T) {
	v := New("test-master-key")

	for _, ciphertext := range []string{"not-base64!!!", "c2hvcnQ=", ""} {
		if _, err := v.Decrypt(ciphertext); !errors.Is(err, ErrCrypto) {
			t.Fatalf("decrypt %q: expected ErrCrypto, got %v", ciphertext, err)
		}
	}
}

func TestDecryptEmptyPlaintextFails(t *testing.T) {
	v := New("test-master-key")
	ciphertext, errEncrypt := v.Encrypt("")
	if errEncrypt != nil {
		t.Fatalf("encrypt: %v", errEncrypt)
	}
	if _, err := v.Decrypt(ciphertext); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto for empty plaintext, got %v", err)
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	ciphertext, errEncrypt := New("key-one").Encrypt("secret")
	if errEncrypt != nil {
		t.Fatalf("encrypt: %v", errEncrypt)
	}
	if _, err := New("key-two").Decrypt(ciphertext); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto with wrong key, got %v", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, errHash := HashPassword("correct horse")
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	if hash == "correct horse" {
		t.Fatal("hash equals plaintext")
	}
	if !VerifyPassword("correct horse", hash) {
		t.Fatal("expected password to verify")
	}
	if VerifyPassword("battery staple", hash) {
		t.Fatal("expected wrong password to fail verification")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		secret string
		want   string
	}{
		{"", ""},
		{"short", "****"},
		{"12345678", "****"},
		{"sk-abcdef123456", "sk-a****3456"},
	}
	for _, tt := range tests {
		if got := MaskSecret(tt.secret); got != tt.want {
			t.Fatalf("MaskSecret(%q) = %q, want %q", tt.secret, got, tt.want)
		}
	}
}
