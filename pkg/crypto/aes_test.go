package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestAESEncryptDecrypt(t *testing.T) {
	key := []byte("12345678901234567890123456789012")
	aes, err := NewAES(key)
	if err != nil {
		t.Fatalf("Failed to create AES: %v", err)
	}

	plaintext := "refresh-token-value"

	ciphertext, err := aes.EncryptString(plaintext)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	decrypted, err := aes.DecryptString(ciphertext)
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("Decrypted text doesn't match. Expected: %s, Got: %s", plaintext, decrypted)
	}
}

func TestAESAdditionalData(t *testing.T) {
	key, err := GenerateAESKey()
	if err != nil {
		t.Fatal(err)
	}
	aes, err := NewAES(key)
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := aes.EncryptBytes([]byte("payload"), []byte("v1"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := aes.DecryptBytes(sealed, []byte("v2")); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("expected ErrDecryptFailed with wrong aad, got %v", err)
	}
	plain, err := aes.DecryptBytes(sealed, []byte("v1"))
	if err != nil || string(plain) != "payload" {
		t.Errorf("unexpected result %q, %v", plain, err)
	}

	if _, err := aes.DecryptBytes([]byte{1, 2}, nil); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("expected ErrCiphertextTooShort, got %v", err)
	}
}

func TestInvalidKeySize(t *testing.T) {
	if _, err := NewAES([]byte("short")); !errors.Is(err, ErrInvalidKeySize) {
		t.Errorf("expected ErrInvalidKeySize, got %v", err)
	}
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("0123456789abcdef")

	k1 := DeriveKey("passphrase", salt, 1000)
	k2 := DeriveKey("passphrase", salt, 1000)
	k3 := DeriveKey("other", salt, 1000)

	if len(k1) != KeySize {
		t.Fatalf("expected %d bytes, got %d", KeySize, len(k1))
	}
	if !bytes.Equal(k1, k2) {
		t.Error("same input should derive same key")
	}
	if bytes.Equal(k1, k3) {
		t.Error("different passphrase should derive different key")
	}

	s1, _ := GenerateSalt()
	s2, _ := GenerateSalt()
	if bytes.Equal(s1, s2) {
		t.Error("salts should be random")
	}
}
