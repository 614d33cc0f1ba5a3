package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewAesGcm(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	sealed, err := enc.EncryptSecret("s3cret-password")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if sealed == "s3cret-password" {
		t.Fatalf("expected ciphertext, got plaintext")
	}
	plain, err := enc.DecryptSecret(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "s3cret-password" {
		t.Fatalf("expected round trip, got %q", plain)
	}
}

func TestNewAesGcmRejectsShortKey(t *testing.T) {
	if _, err := NewAesGcm([]byte("short")); err == nil {
		t.Fatalf("expected short key rejection")
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	enc, err := NewAesGcm(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	if _, err := enc.DecryptSecret("bm90LWEtcmVhbC1jaXBoZXJ0ZXh0"); err == nil {
		t.Fatalf("expected tampered ciphertext rejection")
	}
}
