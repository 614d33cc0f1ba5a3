package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Encryptor protects telemetry-database credentials at rest. Stored
// connection passwords are opaque ciphertext; only the ingest layer
// decrypts them when opening a source.
type Encryptor interface {
	EncryptSecret(plain string) (string, error)
	DecryptSecret(sealed string) (string, error)
}

type AesGcm struct {
	aead cipher.AEAD
}

// NewAesGcm builds the AEAD once; the key must be exactly 32 bytes
// (AES-256).
func NewAesGcm(key []byte) (*AesGcm, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AesGcm{aead: aead}, nil
}

func (e *AesGcm) EncryptSecret(plain string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *AesGcm) DecryptSecret(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	if len(data) < e.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:e.aead.NonceSize()], data[e.aead.NonceSize():]
	plain, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
