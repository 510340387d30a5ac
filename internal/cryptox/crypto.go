// Package cryptox seals and opens upstream credentials at rest with AES-GCM.
//
// Stored credentials are a (ciphertext, iv, tag) triple. The tag is kept
// separate from the ciphertext so rows written by other tooling that stores
// the three parts independently can be opened here unchanged.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/nocgateway/internal/common"
)

const (
	// KeySize is the AES-256 key length produced by DeriveKey.
	KeySize = 32
	// IVSize is the nonce length used when sealing.
	IVSize = 12
	// TagSize is the GCM authentication tag length.
	TagSize = 16
)

var ErrDecrypt = errors.New("credential decryption failed")

// DeriveKey turns the configured credential secret into an AES-256 key.
// A secret of exactly 64 hex characters is used as the raw key; any other
// string is hashed with SHA-256. The mapping is deterministic.
func DeriveKey(secret string) []byte {
	if len(secret) == KeySize*2 {
		if raw, err := hex.DecodeString(secret); err == nil {
			return raw
		}
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// EncryptCredential seals plaintext under key with a fresh random IV.
func EncryptCredential(plaintext string, key []byte) (ciphertext, iv, tag []byte, err error) {
	iv = common.GenerateRandByteArray(IVSize)
	ciphertext, tag, err = sealWithIV([]byte(plaintext), key, iv)
	if err != nil {
		return nil, nil, nil, err
	}
	return ciphertext, iv, tag, nil
}

func sealWithIV(plaintext, key, iv []byte) (ciphertext, tag []byte, err error) {
	aead, err := newGCM(key, len(iv))
	if err != nil {
		return nil, nil, err
	}
	sealed := aead.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - aead.Overhead()
	return sealed[:split], sealed[split:], nil
}

// DecryptCredential opens a (ciphertext, iv, tag) triple. Any mismatch of key,
// IV or tag yields ErrDecrypt and no plaintext.
func DecryptCredential(ciphertext, iv, tag, key []byte) (string, error) {
	if len(tag) != TagSize || len(iv) == 0 {
		return "", ErrDecrypt
	}
	aead, err := newGCM(key, len(iv))
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	defer common.WipeByteArray(plaintext)

	return string(plaintext), nil
}

// DecryptHex is DecryptCredential over the hex-encoded columns stored in
// upstream_connections.
func DecryptHex(ciphertextHex, ivHex, tagHex string, key []byte) (string, error) {
	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not hex", ErrDecrypt)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", fmt.Errorf("%w: iv is not hex", ErrDecrypt)
	}
	tag, err := hex.DecodeString(tagHex)
	if err != nil {
		return "", fmt.Errorf("%w: tag is not hex", ErrDecrypt)
	}
	return DecryptCredential(ciphertext, iv, tag, key)
}

func newGCM(key []byte, nonceSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	if nonceSize == IVSize {
		return cipher.NewGCM(block)
	}
	// Some sealing tools emit 16-byte IVs.
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}
