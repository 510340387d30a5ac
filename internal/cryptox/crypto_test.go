package cryptox

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_PassphraseIsHashed(t *testing.T) {
	key1 := DeriveKey("abc")
	key2 := DeriveKey("abc")

	if !bytes.Equal(key1, key2) {
		t.Fatalf("expected same key for same passphrase")
	}

	// sha256("abc")
	expectedHex := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if hex.EncodeToString(key1) != expectedHex {
		t.Errorf("expected %s, got %s", expectedHex, hex.EncodeToString(key1))
	}
}

func TestDeriveKey_HexSecretUsedDirectly(t *testing.T) {
	secret := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	key := DeriveKey(secret)
	assert.Equal(t, secret, hex.EncodeToString(key))
	assert.Len(t, key, KeySize)
}

func TestDeriveKey_64CharsNotHexIsHashed(t *testing.T) {
	secret := "zz0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	key := DeriveKey(secret)
	assert.Len(t, key, KeySize)
	assert.NotEqual(t, secret, hex.EncodeToString(key))
}

func TestSealOpen_KnownKeyAndIV_RoundTrip(t *testing.T) {
	key := DeriveKey("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	iv := []byte("0123456789ab")

	ciphertext, tag, err := sealWithIV([]byte("zabbix-password"), key, iv)
	require.NoError(t, err)
	assert.Len(t, tag, TagSize)
	assert.Len(t, ciphertext, len("zabbix-password"))

	plain, err := DecryptCredential(ciphertext, iv, tag, key)
	require.NoError(t, err)
	assert.Equal(t, "zabbix-password", plain)
}

func TestSealOpen_SixteenByteIV(t *testing.T) {
	key := DeriveKey("passphrase")
	iv := []byte("0123456789abcdef")

	ciphertext, tag, err := sealWithIV([]byte("secret"), key, iv)
	require.NoError(t, err)

	plain, err := DecryptCredential(ciphertext, iv, tag, key)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)
}

func TestEncryptCredential_RandomIV(t *testing.T) {
	key := DeriveKey("passphrase")

	c1, iv1, tag1, err := EncryptCredential("secret", key)
	require.NoError(t, err)
	c2, iv2, _, err := EncryptCredential("secret", key)
	require.NoError(t, err)

	assert.Len(t, iv1, IVSize)
	assert.NotEqual(t, iv1, iv2)
	assert.NotEqual(t, c1, c2)

	plain, err := DecryptCredential(c1, iv1, tag1, key)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)
}

func TestDecryptCredential_WrongTagFailsClosed(t *testing.T) {
	key := DeriveKey("passphrase")
	c, iv, tag, err := EncryptCredential("secret", key)
	require.NoError(t, err)

	bad := append([]byte(nil), tag...)
	bad[0] ^= 0xff

	plain, err := DecryptCredential(c, iv, bad, key)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecrypt))
	assert.Empty(t, plain)
}

func TestDecryptCredential_WrongKeyFailsClosed(t *testing.T) {
	c, iv, tag, err := EncryptCredential("secret", DeriveKey("right"))
	require.NoError(t, err)

	plain, err := DecryptCredential(c, iv, tag, DeriveKey("wrong"))
	assert.ErrorIs(t, err, ErrDecrypt)
	assert.Empty(t, plain)
}

func TestDecryptCredential_TruncatedTag(t *testing.T) {
	key := DeriveKey("k")
	c, iv, tag, err := EncryptCredential("secret", key)
	require.NoError(t, err)

	_, err = DecryptCredential(c, iv, tag[:8], key)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptHex(t *testing.T) {
	key := DeriveKey("k")
	c, iv, tag, err := EncryptCredential("secret", key)
	require.NoError(t, err)

	plain, err := DecryptHex(hex.EncodeToString(c), hex.EncodeToString(iv), hex.EncodeToString(tag), key)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)

	_, err = DecryptHex("not-hex", hex.EncodeToString(iv), hex.EncodeToString(tag), key)
	assert.ErrorIs(t, err, ErrDecrypt)
}
