package upstream

import (
	"encoding/hex"
	"fmt"

	"github.com/dmitrijs2005/nocgateway/internal/cryptox"
	"github.com/dmitrijs2005/nocgateway/internal/server/models"
)

// Vault unseals upstream passwords with the configured credential key.
type Vault struct {
	key []byte
}

// NewVault derives the AES key from secret once.
func NewVault(secret string) *Vault {
	return &Vault{key: cryptox.DeriveKey(secret)}
}

// Password decrypts the connection's sealed password. The plaintext is never
// stored by the caller.
func (v *Vault) Password(c *models.UpstreamConnection) (string, error) {
	pw, err := cryptox.DecryptHex(c.PasswordCiphertext, c.PasswordIV, c.PasswordTag, v.key)
	if err != nil {
		return "", fmt.Errorf("unseal credentials of connection %s: %w", c.ID, err)
	}
	return pw, nil
}

// Seal encrypts password into the hex columns of c.
func (v *Vault) Seal(c *models.UpstreamConnection, password string) error {
	ct, iv, tag, err := cryptox.EncryptCredential(password, v.key)
	if err != nil {
		return err
	}
	c.PasswordCiphertext, c.PasswordIV, c.PasswordTag = hex.EncodeToString(ct), hex.EncodeToString(iv), hex.EncodeToString(tag)
	return nil
}
