// Package secrets encrypts exchange API credentials before they are written
// to the connection store. Credentials are only ever decrypted by ingestion
// connectors, never by the audit engine itself.
package secrets

import (
	"errors"
	"time"

	"github.com/fernet/fernet-go"
)

// ErrDecryptFailed indicates an invalid token or a key mismatch.
var ErrDecryptFailed = errors.New("failed to decrypt credentials")

// Vault wraps a fernet key for symmetric credential encryption.
type Vault struct {
	key *fernet.Key
}

// NewVault parses a base64-encoded fernet key.
func NewVault(encodedKey string) (*Vault, error) {
	key, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, err
	}
	return &Vault{key: key}, nil
}

// Encrypt returns the fernet token for the given plaintext.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	token, err := fernet.EncryptAndSign(plaintext, v.key)
	if err != nil {
		return "", err
	}
	return string(token), nil
}

// Decrypt verifies and decrypts a fernet token. A zero TTL disables token
// expiry; stored credentials stay valid until rotated.
func (v *Vault) Decrypt(token string) ([]byte, error) {
	plaintext := fernet.VerifyAndDecrypt([]byte(token), time.Duration(0), []*fernet.Key{v.key})
	if plaintext == nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
