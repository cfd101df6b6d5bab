// Package identity authenticates callers of the command endpoint.
package identity

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// KeyHeader is the header carrying the caller's function key.
const KeyHeader = "x-functions-key"

var ErrInvalidKey = errors.New("invalid function key")

// KeyAuth verifies presented function keys against configured bcrypt
// hashes. Mode "off" accepts every caller.
type KeyAuth struct {
	mode   string
	hashes []string
}

// NewKeyAuth creates a key verifier. hashes are bcrypt digests of the
// accepted keys; any one matching admits the caller.
func NewKeyAuth(mode string, hashes []string) *KeyAuth {
	return &KeyAuth{mode: mode, hashes: hashes}
}

// Enabled reports whether callers must present a key.
func (a *KeyAuth) Enabled() bool {
	return a.mode == "key"
}

// HashKey creates a bcrypt hash of a key, for provisioning.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify checks the presented key against every configured hash.
// Returns ErrInvalidKey when none match or the key is empty.
func (a *KeyAuth) Verify(key string) error {
	if !a.Enabled() {
		return nil
	}
	if key == "" {
		return ErrInvalidKey
	}
	for _, h := range a.hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(key)) == nil {
			return nil
		}
	}
	return ErrInvalidKey
}
