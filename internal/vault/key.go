package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const keyInfo = "celerix-activity/at-rest/v1"

// MasterKey turns a configured secret into a 32-byte AES key. A 64-character
// hex string is used as-is; any other non-empty secret is stretched with
// HKDF-SHA256. An empty secret yields a nil key (encryption disabled).
func MasterKey(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, nil
	}
	if len(secret) == 64 {
		if key, err := hex.DecodeString(secret); err == nil {
			return key, nil
		}
	}
	return DeriveKey(secret)
}

// DeriveKey derives a 32-byte key from a passphrase.
func DeriveKey(passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	r := hkdf.New(sha256.New, []byte(passphrase), nil, []byte(keyInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
