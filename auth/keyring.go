// Package auth persists the course backend token in the system keyring.
package auth

import (
	"errors"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	service = "lessontrack"
	user    = "backend-token"
)

// EnvToken overrides the keyring, which is handy on headless machines.
const EnvToken = "LESSONTRACK_TOKEN"

// SetToken persists the backend token to the system keyring.
func SetToken(token string) error {
	return keyring.Set(service, user, token)
}

// GetToken retrieves the backend token from the system keyring.
func GetToken() (string, error) {
	return keyring.Get(service, user)
}

// DeleteToken removes the backend token from the system keyring.
func DeleteToken() error {
	err := keyring.Delete(service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// Token resolves the token from LESSONTRACK_TOKEN first, then the keyring.
func Token() (string, error) {
	if token := os.Getenv(EnvToken); token != "" {
		return token, nil
	}
	return GetToken()
}
