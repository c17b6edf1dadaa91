//go:build linux

package credentials

import (
	"github.com/zalando/go-keyring"
)

// SecretServiceBackend stores credentials in the freedesktop Secret Service
// (GNOME Keyring, KWallet).
type SecretServiceBackend struct {
	service string
}

// NewSecretServiceBackend creates a Secret Service backend
func NewSecretServiceBackend(service string) (Backend, error) {
	return &SecretServiceBackend{service: service}, nil
}

func (s *SecretServiceBackend) Set(key, value string) error {
	return keyring.Set(s.service, key, value)
}

func (s *SecretServiceBackend) Get(key string) (string, error) {
	value, err := keyring.Get(s.service, key)
	if err == keyring.ErrNotFound {
		return "", ErrNotFound
	}
	return value, err
}

func (s *SecretServiceBackend) Delete(key string) error {
	err := keyring.Delete(s.service, key)
	if err != nil && err != keyring.ErrNotFound {
		return err
	}
	return nil
}
