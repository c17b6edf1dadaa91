//go:build windows

package credentials

import (
	"github.com/danieljoos/wincred"
)

// CredentialBackend stores credentials in the Windows Credential Manager
type CredentialBackend struct {
	prefix string
}

// NewCredentialBackend creates a Credential Manager backend
func NewCredentialBackend(service string) (Backend, error) {
	return &CredentialBackend{prefix: service + ":"}, nil
}

func (c *CredentialBackend) Set(key, value string) error {
	cred := wincred.NewGenericCredential(c.prefix + key)
	cred.CredentialBlob = []byte(value)
	cred.Persist = wincred.PersistLocalMachine
	return cred.Write()
}

func (c *CredentialBackend) Get(key string) (string, error) {
	cred, err := wincred.GetGenericCredential(c.prefix + key)
	if err == wincred.ErrElementNotFound {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(cred.CredentialBlob), nil
}

func (c *CredentialBackend) Delete(key string) error {
	cred, err := wincred.GetGenericCredential(c.prefix + key)
	if err == wincred.ErrElementNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	return cred.Delete()
}
