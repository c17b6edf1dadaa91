//go:build darwin

package credentials

import (
	"github.com/keybase/go-keychain"
)

// KeychainBackend stores credentials in the macOS Keychain
type KeychainBackend struct {
	service string
}

// NewKeychainBackend creates a Keychain backend
func NewKeychainBackend(service string) (Backend, error) {
	return &KeychainBackend{service: "com.phillarmonic." + service}, nil
}

func (k *KeychainBackend) Set(key, value string) error {
	_ = k.Delete(key)

	item := keychain.NewItem()
	item.SetSecClass(keychain.SecClassGenericPassword)
	item.SetService(k.service)
	item.SetAccount(key)
	item.SetData([]byte(value))
	item.SetSynchronizable(keychain.SynchronizableNo)
	item.SetAccessible(keychain.AccessibleWhenUnlocked)
	return keychain.AddItem(item)
}

func (k *KeychainBackend) Get(key string) (string, error) {
	query := keychain.NewItem()
	query.SetSecClass(keychain.SecClassGenericPassword)
	query.SetService(k.service)
	query.SetAccount(key)
	query.SetMatchLimit(keychain.MatchLimitOne)
	query.SetReturnData(true)

	results, err := keychain.QueryItem(query)
	if err == keychain.ErrorItemNotFound || (err == nil && len(results) == 0) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(results[0].Data), nil
}

func (k *KeychainBackend) Delete(key string) error {
	item := keychain.NewItem()
	item.SetSecClass(keychain.SecClassGenericPassword)
	item.SetService(k.service)
	item.SetAccount(key)
	if err := keychain.DeleteItem(item); err != nil && err != keychain.ErrorItemNotFound {
		return err
	}
	return nil
}
