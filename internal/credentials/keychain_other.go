//go:build !darwin

package credentials

// NewKeychainBackend is only available on macOS
func NewKeychainBackend(service string) (Backend, error) {
	return nil, ErrBackendNotAvail
}
