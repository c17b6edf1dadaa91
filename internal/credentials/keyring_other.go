//go:build !linux

package credentials

// NewSecretServiceBackend is only available on Linux
func NewSecretServiceBackend(service string) (Backend, error) {
	return nil, ErrBackendNotAvail
}
