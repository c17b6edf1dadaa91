//go:build !windows

package credentials

// NewCredentialBackend is only available on Windows
func NewCredentialBackend(service string) (Backend, error) {
	return nil, ErrBackendNotAvail
}
