// Package credentials keeps SSH passwords and key passphrases in the
// platform keystore.
package credentials

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Kind is the type of credential stored for a subject.
type Kind string

const (
	// Password authenticates user@host.
	Password Kind = "password"
	// Passphrase unlocks an encrypted private key file.
	Passphrase Kind = "passphrase"
)

// ParseKind validates a kind name
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case Password, Passphrase:
		return k, nil
	}
	return "", fmt.Errorf("unknown credential kind %q (password or passphrase)", s)
}

var (
	ErrNotFound        = stderrors.New("credential not found")
	ErrInvalidSubject  = stderrors.New("invalid credential subject")
	ErrBackendNotAvail = stderrors.New("credential backend not available")
)

// Error wraps a backend failure with the operation and key.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("credential %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Backend is the platform-specific storage implementation
type Backend interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// Entry names one stored credential.
type Entry struct {
	Kind    Kind
	Subject string
}

func (e Entry) key() string { return string(e.Kind) + "/" + e.Subject }

// indexKey holds the newline-separated list of stored keys; not every
// backend can enumerate its items.
const indexKey = "pf-index"

// Store reads and writes credentials through a Backend.
type Store struct {
	backend Backend
}

// Option configures a Store
type Option func(*storeConfig)

type storeConfig struct {
	service      string
	backend      Backend
	fallbackPath string
}

// WithService sets the keystore service name (default "pf")
func WithService(name string) Option {
	return func(c *storeConfig) {
		if name != "" {
			c.service = name
		}
	}
}

// WithBackend forces a backend
func WithBackend(b Backend) Option {
	return func(c *storeConfig) {
		c.backend = b
	}
}

// WithFallbackPath forces the encrypted file backend at path
func WithFallbackPath(path string) Option {
	return func(c *storeConfig) {
		c.fallbackPath = path
	}
}

// NewStore opens the credential store for this platform. When the
// platform keystore is unavailable the encrypted file backend is used.
func NewStore(opts ...Option) (*Store, error) {
	cfg := &storeConfig{service: "pf"}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.backend != nil {
		return &Store{backend: cfg.backend}, nil
	}
	if cfg.fallbackPath != "" {
		b, err := NewFileBackend(cfg.fallbackPath)
		if err != nil {
			return nil, err
		}
		return &Store{backend: b}, nil
	}

	backend, err := platformBackend(cfg.service)
	if err != nil {
		if !stderrors.Is(err, ErrBackendNotAvail) {
			return nil, err
		}
		path, perr := DefaultFilePath()
		if perr != nil {
			return nil, perr
		}
		if backend, err = NewFileBackend(path); err != nil {
			return nil, err
		}
	}
	return &Store{backend: backend}, nil
}

func platformBackend(service string) (Backend, error) {
	switch runtime.GOOS {
	case "darwin":
		return NewKeychainBackend(service)
	case "windows":
		return NewCredentialBackend(service)
	case "linux":
		return NewSecretServiceBackend(service)
	}
	return nil, ErrBackendNotAvail
}

// Get returns the credential of kind for subject
func (s *Store) Get(kind Kind, subject string) (string, error) {
	e := Entry{Kind: kind, Subject: subject}
	if err := validate(e); err != nil {
		return "", &Error{Op: "get", Key: e.key(), Err: err}
	}
	value, err := s.backend.Get(e.key())
	if err != nil {
		return "", &Error{Op: "get", Key: e.key(), Err: err}
	}
	return value, nil
}

// Set stores a credential, replacing any earlier value
func (s *Store) Set(kind Kind, subject, value string) error {
	e := Entry{Kind: kind, Subject: subject}
	if err := validate(e); err != nil {
		return &Error{Op: "set", Key: e.key(), Err: err}
	}
	if err := s.backend.Set(e.key(), value); err != nil {
		return &Error{Op: "set", Key: e.key(), Err: err}
	}
	return s.updateIndex(e.key(), true)
}

// Delete removes a credential. Deleting a missing credential is not an error.
func (s *Store) Delete(kind Kind, subject string) error {
	e := Entry{Kind: kind, Subject: subject}
	if err := validate(e); err != nil {
		return &Error{Op: "delete", Key: e.key(), Err: err}
	}
	if err := s.backend.Delete(e.key()); err != nil && !stderrors.Is(err, ErrNotFound) {
		return &Error{Op: "delete", Key: e.key(), Err: err}
	}
	return s.updateIndex(e.key(), false)
}

// List returns the stored credentials, sorted
func (s *Store) List() ([]Entry, error) {
	keys, err := s.index()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		kind, subject, ok := strings.Cut(k, "/")
		if !ok {
			continue
		}
		entries = append(entries, Entry{Kind: Kind(kind), Subject: subject})
	}
	return entries, nil
}

func (s *Store) index() ([]string, error) {
	raw, err := s.backend.Get(indexKey)
	if stderrors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Op: "list", Key: indexKey, Err: err}
	}
	var keys []string
	for _, k := range strings.Split(raw, "\n") {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *Store) updateIndex(key string, present bool) error {
	keys, err := s.index()
	if err != nil {
		return err
	}
	set := make(map[string]bool, len(keys)+1)
	for _, k := range keys {
		set[k] = true
	}
	if set[key] == present {
		return nil
	}
	if present {
		set[key] = true
	} else {
		delete(set, key)
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	if err := s.backend.Set(indexKey, strings.Join(out, "\n")); err != nil {
		return &Error{Op: "index", Key: indexKey, Err: err}
	}
	return nil
}

func validate(e Entry) error {
	if e.Kind != Password && e.Kind != Passphrase {
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if strings.TrimSpace(e.Subject) == "" || strings.ContainsAny(e.Subject, "\n\r") {
		return ErrInvalidSubject
	}
	return nil
}
