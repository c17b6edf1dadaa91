package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100000
	saltSize         = 32
	keySize          = 32 // AES-256
)

// FileBackend keeps credentials in an AES-GCM encrypted JSON file.
type FileBackend struct {
	path    string
	key     []byte
	mu      sync.RWMutex
	secrets map[string]string
}

type envelope struct {
	Salt   []byte `json:"salt"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

// DefaultFilePath returns ~/.pf/credentials.enc
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".pf", "credentials.enc"), nil
}

// NewFileBackend opens or creates the encrypted file at path
func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	f := &FileBackend{
		path:    path,
		key:     machineKey(),
		secrets: make(map[string]string),
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileBackend) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secrets[key] = value
	return f.save()
}

func (f *FileBackend) Get(key string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	value, ok := f.secrets[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (f *FileBackend) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.secrets[key]; !ok {
		return nil
	}
	delete(f.secrets, key)
	return f.save()
}

func (f *FileBackend) save() error {
	data, err := json.Marshal(f.secrets)
	if err != nil {
		return err
	}
	sealed, err := f.encrypt(data)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, sealed, 0o600)
}

func (f *FileBackend) load() error {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	plain, err := f.decrypt(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(plain, &f.secrets)
}

func (f *FileBackend) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(f.key, salt, pbkdf2Iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (f *FileBackend) encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	gcm, err := f.gcm(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		Salt:   salt,
		Nonce:  nonce,
		Cipher: gcm.Seal(nil, nonce, plaintext, nil),
	})
}

func (f *FileBackend) decrypt(data []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	gcm, err := f.gcm(env.Salt)
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != gcm.NonceSize() {
		return nil, stderrors.New("invalid nonce size")
	}
	return gcm.Open(nil, env.Nonce, env.Cipher, nil)
}

// machineKey derives the file key from the user's home and host name.
func machineKey() []byte {
	home, _ := os.UserHomeDir()
	host, _ := os.Hostname()
	seed := home + ":" + host + ":pf-credentials"
	return pbkdf2.Key([]byte(seed), []byte("pf-salt"), pbkdf2Iterations, keySize, sha256.New)
}
