package credentials

import (
	stderrors "errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newFileStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := NewStore(WithFallbackPath(path))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store, path
}

func TestStore_SetGetDelete(t *testing.T) {
	store, _ := newFileStore(t)

	if err := store.Set(Password, "deploy@web1", "s3cret"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := store.Get(Password, "deploy@web1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "s3cret" {
		t.Errorf("Get() = %q, want s3cret", got)
	}

	if _, err := store.Get(Passphrase, "deploy@web1"); !stderrors.Is(err, ErrNotFound) {
		t.Errorf("Get(passphrase) error = %v, want ErrNotFound", err)
	}

	if err := store.Delete(Password, "deploy@web1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(Password, "deploy@web1"); !stderrors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(Password, "deploy@web1"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestStore_List(t *testing.T) {
	store, _ := newFileStore(t)
	_ = store.Set(Password, "root@db", "a")
	_ = store.Set(Passphrase, "/home/me/.ssh/id_ed25519", "b")
	_ = store.Set(Password, "root@db", "c")

	got, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []Entry{
		{Kind: Passphrase, Subject: "/home/me/.ssh/id_ed25519"},
		{Kind: Password, Subject: "root@db"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_PersistsEncrypted(t *testing.T) {
	store, path := newFileStore(t)
	if err := store.Set(Password, "u@h", "pw"); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewStore(WithFallbackPath(path))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if got, err := reopened.Get(Password, "u@h"); err != nil || got != "pw" {
		t.Errorf("Get() = %q, %v; want pw", got, err)
	}
}

func TestStore_InvalidSubject(t *testing.T) {
	store, _ := newFileStore(t)
	for _, subject := range []string{"", "  ", "a\nb"} {
		if err := store.Set(Password, subject, "x"); !stderrors.Is(err, ErrInvalidSubject) {
			t.Errorf("Set(%q) error = %v, want ErrInvalidSubject", subject, err)
		}
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("Password"); err != nil || k != Password {
		t.Errorf("ParseKind(Password) = %v, %v", k, err)
	}
	if _, err := ParseKind("token"); err == nil {
		t.Error("ParseKind(token) should fail")
	}
}
