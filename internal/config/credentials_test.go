package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))

	token, err := store.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if token != "" {
		t.Errorf("Load() = %q, want empty", token)
	}
}

func TestFileStore_SaveLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store := NewFileStore(path)

	if err := store.Save("abc.def.ghi"); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("credentials file not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("credentials file mode = %o, want 600", info.Mode().Perm())
	}

	// A second instance sees the persisted value, like a process restart
	reloaded := NewFileStore(path)
	token, err := reloaded.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if token != "abc.def.ghi" {
		t.Errorf("Load() = %q, want abc.def.ghi", token)
	}

	if err := reloaded.Clear(); err != nil {
		t.Fatalf("Clear() returned error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("credentials file still exists after Clear()")
	}

	// Clearing twice is fine
	if err := reloaded.Clear(); err != nil {
		t.Errorf("second Clear() returned error: %v", err)
	}
}

func TestFileStore_SaveEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	if err := store.Save("  "); err == nil {
		t.Error("Save() with empty token should fail")
	}
}

func TestParseCredentials(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{"json", `{"token": "t1"}`, "t1", false},
		{"json without token", `{"other": "x"}`, "", false},
		{"bare token", "t2\n", "t2", false},
		{"empty", "   ", "", false},
		{"broken json", `{"token":`, "", true},
		{"garbage with spaces", "not a token", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCredentials([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCredentials() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseCredentials() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	store := NewKeyringStore()

	token, err := store.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if token != "" {
		t.Errorf("Load() = %q, want empty", token)
	}

	if err := store.Save("kr-token"); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}
	token, _ = store.Load()
	if token != "kr-token" {
		t.Errorf("Load() = %q, want kr-token", token)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() returned error: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Errorf("Clear() on missing entry returned error: %v", err)
	}
	token, _ = store.Load()
	if token != "" {
		t.Errorf("Load() after Clear = %q", token)
	}
}

func TestNewCredentialStore(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	s, err := NewCredentialStore(BackendFile)
	if err != nil {
		t.Fatalf("NewCredentialStore(file) error: %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("expected *FileStore, got %T", s)
	}

	s, err = NewCredentialStore(BackendKeyring)
	if err != nil {
		t.Fatalf("NewCredentialStore(keyring) error: %v", err)
	}
	if _, ok := s.(*KeyringStore); !ok {
		t.Errorf("expected *KeyringStore, got %T", s)
	}

	if _, err := NewCredentialStore("vault"); err == nil {
		t.Error("expected error for unknown backend")
	}
}
