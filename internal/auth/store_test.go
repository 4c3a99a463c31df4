package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))

	cred, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cred != nil {
		t.Errorf("Load() = %+v, want nil for missing file", cred)
	}
}

func TestStoreLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	store := NewStore(path)
	if _, err := store.Load(); err == nil {
		t.Error("Load() error = nil, want parse error for corrupt file")
	}
}

func TestStoreSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "token.json")
	store := NewStore(path)

	want := &Credential{CountryCode: "US", UserID: 42}
	want.AccessToken = "access"
	want.RefreshToken = "refresh"
	want.TokenType = "Bearer"
	want.Expiry = time.Now().Add(time.Hour).Truncate(time.Second)

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AccessToken != want.AccessToken {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, want.AccessToken)
	}
	if got.RefreshToken != want.RefreshToken {
		t.Errorf("RefreshToken = %q, want %q", got.RefreshToken, want.RefreshToken)
	}
	if got.CountryCode != "US" {
		t.Errorf("CountryCode = %q, want US", got.CountryCode)
	}
	if got.UserID != 42 {
		t.Errorf("UserID = %d, want 42", got.UserID)
	}
	if !got.Expiry.Equal(want.Expiry) {
		t.Errorf("Expiry = %v, want %v", got.Expiry, want.Expiry)
	}
}

func TestStoreSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store := NewStore(path)

	first := &Credential{}
	first.AccessToken = "old"
	if err := store.Save(first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second := &Credential{}
	second.AccessToken = "new"
	if err := store.Save(second); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AccessToken != "new" {
		t.Errorf("AccessToken = %q, want new", got.AccessToken)
	}

	// No leftover temp files from the atomic write.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("token dir holds %d entries, want 1", len(entries))
	}
}

func TestCredentialValidFor(t *testing.T) {
	margin := 5 * time.Minute

	tests := []struct {
		name string
		cred *Credential
		want bool
	}{
		{"nil credential", nil, false},
		{"no access token", &Credential{}, false},
		{"zero expiry", func() *Credential {
			c := &Credential{}
			c.AccessToken = "x"
			return c
		}(), false},
		{"expires within margin", func() *Credential {
			c := &Credential{}
			c.AccessToken = "x"
			c.Expiry = time.Now().Add(time.Minute)
			return c
		}(), false},
		{"valid", func() *Credential {
			c := &Credential{}
			c.AccessToken = "x"
			c.Expiry = time.Now().Add(time.Hour)
			return c
		}(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cred.ValidFor(margin); got != tt.want {
				t.Errorf("ValidFor() = %v, want %v", got, tt.want)
			}
		})
	}
}
