package repositories

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/vidsplit/client/internal/models"
)

func TestFileTokenStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	store := NewFileTokenStore(path, "")

	pair, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load missing file: %v", err)
	}
	if !pair.Empty() {
		t.Fatalf("expected empty pair got %+v", pair)
	}

	want := models.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions got %o", perm)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v got %+v", want, got)
	}

	replacement := models.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}
	if err := store.Save(ctx, replacement); err != nil {
		t.Fatalf("save replacement: %v", err)
	}
	if got, _ := store.Load(ctx); got != replacement {
		t.Fatalf("expected replacement pair got %+v", got)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if got, _ := store.Load(ctx); !got.Empty() {
		t.Fatalf("expected empty pair after clear got %+v", got)
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("expected no temp files, found %v", leftovers)
	}
}

func TestFileTokenStoreEncrypted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")
	store := NewFileTokenStore(path, "correct horse")

	want := models.TokenPair{AccessToken: "secret-access", RefreshToken: "secret-refresh"}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read token file: %v", err)
	}
	if strings.Contains(string(raw), "secret-access") || strings.Contains(string(raw), "secret-refresh") {
		t.Fatal("expected tokens to be encrypted at rest")
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v got %+v", want, got)
	}

	if _, err := NewFileTokenStore(path, "wrong").Load(ctx); !errors.Is(err, ErrBadPassphrase) {
		t.Fatalf("expected ErrBadPassphrase got %v", err)
	}
	if _, err := NewFileTokenStore(path, "").Load(ctx); !errors.Is(err, ErrBadPassphrase) {
		t.Fatalf("expected ErrBadPassphrase without passphrase got %v", err)
	}
}

func TestFileTokenStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if _, err := NewFileTokenStore(path, "").Load(context.Background()); err == nil {
		t.Fatal("expected error for corrupt token file")
	}
}

func TestFileTokenStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store := NewFileTokenStore(path, "")
			pair := models.TokenPair{AccessToken: strings.Repeat("a", i+1), RefreshToken: strings.Repeat("r", i+1)}
			if err := store.Save(ctx, pair); err != nil {
				t.Errorf("save %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := NewFileTokenStore(path, "").Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.AccessToken) != len(got.RefreshToken) {
		t.Fatalf("expected a pair written by a single writer, got %+v", got)
	}
}
