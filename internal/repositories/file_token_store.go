package repositories

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/vidsplit/client/internal/auth"
	"github.com/vidsplit/client/internal/models"
)

const (
	tokenFileVersion = 1
	saltSize         = 16
	// scrypt parameters recommended for interactive logins.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1

	lockRetryDelay = 25 * time.Millisecond
)

type tokenFile struct {
	Version int    `json:"version"`
	Salt    []byte `json:"salt,omitempty"`
	Nonce   []byte `json:"nonce,omitempty"`
	Data    []byte `json:"data"`
}

// FileTokenStore persists the token pair in a single file, optionally sealed
// with a passphrase. Writers and readers coordinate through an advisory lock
// on a sibling ".lock" file.
type FileTokenStore struct {
	path       string
	passphrase []byte
	lock       *flock.Flock
}

// NewFileTokenStore returns a store writing to path. An empty passphrase
// stores the pair unencrypted; the file is always created with mode 0600.
func NewFileTokenStore(path, passphrase string) *FileTokenStore {
	return &FileTokenStore{
		path:       path,
		passphrase: []byte(passphrase),
		lock:       flock.New(path + ".lock"),
	}
}

// Path returns the token file location.
func (s *FileTokenStore) Path() string {
	return s.path
}

// Load reads the stored pair. A missing file yields an empty pair.
func (s *FileTokenStore) Load(ctx context.Context) (models.TokenPair, error) {
	var pair models.TokenPair
	err := s.withLock(ctx, func() error {
		raw, err := os.ReadFile(s.path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read token file: %w", err)
		}

		var file tokenFile
		if err := json.Unmarshal(raw, &file); err != nil {
			return fmt.Errorf("decode token file: %w", err)
		}
		if file.Version != tokenFileVersion {
			return fmt.Errorf("unsupported token file version %d", file.Version)
		}

		data := file.Data
		if len(file.Salt) > 0 {
			data, err = s.open(file)
			if err != nil {
				return err
			}
		}
		if err := json.Unmarshal(data, &pair); err != nil {
			return fmt.Errorf("decode token pair: %w", err)
		}
		return nil
	})
	return pair, err
}

// Save replaces the stored pair by writing a temporary file and renaming it over the old one.
func (s *FileTokenStore) Save(ctx context.Context, pair models.TokenPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("encode token pair: %w", err)
	}

	file := tokenFile{Version: tokenFileVersion, Data: data}
	if len(s.passphrase) > 0 {
		if file, err = s.seal(data); err != nil {
			return err
		}
	}
	raw, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}

	return s.withLock(ctx, func() error {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
		tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
		if err != nil {
			return fmt.Errorf("create temp token file: %w", err)
		}
		defer os.Remove(tmp.Name())

		if err := tmp.Chmod(0o600); err != nil {
			tmp.Close()
			return fmt.Errorf("chmod temp token file: %w", err)
		}
		if _, err := tmp.Write(raw); err != nil {
			tmp.Close()
			return fmt.Errorf("write temp token file: %w", err)
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return fmt.Errorf("sync temp token file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("close temp token file: %w", err)
		}
		if err := os.Rename(tmp.Name(), s.path); err != nil {
			return fmt.Errorf("replace token file: %w", err)
		}
		return nil
	})
}

// Clear removes the token file. Clearing an absent file is not an error.
func (s *FileTokenStore) Clear(ctx context.Context) error {
	return s.withLock(ctx, func() error {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove token file: %w", err)
		}
		return nil
	})
}

func (s *FileTokenStore) withLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire token file lock: %w", err)
	}
	if !locked {
		return errors.New("acquire token file lock: not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *FileTokenStore) seal(plaintext []byte) (tokenFile, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return tokenFile{}, fmt.Errorf("generate salt: %w", err)
	}
	aead, err := s.deriveAEAD(salt)
	if err != nil {
		return tokenFile{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return tokenFile{}, fmt.Errorf("generate nonce: %w", err)
	}
	return tokenFile{
		Version: tokenFileVersion,
		Salt:    salt,
		Nonce:   nonce,
		Data:    aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

func (s *FileTokenStore) open(file tokenFile) ([]byte, error) {
	if len(s.passphrase) == 0 {
		return nil, fmt.Errorf("%w: token file is encrypted", ErrBadPassphrase)
	}
	aead, err := s.deriveAEAD(file.Salt)
	if err != nil {
		return nil, err
	}
	if len(file.Nonce) != aead.NonceSize() {
		return nil, errors.New("token file nonce has wrong size")
	}
	plaintext, err := aead.Open(nil, file.Nonce, file.Data, nil)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return plaintext, nil
}

func (s *FileTokenStore) deriveAEAD(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.passphrase, salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init token cipher: %w", err)
	}
	return aead, nil
}

var _ auth.TokenStore = (*FileTokenStore)(nil)
