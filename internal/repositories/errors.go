package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrBadPassphrase indicates the token file could not be decrypted with the given passphrase.
	ErrBadPassphrase = errors.New("token file passphrase mismatch")
	// ErrSchemaMismatch indicates the history database was written by an incompatible version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
