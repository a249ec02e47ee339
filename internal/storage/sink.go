// Package storage holds the destinations downloaded segments are written to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrInvalidName is returned for names that are empty or try to escape the destination.
var ErrInvalidName = errors.New("invalid object name")

// Sink stores a named stream and returns where it ended up.
type Sink interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// cleanName reduces name to a safe relative slash path.
func cleanName(name string) (string, error) {
	trimmed := strings.TrimLeft(strings.ReplaceAll(name, "\\", "/"), "/")
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return cleaned, nil
}
