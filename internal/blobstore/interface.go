package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Open when no blob is stored under the key.
var ErrNotFound = errors.New("blob not found")

// Store is the byte-storage abstraction shared by the upload and proxy pipelines.
//
// Keys are content addresses, so writing an existing key is expected to carry
// the same bytes and simply replaces them.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Write(ctx context.Context, key string, data []byte) error
}

// ReadAll opens key and reads it fully, failing if it is larger than limit bytes.
// A limit <= 0 disables the bound.
func ReadAll(ctx context.Context, s Store, key string, limit int64) ([]byte, error) {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read blob %q: %w", key, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("blob %q exceeds %d bytes", key, limit)
	}
	return data, nil
}

// ValidateKey rejects keys that are not safe to use as object names or paths.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("blob key is required")
	}
	if len(key) > 512 {
		return fmt.Errorf("blob key too long")
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return fmt.Errorf("invalid blob key %q", key)
		}
	}
	return nil
}
