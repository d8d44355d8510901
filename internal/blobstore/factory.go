package blobstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Options selects and configures a store backend.
type Options struct {
	Name string
	Type string
	Path string
	S3   S3Config
}

// New builds the backend named by opts.Type.
func New(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Type)) {
	case BackendMemory:
		slog.Default().Warn("using memory store", "store", opts.Name)
		return NewMemory(), nil
	case BackendFS:
		return NewLocal(opts.Path)
	case BackendSQLite:
		return OpenSQLite(opts.Path)
	case BackendS3:
		return NewS3(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("invalid storage type %q for %s", opts.Type, opts.Name)
	}
}
