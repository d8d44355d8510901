package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"imagehoster/internal/config"
	"imagehoster/internal/ratelimit"
)

func TestRunServerStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.UploadStore = config.StoreConfig{Type: "fs", Path: filepath.Join(t.TempDir(), "uploads")}
	cfg.ProxyStore = config.StoreConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "proxy.db")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, &cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run server: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunServerRejectsBadStore(t *testing.T) {
	cfg := config.Default()
	cfg.UploadStore = config.StoreConfig{Type: "tape"}
	if err := runServer(context.Background(), &cfg); err == nil {
		t.Fatal("expected store error")
	}
}

func TestNewLimiter(t *testing.T) {
	logger := slog.Default()

	cfg := config.Default()
	limiter, err := newLimiter(context.Background(), logger, &cfg)
	if err != nil {
		t.Fatalf("memory limiter: %v", err)
	}
	if _, ok := limiter.(*ratelimit.Memory); !ok {
		t.Fatalf("expected memory limiter, got %T", limiter)
	}

	mr := miniredis.RunT(t)
	cfg.RedisURL = "redis://" + mr.Addr()
	limiter, err = newLimiter(context.Background(), logger, &cfg)
	if err != nil {
		t.Fatalf("redis limiter: %v", err)
	}
	defer closeIfCloser(logger, "limiter", limiter)
	ticket, err := limiter.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if ticket.Remaining != cfg.UploadLimits.Max {
		t.Fatalf("expected full quota %d, got %d", cfg.UploadLimits.Max, ticket.Remaining)
	}

	cfg.RedisURL = "not a url"
	if _, err := newLimiter(context.Background(), logger, &cfg); err == nil {
		t.Fatal("expected error for bad redis url")
	}
}
