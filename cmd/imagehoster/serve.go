package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"imagehoster/internal/blacklist"
	"imagehoster/internal/blobstore"
	"imagehoster/internal/chain"
	"imagehoster/internal/config"
	"imagehoster/internal/imaging"
	"imagehoster/internal/ratelimit"
	"imagehoster/internal/server"
)

const (
	shutdownTimeout = 30 * time.Second
	rpcTimeout      = 10 * time.Second
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"srv"},
		Short:   "Run the image service",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default().With("app", cfg.Name)
	if cfg.LoadedFrom != "" {
		logger.Info("loaded config", "path", cfg.LoadedFrom)
	}

	uploadStore, err := openStore(ctx, "upload_store", cfg.UploadStore, cfg.S3)
	if err != nil {
		return err
	}
	defer closeIfCloser(logger, "upload_store", uploadStore)

	proxyStore, err := openStore(ctx, "proxy_store", cfg.ProxyStore, cfg.S3)
	if err != nil {
		return err
	}
	defer closeIfCloser(logger, "proxy_store", proxyStore)

	limiter, err := newLimiter(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer closeIfCloser(logger, "limiter", limiter)

	bl, err := blacklist.Load(cfg.BlacklistFile)
	if err != nil {
		return err
	}
	accounts, images := bl.Len()
	logger.Info("blacklist loaded", "accounts", accounts, "images", images)

	srv, err := server.New(server.Options{
		Addr:          cfg.ListenAddr,
		ServiceURL:    cfg.ServiceURL,
		Version:       version,
		MaxImageSize:  cfg.MaxImageSize,
		TrustProxy:    cfg.Proxy,
		AddressPrefix: cfg.AddressPrefix,
		DefaultAvatar: cfg.DefaultAvatar,
		MinReputation: cfg.UploadLimits.Reputation,
		URLRewrites:   cfg.Rewrites(),
		UploadStore:   uploadStore,
		ProxyStore:    proxyStore,
		Accounts:      chain.NewClient(cfg.RPCNode, rpcTimeout),
		Limiter:       limiter,
		Blacklist:     bl,
		Transcoder:    imaging.NewTranscoder(),
		Fetcher:       server.NewHTTPFetcher(),
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, name string, sc config.StoreConfig, s3 config.S3Config) (blobstore.Store, error) {
	store, err := blobstore.New(ctx, blobstore.Options{
		Name: name,
		Type: sc.Type,
		Path: sc.Path,
		S3: blobstore.S3Config{
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			Bucket:    sc.S3Bucket,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			UseSSL:    s3.UseSSL,
			PathStyle: s3.PathStyle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return store, nil
}

// newLimiter prefers Redis when configured. An unreachable Redis is not
// fatal: uploads proceed and each failed check is logged.
func newLimiter(ctx context.Context, logger *slog.Logger, cfg *config.Config) (ratelimit.Limiter, error) {
	limits := cfg.UploadLimits
	if cfg.RedisURL == "" {
		logger.Warn("redis_url not set, upload limits are per process")
		return ratelimit.NewMemory(limits.Max, limits.Duration.Duration), nil
	}

	limiter, err := ratelimit.NewRedisFromURL(cfg.RedisURL, limits.Max, limits.Duration.Duration)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := limiter.Ping(pingCtx); err != nil {
		logger.Warn("redis unreachable", "error", err)
	}
	return limiter, nil
}

func closeIfCloser(logger *slog.Logger, name string, v any) {
	c, ok := v.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("close failed", "resource", name, "error", err)
	}
}
