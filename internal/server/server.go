package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"imagehoster/internal/blacklist"
	"imagehoster/internal/blobstore"
	"imagehoster/internal/chain"
	"imagehoster/internal/ratelimit"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 60 * time.Second
	writeTimeout      = 120 * time.Second
	idleTimeout       = 60 * time.Second
)

// Options wires the service collaborators.
type Options struct {
	Addr          string
	ServiceURL    string
	Version       string
	MaxImageSize  int64
	TrustProxy    bool
	AddressPrefix string
	DefaultAvatar string
	// MinReputation is the lowest reputation score allowed to upload.
	MinReputation int
	URLRewrites   [][2]string

	UploadStore blobstore.Store
	ProxyStore  blobstore.Store
	Accounts    chain.AccountFetcher
	Limiter     ratelimit.Limiter
	Blacklist   *blacklist.Blacklist
	Transcoder  Transcoder
	Fetcher     Fetcher
	Logger      *slog.Logger
}

// Server wraps HTTP handlers for the image service.
type Server struct {
	addr          string
	version       string
	trustProxy    bool
	defaultAvatar string
	uploadStore   blobstore.Store
	accounts      chain.AccountFetcher
	upload        *UploadService
	proxy         *ProxyService
	logger        *slog.Logger
	httpServer    *http.Server
}

// New creates a new server instance.
func New(opts Options) (*Server, error) {
	if opts.UploadStore == nil || opts.ProxyStore == nil {
		return nil, errors.New("upload and proxy stores are required")
	}
	if opts.Accounts == nil {
		return nil, errors.New("account fetcher is required")
	}
	if opts.Transcoder == nil || opts.Fetcher == nil {
		return nil, errors.New("transcoder and fetcher are required")
	}
	if opts.MaxImageSize <= 0 {
		return nil, fmt.Errorf("invalid max image size %d", opts.MaxImageSize)
	}
	serviceURL, err := url.Parse(strings.TrimRight(opts.ServiceURL, "/"))
	if err != nil || serviceURL.Scheme == "" || serviceURL.Host == "" {
		return nil, fmt.Errorf("invalid service url %q", opts.ServiceURL)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Disabled{}
	}
	if opts.Blacklist == nil {
		opts.Blacklist = blacklist.New(nil, nil)
	}
	if opts.AddressPrefix == "" {
		opts.AddressPrefix = chain.DefaultAddressPrefix
	}

	s := &Server{
		addr:          opts.Addr,
		version:       opts.Version,
		trustProxy:    opts.TrustProxy,
		defaultAvatar: opts.DefaultAvatar,
		uploadStore:   opts.UploadStore,
		accounts:      opts.Accounts,
		upload: &UploadService{
			store:         opts.UploadStore,
			accounts:      opts.Accounts,
			limiter:       opts.Limiter,
			blacklist:     opts.Blacklist,
			serviceURL:    serviceURL,
			maxSize:       opts.MaxImageSize,
			addressPrefix: opts.AddressPrefix,
			minReputation: opts.MinReputation,
		},
		proxy: &ProxyService{
			uploadStore: opts.UploadStore,
			proxyStore:  opts.ProxyStore,
			blacklist:   opts.Blacklist,
			fetcher:     opts.Fetcher,
			transcoder:  opts.Transcoder,
			serviceURL:  serviceURL,
			maxSize:     opts.MaxImageSize,
			rewrites:    opts.URLRewrites,
		},
		logger: opts.Logger,
	}
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr, "version", s.version)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
