package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	fetchConnectTimeout  = 5 * time.Second
	fetchResponseTimeout = 5 * time.Second
	fetchReadTimeout     = 60 * time.Second
	fetchMaxRedirects    = 5
	fetchUserAgent       = "ImageHoster/1.0 (+https://github.com/dpays/imagehoster)"
)

var errTooManyRedirects = errors.New("too many redirects")

// FetchResult is a remote response whose body has not been read yet.
type FetchResult struct {
	StatusCode    int
	ContentLength int64
	Body          io.ReadCloser
}

// Fetcher retrieves remote originals for the proxy.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*FetchResult, error)
}

// HTTPFetcher fetches over HTTP with bounded connect, header and read times.
type HTTPFetcher struct {
	client      *http.Client
	readTimeout time.Duration
	userAgent   string
}

// NewHTTPFetcher creates a fetcher using the default limits.
func NewHTTPFetcher() *HTTPFetcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   fetchConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   fetchConnectTimeout,
		ResponseHeaderTimeout: fetchResponseTimeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > fetchMaxRedirects {
					return errTooManyRedirects
				}
				return nil
			},
		},
		readTimeout: fetchReadTimeout,
		userAgent:   fetchUserAgent,
	}
}

// Fetch issues a GET for rawURL. The returned body must be closed; reading it
// fails once the read timeout elapses.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.readTimeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return &FetchResult{
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength,
		Body:          &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
