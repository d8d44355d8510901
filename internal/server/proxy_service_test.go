package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"imagehoster/internal/blacklist"
	"imagehoster/internal/contentkey"
)

const originURL = "https://example.com/cat.png"

func TestProxyFetchesResizesAndCaches(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fetcher.responses[originURL] = fakeResponse{status: http.StatusOK, body: pngBytes(t, 40, 20)}

	w := env.get("/20x0/" + originURL)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("expected image/png, got %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != cacheControlImmutable {
		t.Fatalf("expected immutable cache header, got %q", got)
	}
	if width, height := imageSize(t, w.Body.Bytes()); width != 20 || height != 10 {
		t.Fatalf("expected 20x10, got %dx%d", width, height)
	}

	origKey := contentkey.Proxied(originURL)
	if !env.proxies.has(origKey) {
		t.Fatal("expected original to be cached")
	}
	if !env.proxies.has(contentkey.Variant(origKey, 20, 0)) {
		t.Fatal("expected variant to be cached")
	}

	first := w.Body.Bytes()
	w = env.get("/20x0/" + originURL)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from cache, got %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), first) {
		t.Fatal("cached variant differs from first response")
	}
	if env.fetcher.callCount() != 1 {
		t.Fatalf("expected a single fetch, got %d", env.fetcher.callCount())
	}
	if env.transcoder.calls.Load() != 1 {
		t.Fatalf("expected a single transcode, got %d", env.transcoder.calls.Load())
	}
}

type failingWriteStore struct {
	*countingStore
}

func (f *failingWriteStore) Write(ctx context.Context, key string, data []byte) error {
	f.writes.Add(1)
	return errors.New("disk full")
}

func TestProxyStoreWriteFailureIsNotFatal(t *testing.T) {
	var logs bytes.Buffer
	store := &failingWriteStore{countingStore: newCountingStore()}
	env := newTestEnv(t, func(opts *Options) {
		opts.ProxyStore = store
		opts.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	})
	env.fetcher.responses[originURL] = fakeResponse{status: http.StatusOK, body: pngBytes(t, 40, 20)}

	w := env.get("/20x0/" + originURL)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if width, height := imageSize(t, w.Body.Bytes()); width != 20 || height != 10 {
		t.Fatalf("expected 20x10, got %dx%d", width, height)
	}
	if got := store.writes.Load(); got != 2 {
		t.Fatalf("expected original and variant writes, got %d", got)
	}
	if store.Len() != 0 {
		t.Fatalf("expected nothing stored, got %d blobs", store.Len())
	}
	out := logs.String()
	for _, msg := range []string{"unable to store original", "unable to store converted image"} {
		if !strings.Contains(out, msg) {
			t.Fatalf("expected %q in logs:\n%s", msg, out)
		}
	}

	// Nothing was cached, so the next request fetches again.
	if w := env.get("/20x0/" + originURL); w.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d", w.Code)
	}
	if env.fetcher.callCount() != 2 {
		t.Fatalf("expected a second fetch, got %d", env.fetcher.callCount())
	}
}

func TestProxyUsesStoredOriginal(t *testing.T) {
	env := newTestEnv(t, nil)
	origKey := contentkey.Proxied(originURL)
	if err := env.proxies.Memory.Write(t.Context(), origKey, pngBytes(t, 30, 30)); err != nil {
		t.Fatalf("seed original: %v", err)
	}

	w := env.get("/10x10/" + originURL)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if width, height := imageSize(t, w.Body.Bytes()); width != 10 || height != 10 {
		t.Fatalf("expected 10x10, got %dx%d", width, height)
	}
	if env.fetcher.callCount() != 0 {
		t.Fatal("stored original must not be refetched")
	}
	if !env.proxies.has(contentkey.Variant(origKey, 10, 10)) {
		t.Fatal("expected variant to be cached")
	}
}

func TestProxyOwnUpload(t *testing.T) {
	env := newTestEnv(t, nil)
	data := pngBytes(t, 32, 16)
	key := contentkey.Upload(data)
	if err := env.uploads.Memory.Write(t.Context(), key, data); err != nil {
		t.Fatalf("seed upload: %v", err)
	}

	w := env.get("/16x0/" + testServiceURL + "/" + key + "/cat.png")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if width, height := imageSize(t, w.Body.Bytes()); width != 16 || height != 8 {
		t.Fatalf("expected 16x8, got %dx%d", width, height)
	}
	if env.fetcher.callCount() != 0 {
		t.Fatal("own uploads must never be fetched")
	}
	if !env.proxies.has(contentkey.Variant(key, 16, 0)) {
		t.Fatal("expected variant keyed by the upload key")
	}
	if env.proxies.has(contentkey.Proxied(testServiceURL + "/" + key + "/cat.png")) {
		t.Fatal("own upload must not be copied into the proxy store")
	}
}

func TestProxyMissingOwnUpload(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.get("/16x0/" + testServiceURL + "/Dmissing/cat.png")
	body := expectError(t, w, http.StatusBadRequest, "bad_request")
	if body.Info["msg"] != "Upload not found" {
		t.Fatalf("unexpected info: %v", body.Info)
	}
	if env.fetcher.callCount() != 0 {
		t.Fatal("missing upload must not be fetched")
	}
}

func TestProxyBlacklistedImage(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Blacklist = blacklist.New(nil, []string{originURL}) })
	env.fetcher.responses[originURL] = fakeResponse{status: http.StatusOK, body: pngBytes(t, 4, 4)}

	w := env.get("/0x0/" + originURL)
	expectError(t, w, http.StatusUnavailableForLegalReasons, "blacklisted")
	if env.fetcher.callCount() != 0 || env.proxies.accesses() != 0 || env.uploads.accesses() != 0 {
		t.Fatal("blacklisted image must not touch stores or network")
	}
}

func TestProxyFetchFailures(t *testing.T) {
	tests := []struct {
		name     string
		response fakeResponse
		err      error
		status   int
		errName  string
	}{
		{
			name:     "advertised length over limit",
			response: fakeResponse{status: http.StatusOK, body: []byte("x"), contentLength: 2 << 20},
			status:   http.StatusRequestEntityTooLarge,
			errName:  "payload_too_large",
		},
		{
			name:     "body over limit",
			response: fakeResponse{status: http.StatusOK, body: bytes.Repeat([]byte{0x89}, 1<<20+10), contentLength: -1},
			status:   http.StatusRequestEntityTooLarge,
			errName:  "payload_too_large",
		},
		{
			name:     "not an image",
			response: fakeResponse{status: http.StatusOK, body: []byte("<html>hello</html>")},
			status:   http.StatusBadRequest,
			errName:  "invalid_image",
		},
		{
			name:     "upstream not found",
			response: fakeResponse{status: http.StatusNotFound, body: []byte("gone")},
			status:   http.StatusBadRequest,
			errName:  "invalid_image",
		},
		{
			name:    "transport error",
			err:     errors.New("connection refused"),
			status:  http.StatusBadRequest,
			errName: "upstream_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.fetcher.responses[originURL] = tt.response
			env.fetcher.err = tt.err

			w := env.get("/0x0/" + originURL)
			expectError(t, w, tt.status, tt.errName)
			if got := w.Header().Get("Cache-Control"); got != cacheControlShort {
				t.Fatalf("expected short cache header on failure, got %q", got)
			}
			if env.proxies.writes.Load() != 0 {
				t.Fatal("failed fetch must not be stored")
			}
		})
	}
}

func TestProxyOversizedBodyIsNotRead(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fetcher.responses[originURL] = fakeResponse{status: http.StatusOK, body: []byte("x"), contentLength: 2 << 20}

	w := env.get("/0x0/" + originURL)
	expectError(t, w, http.StatusRequestEntityTooLarge, "payload_too_large")
	if len(env.fetcher.bodies) != 1 || env.fetcher.bodies[0].read.Load() {
		t.Fatal("oversized body should be rejected before reading")
	}
}

func TestProxyAnimatedPassthrough(t *testing.T) {
	env := newTestEnv(t, nil)
	data := animatedGIF(t)
	env.fetcher.responses[originURL] = fakeResponse{status: http.StatusOK, body: data}

	w := env.get("/0x0/" + originURL)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if !bytes.Equal(w.Body.Bytes(), data) {
		t.Fatal("animated image should pass through unchanged")
	}
	if got := w.Header().Get("Content-Type"); got != "image/gif" {
		t.Fatalf("expected image/gif, got %q", got)
	}
	if env.transcoder.calls.Load() != 0 {
		t.Fatal("animated passthrough must not transcode")
	}
	if env.proxies.has(contentkey.Variant(contentkey.Proxied(originURL), 0, 0)) {
		t.Fatal("animated passthrough must not write a variant")
	}
}

func TestProxyAnimatedResize(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fetcher.responses[originURL] = fakeResponse{status: http.StatusOK, body: animatedGIF(t)}

	w := env.get("/4x4/" + originURL)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if width, height := imageSize(t, w.Body.Bytes()); width != 4 || height != 4 {
		t.Fatalf("expected 4x4, got %dx%d", width, height)
	}
	if env.transcoder.calls.Load() != 1 {
		t.Fatal("expected resized gif to be transcoded")
	}
	if !env.proxies.has(contentkey.Variant(contentkey.Proxied(originURL), 4, 4)) {
		t.Fatal("expected resized gif variant to be stored")
	}
}

func TestProxyAppliesRewrites(t *testing.T) {
	env := newTestEnv(t, nil)
	rewritten := "https://ipfs.io/ipfs/QmImage"
	env.fetcher.responses[rewritten] = fakeResponse{status: http.StatusOK, body: pngBytes(t, 4, 4)}

	w := env.get("/0x0/https://dsiteimages.com/ipfs/QmImage")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if len(env.fetcher.urls) != 1 || env.fetcher.urls[0] != rewritten {
		t.Fatalf("expected fetch of %q, got %v", rewritten, env.fetcher.urls)
	}
}

func TestProxyRequestErrors(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		errName string
	}{
		{"no url", "/10x10", "missing_param"},
		{"empty url", "/10x10/", "missing_param"},
		{"no scheme", "/10x10/example.com/cat.png", "invalid_proxy_url"},
		{"no host", "/10x10/http://", "invalid_proxy_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			w := env.get(tt.target)
			expectError(t, w, http.StatusBadRequest, tt.errName)
			if env.fetcher.callCount() != 0 {
				t.Fatal("invalid request must not fetch")
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		uri  string
		want string
	}{
		{"/0x0/https://Example.COM", "https://example.com/"},
		{"/0x0/https://example.com/a/b.png?x=1", "https://example.com/a/b.png?x=1"},
		{"/0x0/https://example.com/a.png#frag", "https://example.com/a.png"},
		{"/0x0/https://dsiteimages.com/ipfs/Qm", "https://ipfs.io/ipfs/Qm"},
		{"/100x0/http://example.com:8080/a.png", "http://example.com:8080/a.png"},
	}
	for _, tt := range tests {
		got, err := env.srv.proxy.NormalizeURL(tt.uri)
		if err != nil {
			t.Fatalf("normalize %q: %v", tt.uri, err)
		}
		if got.String() != tt.want {
			t.Fatalf("normalize %q: expected %q, got %q", tt.uri, tt.want, got.String())
		}
	}
}

func TestOrigin(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://img.example.com:443/x", "https://img.example.com"},
		{"http://img.example.com:80/x", "http://img.example.com"},
		{"http://img.example.com:8800/x", "http://img.example.com:8800"},
		{"HTTPS://IMG.example.com/x", "https://img.example.com"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.raw, err)
		}
		if got := origin(u); got != tt.want {
			t.Fatalf("origin %q: expected %q, got %q", tt.raw, tt.want, got)
		}
	}
}
