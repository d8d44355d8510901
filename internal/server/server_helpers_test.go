package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"imagehoster/internal/api"
	"imagehoster/internal/blobstore"
	"imagehoster/internal/chain"
	"imagehoster/internal/contentkey"
	"imagehoster/internal/imaging"
	"imagehoster/internal/ratelimit"
)

const testServiceURL = "https://img.example.com"

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]*chain.Account
	calls    int
	err      error
}

func (f *fakeAccounts) GetAccount(_ context.Context, name string) (*chain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	account, ok := f.accounts[name]
	if !ok {
		return nil, chain.ErrAccountNotFound
	}
	clone := *account
	return &clone, nil
}

func (f *fakeAccounts) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResponse struct {
	status int
	body   []byte
	// contentLength overrides the advertised length when non-zero.
	contentLength int64
}

type trackingBody struct {
	r    io.Reader
	read atomic.Bool
}

func (b *trackingBody) Read(p []byte) (int, error) {
	b.read.Store(true)
	return b.r.Read(p)
}

func (b *trackingBody) Close() error { return nil }

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	urls      []string
	bodies    []*trackingBody
	err       error
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, rawURL)
	if f.err != nil {
		return nil, f.err
	}
	resp, ok := f.responses[rawURL]
	if !ok {
		resp = fakeResponse{status: http.StatusNotFound, body: []byte("not found")}
	}
	length := resp.contentLength
	if length == 0 {
		length = int64(len(resp.body))
	}
	body := &trackingBody{r: bytes.NewReader(resp.body)}
	f.bodies = append(f.bodies, body)
	return &FetchResult{StatusCode: resp.status, ContentLength: length, Body: body}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

type countingTranscoder struct {
	inner Transcoder
	calls atomic.Int32
}

func (c *countingTranscoder) Transcode(data []byte, width, height int) ([]byte, error) {
	c.calls.Add(1)
	return c.inner.Transcode(data, width, height)
}

type countingStore struct {
	*blobstore.Memory
	exists atomic.Int32
	opens  atomic.Int32
	writes atomic.Int32
}

func newCountingStore() *countingStore {
	return &countingStore{Memory: blobstore.NewMemory()}
}

func (c *countingStore) Exists(ctx context.Context, key string) (bool, error) {
	c.exists.Add(1)
	return c.Memory.Exists(ctx, key)
}

func (c *countingStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	c.opens.Add(1)
	return c.Memory.Open(ctx, key)
}

func (c *countingStore) Write(ctx context.Context, key string, data []byte) error {
	c.writes.Add(1)
	return c.Memory.Write(ctx, key, data)
}

func (c *countingStore) accesses() int32 {
	return c.exists.Load() + c.opens.Load() + c.writes.Load()
}

func (c *countingStore) get(t testing.TB, key string) []byte {
	t.Helper()
	data, err := blobstore.ReadAll(context.Background(), c.Memory, key, 0)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return data
}

func (c *countingStore) has(key string) bool {
	ok, _ := c.Memory.Exists(context.Background(), key)
	return ok
}

type stubLimiter struct {
	mu     sync.Mutex
	ticket ratelimit.Ticket
	err    error
	ids    []string
}

func (l *stubLimiter) Get(_ context.Context, id string) (ratelimit.Ticket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
	return l.ticket, l.err
}

type testEnv struct {
	srv        *Server
	handler    http.Handler
	uploads    *countingStore
	proxies    *countingStore
	accounts   *fakeAccounts
	fetcher    *fakeFetcher
	transcoder *countingTranscoder
	limiter    *stubLimiter
	key        *secp256k1.PrivateKey
}

func testKey(seed string) *secp256k1.PrivateKey {
	sum := sha256.Sum256([]byte(seed))
	return secp256k1.PrivKeyFromBytes(sum[:])
}

func newTestEnv(t testing.TB, mutate func(*Options)) *testEnv {
	t.Helper()

	key := testKey("alice")
	env := &testEnv{
		uploads: newCountingStore(),
		proxies: newCountingStore(),
		accounts: &fakeAccounts{accounts: map[string]*chain.Account{
			"alice": {
				Name:       "alice",
				Reputation: "95832978796820",
				Posting: chain.Authority{
					WeightThreshold: 1,
					KeyAuths:        []chain.KeyAuth{{Key: chain.NewPublicKey(key.PubKey()).Format("DWB"), Weight: 1}},
				},
			},
		}},
		fetcher:    &fakeFetcher{responses: map[string]fakeResponse{}},
		transcoder: &countingTranscoder{inner: imaging.NewTranscoder()},
		limiter:    &stubLimiter{ticket: ratelimit.Ticket{Total: 10, Remaining: 10, Reset: time.Now().Add(time.Hour)}},
		key:        key,
	}

	opts := Options{
		ServiceURL:    testServiceURL,
		Version:       "test",
		MaxImageSize:  1 << 20,
		AddressPrefix: "DWB",
		DefaultAvatar: "https://example.com/default.png",
		MinReputation: 10,
		URLRewrites:   [][2]string{{"dsiteimages.com/ipfs/", "ipfs.io/ipfs/"}},
		UploadStore:   env.uploads,
		ProxyStore:    env.proxies,
		Accounts:      env.accounts,
		Limiter:       env.limiter,
		Transcoder:    env.transcoder,
		Fetcher:       env.fetcher,
	}
	if mutate != nil {
		mutate(&opts)
	}

	srv, err := New(opts)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	env.srv = srv
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(target string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func signUpload(key *secp256k1.PrivateKey, data []byte) string {
	return chain.SignCompact(key, contentkey.Challenge(data)).String()
}

func multipartBody(t testing.TB, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("note", "ignored"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func uploadRequest(t testing.TB, account, signature, filename string, data []byte) *http.Request {
	t.Helper()
	body, contentType := multipartBody(t, filename, data)
	req := httptest.NewRequest(http.MethodPost, "/"+account+"/"+signature, body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func decodeErrorBody(t testing.TB, w *httptest.ResponseRecorder) api.ErrorBody {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response %q: %v", w.Body.String(), err)
	}
	return resp.Error
}

func expectError(t testing.TB, w *httptest.ResponseRecorder, status int, name string) api.ErrorBody {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d (%s)", status, w.Code, w.Body.String())
	}
	body := decodeErrorBody(t, w)
	if body.Name != name {
		t.Fatalf("expected error %q, got %q", name, body.Name)
	}
	return body
}

func pngBytes(t testing.TB, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 5), G: uint8(y * 7), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func animatedGIF(t testing.TB) []byte {
	t.Helper()
	palette := color.Palette{color.Black, color.White, color.NRGBA{R: 255, A: 255}}
	anim := &gif.GIF{}
	for i := 0; i < 2; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, 8, 8), palette)
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				frame.SetColorIndex(x, y, uint8((x+y+i)%len(palette)))
			}
		}
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 10)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	return buf.Bytes()
}

func imageSize(t testing.TB, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	return cfg.Width, cfg.Height
}
