package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"imagehoster/internal/blacklist"
	"imagehoster/internal/blobstore"
	"imagehoster/internal/contentkey"
	"imagehoster/internal/imaging"
	"imagehoster/internal/mimesniff"
)

// Transcoder fits an encoded image into width x height, 0 meaning unconstrained.
type Transcoder interface {
	Transcode(data []byte, width, height int) ([]byte, error)
}

// ProxyResult is the body to send for a proxy request. Exactly one of Stream
// and Data is set.
type ProxyResult struct {
	ContentType string
	Stream      io.ReadCloser
	Data        []byte
	// Source is "resized", "original" or "fetch".
	Source string
}

// ProxyService resolves resize requests through the variant cache, the
// stored original and finally the remote origin.
type ProxyService struct {
	uploadStore blobstore.Store
	proxyStore  blobstore.Store
	blacklist   *blacklist.Blacklist
	fetcher     Fetcher
	transcoder  Transcoder
	serviceURL  *url.URL
	maxSize     int64
	rewrites    [][2]string
}

// NormalizeURL extracts the proxied URL from a raw request URI. Everything
// from the first "http" onward is the target; configured rewrites are applied
// once each.
func (s *ProxyService) NormalizeURL(requestURI string) (*url.URL, error) {
	idx := strings.Index(requestURI, "http")
	if idx < 0 {
		return nil, reject(KindInvalidProxyURL, "No URL given")
	}
	raw := requestURI[idx:]
	for _, rw := range s.rewrites {
		raw = strings.Replace(raw, rw[0], rw[1], 1)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, makeAPIError(KindInvalidProxyURL, err)
	}
	if u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return nil, makeAPIError(KindInvalidProxyURL, fmt.Errorf("not an absolute url: %q", raw))
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

// Proxy returns target resized to width x height.
func (s *ProxyService) Proxy(ctx context.Context, target *url.URL, width, height int) (*ProxyResult, error) {
	logger := LoggerFrom(ctx)
	canonical := target.String()

	if s.blacklist.HasImage(canonical) {
		return nil, makeAPIError(KindBlacklisted, nil)
	}

	origStore := s.proxyStore
	origKey := contentkey.Proxied(canonical)
	isUpload := s.isOwnUpload(target)
	if isUpload {
		origStore = s.uploadStore
		origKey = strings.SplitN(strings.TrimPrefix(target.Path, "/"), "/", 2)[0]
		if blobstore.ValidateKey(origKey) != nil {
			return nil, reject(KindBadRequest, "Upload not found")
		}
	}
	tag(ctx, "is_upload", isUpload)

	variantKey := contentkey.Variant(origKey, width, height)

	if result, err := s.streamVariant(ctx, variantKey); err != nil || result != nil {
		return result, err
	}

	var (
		origData    []byte
		contentType string
		source      string
	)
	exists, err := origStore.Exists(ctx, origKey)
	if err != nil {
		return nil, internalError(fmt.Errorf("check original %s: %w", origKey, err))
	}
	if exists {
		tag(ctx, "store", "original")
		source = "original"
		origData, err = blobstore.ReadAll(ctx, origStore, origKey, s.maxSize)
		if err != nil {
			return nil, internalError(err)
		}
		contentType = mimesniff.Detect(origData)
	} else {
		if isUpload {
			return nil, reject(KindBadRequest, "Upload not found")
		}
		tag(ctx, "store", "fetch")
		source = "fetch"
		origData, contentType, err = s.fetchOriginal(ctx, canonical)
		if err != nil {
			return nil, err
		}
		logger.Debug("storing original", "key", origKey)
		if err := origStore.Write(ctx, origKey, origData); err != nil {
			logger.Error("unable to store original", "key", origKey, "error", err)
		}
	}

	if mimesniff.IsAnimated(contentType) && width == 0 && height == 0 {
		return &ProxyResult{ContentType: contentType, Data: origData, Source: source}, nil
	}

	out, err := s.transcoder.Transcode(origData, width, height)
	if err != nil {
		if errors.Is(err, imaging.ErrInvalidImage) {
			return nil, makeAPIError(KindInvalidImage, err)
		}
		return nil, internalError(fmt.Errorf("transcode %s: %w", origKey, err))
	}

	logger.Debug("storing converted", "key", variantKey)
	if err := s.proxyStore.Write(ctx, variantKey, out); err != nil {
		logger.Error("unable to store converted image", "key", variantKey, "error", err)
	}

	return &ProxyResult{ContentType: mimesniff.Detect(out), Data: out, Source: source}, nil
}

// streamVariant opens a cached variant. It returns nil, nil on a miss.
func (s *ProxyService) streamVariant(ctx context.Context, key string) (*ProxyResult, error) {
	exists, err := s.proxyStore.Exists(ctx, key)
	if err != nil {
		return nil, internalError(fmt.Errorf("check variant %s: %w", key, err))
	}
	if !exists {
		return nil, nil
	}
	tag(ctx, "store", "resized")
	LoggerFrom(ctx).Debug("streaming from store", "key", key)

	rc, err := s.proxyStore.Open(ctx, key)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internalError(fmt.Errorf("open variant %s: %w", key, err))
	}
	contentType, r, err := mimesniff.Peek(rc)
	if err != nil {
		rc.Close()
		return nil, internalError(fmt.Errorf("read variant %s: %w", key, err))
	}
	return &ProxyResult{
		ContentType: contentType,
		Stream:      readCloser{Reader: r, Closer: rc},
		Source:      "resized",
	}, nil
}

func (s *ProxyService) fetchOriginal(ctx context.Context, rawURL string) ([]byte, string, error) {
	LoggerFrom(ctx).Debug("fetching image", "url", rawURL)

	res, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, "", makeAPIError(KindUpstreamError, err)
	}
	defer res.Body.Close()

	if res.ContentLength > s.maxSize {
		return nil, "", makeAPIError(KindPayloadTooLarge, nil)
	}
	if res.StatusCode/100 != 2 {
		return nil, "", makeAPIError(KindInvalidImage, fmt.Errorf("upstream status %d", res.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, s.maxSize+1))
	if err != nil {
		return nil, "", makeAPIError(KindUpstreamError, err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, "", makeAPIError(KindPayloadTooLarge, nil)
	}

	contentType := mimesniff.Detect(data)
	if !mimesniff.IsAcceptedImage(contentType) {
		return nil, "", makeAPIError(KindInvalidImage, fmt.Errorf("unsupported content type %s", contentType))
	}
	return data, contentType, nil
}

func (s *ProxyService) isOwnUpload(target *url.URL) bool {
	return strings.EqualFold(origin(target), origin(s.serviceURL)) &&
		strings.HasPrefix(target.Path, "/"+contentkey.NamespaceUpload)
}

// origin renders scheme://host[:port] with the default port elided.
func origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	return scheme + "://" + host
}

type readCloser struct {
	io.Reader
	io.Closer
}
