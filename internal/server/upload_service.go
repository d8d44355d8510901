package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"

	"imagehoster/internal/blacklist"
	"imagehoster/internal/blobstore"
	"imagehoster/internal/chain"
	"imagehoster/internal/contentkey"
	"imagehoster/internal/ratelimit"
)

// UploadInput is a signed upload as received from the client.
type UploadInput struct {
	Account       string
	Signature     string
	ContentType   string
	ContentLength int64
	Body          io.Reader
}

// UploadResult describes a stored upload.
type UploadResult struct {
	Key      string
	URL      string
	Filename string
	Size     int
}

// UploadService verifies and stores signed uploads.
type UploadService struct {
	store         blobstore.Store
	accounts      chain.AccountFetcher
	limiter       ratelimit.Limiter
	blacklist     *blacklist.Blacklist
	serviceURL    *url.URL
	maxSize       int64
	addressPrefix string
	minReputation int
}

// Upload runs the full verification pipeline and stores the file.
// Re-uploading identical bytes returns the same URL.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (UploadResult, error) {
	logger := LoggerFrom(ctx)

	signature, err := chain.ParseSignature(in.Signature)
	if err != nil {
		return UploadResult{}, makeAPIError(KindInvalidSignature, err)
	}

	if !strings.Contains(in.ContentType, "multipart/form-data") {
		return UploadResult{}, reject(KindBadRequest, "Only multipart uploads are supported")
	}
	if in.ContentLength < 0 {
		return UploadResult{}, makeAPIError(KindLengthRequired, nil)
	}
	if in.ContentLength > s.maxSize {
		return UploadResult{}, makeAPIError(KindPayloadTooLarge, nil)
	}

	filename, data, err := readFirstFile(in.ContentType, in.Body, s.maxSize)
	if err != nil {
		return UploadResult{}, err
	}

	challenge := contentkey.Challenge(data)

	if s.blacklist.HasAccount(in.Account) {
		return UploadResult{}, makeAPIError(KindBlacklisted, nil)
	}

	account, err := s.accounts.GetAccount(ctx, in.Account)
	if err != nil {
		if errors.Is(err, chain.ErrAccountNotFound) {
			return UploadResult{}, makeAPIError(KindNoSuchAccount, err)
		}
		return UploadResult{}, internalError(err)
	}

	publicKey, err := signature.Recover(challenge)
	if err != nil {
		return UploadResult{}, makeAPIError(KindInvalidSignature, err)
	}
	if !account.Posting.Authorizes(publicKey.Format(s.addressPrefix)) {
		return UploadResult{}, makeAPIError(KindInvalidSignature, nil)
	}

	if s.blacklist.HasAccount(account.Name) {
		return UploadResult{}, makeAPIError(KindBlacklisted, nil)
	}

	ticket, err := s.limiter.Get(ctx, account.Name)
	if err != nil {
		logger.Warn("unable to enforce upload rate limits", "error", err)
	} else if ticket.Remaining <= 0 {
		return UploadResult{}, makeAPIError(KindQuotaExceeded, nil)
	}

	if chain.RepLog10(string(account.Reputation)) < s.minReputation {
		return UploadResult{}, makeAPIError(KindDeplorable, nil)
	}

	key := contentkey.Upload(data)
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return UploadResult{}, internalError(fmt.Errorf("check upload %s: %w", key, err))
	}
	if exists {
		logger.Debug("key already exists in store", "key", key)
	} else if err := s.store.Write(ctx, key, data); err != nil {
		return UploadResult{}, internalError(fmt.Errorf("store upload %s: %w", key, err))
	}

	logger.Info("image uploaded", "uploader", account.Name, "size", len(data), "key", key)

	return UploadResult{
		Key:      key,
		URL:      s.serviceURL.JoinPath(key, filename).String(),
		Filename: filename,
		Size:     len(data),
	}, nil
}

// readFirstFile returns the first file part of a multipart body, reading at
// most limit bytes of it.
func readFirstFile(contentType string, body io.Reader, limit int64) (string, []byte, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["boundary"] == "" {
		return "", nil, reject(KindBadRequest, "Invalid multipart content type")
	}

	mr := multipart.NewReader(body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", nil, makeAPIError(KindFileMissing, nil)
		}
		if err != nil {
			return "", nil, makeAPIError(KindBadRequest, fmt.Errorf("read multipart: %w", err))
		}
		filename := part.FileName()
		if filename == "" {
			part.Close()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, limit+1))
		part.Close()
		if err != nil {
			return "", nil, makeAPIError(KindBadRequest, fmt.Errorf("read file part: %w", err))
		}
		if int64(len(data)) > limit {
			return "", nil, makeAPIError(KindPayloadTooLarge, nil)
		}
		return filename, data, nil
	}
}
