package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"imagehoster/internal/blobstore"
	"imagehoster/internal/mimesniff"
)

func (s *Server) handleServe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tag(ctx, "handler", "serve")

	hash := chi.URLParam(r, "hash")
	if hash == "" {
		s.writeErrorReq(w, r, missingParam("hash"))
		return
	}
	if blobstore.ValidateKey(hash) != nil {
		s.writeErrorReq(w, r, makeAPIError(KindNotFound, nil))
		return
	}

	rc, err := s.uploadStore.Open(ctx, hash)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			s.writeErrorReq(w, r, makeAPIError(KindNotFound, err))
			return
		}
		s.writeErrorReq(w, r, internalError(err))
		return
	}
	defer rc.Close()

	contentType, body, err := mimesniff.Peek(rc)
	if err != nil {
		s.writeErrorReq(w, r, internalError(err))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControlImmutable)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		LoggerFrom(ctx).Debug("stream aborted", "key", hash, "error", err)
	}
}
