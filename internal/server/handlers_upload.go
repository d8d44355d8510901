package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"imagehoster/internal/api"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tag(ctx, "handler", "upload")

	username := chi.URLParam(r, "username")
	signature := chi.URLParam(r, "signature")
	if username == "" {
		s.writeErrorReq(w, r, missingParam("username"))
		return
	}
	if signature == "" {
		s.writeErrorReq(w, r, missingParam("signature"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.upload.maxSize)
	result, err := s.upload.Upload(ctx, UploadInput{
		Account:       username,
		Signature:     signature,
		ContentType:   r.Header.Get("Content-Type"),
		ContentLength: r.ContentLength,
		Body:          r.Body,
	})
	if err != nil {
		s.writeErrorReq(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.UploadResponse{URL: result.URL})
}
