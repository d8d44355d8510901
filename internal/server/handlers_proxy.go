package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tag(ctx, "handler", "proxy")

	width, err := strconv.Atoi(chi.URLParam(r, "width"))
	if err != nil || width < 0 {
		s.writeErrorReq(w, r, reject(KindBadRequest, "Invalid width"))
		return
	}
	height, err := strconv.Atoi(chi.URLParam(r, "height"))
	if err != nil || height < 0 {
		s.writeErrorReq(w, r, reject(KindBadRequest, "Invalid height"))
		return
	}
	if chi.URLParam(r, "*") == "" {
		s.writeErrorReq(w, r, missingParam("url"))
		return
	}

	target, err := s.proxy.NormalizeURL(r.RequestURI)
	if err != nil {
		s.writeErrorReq(w, r, err)
		return
	}

	// Failures are cached too, to bound retry storms.
	w.Header().Set("Cache-Control", cacheControlShort)

	result, err := s.proxy.Proxy(ctx, target, width, height)
	if err != nil {
		s.writeErrorReq(w, r, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Cache-Control", cacheControlImmutable)
	if result.Stream != nil {
		defer result.Stream.Close()
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, result.Stream); err != nil {
			LoggerFrom(ctx).Debug("stream aborted", "error", err)
		}
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		LoggerFrom(ctx).Debug("write aborted", "error", err)
	}
}
