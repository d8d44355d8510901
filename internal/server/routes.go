package server

import (
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.withRequestLogging)
	r.Use(s.withRecovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeErrorReq(w, r, makeAPIError(KindNotFound, nil))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeErrorReq(w, r, makeAPIError(KindInvalidMethod, nil))
	})

	// Health check.
	r.Get("/", s.handleHealth)
	r.Get("/.well-known/healthcheck.json", s.handleHealth)

	// Avatars.
	r.Get("/u/{username}/avatar", s.handleAvatar)
	r.Get("/u/{username}/avatar/{size}", s.handleAvatar)

	// Uploads.
	r.Post("/{username}/{signature}", s.handleUpload)

	// Resize proxy. The target URL is taken from the raw request URI.
	r.Get("/{width:[0-9]+}x{height:[0-9]+}", s.handleProxy)
	r.Get("/{width:[0-9]+}x{height:[0-9]+}/*", s.handleProxy)

	// Direct serving of uploads.
	r.Get("/{hash}", s.handleServe)
	r.Get("/{hash}/{filename}", s.handleServe)

	return r
}

// withRecovery turns a handler panic into an internal_error response.
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				LoggerFrom(r.Context()).Error("handler panic", "panic", rec, "stack", string(debug.Stack()))
				s.writeErrorReq(w, r, internalError(nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
