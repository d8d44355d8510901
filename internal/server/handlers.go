package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"imagehoster/internal/api"
)

const (
	cacheControlShort     = "public,max-age=600"
	cacheControlImmutable = "public,max-age=29030400,immutable"
)

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := asAPIError(err)
	status := apiErr.kind.Status()

	logger := s.log()
	if r != nil {
		logger = LoggerFrom(r.Context())
		setErrorName(r.Context(), apiErr.kind.Name())
	}

	fields := []any{"status", status, "code", apiErr.kind.Name()}
	if apiErr.err != nil {
		fields = append(fields, "error", apiErr.err)
	}
	if status >= 500 {
		logger.Error("unexpected api error", fields...)
	} else {
		logger.Debug("api error", fields...)
	}

	s.writeJSON(w, status, api.ErrorResponse{Error: api.ErrorBody{Name: apiErr.kind.Name(), Info: apiErr.info}})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

type apiError struct {
	kind ErrorKind
	info map[string]any
	err  error
}

func (e apiError) Error() string {
	if e.err != nil {
		return e.kind.Name() + ": " + e.err.Error()
	}
	if msg, ok := e.info["msg"].(string); ok {
		return e.kind.Name() + ": " + msg
	}
	return e.kind.Name()
}

func (e apiError) Unwrap() error {
	return e.err
}

// makeAPIError tags err with kind unless it already carries one.
func makeAPIError(kind ErrorKind, err error) error {
	var existing apiError
	if err != nil && errors.As(err, &existing) {
		return existing
	}
	return apiError{kind: kind, err: err}
}

// reject reports a client error with a human readable message in info.msg.
func reject(kind ErrorKind, msg string) error {
	return apiError{kind: kind, info: map[string]any{"msg": msg}}
}

func missingParam(name string) error {
	return apiError{kind: KindMissingParam, info: map[string]any{"param": name}}
}

func internalError(err error) error {
	return makeAPIError(KindInternalError, err)
}

func asAPIError(err error) apiError {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return apiError{kind: KindInternalError, err: err}
}

func errorKindOf(err error) ErrorKind {
	return asAPIError(err).kind
}
