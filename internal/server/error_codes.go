package server

import "net/http"

// ErrorKind classifies every failure the API reports.
type ErrorKind int

const (
	KindBadRequest ErrorKind = iota
	KindBlacklisted
	KindDeplorable
	KindFileMissing
	KindInternalError
	KindInvalidImage
	KindInvalidMethod
	KindInvalidProxyURL
	KindInvalidSignature
	KindLengthRequired
	KindMissingParam
	KindNoSuchAccount
	KindNotFound
	KindPayloadTooLarge
	KindQuotaExceeded
	KindUpstreamError
)

// The qouta_exceeded spelling is part of the public wire format.
var errorKinds = [...]struct {
	name   string
	status int
}{
	KindBadRequest:       {"bad_request", http.StatusBadRequest},
	KindBlacklisted:      {"blacklisted", http.StatusUnavailableForLegalReasons},
	KindDeplorable:       {"deplorable", http.StatusForbidden},
	KindFileMissing:      {"file_missing", http.StatusBadRequest},
	KindInternalError:    {"internal_error", http.StatusInternalServerError},
	KindInvalidImage:     {"invalid_image", http.StatusBadRequest},
	KindInvalidMethod:    {"invalid_method", http.StatusMethodNotAllowed},
	KindInvalidProxyURL:  {"invalid_proxy_url", http.StatusBadRequest},
	KindInvalidSignature: {"invalid_signature", http.StatusBadRequest},
	KindLengthRequired:   {"length_required", http.StatusLengthRequired},
	KindMissingParam:     {"missing_param", http.StatusBadRequest},
	KindNoSuchAccount:    {"no_such_account", http.StatusNotFound},
	KindNotFound:         {"not_found", http.StatusNotFound},
	KindPayloadTooLarge:  {"payload_too_large", http.StatusRequestEntityTooLarge},
	KindQuotaExceeded:    {"qouta_exceeded", http.StatusTooManyRequests},
	KindUpstreamError:    {"upstream_error", http.StatusBadRequest},
}

// Name returns the snake_case name used in the error envelope.
func (k ErrorKind) Name() string {
	if k < 0 || int(k) >= len(errorKinds) {
		return errorKinds[KindInternalError].name
	}
	return errorKinds[k].name
}

// Status returns the HTTP status for the kind.
func (k ErrorKind) Status() int {
	if k < 0 || int(k) >= len(errorKinds) {
		return http.StatusInternalServerError
	}
	return errorKinds[k].status
}

func (k ErrorKind) String() string {
	return k.Name()
}
