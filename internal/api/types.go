package api

import "time"

// ErrorBody is the payload of a failed request.
type ErrorBody struct {
	Name string         `json:"name"`
	Info map[string]any `json:"info,omitempty"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// UploadResponse is returned by a successful upload.
type UploadResponse struct {
	URL string `json:"url"`
}

// HealthResponse is returned by the health check routes.
type HealthResponse struct {
	OK      bool      `json:"ok"`
	Version string    `json:"version"`
	Date    time.Time `json:"date"`
}
