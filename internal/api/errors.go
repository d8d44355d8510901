package api

import "fmt"

// APIError is a structured error returned by the HTTP API.
type APIError struct {
	Status int
	Name   string
	Info   map[string]any
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if msg, ok := e.Info["msg"].(string); ok && msg != "" && e.Name != "" {
		return fmt.Sprintf("%s: %s", e.Name, msg)
	}
	if e.Name != "" {
		return e.Name
	}
	if e.Status > 0 {
		return fmt.Sprintf("api error: %d", e.Status)
	}
	return "api error"
}
