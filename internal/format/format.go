// Package format renders CLI output.
package format

import (
	"encoding/json"
	"io"

	"github.com/BurntSushi/toml"
)

// Formatter abstracts output formatting.
type Formatter interface {
	Write(w io.Writer, payload any) error
}

// JSONFormatter writes one JSON document per payload.
type JSONFormatter struct {
	Indent bool
}

func (f JSONFormatter) Write(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(payload)
}

// TOMLFormatter writes payload as a TOML document. Payload must be a struct
// or map.
type TOMLFormatter struct{}

func (TOMLFormatter) Write(w io.Writer, payload any) error {
	return toml.NewEncoder(w).Encode(payload)
}
