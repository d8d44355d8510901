// Package mimesniff guesses content types from a byte prefix.
package mimesniff

import (
	"bufio"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// SniffLength is how many leading bytes are inspected when streaming stored content.
const SniffLength = 16 * 1024

// DefaultType is reported when nothing more specific matches.
const DefaultType = "application/octet-stream"

var acceptedImageTypes = map[string]struct{}{
	"image/gif":              {},
	"image/jpeg":             {},
	"image/png":              {},
	"image/vnd.mozilla.apng": {},
	"image/webp":             {},
}

var animatedTypes = map[string]struct{}{
	"image/gif":              {},
	"image/vnd.mozilla.apng": {},
}

// Detect returns the media type of prefix without parameters.
// The prefix does not need to be the complete content.
func Detect(prefix []byte) string {
	if len(prefix) > SniffLength {
		prefix = prefix[:SniffLength]
	}
	mt := mimetype.Detect(prefix)
	if mt == nil {
		return DefaultType
	}
	value := mt.String()
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = value[:i]
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultType
	}
	return value
}

// Peek sniffs the type of r without consuming it. The returned reader yields
// the full stream including the inspected prefix.
func Peek(r io.Reader) (string, io.Reader, error) {
	br := bufio.NewReaderSize(r, SniffLength)
	head, err := br.Peek(SniffLength)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", nil, err
	}
	return Detect(head), br, nil
}

// IsAcceptedImage reports whether contentType may be proxied and resized.
func IsAcceptedImage(contentType string) bool {
	_, ok := acceptedImageTypes[contentType]
	return ok
}

// IsAnimated reports whether contentType may carry multiple frames.
func IsAnimated(contentType string) bool {
	_, ok := animatedTypes[contentType]
	return ok
}
