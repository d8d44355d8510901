// Package contentkey derives the store keys shared by the upload and proxy pipelines.
//
// Keys are a one-character namespace followed by a base58 multihash, so the
// hash function is recorded in the key itself.
package contentkey

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/multiformats/go-multihash"
)

const (
	// NamespaceUpload prefixes keys of files uploaded directly.
	NamespaceUpload = "D"
	// NamespaceURL prefixes keys of originals fetched from a remote URL.
	NamespaceURL = "U"

	challengePrefix = "ImageSigningChallenge"
)

// Challenge returns the domain-separated digest an upload signature must cover.
func Challenge(data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(challengePrefix))
	h.Write(data)
	return h.Sum(nil)
}

// Upload returns the key for uploaded bytes. The multihash wraps the
// challenge digest, which keeps keys compatible with existing stores.
func Upload(data []byte) string {
	return NamespaceUpload + encode(Challenge(data), multihash.SHA2_256)
}

// Proxied returns the key for an original fetched from canonicalURL.
func Proxied(canonicalURL string) string {
	sum := sha1.Sum([]byte(canonicalURL))
	return NamespaceURL + encode(sum[:], multihash.SHA1)
}

// Variant returns the key of origin resized to width x height.
func Variant(origin string, width, height int) string {
	return fmt.Sprintf("%s_%dx%d", origin, width, height)
}

// IsUpload reports whether key lives in the upload namespace.
func IsUpload(key string) bool {
	return strings.HasPrefix(key, NamespaceUpload)
}

func encode(digest []byte, code uint64) string {
	mh, err := multihash.Encode(digest, code)
	if err != nil {
		// Encode only fails for unknown codes or mismatched digest lengths,
		// neither of which can happen with the fixed pairs above.
		panic(fmt.Sprintf("contentkey: multihash encode: %v", err))
	}
	return multihash.Multihash(mh).B58String()
}
