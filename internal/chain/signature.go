package chain

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // the chain's key checksum is ripemd160
)

const (
	signatureLength = 65
	checksumLength  = 4

	// DefaultAddressPrefix is prepended to the base58 rendering of public keys.
	DefaultAddressPrefix = "DWB"
)

// ErrInvalidSignature is returned for malformed or unrecoverable signatures.
var ErrInvalidSignature = errors.New("invalid signature")

// Signature is a 65-byte compact recoverable secp256k1 signature:
// a recovery byte followed by r and s.
type Signature [signatureLength]byte

// ParseSignature decodes the hex form used in upload URLs.
func ParseSignature(raw string) (Signature, error) {
	var sig Signature
	decoded, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return sig, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(decoded) != signatureLength {
		return sig, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, signatureLength, len(decoded))
	}
	if decoded[0] < 27 || decoded[0] > 34 {
		return sig, fmt.Errorf("%w: bad recovery byte %d", ErrInvalidSignature, decoded[0])
	}
	copy(sig[:], decoded)
	return sig, nil
}

// String returns the hex encoding of the signature.
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// Recover returns the public key that produced s over the 32-byte digest.
func (s Signature) Recover(digest []byte) (PublicKey, error) {
	pub, _, err := ecdsa.RecoverCompact(s[:], digest)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return PublicKey{key: pub}, nil
}

// SignCompact signs digest with key in the chain's compact format.
func SignCompact(key *secp256k1.PrivateKey, digest []byte) Signature {
	var sig Signature
	copy(sig[:], ecdsa.SignCompact(key, digest, true))
	return sig
}

// PublicKey is a secp256k1 public key rendered in the chain's text format.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// NewPublicKey wraps a secp256k1 public key.
func NewPublicKey(key *secp256k1.PublicKey) PublicKey {
	return PublicKey{key: key}
}

// ParsePublicKey decodes the text form "<prefix><base58(key || checksum)>".
func ParsePublicKey(prefix, raw string) (PublicKey, error) {
	if !strings.HasPrefix(raw, prefix) {
		return PublicKey{}, fmt.Errorf("public key %q: missing prefix %q", raw, prefix)
	}
	decoded, err := base58.Decode(strings.TrimPrefix(raw, prefix))
	if err != nil {
		return PublicKey{}, fmt.Errorf("public key %q: %w", raw, err)
	}
	if len(decoded) <= checksumLength {
		return PublicKey{}, fmt.Errorf("public key %q: too short", raw)
	}
	body, sum := decoded[:len(decoded)-checksumLength], decoded[len(decoded)-checksumLength:]
	if !bytes.Equal(checksum(body), sum) {
		return PublicKey{}, fmt.Errorf("public key %q: checksum mismatch", raw)
	}
	key, err := secp256k1.ParsePubKey(body)
	if err != nil {
		return PublicKey{}, fmt.Errorf("public key %q: %w", raw, err)
	}
	return PublicKey{key: key}, nil
}

// Format renders the key with the given address prefix.
func (p PublicKey) Format(prefix string) string {
	if p.key == nil {
		return ""
	}
	body := p.key.SerializeCompressed()
	return prefix + base58.Encode(append(body, checksum(body)...))
}

// String renders the key with DefaultAddressPrefix.
func (p PublicKey) String() string {
	return p.Format(DefaultAddressPrefix)
}

func checksum(body []byte) []byte {
	h := ripemd160.New()
	h.Write(body)
	return h.Sum(nil)[:checksumLength]
}
