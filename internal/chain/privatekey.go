package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
)

const wifVersion = 0x80

// ParsePrivateKey accepts a WIF encoded key or 64 hex characters.
func ParsePrivateKey(raw string) (*secp256k1.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 64 {
		if b, err := hex.DecodeString(raw); err == nil {
			return secp256k1.PrivKeyFromBytes(b), nil
		}
	}

	decoded, err := base58.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	if len(decoded) != 1+32+checksumLength || decoded[0] != wifVersion {
		return nil, fmt.Errorf("private key: not a WIF key")
	}
	body := decoded[:len(decoded)-checksumLength]
	if !bytes.Equal(wifChecksum(body), decoded[len(body):]) {
		return nil, fmt.Errorf("private key: checksum mismatch")
	}
	return secp256k1.PrivKeyFromBytes(body[1:]), nil
}

// EncodeWIF renders key in wallet import format.
func EncodeWIF(key *secp256k1.PrivateKey) string {
	body := append([]byte{wifVersion}, key.Serialize()...)
	return base58.Encode(append(body, wifChecksum(body)...))
}

func wifChecksum(body []byte) []byte {
	first := sha256.Sum256(body)
	second := sha256.Sum256(first[:])
	return second[:checksumLength]
}
