package chain

import (
	"strings"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func TestParsePrivateKeyWIF(t *testing.T) {
	// Well-known test vector from the bitcoin wiki.
	const wif = "5HueCGU8rMjxEXxiPuD5BDku4MkFqeZyd4dZ1jvhTVqvbTLvyTJ"
	const hexKey = "0c28fca386c7a227600b2fe50b7cae11ec86d3bf1fbe471be89827e19d72aa1d"

	key, err := ParsePrivateKey(wif)
	if err != nil {
		t.Fatalf("parse wif: %v", err)
	}
	fromHex, err := ParsePrivateKey(hexKey)
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if !key.Key.Equals(&fromHex.Key) {
		t.Fatal("wif and hex forms decode to different keys")
	}
	if got := EncodeWIF(key); got != wif {
		t.Fatalf("expected round trip %q, got %q", wif, got)
	}
}

func TestParsePrivateKeyRejects(t *testing.T) {
	good := EncodeWIF(secp256k1.PrivKeyFromBytes([]byte{1, 2, 3}))
	broken := good[:len(good)-1] + string(flip(good[len(good)-1]))

	for _, raw := range []string{"", "not-base58-0OIl", broken, strings.Repeat("z", 64)} {
		if _, err := ParsePrivateKey(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func flip(c byte) byte {
	if c == '2' {
		return '3'
	}
	return '2'
}
