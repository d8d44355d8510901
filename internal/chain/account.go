// Package chain talks to the blockchain RPC node and implements the account
// authority and reputation rules used to gate uploads.
package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Account is the subset of an on-chain account used by the service.
type Account struct {
	Name         string     `json:"name"`
	Reputation   Reputation `json:"reputation"`
	JSONMetadata string     `json:"json_metadata"`
	Posting      Authority  `json:"posting"`
}

// Authority is a weighted key set with a threshold.
type Authority struct {
	WeightThreshold int       `json:"weight_threshold"`
	KeyAuths        []KeyAuth `json:"key_auths"`
}

// KeyAuth is one (public key, weight) pair, encoded on the wire as a
// two-element array.
type KeyAuth struct {
	Key    string
	Weight int
}

func (k *KeyAuth) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("key auth: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &k.Key); err != nil {
		return fmt.Errorf("key auth key: %w", err)
	}
	if err := json.Unmarshal(pair[1], &k.Weight); err != nil {
		return fmt.Errorf("key auth weight: %w", err)
	}
	return nil
}

func (k KeyAuth) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{k.Key, k.Weight})
}

// Authorizes reports whether a single key in the authority carries at least
// the threshold weight. Weights of several keys are never summed.
func (a Authority) Authorizes(publicKey string) bool {
	for _, auth := range a.KeyAuths {
		if auth.Key == publicKey && auth.Weight >= a.WeightThreshold {
			return true
		}
	}
	return false
}

// Reputation is the raw reputation value. Nodes return it either as a JSON
// number or as a decimal string, and it can exceed 64 bits.
type Reputation string

func (r *Reputation) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Reputation(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("reputation: %w", err)
	}
	*r = Reputation(n.String())
	return nil
}

// Profile is the part of the account's json_metadata describing its profile.
type Profile struct {
	ProfileImage string `json:"profile_image"`
}

// ParseProfile decodes json_metadata; malformed metadata yields an error and
// an empty profile.
func (a *Account) ParseProfile() (Profile, error) {
	var meta struct {
		Profile *Profile `json:"profile"`
	}
	if strings.TrimSpace(a.JSONMetadata) == "" {
		return Profile{}, nil
	}
	if err := json.Unmarshal([]byte(a.JSONMetadata), &meta); err != nil {
		return Profile{}, fmt.Errorf("parse json_metadata for %s: %w", a.Name, err)
	}
	if meta.Profile == nil {
		return Profile{}, nil
	}
	return *meta.Profile, nil
}
