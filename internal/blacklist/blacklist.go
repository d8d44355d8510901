// Package blacklist holds the static account and image deny lists.
package blacklist

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML layout.
type File struct {
	Accounts []string `yaml:"accounts"`
	Images   []string `yaml:"images"`
}

// Blacklist answers membership queries for accounts and image URLs.
// It is immutable after construction and safe for concurrent use.
type Blacklist struct {
	accounts map[string]struct{}
	images   map[string]struct{}
}

// New builds a blacklist from explicit entries.
func New(accounts, images []string) *Blacklist {
	b := &Blacklist{
		accounts: make(map[string]struct{}, len(accounts)),
		images:   make(map[string]struct{}, len(images)),
	}
	for _, a := range accounts {
		if a = strings.TrimSpace(a); a != "" {
			b.accounts[a] = struct{}{}
		}
	}
	for _, u := range images {
		if u = strings.TrimSpace(u); u != "" {
			b.images[u] = struct{}{}
		}
	}
	return b
}

// Load reads a YAML blacklist file. An empty path yields an empty list.
func Load(path string) (*Blacklist, error) {
	if strings.TrimSpace(path) == "" {
		return New(nil, nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blacklist %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse blacklist %s: %w", path, err)
	}
	return New(f.Accounts, f.Images), nil
}

// HasAccount reports whether the account name is blacklisted.
func (b *Blacklist) HasAccount(name string) bool {
	if b == nil {
		return false
	}
	_, ok := b.accounts[name]
	return ok
}

// HasImage reports whether the canonical image URL is blacklisted.
func (b *Blacklist) HasImage(url string) bool {
	if b == nil {
		return false
	}
	_, ok := b.images[url]
	return ok
}

// Len returns the number of account and image entries.
func (b *Blacklist) Len() (accounts, images int) {
	if b == nil {
		return 0, 0
	}
	return len(b.accounts), len(b.images)
}
