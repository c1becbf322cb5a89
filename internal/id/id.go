// Package id generates the device-local identifiers used by the store and relays.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the record kinds and relay artifacts.
// IDs are opaque and device-local; they never travel as identity between
// devices (cross-device matching uses natural keys instead).
const (
	PrefixBook  = "bk"
	PrefixLog   = "log"
	PrefixTopic = "top"
	PrefixBlob  = "blob"
)

// Generate creates a prefixed unique ID using NanoID
// Format: prefix-nanoid (e.g., "bk-V1StGXR8_Z5jdHi6B-myT")
//
// NanoIDs are URL-friendly, compact (21 characters vs UUID's 36),
// and use a larger alphabet for better entropy per character.
// URL-friendliness matters here because blob handles and topic names
// end up in request paths on the relay.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
// Only for contexts where missing entropy should crash the program.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
