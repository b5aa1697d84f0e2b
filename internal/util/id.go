// Package util holds small helpers with no better home.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

const idEntropyBytes = 16

// NewID returns a random identifier like "page_3f2a9c...". An empty
// prefix yields the bare hex string, used for opaque secrets.
func NewID(prefix string) string {
	buf := make([]byte, idEntropyBytes)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
