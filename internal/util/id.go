// Package util holds small helpers shared by the transport layer.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewToken returns 32 random bytes hex encoded, used for opaque refresh tokens.
func NewToken() string {
	return randomHex(32)
}

// NewRequestID returns a short id with the given prefix, e.g. "req_9f1c...".
func NewRequestID(prefix string) string {
	id := randomHex(8)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
