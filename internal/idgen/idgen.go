// Package idgen provides cryptographically random identifier generation.
//
// Entity IDs are prefixed so an ID is self-describing in logs and support
// tickets: usr_, shp_, svc_, rsv_, pay_, pt_, ref_, idv_, ntf_, ses_, evt_.
package idgen

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

// referral codes avoid 0/O/1/I so they survive being read over the phone
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// WithPrefix generates a random ID with a domain prefix (e.g. "rsv_", "pay_").
// Result is prefix + 24 hex chars (12 random bytes).
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// Hex generates a random hex string of the given byte length.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// Token generates an opaque URL-safe token of the given byte length,
// base64url-encoded without padding. Used for refresh tokens.
func Token(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Code generates a short human-shareable code of n characters, such as a
// referral code. The alphabet excludes visually ambiguous characters.
func Code(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	out := make([]byte, n)
	for i, v := range b {
		out[i] = codeAlphabet[int(v)%len(codeAlphabet)]
	}
	return string(out)
}
