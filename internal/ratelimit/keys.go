package ratelimit

import (
	"fmt"
	"strings"
)

// KeyPrefix represents the type of rate limit key.
type KeyPrefix string

const (
	KeyPrefixIP     KeyPrefix = "ip"
	KeyPrefixAuth   KeyPrefix = "auth"
	KeyPrefixSocket KeyPrefix = "socket"
)

// Key is a value object encapsulating counter bucket key construction.
// It centralizes key format and sanitization to prevent key collision attacks.
type Key struct {
	prefix     KeyPrefix
	identifier string
	route      string // optional, empty for identity-only keys
}

// NewKey creates a counter key for an identity, optionally scoped to a route.
func NewKey(prefix KeyPrefix, identifier, route string) Key {
	return Key{
		prefix:     prefix,
		identifier: sanitizeKeySegment(identifier),
		route:      sanitizeKeySegment(route),
	}
}

// String returns the formatted key for table lookup.
func (k Key) String() string {
	if k.route == "" {
		return fmt.Sprintf("%s:%s", k.prefix, k.identifier)
	}
	return fmt.Sprintf("%s:%s:%s", k.prefix, k.identifier, k.route)
}

// sanitizeKeySegment escapes delimiter characters in key segments to prevent
// collision attacks where user-controlled identifiers containing ':' could
// manipulate adjacent counter buckets.
//
// Escape rules (order matters):
//  1. Escape '_' to '__' (escape the escape character first)
//  2. Escape ':' to '_c' (escape the delimiter)
//
// No two distinct inputs produce the same sanitized output.
func sanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
