// Package uri implements structured resource identifiers and the routing table
// used to classify them into collection and item shapes.
package uri

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Scheme is the optional prefix accepted by Parse
const Scheme = "content://"

var (
	// ErrEmptyIdentifier is returned when parsing an empty string
	ErrEmptyIdentifier = errors.New("empty identifier")

	// ErrMalformedIdentifier is returned when an identifier cannot be split into
	// an authority and path segments
	ErrMalformedIdentifier = errors.New("malformed identifier")
)

// Identifier addresses a collection or a single item within a collection.
// It is a value type; all methods return copies.
type Identifier struct {
	Authority string
	Segments  []string
}

// New builds an identifier from an authority and path segments
func New(authority string, segments ...string) Identifier {
	segs := make([]string, len(segments))
	copy(segs, segments)
	return Identifier{Authority: authority, Segments: segs}
}

// Parse parses "<authority>/<collection>[/<key>]", with or without the
// content:// scheme.
func Parse(s string) (Identifier, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Identifier{}, ErrEmptyIdentifier
	}

	raw = strings.TrimPrefix(raw, Scheme)
	if strings.ContainsAny(raw, "?#") {
		return Identifier{}, fmt.Errorf("%w: %q contains query or fragment", ErrMalformedIdentifier, s)
	}

	parts := strings.Split(raw, "/")
	if parts[0] == "" {
		return Identifier{}, fmt.Errorf("%w: %q has no authority", ErrMalformedIdentifier, s)
	}

	// A single trailing slash is tolerated
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}

	for _, seg := range parts[1:] {
		if seg == "" {
			return Identifier{}, fmt.Errorf("%w: %q has an empty path segment", ErrMalformedIdentifier, s)
		}
	}

	return New(parts[0], parts[1:]...), nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) Identifier {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String renders the identifier as "<authority>/<seg>/<seg>"
func (id Identifier) String() string {
	if len(id.Segments) == 0 {
		return id.Authority
	}
	return id.Authority + "/" + strings.Join(id.Segments, "/")
}

// Path returns the path portion without the authority
func (id Identifier) Path() string {
	return strings.Join(id.Segments, "/")
}

// IsZero reports whether the identifier is empty
func (id Identifier) IsZero() bool {
	return id.Authority == "" && len(id.Segments) == 0
}

// Collection returns the first path segment, or "" when there is none
func (id Identifier) Collection() string {
	if len(id.Segments) == 0 {
		return ""
	}
	return id.Segments[0]
}

// Key returns the trailing numeric segment, if any
func (id Identifier) Key() (int64, bool) {
	if len(id.Segments) == 0 {
		return 0, false
	}
	return parseKey(id.Segments[len(id.Segments)-1])
}

// WithAppendedKey returns a copy of id with key appended as a new segment
func (id Identifier) WithAppendedKey(key int64) Identifier {
	segs := make([]string, len(id.Segments), len(id.Segments)+1)
	copy(segs, id.Segments)
	return Identifier{
		Authority: id.Authority,
		Segments:  append(segs, strconv.FormatInt(key, 10)),
	}
}

// Parent returns the identifier with its last segment removed
func (id Identifier) Parent() Identifier {
	if len(id.Segments) == 0 {
		return id
	}
	return New(id.Authority, id.Segments[:len(id.Segments)-1]...)
}

// Equal reports whether both identifiers address the same resource
func (id Identifier) Equal(other Identifier) bool {
	if id.Authority != other.Authority || len(id.Segments) != len(other.Segments) {
		return false
	}
	for i := range id.Segments {
		if id.Segments[i] != other.Segments[i] {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether other lies strictly beneath id
func (id Identifier) IsAncestorOf(other Identifier) bool {
	if id.Authority != other.Authority || len(id.Segments) >= len(other.Segments) {
		return false
	}
	for i := range id.Segments {
		if id.Segments[i] != other.Segments[i] {
			return false
		}
	}
	return true
}

// Covers reports whether id is equal to or an ancestor of other
func (id Identifier) Covers(other Identifier) bool {
	return id.Equal(other) || id.IsAncestorOf(other)
}

// IsDigits reports whether seg is a non-empty run of decimal digits. Such a
// segment matches "#" whether or not it fits in a key.
func IsDigits(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseKey accepts non-negative decimal integers that fit in an int64
func parseKey(seg string) (int64, bool) {
	if !IsDigits(seg) {
		return 0, false
	}
	n, err := strconv.ParseInt(seg, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
