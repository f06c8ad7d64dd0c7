package uri

import (
	"fmt"
	"strings"
)

// NoMatch is returned by Match when an identifier has no entry in the table
const NoMatch = -1

const (
	// NumberWildcard matches a single non-negative integer segment
	NumberWildcard = "#"
	// TextWildcard matches any single non-empty segment
	TextWildcard = "*"
)

// Entry declares one routing rule
type Entry struct {
	Authority string
	Path      string // "tasks", "tasks/#"
	Code      int
}

// Matcher is an immutable routing table from identifier shapes to match codes.
// It is safe for concurrent use without synchronization once constructed.
type Matcher struct {
	roots   map[string]*node
	entries []Entry
}

type node struct {
	code     int
	literals map[string]*node
	number   *node
	text     *node
}

func newNode() *node {
	return &node{code: NoMatch, literals: make(map[string]*node)}
}

// NewMatcher builds a routing table from the given entries
func NewMatcher(entries ...Entry) (*Matcher, error) {
	m := &Matcher{
		roots:   make(map[string]*node),
		entries: make([]Entry, 0, len(entries)),
	}

	for _, e := range entries {
		if err := m.add(e); err != nil {
			return nil, err
		}
		m.entries = append(m.entries, e)
	}

	return m, nil
}

// MustMatcher is like NewMatcher but panics on error
func MustMatcher(entries ...Entry) *Matcher {
	m, err := NewMatcher(entries...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Matcher) add(e Entry) error {
	if e.Authority == "" {
		return fmt.Errorf("matcher: entry %q has no authority", e.Path)
	}
	if e.Code < 0 {
		return fmt.Errorf("matcher: code for %s/%s must be non-negative, got %d", e.Authority, e.Path, e.Code)
	}

	root, ok := m.roots[e.Authority]
	if !ok {
		root = newNode()
		m.roots[e.Authority] = root
	}

	current := root
	path := strings.Trim(e.Path, "/")
	if path != "" {
		for _, seg := range strings.Split(path, "/") {
			if seg == "" {
				return fmt.Errorf("matcher: path %q has an empty segment", e.Path)
			}
			current = current.child(seg)
		}
	}

	if current.code != NoMatch {
		return fmt.Errorf("matcher: %s/%s already registered with code %d", e.Authority, path, current.code)
	}
	current.code = e.Code
	return nil
}

func (n *node) child(seg string) *node {
	switch seg {
	case NumberWildcard:
		if n.number == nil {
			n.number = newNode()
		}
		return n.number
	case TextWildcard:
		if n.text == nil {
			n.text = newNode()
		}
		return n.text
	default:
		next, ok := n.literals[seg]
		if !ok {
			next = newNode()
			n.literals[seg] = next
		}
		return next
	}
}

// Match classifies id and returns its code, or NoMatch
func (m *Matcher) Match(id Identifier) int {
	if m == nil {
		return NoMatch
	}

	root, ok := m.roots[id.Authority]
	if !ok {
		return NoMatch
	}

	current := root
	for _, seg := range id.Segments {
		if seg == "" {
			return NoMatch
		}
		next := current.literals[seg]
		if next == nil {
			if IsDigits(seg) && current.number != nil {
				next = current.number
			} else {
				next = current.text
			}
		}
		if next == nil {
			return NoMatch
		}
		current = next
	}

	return current.code
}

// Entries returns a copy of the rules the matcher was built from
func (m *Matcher) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
