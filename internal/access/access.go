// Package access answers capability checks for actions and columns.
package access

import (
	"net/http"
	"strings"
)

// Header carries the caller's capability tokens as a comma list.
const Header = "X-Capabilities"

// Checker decides whether the caller holds a capability token.
type Checker interface {
	HasCapability(token string) bool
}

type CheckerFunc func(token string) bool

func (f CheckerFunc) HasCapability(token string) bool { return f(token) }

// All grants everything.
var All Checker = CheckerFunc(func(string) bool { return true })

// Allow reports whether c grants token. The empty token and a nil checker
// always allow.
func Allow(c Checker, token string) bool {
	if token == "" || c == nil {
		return true
	}
	return c.HasCapability(token)
}

// Set is a fixed capability set. A token "<prefix>.*" grants every token
// starting with "<prefix>."; "*" grants everything.
type Set map[string]bool

func NewSet(tokens ...string) Set {
	s := make(Set, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			s[t] = true
		}
	}
	return s
}

func (s Set) HasCapability(token string) bool {
	if s["*"] || s[token] {
		return true
	}
	for i := strings.LastIndexByte(token, '.'); i > 0; i = strings.LastIndexByte(token[:i], '.') {
		if s[token[:i]+".*"] {
			return true
		}
	}
	return false
}

// FromHeader builds the checker of a request. An absent header grants
// everything; a present but empty one grants nothing.
func FromHeader(h http.Header) Checker {
	vals, ok := h[http.CanonicalHeaderKey(Header)]
	if !ok {
		return All
	}
	return NewSet(strings.Split(strings.Join(vals, ","), ",")...)
}
