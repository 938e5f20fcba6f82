package api

import (
	"strings"

	"adminkit/internal/schema"
)

// NormalizeScreenName returns the loaded screen named name, matching
// case-insensitively when there is no exact match. An ambiguous
// case-insensitive match is not found.
func (s *Service) NormalizeScreenName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.Screens[name]; ok {
		return name, true
	}
	var found string
	for n := range s.Screens {
		if strings.EqualFold(n, name) {
			if found != "" {
				return "", false
			}
			found = n
		}
	}
	return found, found != ""
}

func (s *Service) screen(name string) (*schema.Screen, bool) {
	n, ok := s.NormalizeScreenName(name)
	if !ok {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	scr, ok := s.Screens[n]
	return scr, ok
}
