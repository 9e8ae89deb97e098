package sink

import (
	"strconv"
	"strings"
)

// Resolved addressing information for a playback endpoint.
//
// The zero value means "no explicit target": routing is left to the
// audio session (auto-routing). A numeric target populates both the id
// and the name, a non-numeric one only the name.
type Target struct {
	ID    uint32
	HasID bool
	Name  string
}

// Whether routing should be left to the session layer.
func (t Target) AutoRoute() bool {
	return !t.HasID && t.Name == ""
}

// Resolve a raw, user-supplied target string.
//
// The string is trimmed; empty or whitespace-only means no explicit
// target. Purely numeric strings resolve to both an endpoint id and a
// name, anything else to a name only.
func ResolveTarget(raw string) Target {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Target{}
	}
	if id, err := strconv.ParseUint(trimmed, 10, 32); err == nil {
		return Target{ID: uint32(id), HasID: true, Name: trimmed}
	}
	return Target{Name: trimmed}
}
