package channel

import (
	"fmt"
	"strings"
	"sync"
)

const paramMarker = ':'

// Params holds the values captured by the named segments of a pattern.
type Params map[string]string

// Get returns the captured value for the given param name or an empty string.
func (p Params) Get(name string) string {
	return p[name]
}

type segment struct {
	value string
	param bool
}

// Definition is a compiled secured channel pattern.
type Definition struct {
	// Pattern is the normalized pattern, e.g. "rooms/:id".
	Pattern string
	// ParamNames lists capture names in the order they appear in the pattern.
	ParamNames []string

	segments []segment
}

// Compile parses a pattern into a Definition without registering it.
func Compile(pattern string) (Definition, error) {
	trimmed := strings.Trim(pattern, "/")
	if trimmed == "" {
		return Definition{}, fmt.Errorf("%w: %w", ErrInvalidPattern, ErrEmptyPattern)
	}

	parts := strings.Split(trimmed, "/")
	def := Definition{
		Pattern:  trimmed,
		segments: make([]segment, 0, len(parts)),
	}

	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		if part == "" {
			return Definition{}, fmt.Errorf("%w: %w: %q", ErrInvalidPattern, ErrEmptySegment, pattern)
		}

		if part[0] != paramMarker {
			def.segments = append(def.segments, segment{value: part})
			continue
		}

		name := part[1:]
		if name == "" {
			return Definition{}, fmt.Errorf("%w: %w: %q", ErrInvalidPattern, ErrEmptyParamName, pattern)
		}
		if _, ok := seen[name]; ok {
			return Definition{}, fmt.Errorf("%w: %w: %q in %q", ErrInvalidPattern, ErrDuplicateParam, name, pattern)
		}
		seen[name] = struct{}{}

		def.ParamNames = append(def.ParamNames, name)
		def.segments = append(def.segments, segment{value: name, param: true})
	}

	return def, nil
}

// Match reports whether the channel name matches the definition and returns
// the captured params. Params is non-nil whenever ok is true.
func (d Definition) Match(name string) (Params, bool) {
	parts := strings.Split(strings.Trim(name, "/"), "/")
	if len(parts) != len(d.segments) {
		return nil, false
	}

	params := make(Params, len(d.ParamNames))
	for i, seg := range d.segments {
		part := parts[i]
		if seg.param {
			if part == "" {
				return nil, false
			}
			params[seg.value] = part
			continue
		}
		if part != seg.value {
			return nil, false
		}
	}

	return params, true
}

// Matcher is a registry of secured channel patterns.
// Safe for concurrent use; registration is expected to happen at startup.
type Matcher struct {
	mu    sync.RWMutex
	defs  []Definition
	index map[string]int
}

// NewMatcher creates an empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		index: make(map[string]int),
	}
}

// Register compiles and stores a pattern. Registering an already known
// pattern is a no-op that returns the existing definition.
func (m *Matcher) Register(pattern string) (Definition, error) {
	def, err := Compile(pattern)
	if err != nil {
		return Definition{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if i, ok := m.index[def.Pattern]; ok {
		return m.defs[i], nil
	}

	m.index[def.Pattern] = len(m.defs)
	m.defs = append(m.defs, def)

	return def, nil
}

// Match returns the first registered definition matching the channel name.
// ok is false when the channel is public.
func (m *Matcher) Match(name string) (Definition, Params, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, def := range m.defs {
		if params, ok := def.Match(name); ok {
			return def, params, true
		}
	}

	return Definition{}, nil, false
}

// Lookup returns the definition registered for the given pattern.
func (m *Matcher) Lookup(pattern string) (Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.index[strings.Trim(pattern, "/")]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrPatternNotSecure, pattern)
	}
	return m.defs[i], nil
}

// Patterns returns registered patterns in registration order.
func (m *Matcher) Patterns() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.defs))
	for i, def := range m.defs {
		out[i] = def.Pattern
	}
	return out
}

// Len returns the number of registered patterns.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.defs)
}
