package strip

import (
	"errors"
	"fmt"
	"sort"
)

// SolidIndex is the pattern index that means "solid color, no animation"
const SolidIndex = 0

// ErrUnknownPattern is returned for a switch name not in the registry
var ErrUnknownPattern = errors.New("unknown pattern")

// Patterns is an immutable name -> device index table plus the ordered list of
// patterns exposed as switches.
type Patterns struct {
	index  map[string]int
	active []string
}

// NewPatterns validates and freezes a pattern table. Every active name must be
// in the table, must not map to SolidIndex, and no two active patterns may share
// an index.
func NewPatterns(table map[string]int, active []string) (*Patterns, error) {
	index := make(map[string]int, len(table))
	for name, idx := range table {
		if idx < 0 {
			return nil, fmt.Errorf("pattern %q: negative index %d", name, idx)
		}
		index[name] = idx
	}

	seenName := make(map[string]bool, len(active))
	seenIdx := make(map[int]string, len(active))
	for _, name := range active {
		idx, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("active pattern %q: %w", name, ErrUnknownPattern)
		}
		if idx == SolidIndex {
			return nil, fmt.Errorf("active pattern %q: index %d is reserved for solid color", name, SolidIndex)
		}
		if seenName[name] {
			return nil, fmt.Errorf("active pattern %q listed twice", name)
		}
		if other, dup := seenIdx[idx]; dup {
			return nil, fmt.Errorf("active patterns %q and %q share index %d", other, name, idx)
		}
		seenName[name] = true
		seenIdx[idx] = name
	}

	return &Patterns{
		index:  index,
		active: append([]string(nil), active...),
	}, nil
}

// Index returns the device index of an active pattern
func (p *Patterns) Index(name string) (int, error) {
	for _, a := range p.active {
		if a == name {
			return p.index[name], nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownPattern)
}

// Active returns the exposed pattern names in order
func (p *Patterns) Active() []string {
	return append([]string(nil), p.active...)
}

// NameOf returns the active pattern with the given index, if any
func (p *Patterns) NameOf(idx int) (string, bool) {
	for _, a := range p.active {
		if p.index[a] == idx {
			return a, true
		}
	}
	return "", false
}

// Names returns every pattern in the table sorted by index
func (p *Patterns) Names() []string {
	names := make([]string, 0, len(p.index))
	for name := range p.index {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if p.index[names[i]] != p.index[names[j]] {
			return p.index[names[i]] < p.index[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// MaxIndex returns the highest index in the table, at least SolidIndex
func (p *Patterns) MaxIndex() int {
	names := p.Names()
	if len(names) == 0 {
		return SolidIndex
	}
	return max(SolidIndex, p.index[names[len(names)-1]])
}
