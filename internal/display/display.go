// Package display holds the presentation state of one table view: density,
// borders and column settings.
package display

import (
	"errors"
	"fmt"
	"sync"
)

type Density string

const (
	Large  Density = "large"
	Middle Density = "middle"
	Small  Density = "small"
)

func ParseDensity(s string) (Density, error) {
	switch d := Density(s); d {
	case Large, Middle, Small:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadDensity, s)
}

// Fixed pins a column to one edge of the table.
type Fixed string

const (
	FixedNone  Fixed = ""
	FixedLeft  Fixed = "left"
	FixedRight Fixed = "right"
)

var (
	ErrBadDensity    = errors.New("display: unknown density")
	ErrBadFixed      = errors.New("display: fixed must be left, right or empty")
	ErrUnknownColumn = errors.New("display: unknown column")
	ErrLocked        = errors.New("display: column is locked")
)

// ColumnSetting is the user-controlled state of one column. Disabled columns
// are locked: their visibility, position and pinning cannot change.
type ColumnSetting struct {
	Key      string `json:"key"`
	Visible  bool   `json:"visible"`
	Fixed    Fixed  `json:"fixed,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// State is a snapshot of a Store.
type State struct {
	Density  Density         `json:"density"`
	Bordered bool            `json:"bordered"`
	Columns  []ColumnSetting `json:"columns"`
}

// Visible returns the keys of the visible columns in display order.
func (s State) Visible() []string {
	var out []string
	for _, c := range s.Columns {
		if c.Visible {
			out = append(out, c.Key)
		}
	}
	return out
}

// Store is safe for concurrent use. Listeners run synchronously after each
// change, in subscription order, and must not call back into the store.
type Store struct {
	mu      sync.Mutex
	state   State
	initial []ColumnSetting

	// pubMu is taken before mu is released so listeners see snapshots in
	// the order the changes were made.
	pubMu sync.Mutex

	subs   []subscriber
	nextID int
}

type subscriber struct {
	id int
	fn func(State)
}

// New returns a store with middle density, no borders and columns in the given
// order. Each column starts as given; ResetColumns returns to it.
func New(columns []ColumnSetting) *Store {
	cols := append([]ColumnSetting(nil), columns...)
	return &Store{
		state:   State{Density: Middle, Columns: append([]ColumnSetting(nil), cols...)},
		initial: cols,
	}
}

// ForKeys is New with every key visible.
func ForKeys(keys []string) *Store {
	cols := make([]ColumnSetting, len(keys))
	for i, k := range keys {
		cols[i] = ColumnSetting{Key: k, Visible: true}
	}
	return New(cols)
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Store) snapshot() State {
	st := s.state
	st.Columns = append([]ColumnSetting(nil), s.state.Columns...)
	return st
}

// Subscribe registers fn; the returned function removes it.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// update applies fn under the lock and notifies listeners when fn reports a change.
func (s *Store) update(fn func(st *State) (bool, error)) error {
	s.mu.Lock()
	changed, err := fn(&s.state)
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}
	snap := s.snapshot()
	subs := append([]subscriber(nil), s.subs...)
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
	return nil
}

func (s *Store) ToggleBorder() {
	_ = s.update(func(st *State) (bool, error) {
		st.Bordered = !st.Bordered
		return true, nil
	})
}

func (s *Store) SetDensity(d Density) error {
	if _, err := ParseDensity(string(d)); err != nil {
		return err
	}
	return s.update(func(st *State) (bool, error) {
		if st.Density == d {
			return false, nil
		}
		st.Density = d
		return true, nil
	})
}

func index(cols []ColumnSetting, key string) int {
	for i := range cols {
		if cols[i].Key == key {
			return i
		}
	}
	return -1
}

func column(cols []ColumnSetting, key string) (int, error) {
	i := index(cols, key)
	if i < 0 {
		return -1, fmt.Errorf("%w: %q", ErrUnknownColumn, key)
	}
	if cols[i].Disabled {
		return -1, fmt.Errorf("%w: %q", ErrLocked, key)
	}
	return i, nil
}

// ToggleColumn flips the visibility of key.
func (s *Store) ToggleColumn(key string) error {
	return s.update(func(st *State) (bool, error) {
		i, err := column(st.Columns, key)
		if err != nil {
			return false, err
		}
		st.Columns[i].Visible = !st.Columns[i].Visible
		return true, nil
	})
}

// SetAllColumns shows or hides every unlocked column.
func (s *Store) SetAllColumns(visible bool) {
	_ = s.update(func(st *State) (bool, error) {
		changed := false
		for i := range st.Columns {
			c := &st.Columns[i]
			if !c.Disabled && c.Visible != visible {
				c.Visible = visible
				changed = true
			}
		}
		return changed, nil
	})
}

// ResetColumns restores the initial order, visibility and pinning.
func (s *Store) ResetColumns() {
	_ = s.update(func(st *State) (bool, error) {
		st.Columns = append([]ColumnSetting(nil), s.initial...)
		return true, nil
	})
}

// MoveColumn moves key next to target, before it or after it. The relative
// order of every other column is kept.
func (s *Store) MoveColumn(key, target string, before bool) error {
	return s.update(func(st *State) (bool, error) {
		from, err := column(st.Columns, key)
		if err != nil {
			return false, err
		}
		if index(st.Columns, target) < 0 {
			return false, fmt.Errorf("%w: %q", ErrUnknownColumn, target)
		}
		if key == target {
			return false, nil
		}
		moved := st.Columns[from]
		rest := make([]ColumnSetting, 0, len(st.Columns))
		rest = append(rest, st.Columns[:from]...)
		rest = append(rest, st.Columns[from+1:]...)
		at := index(rest, target)
		if !before {
			at++
		}
		out := make([]ColumnSetting, 0, len(st.Columns))
		out = append(out, rest[:at]...)
		out = append(out, moved)
		out = append(out, rest[at:]...)
		st.Columns = out
		return from != index(out, key), nil
	})
}

// SetFixed pins key to an edge, or unpins it with FixedNone.
func (s *Store) SetFixed(key string, f Fixed) error {
	switch f {
	case FixedNone, FixedLeft, FixedRight:
	default:
		return fmt.Errorf("%w: %q", ErrBadFixed, f)
	}
	return s.update(func(st *State) (bool, error) {
		i, err := column(st.Columns, key)
		if err != nil {
			return false, err
		}
		if st.Columns[i].Fixed == f {
			return false, nil
		}
		st.Columns[i].Fixed = f
		return true, nil
	})
}

// Op is a serialisable store operation, as sent by a detached toolbar.
type Op struct {
	Op      string  `json:"op"`
	Key     string  `json:"key,omitempty"`
	Target  string  `json:"target,omitempty"`
	Before  bool    `json:"before,omitempty"`
	Density Density `json:"density,omitempty"`
	Fixed   Fixed   `json:"fixed,omitempty"`
	Visible bool    `json:"visible,omitempty"`
}

// Apply runs op against the store.
func (s *Store) Apply(op Op) error {
	switch op.Op {
	case "toggleBorder":
		s.ToggleBorder()
	case "setDensity":
		return s.SetDensity(op.Density)
	case "toggleColumn":
		return s.ToggleColumn(op.Key)
	case "setAllColumns":
		s.SetAllColumns(op.Visible)
	case "resetColumns":
		s.ResetColumns()
	case "moveColumn":
		return s.MoveColumn(op.Key, op.Target, op.Before)
	case "setFixed":
		return s.SetFixed(op.Key, op.Fixed)
	default:
		return fmt.Errorf("display: unknown operation %q", op.Op)
	}
	return nil
}
