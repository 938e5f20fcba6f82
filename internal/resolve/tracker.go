package resolve

import (
	"reflect"

	"adminkit/internal/schema"
)

// Tracker keeps the resolved state of every field of a schema and re-resolves
// a field only when one of its dependsOn keys changes value. It is not safe for
// concurrent use.
type Tracker struct {
	r          *Resolver
	fields     schema.Schema
	index      map[string]int
	dependents map[string][]int
	values     schema.Values
	states     []State
}

// NewTracker resolves every field once against initial.
func NewTracker(r *Resolver, fields schema.Schema, initial schema.Values) *Tracker {
	if r == nil {
		r = std
	}
	t := &Tracker{
		r:          r,
		fields:     fields,
		index:      make(map[string]int, len(fields)),
		dependents: map[string][]int{},
		values:     initial.Clone(),
		states:     make([]State, len(fields)),
	}
	for i := range fields {
		t.index[fields.KeyOf(i)] = i
		if dep := fields[i].Dependency; dep != nil {
			seen := map[string]bool{}
			for _, k := range dep.DependsOn {
				if !seen[k] {
					seen[k] = true
					t.dependents[k] = append(t.dependents[k], i)
				}
			}
		}
	}
	t.resolveAll()
	return t
}

func (t *Tracker) resolveAll() {
	for i := range t.fields {
		t.states[i] = t.r.Resolve(&t.fields[i], t.values)
	}
}

// Set stores value under key and re-resolves the dependents of key when the
// value changed. It returns the keys whose state changed.
func (t *Tracker) Set(key string, value any) []string {
	old, had := t.values[key]
	if had && reflect.DeepEqual(old, value) {
		return nil
	}
	t.values[key] = value
	return t.refresh([]string{key})
}

// Unset removes key from the values.
func (t *Tracker) Unset(key string) []string {
	if _, had := t.values[key]; !had {
		return nil
	}
	delete(t.values, key)
	return t.refresh([]string{key})
}

// SetMany applies several values at once; each dependent is re-resolved at
// most once.
func (t *Tracker) SetMany(values schema.Values) []string {
	var touched []string
	for k, v := range values {
		if old, had := t.values[k]; had && reflect.DeepEqual(old, v) {
			continue
		}
		t.values[k] = v
		touched = append(touched, k)
	}
	return t.refresh(touched)
}

// Reset replaces all values and re-resolves every field.
func (t *Tracker) Reset(values schema.Values) {
	t.values = values.Clone()
	t.resolveAll()
}

func (t *Tracker) refresh(keys []string) []string {
	done := map[int]bool{}
	var changed []string
	for _, k := range keys {
		for _, i := range t.dependents[k] {
			if done[i] {
				continue
			}
			done[i] = true
			next := t.r.Resolve(&t.fields[i], t.values)
			if !reflect.DeepEqual(next, t.states[i]) {
				changed = append(changed, t.fields.KeyOf(i))
			}
			t.states[i] = next
		}
	}
	return changed
}

// State returns the current state of key.
func (t *Tracker) State(key string) (State, bool) {
	i, ok := t.index[key]
	if !ok {
		return State{}, false
	}
	return t.states[i], true
}

// StateAt returns the state of the field at schema position i.
func (t *Tracker) StateAt(i int) State { return t.states[i] }

// Value returns the stored value of key. Hidden fields keep their values.
func (t *Tracker) Value(key string) (any, bool) {
	v, ok := t.values[key]
	return v, ok
}

// Values returns a copy of all stored values.
func (t *Tracker) Values() schema.Values { return t.values.Clone() }

// Dependents returns the keys re-resolved when key changes.
func (t *Tracker) Dependents(key string) []string {
	out := make([]string, 0, len(t.dependents[key]))
	for _, i := range t.dependents[key] {
		out = append(out, t.fields.KeyOf(i))
	}
	return out
}
