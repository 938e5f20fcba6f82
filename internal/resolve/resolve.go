// Package resolve computes a field's effective visibility, disabled state and
// control props from the values of its siblings.
package resolve

import (
	"fmt"
	"log"

	"adminkit/internal/schema"
)

// Logger receives callback failures. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// State is the resolved presentation of one field for one set of values.
type State struct {
	Visible  bool         `json:"visible"`
	Disabled bool         `json:"disabled"`
	Props    schema.Props `json:"props,omitempty"`
}

// Resolver evaluates dependency callbacks, recovering from panics.
type Resolver struct {
	Logger Logger
}

var std = &Resolver{Logger: log.Default()}

// Resolve uses a resolver logging to the standard logger.
func Resolve(f *schema.Field, values schema.Values) State {
	return std.Resolve(f, values)
}

// Defaults is the state of a field whose dependency is absent or failed.
func Defaults(f *schema.Field) State {
	return State{Visible: true, Disabled: false, Props: f.Props.Clone()}
}

// Resolve computes the state of f. Keys absent from values are missing for the
// callbacks, which declarative conditions treat as unsatisfied.
func (r *Resolver) Resolve(f *schema.Field, values schema.Values) (st State) {
	dep := f.Dependency
	if dep == nil {
		return State{Visible: true, Disabled: f.Props.Bool("disabled"), Props: f.Props.Clone()}
	}
	if values == nil {
		values = schema.Values{}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logf("resolve %q: dependency callback failed: %v", f.Key, p)
			st = Defaults(f)
		}
	}()

	st.Visible = true
	if dep.Visible != nil {
		st.Visible = dep.Visible(values)
	}
	if dep.Disabled != nil {
		st.Disabled = dep.Disabled(values)
	}
	st.Disabled = st.Disabled || f.Props.Bool("disabled")

	st.Props = f.Props.Clone()
	if dep.DynamicProps != nil {
		for k, v := range dep.DynamicProps(values) {
			st.Props[k] = v
		}
	}
	// the computed disable wins over any stale static or dynamic prop
	st.Props["disabled"] = st.Disabled
	return st
}

func (r *Resolver) logf(format string, args ...any) {
	if r == nil || r.Logger == nil {
		log.Printf(format, args...)
		return
	}
	r.Logger.Printf(format, args...)
}

// Guard runs fn and converts a panic into an error, logging it through l.
func Guard(l Logger, what string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s: %v", what, p)
			if l != nil {
				l.Printf("%v", err)
			}
		}
	}()
	return fn()
}
