// Package project derives the search, table and form views of a schema.
package project

import (
	"fmt"

	"adminkit/internal/controls"
	"adminkit/internal/resolve"
	"adminkit/internal/schema"
)

type View string

const (
	Search View = "search"
	Table  View = "table"
	Form   View = "form"
)

// ParseView accepts "search", "table" or "form".
func ParseView(s string) (View, error) {
	switch v := View(s); v {
	case Search, Table, Form:
		return v, nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

type Mode string

const (
	Create Mode = "create"
	Edit   Mode = "edit"
)

// ParseMode accepts "create", "edit" or "" (no mode).
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "", Create, Edit:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// CellRenderer turns a stored value into its table display.
type CellRenderer func(value any, record schema.Values) any

// Resolved is a schema entry projected into one view.
type Resolved struct {
	Key       string           `json:"key"`
	Label     string           `json:"label"`
	ValueType schema.ValueType `json:"valueType"`
	// Index is the position of the entry in the schema.
	Index     int              `json:"index"`
	Divider   bool             `json:"divider,omitempty"`
	Tooltip   string           `json:"tooltip,omitempty"`
	Width     int              `json:"width,omitempty"`
	Sortable  bool             `json:"sortable,omitempty"`
	Required  bool             `json:"required,omitempty"`
	Dependent bool             `json:"dependent,omitempty"`
	DependsOn []string         `json:"dependsOn,omitempty"`
	ValueEnum schema.ValueEnum `json:"valueEnum,omitempty"`

	Field  *schema.Field `json:"-"`
	Rules  []schema.Rule `json:"-"`
	Render CellRenderer  `json:"-"`
}

// Project filters and shapes s for view. mode only matters for the form view.
// The output keeps schema order.
func Project(s schema.Schema, view View, mode Mode) []Resolved {
	out := make([]Resolved, 0, len(s))
	for i := range s {
		f := &s[i]
		if f.IsDivider() {
			if view == Form && !f.HideInForm && !hiddenInMode(f, mode) {
				out = append(out, Resolved{
					Key:       s.KeyOf(i),
					Label:     f.Label,
					ValueType: schema.Divider,
					Index:     i,
					Divider:   true,
					Field:     f,
				})
			}
			continue
		}
		if hidden(f, view, mode) {
			continue
		}

		r := Resolved{
			Key:       s.KeyOf(i),
			Label:     f.Label,
			ValueType: f.Type(),
			Index:     i,
			Tooltip:   f.Tooltip,
			Width:     f.Width,
			Sortable:  f.Sortable,
			ValueEnum: f.ValueEnum,
			Field:     f,
		}
		switch view {
		case Table:
			r.Render = cellRenderer(f)
		default:
			r.Rules = f.Rules
			r.Required = f.Required()
			if f.Dependency != nil {
				r.Dependent = true
				r.DependsOn = append([]string(nil), f.Dependency.DependsOn...)
			}
		}
		out = append(out, r)
	}
	return out
}

func hidden(f *schema.Field, view View, mode Mode) bool {
	switch view {
	case Search:
		return f.HideInSearch
	case Table:
		return f.HideInTable
	case Form:
		return f.HideInForm || hiddenInMode(f, mode)
	}
	return true
}

func hiddenInMode(f *schema.Field, mode Mode) bool {
	return (mode == Create && f.HideInCreate) || (mode == Edit && f.HideInEdit)
}

// Control resolves the control of a search or form item for its resolver state,
// overlaying the loader's latest options when the field has async options.
func (r Resolved) Control(reg *controls.Registry, st resolve.State, loader *controls.Loader) controls.Control {
	if r.Divider {
		return controls.Control{Kind: controls.KindDivider, ValueType: schema.Divider}
	}
	var (
		fetched controls.OptionList
		ok      bool
	)
	if loader != nil && r.Field.AsyncOptions != nil {
		fetched, ok = loader.Options(r.Key)
	}
	return reg.ResolveField(r.Field, st.Props, fetched, ok)
}

// Keys returns the keys of rs in order.
func Keys(rs []Resolved) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Key
	}
	return out
}
