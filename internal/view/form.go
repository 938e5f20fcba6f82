// Package view mounts the views of a screen: forms with live dependency and
// option state, and table screens with their CRUD and display state.
package view

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"

	"adminkit/internal/controls"
	"adminkit/internal/project"
	"adminkit/internal/resolve"
	"adminkit/internal/schema"
	"adminkit/internal/validate"
)

// FormConfig carries the collaborators of a mounted form. Zero values are
// replaced with defaults.
type FormConfig struct {
	Registry *controls.Registry
	Logger   resolve.Logger
	// Cache shares option lists with other views under Scope.
	Cache controls.Cache
	Scope string
	// OnOptions is called with a field key whenever its options change.
	OnOptions func(key string)
}

// Item is one rendered entry of a form or search view.
type Item struct {
	project.Resolved
	Visible  bool             `json:"visible"`
	Disabled bool             `json:"disabled"`
	Control  controls.Control `json:"control"`
	Value    any              `json:"value,omitempty"`
	// Loading is set while the options the field waits for are being fetched.
	Loading bool `json:"loading,omitempty"`
}

// Form is a mounted search or form view. It is safe for concurrent use.
type Form struct {
	view  project.View
	mode  project.Mode
	items []project.Resolved

	reg       *controls.Registry
	validator *validate.Validator
	loader    *controls.Loader

	mu      sync.Mutex
	tracker *resolve.Tracker
	tickets []*controls.Ticket
}

var ErrTableView = errors.New("view: the table view has no form")

// NewForm projects fields for view and mode and resolves every field against
// initial. Fields with async options start loading immediately.
func NewForm(ctx context.Context, fields schema.Schema, view project.View, mode project.Mode, initial schema.Values, cfg FormConfig) (*Form, error) {
	if view == project.Table {
		return nil, ErrTableView
	}
	if err := fields.Check(); err != nil {
		return nil, err
	}
	if cfg.Registry == nil {
		cfg.Registry = controls.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	opts := []controls.LoaderOption{controls.WithNotify(cfg.OnOptions), controls.WithLogger(cfg.Logger)}
	if cfg.Cache != nil {
		opts = append(opts, controls.WithCache(cfg.Cache, cfg.Scope))
	}

	f := &Form{
		view:      view,
		mode:      mode,
		items:     project.Project(fields, view, mode),
		reg:       cfg.Registry,
		validator: &validate.Validator{Logger: cfg.Logger},
		loader:    controls.NewLoader(opts...),
		tracker:   resolve.NewTracker(&resolve.Resolver{Logger: cfg.Logger}, fields, initial),
	}
	values := f.tracker.Values()
	for _, it := range f.items {
		if it.Field.AsyncOptions != nil {
			f.tickets = append(f.tickets, f.loader.Trigger(ctx, it.Key, it.Field, values))
		}
	}
	return f, nil
}

func (f *Form) View() project.View { return f.view }
func (f *Form) Mode() project.Mode { return f.mode }

// Items returns the projection the form was mounted with.
func (f *Form) Items() []project.Resolved { return f.items }

// Change reports the effects of one Set.
type Change struct {
	// States lists the keys whose visibility, disabled state or props changed.
	States []string `json:"states,omitempty"`
	// Fetches lists the keys whose options are being reloaded.
	Fetches []string `json:"fetches,omitempty"`
}

// Set stores value under key, re-resolves the fields depending on key and
// triggers the option fetches keyed on it.
func (f *Form) Set(ctx context.Context, key string, value any) Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ch Change
	ch.States = f.tracker.Set(key, value)
	values := f.tracker.Values()
	for _, it := range f.items {
		ao := it.Field.AsyncOptions
		if ao == nil || !slices.Contains(ao.DependsOn, key) {
			continue
		}
		t := f.loader.Trigger(ctx, it.Key, it.Field, values)
		if t.Async() {
			f.tickets = append(f.tickets, t)
			ch.Fetches = append(ch.Fetches, it.Key)
		}
	}
	return ch
}

// Reset replaces every value, as when a form is reopened for another record.
func (f *Form) Reset(ctx context.Context, values schema.Values) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracker.Reset(values)
	current := f.tracker.Values()
	for _, it := range f.items {
		if it.Field.AsyncOptions != nil && len(it.Field.AsyncOptions.DependsOn) > 0 {
			f.tickets = append(f.tickets, f.loader.Trigger(ctx, it.Key, it.Field, current))
		}
	}
}

// Values returns the stored values, including those of hidden fields.
func (f *Form) Values() schema.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracker.Values()
}

// Wait blocks until every fetch started so far settled or ctx ends. Fetch
// failures are logged by the loader and not returned.
func (f *Form) Wait(ctx context.Context) error {
	f.mu.Lock()
	pending := f.tickets
	f.tickets = nil
	f.mu.Unlock()
	for _, t := range pending {
		select {
		case <-t.Done():
		case <-ctx.Done():
			f.mu.Lock()
			f.tickets = append(pending, f.tickets...)
			f.mu.Unlock()
			return ctx.Err()
		}
	}
	return nil
}

// Render returns the visible items in schema order.
func (f *Form) Render() []Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Item, 0, len(f.items))
	for _, it := range f.items {
		st, ok := f.tracker.State(it.Key)
		if !ok || !st.Visible {
			continue
		}
		v, _ := f.tracker.Value(it.Key)
		out = append(out, Item{
			Resolved: it,
			Visible:  true,
			Disabled: st.Disabled,
			Control:  it.Control(f.reg, st, f.loader),
			Value:    v,
			Loading:  f.loader.Pending(it.Key),
		})
	}
	return out
}

// Validate checks the rules of the items visible right now.
func (f *Form) Validate() []validate.FieldError {
	f.mu.Lock()
	defer f.mu.Unlock()
	visible := func(key string) bool {
		st, ok := f.tracker.State(key)
		return ok && st.Visible
	}
	return f.validator.Values(f.items, f.tracker.Values(), visible)
}
