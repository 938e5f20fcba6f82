package view

import (
	"context"

	"adminkit/internal/access"
	"adminkit/internal/crud"
	"adminkit/internal/display"
	"adminkit/internal/project"
	"adminkit/internal/resolve"
	"adminkit/internal/schema"
)

// ScreenConfig holds the defaults a screen file may override.
type ScreenConfig struct {
	PageSize     int
	Refresh      crud.Refresh
	BeforeDelete func(ids []string) bool
	Notifier     crud.Notifier
	Logger       resolve.Logger
}

// Screen is one mounted table screen: its projections, the CRUD state of the
// table and the display state of its toolbar.
type Screen struct {
	Def    *schema.Screen
	Search []project.Resolved
	Table  []project.Resolved

	CRUD    *crud.Orchestrator
	Display *display.Store
}

// NewScreen mounts def. A nil res binds the table to the screen's endpoint.
func NewScreen(def *schema.Screen, res crud.Resource, cfg ScreenConfig) (*Screen, error) {
	if err := def.Fields.Check(); err != nil {
		return nil, err
	}
	ccfg := crud.Config{
		PageSize:     cfg.PageSize,
		Refresh:      cfg.Refresh,
		BeforeDelete: cfg.BeforeDelete,
		Notifier:     cfg.Notifier,
		Logger:       cfg.Logger,
	}
	if def.PageSize > 0 {
		ccfg.PageSize = def.PageSize
	}
	if def.Refresh != "" {
		r, err := crud.ParseRefresh(def.Refresh)
		if err != nil {
			return nil, err
		}
		ccfg.Refresh = r
	}

	var (
		orch *crud.Orchestrator
		err  error
	)
	if res != nil {
		orch = crud.NewWithResource(res, ccfg)
	} else {
		ccfg.Endpoint = def.Endpoint
		if orch, err = crud.New(ccfg); err != nil {
			return nil, err
		}
	}

	table := project.Project(def.Fields, project.Table, "")
	return &Screen{
		Def:     def,
		Search:  project.Project(def.Fields, project.Search, ""),
		Table:   table,
		CRUD:    orch,
		Display: display.ForKeys(project.Keys(table)),
	}, nil
}

// Form mounts the create or edit form of the screen.
func (s *Screen) Form(ctx context.Context, mode project.Mode, values schema.Values, cfg FormConfig) (*Form, error) {
	if cfg.Scope == "" {
		cfg.Scope = s.Def.Name
	}
	return NewForm(ctx, s.Def.Fields, project.Form, mode, values, cfg)
}

// SearchForm mounts the search view of the screen.
func (s *Screen) SearchForm(ctx context.Context, values schema.Values, cfg FormConfig) (*Form, error) {
	if cfg.Scope == "" {
		cfg.Scope = s.Def.Name
	}
	return NewForm(ctx, s.Def.Fields, project.Search, "", values, cfg)
}

// Actions are the CRUD affordances available to a caller.
type Actions struct {
	Create bool `json:"create"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

func (s *Screen) Actions(c access.Checker) Actions {
	caps := s.Def.Capabilities
	return Actions{
		Create: access.Allow(c, caps.Create),
		Edit:   access.Allow(c, caps.Edit),
		Delete: access.Allow(c, caps.Delete),
	}
}

// Columns returns the table columns c may see, in the order and visibility
// of the display state.
func (s *Screen) Columns(c access.Checker) []project.Resolved {
	byKey := make(map[string]project.Resolved, len(s.Table))
	for _, col := range s.Table {
		byKey[col.Key] = col
	}
	var out []project.Resolved
	for _, key := range s.Display.State().Visible() {
		col, ok := byKey[key]
		if !ok || !access.Allow(c, col.Field.Capability) {
			continue
		}
		out = append(out, col)
	}
	return out
}

// Rows renders the current page for the columns c may see.
func (s *Screen) Rows(c access.Checker) []map[string]any {
	cols := s.Columns(c)
	st := s.CRUD.State()
	out := make([]map[string]any, len(st.Rows))
	for i, r := range st.Rows {
		row := project.RenderRow(cols, schema.Values(r))
		row[s.Def.RowKey] = r[s.Def.RowKey]
		out[i] = row
	}
	return out
}
