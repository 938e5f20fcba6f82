package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"adminkit/internal/access"
	"adminkit/internal/controls"
	"adminkit/internal/project"
	"adminkit/internal/resolve"
	"adminkit/internal/schema"
	"adminkit/internal/view"
)

type metaScreenListItem struct {
	Screen   string `json:"screen"`
	Title    string `json:"title,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// GET /api/meta
func MetaListHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		names := svc.screenNames()
		out := make([]metaScreenListItem, 0, len(names))
		for _, n := range names {
			scr, ok := svc.screen(n)
			if !ok {
				continue
			}
			out = append(out, metaScreenListItem{Screen: scr.Name, Title: scr.Title, Endpoint: scr.Endpoint})
		}
		c.JSON(http.StatusOK, out)
	}
}

// metaItem is a search or form entry with its control for empty values.
type metaItem struct {
	project.Resolved
	Visible  bool             `json:"visible"`
	Disabled bool             `json:"disabled"`
	Control  controls.Control `json:"control"`
}

type metaScreen struct {
	Screen   string         `json:"screen"`
	Title    string         `json:"title,omitempty"`
	RowKey   string         `json:"rowKey"`
	PageSize int            `json:"pageSize,omitempty"`
	Refresh  string         `json:"refresh,omitempty"`
	Actions  view.Actions   `json:"actions"`
	Search   []metaItem     `json:"search"`
	Table    []metaColumn   `json:"table"`
	Create   []metaItem     `json:"create"`
	Edit     []metaItem     `json:"edit"`
	Issues   []schema.Issue `json:"issues,omitempty"`
}

type metaColumn struct {
	project.Resolved
	Options schema.OptionList `json:"options,omitempty"`
}

// GET /api/meta/:screen
func MetaScreenHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		scr, ok := svc.screen(c.Param("screen"))
		if !ok {
			screenNotFound(c)
			return
		}
		caps := checker(c)
		c.JSON(http.StatusOK, metaScreen{
			Screen:   scr.Name,
			Title:    scr.Title,
			RowKey:   scr.RowKey,
			PageSize: scr.PageSize,
			Refresh:  scr.Refresh,
			Actions: view.Actions{
				Create: access.Allow(caps, scr.Capabilities.Create),
				Edit:   access.Allow(caps, scr.Capabilities.Edit),
				Delete: access.Allow(caps, scr.Capabilities.Delete),
			},
			Search: svc.metaItems(scr, project.Search, ""),
			Table:  metaColumns(scr, caps),
			Create: svc.metaItems(scr, project.Form, project.Create),
			Edit:   svc.metaItems(scr, project.Form, project.Edit),
			Issues: scr.Lint(),
		})
	}
}

func (s *Service) metaItems(scr *schema.Screen, v project.View, m project.Mode) []metaItem {
	r := &resolve.Resolver{Logger: s.Logger}
	rs := project.Project(scr.Fields, v, m)
	out := make([]metaItem, 0, len(rs))
	for _, it := range rs {
		st := r.Resolve(it.Field, schema.Values{})
		out = append(out, metaItem{
			Resolved: it,
			Visible:  st.Visible,
			Disabled: st.Disabled,
			Control:  it.Control(s.Registry, st, nil),
		})
	}
	return out
}

func metaColumns(scr *schema.Screen, caps access.Checker) []metaColumn {
	rs := project.Project(scr.Fields, project.Table, "")
	out := make([]metaColumn, 0, len(rs))
	for _, col := range rs {
		if !access.Allow(caps, col.Field.Capability) {
			continue
		}
		out = append(out, metaColumn{Resolved: col, Options: col.Field.Props.Options()})
	}
	return out
}

// GET /api/catalogs/:name
func MetaCatalogHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		dir, ok := svc.catalog(name)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Catalog not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"name":  name,
			"items": dir.Sorted(),
		})
	}
}
