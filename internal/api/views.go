package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"adminkit/internal/access"
	"adminkit/internal/crud"
	"adminkit/internal/display"
	"adminkit/internal/project"
	"adminkit/internal/schema"
	"adminkit/internal/store"
	"adminkit/internal/validate"
	"adminkit/internal/view"
)

// formWait bounds how long a form response waits for option fetches.
const formWait = 2 * time.Second

type viewSnapshot struct {
	ID      string           `json:"id"`
	Screen  string           `json:"screen"`
	Query   crud.State       `json:"query"`
	Columns []metaColumn     `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Display display.State    `json:"display"`
	Actions view.Actions     `json:"actions"`
	Notices []crud.Notice    `json:"notices,omitempty"`
}

func (s *Service) snapshot(vs *viewSession, caps access.Checker) viewSnapshot {
	cols := vs.view.Columns(caps)
	out := viewSnapshot{
		ID:      vs.ID,
		Screen:  vs.Screen,
		Query:   vs.view.CRUD.State(),
		Columns: make([]metaColumn, 0, len(cols)),
		Rows:    vs.view.Rows(caps),
		Display: vs.view.Display.State(),
		Actions: vs.view.Actions(caps),
		Notices: s.translated(vs.recentNotices()),
	}
	for _, col := range cols {
		out.Columns = append(out.Columns, metaColumn{Resolved: col, Options: col.Field.Props.Options()})
	}
	return out
}

// translated fills Message from the translation catalog.
func (s *Service) translated(ns []crud.Notice) []crud.Notice {
	for i := range ns {
		if msg := s.Translator.Translate(ns[i].Key, nil); msg != ns[i].Key {
			ns[i].Message = msg
		}
	}
	return ns
}

// mountView builds a session for scr backed by the record store, or by the
// screen's endpoint when it names one.
func (s *Service) mountView(scr *schema.Screen, caps access.Checker) (*viewSession, error) {
	var vs *viewSession
	cfg := view.ScreenConfig{
		PageSize: s.PageSize,
		Refresh:  s.Refresh,
		Logger:   s.Logger,
		Notifier: crud.NotifierFunc(func(n crud.Notice) { vs.notify(n) }),
	}
	var res crud.Resource
	if scr.Endpoint == "" {
		res = s.storeResource(scr)
	}
	v, err := view.NewScreen(scr, res, cfg)
	if err != nil {
		return nil, err
	}
	vs = newViewSession(scr.Name, v, caps)
	vs.watch()
	s.views.add(vs)
	return vs, nil
}

func (s *Service) session(c *gin.Context) (*viewSession, bool) {
	vs := s.views.get(c.Param("id"))
	if vs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "View not found"})
		return nil, false
	}
	return vs, true
}

// crudError maps orchestrator errors. The notice raised for a failure is
// already in the session.
func crudError(c *gin.Context, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"errors": ve.Errors})
	case errors.Is(err, crud.ErrBusy), errors.Is(err, crud.ErrSuperseded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, crud.ErrNoSelection), errors.Is(err, crud.ErrVetoed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
	case errors.Is(err, store.ErrVersionConflict):
		writeError(c, err)
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// POST /api/views {"screen": "...", "search": {...}}
func MountViewHandler(svc *Service) gin.HandlerFunc {
	type req struct {
		Screen string         `json:"screen"`
		Search map[string]any `json:"search"`
	}
	return func(c *gin.Context) {
		var body req
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON: expected {screen}"})
			return
		}
		scr, ok := svc.screen(body.Screen)
		if !ok {
			screenNotFound(c)
			return
		}
		caps := checker(c)
		vs, err := svc.mountView(scr, caps)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := vs.view.CRUD.Search(c.Request.Context(), body.Search); err != nil {
			svc.Logger.Printf("view %s: initial search: %v", vs.ID, err)
		}
		c.JSON(http.StatusCreated, svc.snapshot(vs, caps))
	}
}

// GET /api/views/:id
func GetViewHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, ok := svc.session(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, svc.snapshot(vs, checker(c)))
	}
}

// DELETE /api/views/:id
func UnmountViewHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !svc.views.remove(c.Param("id")) {
			c.JSON(http.StatusNotFound, gin.H{"error": "View not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// viewOp runs op against the session and answers with its snapshot.
func viewOp(svc *Service, op func(c *gin.Context, vs *viewSession) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, ok := svc.session(c)
		if !ok {
			return
		}
		if err := op(c, vs); err != nil {
			crudError(c, err)
			return
		}
		c.JSON(http.StatusOK, svc.snapshot(vs, checker(c)))
	}
}

var errBadBody = errors.New("invalid JSON")

// POST /api/views/:id/search {"params": {...}}
func ViewSearchHandler(svc *Service) gin.HandlerFunc {
	type req struct {
		Params map[string]any `json:"params"`
	}
	return viewOp(svc, func(c *gin.Context, vs *viewSession) error {
		var body req
		if err := c.ShouldBindJSON(&body); err != nil {
			return &ValidationError{Errors: []validate.FieldError{fieldErr(validate.ErrTypeMismatch, "params", errBadBody.Error())}}
		}
		return vs.view.CRUD.Search(c.Request.Context(), body.Params)
	})
}

// POST /api/views/:id/page {"page": 2, "pageSize": 20}
func ViewPageHandler(svc *Service) gin.HandlerFunc {
	type req struct {
		Page     int `json:"page"`
		PageSize int `json:"pageSize"`
	}
	return viewOp(svc, func(c *gin.Context, vs *viewSession) error {
		var body req
		if err := c.ShouldBindJSON(&body); err != nil {
			return &ValidationError{Errors: []validate.FieldError{fieldErr(validate.ErrTypeMismatch, "page", errBadBody.Error())}}
		}
		return vs.view.CRUD.ChangePage(c.Request.Context(), body.Page, body.PageSize)
	})
}

// POST /api/views/:id/reload
func ViewReloadHandler(svc *Service) gin.HandlerFunc {
	return viewOp(svc, func(c *gin.Context, vs *viewSession) error {
		return vs.view.CRUD.Reload(c.Request.Context())
	})
}

type recordReq struct {
	Values map[string]any `json:"values"`
}

// POST /api/views/:id/records {"values": {...}}
func ViewCreateHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, ok := svc.session(c)
		if !ok || !requireCapability(c, vs.view.Def.Capabilities.Create) {
			return
		}
		var body recordReq
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON: expected {values}"})
			return
		}
		if err := vs.view.CRUD.Create(c.Request.Context(), crud.Record(body.Values)); err != nil {
			crudError(c, err)
			return
		}
		c.JSON(http.StatusOK, svc.snapshot(vs, checker(c)))
	}
}

// PUT /api/views/:id/records/:rid {"values": {...}}
func ViewUpdateHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, ok := svc.session(c)
		if !ok || !requireCapability(c, vs.view.Def.Capabilities.Edit) {
			return
		}
		var body recordReq
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON: expected {values}"})
			return
		}
		if err := vs.view.CRUD.Update(c.Request.Context(), c.Param("rid"), crud.Record(body.Values)); err != nil {
			crudError(c, err)
			return
		}
		c.JSON(http.StatusOK, svc.snapshot(vs, checker(c)))
	}
}

// DELETE /api/views/:id/records/:rid
func ViewDeleteHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, ok := svc.session(c)
		if !ok || !requireCapability(c, vs.view.Def.Capabilities.Delete) {
			return
		}
		if err := vs.view.CRUD.Delete(c.Request.Context(), c.Param("rid")); err != nil {
			crudError(c, err)
			return
		}
		c.JSON(http.StatusOK, svc.snapshot(vs, checker(c)))
	}
}

// POST /api/views/:id/records/_bulk_delete {"ids": [...]}. An empty list
// answers 400 and leaves a warning notice.
func ViewBulkDeleteHandler(svc *Service) gin.HandlerFunc {
	type req struct {
		IDs []string `json:"ids"`
	}
	return func(c *gin.Context) {
		vs, ok := svc.session(c)
		if !ok || !requireCapability(c, vs.view.Def.Capabilities.Delete) {
			return
		}
		var body req
		if err := c.ShouldBindJSON(&body); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON: expected {ids:[]}"})
			return
		}
		if err := vs.view.CRUD.BatchDelete(c.Request.Context(), body.IDs); err != nil {
			crudError(c, err)
			return
		}
		c.JSON(http.StatusOK, svc.snapshot(vs, checker(c)))
	}
}

type formResponse struct {
	View   project.View          `json:"view"`
	Mode   project.Mode          `json:"mode,omitempty"`
	Items  []view.Item           `json:"items"`
	Change *view.Change          `json:"change,omitempty"`
	Errors []validate.FieldError `json:"errors,omitempty"`
}

func renderForm(ctx context.Context, f *view.Form) formResponse {
	wctx, cancel := context.WithTimeout(ctx, formWait)
	defer cancel()
	// options still loading after the wait are reported per item
	_ = f.Wait(wctx)
	return formResponse{View: f.View(), Mode: f.Mode(), Items: f.Render()}
}

// POST /api/views/:id/form {"view": "form", "mode": "edit", "values": {...}}
func ViewFormHandler(svc *Service) gin.HandlerFunc {
	type req struct {
		View   string         `json:"view"`
		Mode   string         `json:"mode"`
		Values map[string]any `json:"values"`
	}
	return func(c *gin.Context) {
		vs, ok := svc.session(c)
		if !ok {
			return
		}
		var body req
		if err := c.ShouldBindJSON(&body); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		if body.View == "" {
			body.View = string(project.Form)
		}
		v, err := project.ParseView(body.View)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		m, err := project.ParseMode(body.Mode)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cfg := view.FormConfig{
			Registry: svc.Registry,
			Logger:   svc.Logger,
			Cache:    svc.Cache,
			OnOptions: func(key string) {
				vs.publish(event{Type: "options", Data: gin.H{"field": key}})
			},
		}
		// option fetches outlive this request
		ctx := context.WithoutCancel(c.Request.Context())
		var f *view.Form
		switch v {
		case project.Table:
			err = view.ErrTableView
		case project.Search:
			f, err = vs.view.SearchForm(ctx, schema.Values(body.Values), cfg)
		default:
			f, err = vs.view.Form(ctx, m, schema.Values(body.Values), cfg)
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		vs.setForm(f)
		c.JSON(http.StatusOK, renderForm(c.Request.Context(), f))
	}
}

// PATCH /api/views/:id/form {"key": "country", "value": "no"}
func ViewFormSetHandler(svc *Service) gin.HandlerFunc {
	type req struct {
		Key   string `json:"key" binding:"required"`
		Value any    `json:"value"`
	}
	return func(c *gin.Context) {
		vs, ok := svc.session(c)
		if !ok {
			return
		}
		f := vs.currentForm()
		if f == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "no form mounted"})
			return
		}
		var body req
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON: expected {key, value}"})
			return
		}
		ch := f.Set(context.WithoutCancel(c.Request.Context()), body.Key, body.Value)
		out := renderForm(c.Request.Context(), f)
		out.Change = &ch
		c.JSON(http.StatusOK, out)
	}
}

// POST /api/views/:id/form/validate
func ViewFormValidateHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, ok := svc.session(c)
		if !ok {
			return
		}
		f := vs.currentForm()
		if f == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "no form mounted"})
			return
		}
		errs := f.Validate()
		c.JSON(http.StatusOK, gin.H{"valid": len(errs) == 0, "errors": errs, "values": f.Values()})
	}
}

// GET /api/views/:id/display
func ViewDisplayHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, ok := svc.session(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, vs.view.Display.State())
	}
}

// POST /api/views/:id/display {"op": "moveColumn", "key": "...", "target": "...", "before": true}
func ViewDisplayOpHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, ok := svc.session(c)
		if !ok {
			return
		}
		var op display.Op
		if err := c.ShouldBindJSON(&op); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON: expected {op}"})
			return
		}
		if err := vs.view.Display.Apply(op); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, display.ErrLocked) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, vs.view.Display.State())
	}
}
