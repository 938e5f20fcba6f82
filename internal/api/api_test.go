package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adminkit/internal/access"
	"adminkit/internal/store"
)

type quiet struct{}

func (quiet) Printf(string, ...any) {}

const customersYAML = `
screen: customers
title: Customers
pageSize: 5
capabilities:
  create: customers.create
  edit: customers.edit
  delete: customers.delete
fields:
  - key: name
    label: Name
    sortable: true
    rules:
      - kind: required
  - key: code
    label: Code
    props: {readOnly: true}
  - key: status
    valueType: select
    enum: statuses
  - key: age
    valueType: digit
  - key: reason
    dependency:
      visibleWhen: {field: status, operator: eq, value: closed}
    rules:
      - kind: required
  - key: secret
    capability: customers.secret
  - key: avatar
    valueType: image
    hideInTable: true
`

const statusesYAML = `
name: statuses
items:
  - code: open
    name: Open
    order: 1
  - code: closed
    name: Closed
    order: 2
`

func writeFixtures(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	screens := filepath.Join(root, "screens")
	enums := filepath.Join(root, "enums")
	require.NoError(t, os.MkdirAll(screens, 0o755))
	require.NoError(t, os.MkdirAll(enums, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(screens, "customers.yaml"), []byte(customersYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(enums, "statuses.yaml"), []byte(statusesYAML), 0o644))
	return screens, enums
}

func newTestServer(t *testing.T) (*Service, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	screens, enums := writeFixtures(t)
	svc := NewService(nil, nil, store.NewMemory())
	svc.Logger = quiet{}
	svc.Blob = &LocalBlobStore{Root: t.TempDir()}
	_, err := svc.Load(screens, enums)
	require.NoError(t, err)
	return svc, NewRouter(svc, RouterConfig{ScreensDir: screens, EnumsDir: enums})
}

func do(r http.Handler, method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type errorsBody struct {
	Error  string `json:"error"`
	Errors []struct {
		Code  string `json:"code"`
		Field string `json:"field"`
	} `json:"errors"`
}

func TestResourceCRUD(t *testing.T) {
	_, r := newTestServer(t)

	w := do(r, http.MethodPost, "/api/res/customers", map[string]any{"name": "Ada", "status": "open", "age": "36"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, `"1"`, w.Header().Get("ETag"))
	created := decode[map[string]any](t, w)
	id := created["id"].(string)
	assert.Equal(t, float64(36), created["age"])

	for i := 0; i < 6; i++ {
		w = do(r, http.MethodPost, "/api/res/customers", map[string]any{"name": fmt.Sprintf("n%d", i)})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/api/res/customers?_limit=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7", w.Header().Get("X-Total-Count"))
	assert.Len(t, decode[[]map[string]any](t, w), 3)

	w = do(r, http.MethodGet, "/api/res/Customers/_count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(7), decode[map[string]any](t, w)["total"])

	w = do(r, http.MethodGet, "/api/res/customers/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada", decode[map[string]any](t, w)["name"])

	w = do(r, http.MethodPut, "/api/res/customers/"+id, map[string]any{"name": "Ada L.", "version": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `"2"`, w.Header().Get("ETag"))

	w = do(r, http.MethodPut, "/api/res/customers/"+id, map[string]any{"name": "stale"}, "If-Match", `"1"`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ErrVersionConflict, decode[errorsBody](t, w).Errors[0].Code)

	w = do(r, http.MethodPatch, "/api/res/customers/"+id, map[string]any{"age": 37})
	assert.Equal(t, http.StatusConflict, w.Code, "patch without a version")

	w = do(r, http.MethodPatch, "/api/res/customers/"+id, map[string]any{"age": 37, "version": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	patched := decode[map[string]any](t, w)
	assert.Equal(t, "Ada L.", patched["name"])
	assert.Equal(t, float64(37), patched["age"])

	w = do(r, http.MethodDelete, "/api/res/customers/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodGet, "/api/res/customers/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/res/nothing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResourceValidation(t *testing.T) {
	_, r := newTestServer(t)

	cases := []struct {
		name  string
		body  map[string]any
		code  string
		field string
	}{
		{"required", map[string]any{"age": 3}, "required", "name"},
		{"read only", map[string]any{"name": "x", "code": "C1"}, "readonly_field", "code"},
		{"system field", map[string]any{"name": "x", "id": "forged"}, "readonly_field", "id"},
		{"type", map[string]any{"name": "x", "age": "old"}, "type_mismatch", "age"},
		{"enum", map[string]any{"name": "x", "status": "lost"}, "enum_invalid", "status"},
		{"visible dependent", map[string]any{"name": "x", "status": "closed"}, "required", "reason"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/res/customers", tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			errs := decode[errorsBody](t, w).Errors
			require.NotEmpty(t, errs)
			assert.Equal(t, tc.code, errs[0].Code)
			assert.Equal(t, tc.field, errs[0].Field)
		})
	}

	// reason is hidden while status is open, so it is not required
	w := do(r, http.MethodPost, "/api/res/customers", map[string]any{"name": "x", "status": "open"})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestResourceCapabilities(t *testing.T) {
	_, r := newTestServer(t)

	w := do(r, http.MethodPost, "/api/res/customers", map[string]any{"name": "x"}, access.Header, "customers.edit")
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, ErrForbidden, decode[errorsBody](t, w).Errors[0].Code)

	w = do(r, http.MethodPost, "/api/res/customers", map[string]any{"name": "x"}, access.Header, "customers.*")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(r, http.MethodGet, "/api/meta/customers", nil, access.Header, "customers.create")
	require.Equal(t, http.StatusOK, w.Code)
	meta := decode[struct {
		Actions map[string]bool `json:"actions"`
		Table   []struct {
			Key string `json:"key"`
		} `json:"table"`
	}](t, w)
	assert.Equal(t, map[string]bool{"create": true, "edit": false, "delete": false}, meta.Actions)
	var keys []string
	for _, col := range meta.Table {
		keys = append(keys, col.Key)
	}
	assert.Equal(t, []string{"name", "code", "status", "age", "reason"}, keys)
}

func TestBulkDelete(t *testing.T) {
	_, r := newTestServer(t)
	var ids []string
	for i := 0; i < 3; i++ {
		w := do(r, http.MethodPost, "/api/res/customers", map[string]any{"name": fmt.Sprintf("n%d", i)})
		require.Equal(t, http.StatusCreated, w.Code)
		ids = append(ids, decode[map[string]any](t, w)["id"].(string))
	}

	w := do(r, http.MethodPost, "/api/res/customers/_bulk_delete", map[string]any{"ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/res/customers/_bulk_delete", map[string]any{"ids": []string{ids[0], ids[2], "ghost"}})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[struct {
		Deleted []string `json:"deleted"`
		Missing []string `json:"missing"`
	}](t, w)
	assert.ElementsMatch(t, []string{ids[0], ids[2]}, res.Deleted)
	assert.Equal(t, []string{"ghost"}, res.Missing)

	w = do(r, http.MethodGet, "/api/res/customers", nil)
	assert.Equal(t, "1", w.Header().Get("X-Total-Count"))
}

func TestMeta(t *testing.T) {
	_, r := newTestServer(t)

	w := do(r, http.MethodGet, "/api/meta", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]metaScreenListItem](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "Customers", list[0].Title)

	w = do(r, http.MethodGet, "/api/meta/customers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	meta := decode[struct {
		RowKey string `json:"rowKey"`
		Create []struct {
			Key     string `json:"key"`
			Visible bool   `json:"visible"`
			Control struct {
				Kind string `json:"kind"`
			} `json:"control"`
		} `json:"create"`
		Table []struct {
			Key     string `json:"key"`
			Options []struct {
				Label string `json:"label"`
			} `json:"options"`
		} `json:"table"`
	}](t, w)
	assert.Equal(t, "id", meta.RowKey)

	byKey := map[string]int{}
	for i, it := range meta.Create {
		byKey[it.Key] = i
	}
	assert.Equal(t, "imageUpload", meta.Create[byKey["avatar"]].Control.Kind)
	assert.False(t, meta.Create[byKey["reason"]].Visible)
	assert.True(t, meta.Create[byKey["name"]].Visible)
	for _, col := range meta.Table {
		if col.Key == "status" {
			require.Len(t, col.Options, 2)
			assert.Equal(t, "Open", col.Options[0].Label)
		}
	}

	w = do(r, http.MethodGet, "/api/catalogs/statuses", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodGet, "/api/catalogs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminReload(t *testing.T) {
	svc, r := newTestServer(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.yaml"), []byte("screen: orders\nfields:\n  - key: total\n    valueType: money\n"), 0o644))
	w := do(r, http.MethodPost, "/api/admin/reload", map[string]any{"screens_dir": dir, "enums_dir": ""})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"orders"}, svc.screenNames())

	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, "loop.yaml"), []byte(`
screen: loop
fields:
  - key: a
    dependency:
      dependsOn: [a]
      visibleWhen: {field: a, operator: truthy}
`), 0o644))
	w = do(r, http.MethodPost, "/api/admin/reload", map[string]any{"screens_dir": bad})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "depends_on_self")
	assert.Equal(t, []string{"orders"}, svc.screenNames(), "blocking issues keep the loaded screens")

	// no body falls back to the configured directories
	w = do(r, http.MethodPost, "/api/admin/reload", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"customers"}, svc.screenNames())
}

type snapshotBody struct {
	ID    string `json:"id"`
	Query struct {
		Page     int `json:"page"`
		PageSize int `json:"pageSize"`
		Total    int `json:"total"`
	} `json:"query"`
	Columns []struct {
		Key string `json:"key"`
	} `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Actions map[string]bool  `json:"actions"`
	Notices []struct {
		Level string `json:"level"`
		Key   string `json:"key"`
	} `json:"notices"`
}

func TestViewSession(t *testing.T) {
	svc, r := newTestServer(t)
	for i := 0; i < 12; i++ {
		_, err := svc.Store.Create(t.Context(), "customers", map[string]any{"name": fmt.Sprintf("customer %02d", i)})
		require.NoError(t, err)
	}

	w := do(r, http.MethodPost, "/api/views", map[string]any{"screen": "customers"}, access.Header, "customers.delete")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	snap := decode[snapshotBody](t, w)
	require.NotEmpty(t, snap.ID)
	assert.Equal(t, 1, snap.Query.Page)
	assert.Equal(t, 5, snap.Query.PageSize)
	assert.Equal(t, 12, snap.Query.Total)
	assert.Len(t, snap.Rows, 5)
	assert.Equal(t, map[string]bool{"create": false, "edit": false, "delete": true}, snap.Actions)
	for _, col := range snap.Columns {
		assert.NotEqual(t, "secret", col.Key)
	}
	base := "/api/views/" + snap.ID

	w = do(r, http.MethodPost, base+"/page", map[string]any{"page": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap = decode[snapshotBody](t, w)
	assert.Equal(t, 3, snap.Query.Page)
	assert.Len(t, snap.Rows, 2)

	w = do(r, http.MethodPost, base+"/search", map[string]any{"params": map[string]any{"name": "customer 1"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap = decode[snapshotBody](t, w)
	assert.Equal(t, 1, snap.Query.Page)
	assert.Equal(t, 2, snap.Query.Total)

	w = do(r, http.MethodPost, base+"/records/_bulk_delete", map[string]any{"ids": []string{}}, access.Header, "customers.delete")
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodGet, base, nil)
	snap = decode[snapshotBody](t, w)
	require.NotEmpty(t, snap.Notices)
	last := snap.Notices[len(snap.Notices)-1]
	assert.Equal(t, "warning", last.Level)
	assert.Equal(t, "crud.select_at_least_one", last.Key)

	w = do(r, http.MethodPost, base+"/records", map[string]any{"values": map[string]any{"name": "x"}}, access.Header, "customers.delete")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodPost, base+"/records", map[string]any{"values": map[string]any{"age": 1}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "required", decode[errorsBody](t, w).Errors[0].Code)

	w = do(r, http.MethodPost, base+"/records", map[string]any{"values": map[string]any{"name": "customer 1x"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3, decode[snapshotBody](t, w).Query.Total)

	w = do(r, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestViewFormAndDisplay(t *testing.T) {
	_, r := newTestServer(t)

	w := do(r, http.MethodPost, "/api/views", map[string]any{"screen": "customers"})
	require.Equal(t, http.StatusCreated, w.Code)
	base := "/api/views/" + decode[snapshotBody](t, w).ID

	w = do(r, http.MethodPatch, base+"/form", map[string]any{"key": "status", "value": "closed"})
	assert.Equal(t, http.StatusConflict, w.Code, "no form mounted yet")

	w = do(r, http.MethodPost, base+"/form", map[string]any{"view": "form", "mode": "create"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	type formBody struct {
		Items []struct {
			Key string `json:"key"`
		} `json:"items"`
		Change struct {
			States []string `json:"states"`
		} `json:"change"`
	}
	keysOf := func(fb formBody) []string {
		var out []string
		for _, it := range fb.Items {
			out = append(out, it.Key)
		}
		return out
	}
	assert.NotContains(t, keysOf(decode[formBody](t, w)), "reason")

	w = do(r, http.MethodPatch, base+"/form", map[string]any{"key": "status", "value": "closed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	fb := decode[formBody](t, w)
	assert.Contains(t, keysOf(fb), "reason")
	assert.Contains(t, fb.Change.States, "reason")

	w = do(r, http.MethodPost, base+"/form/validate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Field string `json:"field"`
		} `json:"errors"`
	}](t, w)
	assert.False(t, v.Valid)
	var fields []string
	for _, e := range v.Errors {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"name", "reason"}, fields)

	w = do(r, http.MethodPost, base+"/form", map[string]any{"view": "table"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, base+"/display", map[string]any{"op": "moveColumn", "key": "age", "target": "name", "before": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode[struct {
		Columns []struct {
			Key string `json:"key"`
		} `json:"columns"`
	}](t, w)
	assert.Equal(t, "age", st.Columns[0].Key)

	w = do(r, http.MethodPost, base+"/display", map[string]any{"op": "toggleColumn", "key": "name"})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodGet, base, nil)
	for _, col := range decode[snapshotBody](t, w).Columns {
		assert.NotEqual(t, "name", col.Key)
	}

	w = do(r, http.MethodPost, base+"/display", map[string]any{"op": "spin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestViewIdleTimeout(t *testing.T) {
	svc, r := newTestServer(t)
	w := do(r, http.MethodPost, "/api/views", map[string]any{"screen": "customers"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[snapshotBody](t, w).ID
	assert.Equal(t, 1, svc.views.count())

	svc.SetViewIdleTimeout(time.Minute)
	svc.views.mu.RLock()
	vs := svc.views.sessions[id]
	svc.views.mu.RUnlock()
	assert.Zero(t, svc.views.cleanup())

	vs.mu.Lock()
	vs.LastActiveAt = time.Now().Add(-2 * time.Minute)
	vs.mu.Unlock()
	assert.Equal(t, 1, svc.views.cleanup())
	assert.Equal(t, 0, svc.views.count())

	w = do(r, http.MethodGet, "/api/views/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFileRoundTrip(t *testing.T) {
	_, r := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "../photo.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("not really a png"))
	require.NoError(t, mw.Close())

	upload := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/files"+query, bytes.NewReader(buf.Bytes()))
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := upload("?screen=customers&field=name")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = upload("?screen=customers&field=avatar")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[map[string]any](t, w)
	assert.Equal(t, "photo.png", res["name"])
	assert.Equal(t, float64(16), res["size"])

	w = do(r, http.MethodGet, res["url"].(string), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "not really a png", w.Body.String())

	w = do(r, http.MethodGet, "/api/files/../../etc/passwd", nil)
	assert.NotEqual(t, http.StatusOK, w.Code)
}
