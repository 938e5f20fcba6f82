package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"adminkit/internal/project"
	"adminkit/internal/store"
	"adminkit/internal/validate"
)

func screenNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Screen not found"})
}

// GET /api/res/:screen
func ListHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		scr, ok := svc.screen(c.Param("screen"))
		if !ok {
			screenNotFound(c)
			return
		}
		lp := store.ParseListParams(c.Request.URL.Query())
		recs, total, err := svc.Store.List(c.Request.Context(), scr.Name, scr.Fields, lp)
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]map[string]any, 0, len(recs))
		for _, rec := range recs {
			out = append(out, store.Flatten(rec))
		}
		c.Header("X-Total-Count", strconv.Itoa(total))
		c.JSON(http.StatusOK, out)
	}
}

// GET /api/res/:screen/_count
func CountHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		scr, ok := svc.screen(c.Param("screen"))
		if !ok {
			screenNotFound(c)
			return
		}
		lp := store.ParseListParams(c.Request.URL.Query())
		lp.Limit, lp.Offset = 0, 0
		_, total, err := svc.Store.List(c.Request.Context(), scr.Name, scr.Fields, lp)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"total": total})
	}
}

// GET /api/res/:screen/:id
func GetOneHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		scr, ok := svc.screen(c.Param("screen"))
		if !ok {
			screenNotFound(c)
			return
		}
		rec, err := svc.Store.Get(c.Request.Context(), scr.Name, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header("ETag", etag(rec.Version))
		c.JSON(http.StatusOK, store.Flatten(rec))
	}
}

// POST /api/res/:screen
func CreateHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		scr, ok := svc.screen(c.Param("screen"))
		if !ok {
			screenNotFound(c)
			return
		}
		if !requireCapability(c, scr.Capabilities.Create) {
			return
		}
		var obj map[string]any
		if err := c.ShouldBindJSON(&obj); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		if obj == nil {
			obj = map[string]any{}
		}
		if errs := svc.preparePayload(scr, obj, project.Create); len(errs) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
			return
		}
		rec, err := svc.Store.Create(c.Request.Context(), scr.Name, obj)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header("ETag", etag(rec.Version))
		c.JSON(http.StatusCreated, store.Flatten(rec))
	}
}

// PUT /api/res/:screen/:id replaces the record data. The expected version
// comes from If-Match or body.version; without one the write is unchecked.
func UpdateHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		scr, ok := svc.screen(c.Param("screen"))
		if !ok {
			screenNotFound(c)
			return
		}
		if !requireCapability(c, scr.Capabilities.Edit) {
			return
		}
		var obj map[string]any
		if err := c.ShouldBindJSON(&obj); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		if obj == nil {
			obj = map[string]any{}
		}
		expVer, _ := readExpectedVersion(c, obj)
		if errs := svc.preparePayload(scr, obj, project.Edit); len(errs) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
			return
		}
		rec, err := svc.Store.Update(c.Request.Context(), scr.Name, c.Param("id"), obj, expVer)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header("ETag", etag(rec.Version))
		c.JSON(http.StatusOK, store.Flatten(rec))
	}
}

// PATCH /api/res/:screen/:id merges the body into the stored data. A version
// is required.
func UpdatePartialHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		scr, ok := svc.screen(c.Param("screen"))
		if !ok {
			screenNotFound(c)
			return
		}
		if !requireCapability(c, scr.Capabilities.Edit) {
			return
		}
		var patch map[string]any
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		expVer, okExp := readExpectedVersion(c, patch)

		ctx := c.Request.Context()
		rec, err := svc.Store.Get(ctx, scr.Name, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		if !okExp || expVer != rec.Version {
			writeError(c, store.ErrVersionConflict)
			return
		}

		// read-only checks look at the patch only, not the stored fields
		if errs := validate.CheckReadOnly(scr.Fields, patch); len(errs) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
			return
		}
		merged := copyMap(rec.Data)
		for k, v := range patch {
			merged[k] = v
		}
		if errs := svc.normalizePayload(scr, merged, project.Edit); len(errs) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
			return
		}
		rec, err = svc.Store.Update(ctx, scr.Name, rec.ID, merged, rec.Version)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header("ETag", etag(rec.Version))
		c.JSON(http.StatusOK, store.Flatten(rec))
	}
}

// DELETE /api/res/:screen/:id (soft delete)
func DeleteHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		scr, ok := svc.screen(c.Param("screen"))
		if !ok {
			screenNotFound(c)
			return
		}
		if !requireCapability(c, scr.Capabilities.Delete) {
			return
		}
		if err := svc.Store.Delete(c.Request.Context(), scr.Name, c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// POST /api/res/:screen/_bulk_delete {"ids": [...]}
func BulkDeleteHandler(svc *Service) gin.HandlerFunc {
	type req struct {
		IDs []string `json:"ids"`
	}
	return func(c *gin.Context) {
		scr, ok := svc.screen(c.Param("screen"))
		if !ok {
			screenNotFound(c)
			return
		}
		if !requireCapability(c, scr.Capabilities.Delete) {
			return
		}
		var body req
		if err := c.ShouldBindJSON(&body); err != nil || len(body.IDs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON: expected {ids:[]}"})
			return
		}
		deleted, err := svc.Store.BatchDelete(c.Request.Context(), scr.Name, body.IDs)
		if err != nil {
			writeError(c, err)
			return
		}
		gone := make(map[string]bool, len(deleted))
		for _, id := range deleted {
			gone[id] = true
		}
		missing := []string{}
		for _, id := range body.IDs {
			if !gone[id] {
				missing = append(missing, id)
			}
		}
		c.JSON(http.StatusOK, gin.H{"deleted": deleted, "missing": missing})
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
