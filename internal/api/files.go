package api

import (
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"adminkit/internal/schema"
)

// POST /api/files?screen=&field= (multipart, part "file")
//
// screen and field are optional; when given, the field must be an upload or
// image field the caller may edit.
func UploadFileHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc.Blob == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "blob store not configured"})
			return
		}
		if name := c.Query("screen"); name != "" {
			scr, ok := svc.screen(name)
			if !ok {
				screenNotFound(c)
				return
			}
			f := scr.Fields.Field(c.Query("field"))
			if f == nil || (f.Type() != schema.Upload && f.Type() != schema.Image) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Field is not an upload or image field"})
				return
			}
			if !requireCapability(c, scr.Capabilities.Edit) {
				return
			}
		}

		file, hdr, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart file not found (field name 'file')"})
			return
		}
		defer file.Close()

		key, size, sum, err := svc.Blob.Put(safeName(hdr), file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store error", "details": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"key":         key,
			"name":        path.Base(key),
			"size":        size,
			"sha256":      sum,
			"contentType": hdr.Header.Get("Content-Type"),
			"url":         "/api/files/" + key,
		})
	}
}

func safeName(h *multipart.FileHeader) string {
	name := strings.TrimSpace(filepath.Base(h.Filename))
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}

// GET /api/files/*key
func DownloadFileHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc.Blob == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "blob store not configured"})
			return
		}
		key := strings.TrimPrefix(c.Param("key"), "/")
		f, err := svc.Blob.Open(key)
		switch {
		case errors.Is(err, ErrBadKey), errors.Is(err, os.ErrNotExist):
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store error", "details": err.Error()})
			return
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store error", "details": err.Error()})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(path.Base(key), `"`, "")+`"`)
		http.ServeContent(c.Writer, c.Request, path.Base(key), st.ModTime(), f)
	}
}
