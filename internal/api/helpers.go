package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"adminkit/internal/access"
	"adminkit/internal/store"
	"adminkit/internal/validate"
)

// Error codes beyond the validation codes.
const (
	ErrVersionConflict = "version_conflict"
	ErrNotFound        = "not_found"
	ErrForbidden       = "forbidden"
)

// ValidationError carries field errors out of a resource call.
type ValidationError struct {
	Errors []validate.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func fieldErr(code, field, msg string) validate.FieldError {
	return validate.FieldError{Code: code, Field: field, Message: msg}
}

// writeError maps store and validation errors to the response the resource
// endpoints use.
func writeError(c *gin.Context, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"errors": ve.Errors})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
	case errors.Is(err, store.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{
			"errors": []validate.FieldError{fieldErr(ErrVersionConflict, "version", "record was changed by someone else")},
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error", "details": err.Error()})
	}
}

// readExpectedVersion takes the version from If-Match ("3", "\"3\"" or
// W/"3") or from body.version. It must run before the payload is cleaned.
func readExpectedVersion(c *gin.Context, payload map[string]any) (int64, bool) {
	ifMatch := strings.TrimSpace(c.GetHeader("If-Match"))
	if ifMatch != "" {
		ifMatch = strings.Trim(strings.TrimPrefix(ifMatch, "W/"), `"'`)
		if v, err := strconv.ParseInt(ifMatch, 10, 64); err == nil {
			return v, true
		}
	}
	return versionOf(payload)
}

func versionOf(payload map[string]any) (int64, bool) {
	raw, ok := payload["version"]
	if !ok {
		return 0, false
	}
	switch t := raw.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case string:
		if v, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

func etag(version int64) string { return fmt.Sprintf(`"%d"`, version) }

func checker(c *gin.Context) access.Checker {
	return access.FromHeader(c.Request.Header)
}

// requireCapability writes 403 and returns false when the caller lacks token.
func requireCapability(c *gin.Context, token string) bool {
	if access.Allow(checker(c), token) {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{
		"errors": []validate.FieldError{fieldErr(ErrForbidden, "", fmt.Sprintf("capability %q required", token))},
	})
	return false
}
