package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type reloadReq struct {
	ScreensDir string `json:"screens_dir"`
	EnumsDir   string `json:"enums_dir"`
}

// POST /api/admin/reload re-reads screens and enum catalogs. Blocking lint
// issues leave the loaded screens in place and answer 400.
func AdminReloadHandler(svc *Service, screensDir, enumsDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reloadReq
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		sd := strings.TrimSpace(req.ScreensDir)
		if sd == "" {
			sd = screensDir
		}
		ed := strings.TrimSpace(req.EnumsDir)
		if ed == "" {
			ed = enumsDir
		}

		res, err := svc.Load(sd, ed)
		switch {
		case errors.Is(err, ErrBlockingIssues):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":      "screens have blocking issues",
				"issues":     res.Issues,
				"hint":       "fix the screen files and retry",
				"screensDir": sd,
				"enumsDir":   ed,
			})
			return
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": "load error", "details": err.Error()})
			return
		}
		svc.Logger.Printf("reloaded %d screens and %d enum groups from %s, %s", res.Screens, res.EnumGroups, sd, ed)
		c.JSON(http.StatusOK, gin.H{
			"ok":         true,
			"screensDir": sd,
			"enumsDir":   ed,
			"screens":    res.Screens,
			"enumGroups": res.EnumGroups,
			"issues":     res.Issues,
		})
	}
}
