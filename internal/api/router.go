package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RouterConfig names the directories the reload endpoint reads by default.
type RouterConfig struct {
	ScreensDir string
	EnumsDir   string
}

func NewRouter(svc *Service, rc RouterConfig) *gin.Engine {
	r := gin.Default()

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/meta", MetaListHandler(svc))
		apiGroup.GET("/meta/:screen", MetaScreenHandler(svc))
		apiGroup.GET("/catalogs/:name", MetaCatalogHandler(svc))
		apiGroup.POST("/admin/reload", AdminReloadHandler(svc, rc.ScreensDir, rc.EnumsDir))

		// service routes first
		apiGroup.GET("/res/:screen/_count", CountHandler(svc))
		apiGroup.POST("/res/:screen/_bulk_delete", BulkDeleteHandler(svc))

		apiGroup.GET("/res/:screen", ListHandler(svc))
		apiGroup.POST("/res/:screen", CreateHandler(svc))
		apiGroup.GET("/res/:screen/:id", GetOneHandler(svc))
		apiGroup.PUT("/res/:screen/:id", UpdateHandler(svc))
		apiGroup.PATCH("/res/:screen/:id", UpdatePartialHandler(svc))
		apiGroup.DELETE("/res/:screen/:id", DeleteHandler(svc))

		apiGroup.POST("/files", UploadFileHandler(svc))
		apiGroup.GET("/files/*key", DownloadFileHandler(svc))
	}

	views := apiGroup.Group("/views")
	{
		views.POST("", MountViewHandler(svc))
		views.GET("/:id", GetViewHandler(svc))
		views.DELETE("/:id", UnmountViewHandler(svc))
		views.POST("/:id/search", ViewSearchHandler(svc))
		views.POST("/:id/page", ViewPageHandler(svc))
		views.POST("/:id/reload", ViewReloadHandler(svc))
		views.POST("/:id/records/_bulk_delete", ViewBulkDeleteHandler(svc))
		views.POST("/:id/records", ViewCreateHandler(svc))
		views.PUT("/:id/records/:rid", ViewUpdateHandler(svc))
		views.DELETE("/:id/records/:rid", ViewDeleteHandler(svc))
		views.POST("/:id/form", ViewFormHandler(svc))
		views.PATCH("/:id/form", ViewFormSetHandler(svc))
		views.POST("/:id/form/validate", ViewFormValidateHandler(svc))
		views.GET("/:id/display", ViewDisplayHandler(svc))
		views.POST("/:id/display", ViewDisplayOpHandler(svc))
		views.GET("/:id/ws", ViewStreamHandler(svc))
	}
	return r
}

// RunServer serves until ctx ends, dropping idle view sessions every minute.
func RunServer(ctx context.Context, addr string, svc *Service, rc RouterConfig) error {
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := svc.views.cleanup(); n > 0 {
					svc.Logger.Printf("views: dropped %d idle sessions", n)
				}
			}
		}
	}()
	return runHTTP(ctx, addr, NewRouter(svc, rc))
}

func runHTTP(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
