package router

import (
	"context"
	"net/http"
	"time"

	"BucketDash/internal/handler"
	"BucketDash/internal/metrics"
	"BucketDash/utils"

	"github.com/gin-gonic/gin"
)

// HealthCheck probes one backend for /healthz.
type HealthCheck func(ctx context.Context) error

// Deps are what the routes need.
type Deps struct {
	Handler     *handler.Handler
	Metrics     *metrics.Metrics
	JWTSecret   string
	CORSOrigins []string
	Checks      map[string]HealthCheck
}

// InitRouter builds API routes.
func InitRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(utils.CORSMiddleware(d.CORSOrigins))
	r.Use(d.Metrics.GinMiddleware())

	r.GET("/healthz", healthz(d.Checks))
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	h := d.Handler
	api := r.Group("/api")
	api.Use(utils.AuthMiddleware(d.JWTSecret))
	{
		files := api.Group("/files")
		{
			files.POST("/list", h.ListFiles)
			files.POST("/upload", h.UploadFile)
			files.POST("/delete", h.DeleteFiles)
			files.POST("/url", h.FileURL)
			files.POST("/archive", h.DownloadArchive)
		}

		folders := api.Group("/folders")
		{
			folders.POST("", h.CreateFolder)
			folders.POST("/delete", h.DeleteFolder)
			folders.GET("/tasks", h.ListFolderTasks)
			folders.GET("/tasks/:id", h.GetFolderTask)
		}
	}
	return r
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": results})
	}
}
