package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-extractor/api/handlers"
	"github.com/feichai0017/pdf-extractor/api/middleware"
)

// SetupRoutes wires the extraction API.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")

	v1.GET("/health", h.Extraction.Health)

	v1.POST("/extract", h.Extraction.Extract)

	jobs := v1.Group("/jobs")
	{
		jobs.POST("", h.Extraction.Submit)
		jobs.GET("", h.Extraction.ListJobs)
		jobs.GET("/:jobId", h.Extraction.GetJob)
		jobs.GET("/:jobId/report", h.Extraction.GetReport)
	}
}
