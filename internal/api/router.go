package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/apk-inspect/apk-inspect-go/internal/api/handlers"
	"github.com/apk-inspect/apk-inspect-go/internal/apk"
	"github.com/apk-inspect/apk-inspect-go/internal/middleware"
	"github.com/apk-inspect/apk-inspect-go/internal/repository"
	"github.com/apk-inspect/apk-inspect-go/internal/worker"
)

// NewRouter 组装 HTTP 路由
func NewRouter(logger *logrus.Logger, analyzer *apk.Analyzer, pool *worker.Pool, repo repository.ReportRepository, mode string) *gin.Engine {
	gin.SetMode(mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Prometheus())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	analyzeHandler := handlers.NewAnalyzeHandler(logger, analyzer, pool)
	reportHandler := handlers.NewReportHandler(logger, repo)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/analyze", analyzeHandler.Analyze)
		v1.POST("/tasks", analyzeHandler.Submit)
		v1.GET("/reports", reportHandler.List)
		v1.GET("/reports/:id", reportHandler.Get)
	}
	return r
}
