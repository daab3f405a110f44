package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apkinspect_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "apkinspect_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// AnalysisTotal 按结果统计分析次数
	AnalysisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apkinspect_analysis_total",
		Help: "Total number of APK analyses by result",
	}, []string{"status"})

	// AnalysisDuration 单次分析耗时
	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "apkinspect_analysis_duration_seconds",
		Help:    "APK analysis duration",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// QueueDepth 当前等待分析的任务数
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "apkinspect_queue_depth",
		Help: "Number of tasks waiting in the analysis queue",
	})
)

// Prometheus 记录 HTTP 请求指标
func Prometheus() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// ObserveAnalysis 记录一次分析的结果与耗时
func ObserveAnalysis(status string, elapsed time.Duration) {
	AnalysisTotal.WithLabelValues(status).Inc()
	AnalysisDuration.Observe(elapsed.Seconds())
}
