package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/apk-inspect/apk-inspect-go/internal/apk"
	"github.com/apk-inspect/apk-inspect-go/internal/worker"
)

// 上传大小上限 512MB
const maxUploadSize = 512 << 20

// AnalyzeHandler 处理 APK 上传分析
type AnalyzeHandler struct {
	logger   *logrus.Logger
	analyzer *apk.Analyzer
	pool     *worker.Pool
}

// NewAnalyzeHandler 创建分析处理器
func NewAnalyzeHandler(logger *logrus.Logger, analyzer *apk.Analyzer, pool *worker.Pool) *AnalyzeHandler {
	return &AnalyzeHandler{logger: logger, analyzer: analyzer, pool: pool}
}

// Analyze 同步分析上传的 APK 并返回完整报告
// POST /api/v1/analyze
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	name, data, ok := h.readUpload(c)
	if !ok {
		return
	}

	opts := apk.Options{StringProcessing: c.Query("no_string_processing") != "true"}
	pkg, err := h.analyzer.Analyze(name, data, opts)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, apk.ErrParsing) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pkg)
}

// Submit 异步提交分析任务
// POST /api/v1/tasks
func (h *AnalyzeHandler) Submit(c *gin.Context) {
	name, data, ok := h.readUpload(c)
	if !ok {
		return
	}

	id, err := h.pool.Submit(worker.Task{FileName: name, Data: data})
	if err != nil {
		if errors.Is(err, worker.ErrQueueFull) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id})
}

func (h *AnalyzeHandler) readUpload(c *gin.Context) (string, []byte, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return "", nil, false
	}
	defer file.Close()

	if header.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return "", nil, false
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		h.logger.WithError(err).Error("Failed to read uploaded file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return "", nil, false
	}
	return header.Filename, data, true
}
