package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/apk-inspect/apk-inspect-go/internal/repository"
)

// ReportHandler 分析报告查询
type ReportHandler struct {
	logger *logrus.Logger
	repo   repository.ReportRepository
}

// NewReportHandler 创建报告查询处理器
func NewReportHandler(logger *logrus.Logger, repo repository.ReportRepository) *ReportHandler {
	return &ReportHandler{logger: logger, repo: repo}
}

// Get 按任务 ID 查询报告
// GET /api/v1/reports/:id
func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.repo.FindByID(c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to query report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// List 分页列出报告
// GET /api/v1/reports?page=1&size=20
func (h *ReportHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	reports, total, err := h.repo.List((page-1)*size, size)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list reports")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":   total,
		"page":    page,
		"size":    size,
		"reports": reports,
	})
}
