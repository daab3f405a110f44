package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/apk-inspect/apk-inspect-go/internal/apk"
	"github.com/apk-inspect/apk-inspect-go/internal/domain"
	"github.com/apk-inspect/apk-inspect-go/internal/repository"
	"github.com/apk-inspect/apk-inspect-go/internal/worker"
)

func setupRouter(t *testing.T) (*httptest.Server, repository.ReportRepository) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.AnalysisReport{}))
	repo := repository.NewReportRepository(db)

	analyzer := apk.NewAnalyzer(logger)
	pool := worker.NewPool(logger, analyzer, repo, apk.Options{StringProcessing: true}, 10)
	pool.Start(context.Background(), 1)
	t.Cleanup(pool.Stop)

	server := httptest.NewServer(NewRouter(logger, analyzer, pool, repo, "test"))
	t.Cleanup(server.Close)
	return server, repo
}

func uploadRequest(t *testing.T, url string, fileName string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// TestHealthz 测试健康检查
func TestHealthz(t *testing.T) {
	server, _ := setupRouter(t)
	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestAnalyzeRejectsNonArchive 测试非 ZIP 内容返回 422
func TestAnalyzeRejectsNonArchive(t *testing.T) {
	server, _ := setupRouter(t)
	req := uploadRequest(t, server.URL+"/api/v1/analyze", "bad.apk", []byte("not a zip"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

// TestAnalyzeRejectsEmptyFile 测试空文件返回 400
func TestAnalyzeRejectsEmptyFile(t *testing.T) {
	server, _ := setupRouter(t)
	req := uploadRequest(t, server.URL+"/api/v1/analyze", "empty.apk", nil)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestAnalyzeMissingFileField 测试缺少 file 字段返回 400
func TestAnalyzeMissingFileField(t *testing.T) {
	server, _ := setupRouter(t)
	resp, err := http.Post(server.URL+"/api/v1/analyze", "application/json", bytes.NewBufferString("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestSubmitTask 测试异步提交返回 202 与任务 ID
func TestSubmitTask(t *testing.T) {
	server, _ := setupRouter(t)
	req := uploadRequest(t, server.URL+"/api/v1/tasks", "bad.apk", []byte("not a zip"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

// TestReportNotFound 测试不存在的报告返回 404
func TestReportNotFound(t *testing.T) {
	server, _ := setupRouter(t)
	resp, err := http.Get(server.URL + "/api/v1/reports/no-such-id")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestReportList 测试分页列表
func TestReportList(t *testing.T) {
	server, repo := setupRouter(t)
	require.NoError(t, repo.Create(&domain.AnalysisReport{
		ID:     "report-1",
		MD5:    "abc",
		Status: domain.StatusCompleted,
	}))

	resp, err := http.Get(server.URL + "/api/v1/reports?page=1&size=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
