package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apk-inspect/apk-inspect-go/internal/apk"
	"github.com/apk-inspect/apk-inspect-go/internal/domain"
	"github.com/apk-inspect/apk-inspect-go/internal/repository"
)

type memoryRepo struct {
	mu      sync.Mutex
	reports map[string]*domain.AnalysisReport
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{reports: make(map[string]*domain.AnalysisReport)}
}

func (m *memoryRepo) Create(r *domain.AnalysisReport) error { return m.Upsert(r) }
func (m *memoryRepo) Update(r *domain.AnalysisReport) error { return m.Upsert(r) }

func (m *memoryRepo) Upsert(r *domain.AnalysisReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.ID] = r
	return nil
}

func (m *memoryRepo) FindByID(id string) (*domain.AnalysisReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reports[id]; ok {
		return r, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRepo) FindByMD5(md5 string) (*domain.AnalysisReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.MD5 == md5 {
			return r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRepo) List(offset, limit int) ([]domain.AnalysisReport, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AnalysisReport, 0, len(m.reports))
	for _, r := range m.reports {
		out = append(out, *r)
	}
	return out, int64(len(out)), nil
}

func (m *memoryRepo) wait(t *testing.T, id string) *domain.AnalysisReport {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if r, err := m.FindByID(id); err == nil {
			return r
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("report %s never persisted", id)
	return nil
}

func newTestPool(repo repository.ReportRepository, queueSize int) *Pool {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	analyzer := apk.NewAnalyzer(logger)
	return NewPool(logger, analyzer, repo, apk.Options{StringProcessing: true}, queueSize)
}

// TestPoolPersistsFailedAnalysis 测试无效文件走失败分支并落库
func TestPoolPersistsFailedAnalysis(t *testing.T) {
	repo := newMemoryRepo()
	pool := newTestPool(repo, 10)
	pool.Start(context.Background(), 2)

	id, err := pool.Submit(Task{
		FileName: "broken.apk",
		Data:     []byte("this is not a zip archive"),
	})
	require.NoError(t, err)

	report := repo.wait(t, id)
	assert.Equal(t, domain.StatusFailed, report.Status)
	assert.NotEmpty(t, report.Error)
	assert.Equal(t, "broken.apk", report.FileName)

	pool.Stop()
}

// TestPoolQueueFull 测试队列满时立即拒绝
func TestPoolQueueFull(t *testing.T) {
	repo := newMemoryRepo()
	pool := newTestPool(repo, 1)
	// 不启动工作协程, 任务留在队列里

	_, err := pool.Submit(Task{FileName: "a.apk", Data: []byte("x")})
	require.NoError(t, err)

	_, err = pool.Submit(Task{FileName: "b.apk", Data: []byte("y")})
	assert.ErrorIs(t, err, ErrQueueFull)
}

// TestPoolSubmitAfterStop 测试停止后拒绝新任务
func TestPoolSubmitAfterStop(t *testing.T) {
	repo := newMemoryRepo()
	pool := newTestPool(repo, 5)
	pool.Start(context.Background(), 1)
	pool.Stop()

	_, err := pool.Submit(Task{FileName: "late.apk", Data: []byte("z")})
	assert.Error(t, err)
}
