package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/apk-inspect/apk-inspect-go/internal/apk"
	"github.com/apk-inspect/apk-inspect-go/internal/domain"
	"github.com/apk-inspect/apk-inspect-go/internal/middleware"
	"github.com/apk-inspect/apk-inspect-go/internal/repository"
	"github.com/apk-inspect/apk-inspect-go/internal/retry"
)

// ErrQueueFull 任务队列已满
var ErrQueueFull = errors.New("analysis queue is full")

// Task 一次待分析的 APK
type Task struct {
	ID       string
	FileName string
	Path     string // 从磁盘读取; Data 非空时忽略
	Data     []byte
}

// Pool 分析工作池, 消费任务队列并持久化报告
type Pool struct {
	logger   *logrus.Logger
	analyzer *apk.Analyzer
	repo     repository.ReportRepository
	opts     apk.Options

	tasks   chan Task
	wg      sync.WaitGroup
	stopped chan struct{}
}

// NewPool 创建工作池
func NewPool(logger *logrus.Logger, analyzer *apk.Analyzer, repo repository.ReportRepository, opts apk.Options, queueSize int) *Pool {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pool{
		logger:   logger,
		analyzer: analyzer,
		repo:     repo,
		opts:     opts,
		tasks:    make(chan Task, queueSize),
		stopped:  make(chan struct{}),
	}
}

// Start 启动 concurrency 个工作协程
func (p *Pool) Start(ctx context.Context, concurrency int) {
	if concurrency <= 0 {
		concurrency = 4
	}
	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.WithField("concurrency", concurrency).Info("Analysis worker pool started")
}

// Submit 提交任务, 队列满时立即返回错误
func (p *Pool) Submit(task Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.FileName == "" {
		task.FileName = filepath.Base(task.Path)
	}
	select {
	case <-p.stopped:
		return "", errors.New("worker pool is stopped")
	default:
	}
	select {
	case p.tasks <- task:
		middleware.QueueDepth.Inc()
		return task.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Stop 停止接收新任务并等待在途任务完成
func (p *Pool) Stop() {
	close(p.stopped)
	close(p.tasks)
	p.wg.Wait()
	p.logger.Info("Analysis worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	p.logger.WithField("worker", id).Debug("Worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			middleware.QueueDepth.Dec()
			p.process(task)
		}
	}
}

func (p *Pool) process(task Task) {
	log := p.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"file_name": task.FileName,
	})

	data := task.Data
	if data == nil {
		var err error
		data, err = os.ReadFile(task.Path)
		if err != nil {
			log.WithError(err).Error("Failed to read APK file")
			p.persist(&domain.AnalysisReport{
				ID:       task.ID,
				FileName: task.FileName,
				MD5:      task.ID, // 无法计算文件哈希时以任务 ID 占位去重键
				Status:   domain.StatusFailed,
				Error:    err.Error(),
			}, log)
			middleware.ObserveAnalysis(domain.StatusFailed, 0)
			return
		}
	}

	start := time.Now()
	pkg, err := p.analyzer.Analyze(task.FileName, data, p.opts)
	elapsed := time.Since(start)

	report := &domain.AnalysisReport{
		ID:       task.ID,
		FileName: task.FileName,
		FileSize: int64(len(data)),
	}
	if err != nil {
		report.Status = domain.StatusFailed
		report.Error = err.Error()
		log.WithError(err).Warn("APK analysis failed")
	} else {
		report.Status = domain.StatusCompleted
		report.MD5 = pkg.MD5
		report.SHA256 = pkg.SHA256
		report.PackageName = pkg.PackageName()
		if pkg.Manifest != nil {
			report.VersionName = pkg.Manifest.VersionName
		}
		if body, merr := json.Marshal(pkg); merr == nil {
			report.Report = string(body)
		}
		log.WithFields(logrus.Fields{
			"package_name": report.PackageName,
			"elapsed":      elapsed.String(),
		}).Info("APK analysis completed")
	}
	if report.MD5 == "" {
		report.MD5 = task.ID
	}

	p.persist(report, log)
	middleware.ObserveAnalysis(report.Status, elapsed)
}

func (p *Pool) persist(report *domain.AnalysisReport, log *logrus.Entry) {
	err := retry.Do(3, 200*time.Millisecond, func() error {
		return p.repo.Upsert(report)
	})
	if err != nil {
		log.WithError(err).Error("Failed to persist analysis report")
	}
}
