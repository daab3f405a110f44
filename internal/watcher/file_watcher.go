package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/apk-inspect/apk-inspect-go/internal/worker"
)

// 文件写入稳定判定窗口
const settleDelay = 500 * time.Millisecond

// FileWatcher 监控目录, 新出现的 APK 自动提交分析
type FileWatcher struct {
	logger  *logrus.Logger
	pool    *worker.Pool
	dir     string
	pattern string

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewFileWatcher 创建目录监控器
func NewFileWatcher(logger *logrus.Logger, pool *worker.Pool, dir, pattern string) *FileWatcher {
	if pattern == "" {
		pattern = "*.apk"
	}
	return &FileWatcher{
		logger:  logger,
		pool:    pool,
		dir:     dir,
		pattern: pattern,
		pending: make(map[string]*time.Timer),
	}
}

// Start 阻塞运行直到 ctx 取消
func (w *FileWatcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.logger.WithFields(logrus.Fields{
		"dir":     w.dir,
		"pattern": w.pattern,
	}).Info("File watcher started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.handle(event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("File watcher error")
		}
	}
}

// handle 对同一文件的连续写入做去抖, 安静 settleDelay 后才提交
func (w *FileWatcher) handle(path string) {
	if !w.matches(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Reset(settleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.submit(path)
	})
}

func (w *FileWatcher) submit(path string) {
	id, err := w.pool.Submit(worker.Task{Path: path})
	if err != nil {
		w.logger.WithError(err).WithField("path", path).Error("Failed to enqueue APK")
		return
	}
	w.logger.WithFields(logrus.Fields{
		"path":    path,
		"task_id": id,
	}).Info("APK enqueued from watch directory")
}

func (w *FileWatcher) matches(path string) bool {
	ok, err := filepath.Match(w.pattern, strings.ToLower(filepath.Base(path)))
	return err == nil && ok
}
