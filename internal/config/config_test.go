package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadDefaults 测试缺失配置文件时使用默认值
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.True(t, cfg.Analysis.StringProcessing)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, "*.apk", cfg.Watcher.Pattern)
	assert.Equal(t, "info", cfg.Log.Level)
}

// TestLoadFromFile 测试配置文件覆盖默认值
func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
  mode: debug
database:
  type: mysql
  host: db.internal
  port: 3306
  user: inspect
  password: secret
  dbname: reports
analysis:
  string_processing: false
worker:
  concurrency: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.False(t, cfg.Analysis.StringProcessing)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, "inspect:secret@tcp(db.internal:3306)/reports?charset=utf8mb4&parseTime=True&loc=Local", cfg.Database.DSN())
}

// TestNewLoggerLevel 测试日志级别解析, 非法级别回落到 info
func TestNewLoggerLevel(t *testing.T) {
	logger := NewLogger(LogConfig{Level: "debug", Format: "json"})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger = NewLogger(LogConfig{Level: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
