package extractor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/apk-inspect/apk-inspect-go/internal/cert"
	"github.com/apk-inspect/apk-inspect-go/internal/container"
)

// Extractor 将包里值得单独留存的条目解出到磁盘
type Extractor struct {
	logger *logrus.Logger
}

// NewExtractor 创建条目提取器
func NewExtractor(logger *logrus.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract 解出清单、全部 DEX 与签名文件到 outDir, 返回写出的路径
func (e *Extractor) Extract(outDir string, archive *container.Archive) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	var written []string
	for _, entry := range archive.Entries {
		if !wanted(entry.Name) {
			continue
		}
		data, err := archive.ReadEntry(entry.Name)
		if err != nil {
			e.logger.WithError(err).WithField("entry", entry.Name).Warn("Failed to read archive entry")
			continue
		}
		path := filepath.Join(outDir, filepath.Base(entry.Name))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		e.logger.WithFields(logrus.Fields{
			"entry": entry.Name,
			"path":  path,
		}).Info("Extracted archive entry")
		written = append(written, path)
	}
	return written, nil
}

// wanted 判定条目是否值得解出: 清单、DEX、签名文件
func wanted(name string) bool {
	if name == "AndroidManifest.xml" {
		return true
	}
	if strings.HasSuffix(strings.ToLower(name), ".dex") && !strings.Contains(name, "/") {
		return true
	}
	return cert.IsSignatureFile(name)
}
