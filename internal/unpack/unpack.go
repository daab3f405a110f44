package unpack

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apk-inspect/apk-inspect-go/internal/config"
)

// Runner 调用外部反编译工具 (apktool / dex2jar)
type Runner struct {
	logger      *logrus.Logger
	apktoolPath string
	dex2jarPath string
	timeout     time.Duration
}

// NewRunner 创建外部工具执行器
func NewRunner(logger *logrus.Logger, cfg config.ToolsConfig) *Runner {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Runner{
		logger:      logger,
		apktoolPath: cfg.ApktoolPath,
		dex2jarPath: cfg.Dex2jarPath,
		timeout:     timeout,
	}
}

// ApktoolAvailable 探测 apktool 是否在 PATH 中
func (r *Runner) ApktoolAvailable() bool {
	_, err := exec.LookPath(r.apktoolPath)
	return err == nil
}

// Dex2jarAvailable 探测 dex2jar 是否在 PATH 中
func (r *Runner) Dex2jarAvailable() bool {
	_, err := exec.LookPath(r.dex2jarPath)
	return err == nil
}

// Apktool 反编译 APK 资源到 outDir
func (r *Runner) Apktool(ctx context.Context, apkPath, outDir string) error {
	return r.run(ctx, r.apktoolPath, "d", "-f", apkPath, "-o", outDir)
}

// Dex2jar 将 APK 中的 DEX 转换为 JAR
func (r *Runner) Dex2jar(ctx context.Context, apkPath, outJar string) error {
	return r.run(ctx, r.dex2jarPath, "-f", apkPath, "-o", outJar)
}

func (r *Runner) run(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s timed out after %s", name, r.timeout)
	}
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"tool":   name,
			"output": string(output),
		}).Error("External tool failed")
		return fmt.Errorf("%s: %w", name, err)
	}
	r.logger.WithField("tool", name).Info("External tool finished")
	return nil
}
