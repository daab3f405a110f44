package apk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apk-inspect/apk-inspect-go/internal/axml"
	"github.com/apk-inspect/apk-inspect-go/internal/cert"
	"github.com/apk-inspect/apk-inspect-go/internal/container"
	"github.com/apk-inspect/apk-inspect-go/internal/dex"
	"github.com/apk-inspect/apk-inspect-go/internal/hashutil"
	"github.com/apk-inspect/apk-inspect-go/internal/signatures"
)

// 顶层错误：区分"不可读文件"与"可读但不是合法包容器"
var (
	ErrParsing    = errors.New("apk: target must be an existing, readable, non-empty file")
	ErrAPKParsing = errors.New("apk: target must be an APK package")
)

// 包内的固定条目名
const (
	manifestEntryName = "AndroidManifest.xml"
	dexEntryName      = "classes.dex"
)

// Options 分析选项
type Options struct {
	// StringProcessing 关闭时不扫描 DEX 字符串表（成本开关）
	StringProcessing bool
}

// DexReport classes.dex 的摘要与其解压字节的摘要
type DexReport struct {
	dex.Summary
	hashutil.Digests
}

// Package 一次分析的完整结构化结果。构建完成后不可变，
// 所有嵌套实体由 Package 独占持有。
type Package struct {
	FileName string `json:"file_name"`
	Size     int    `json:"size"`
	MD5      string `json:"md5"`
	SHA1     string `json:"sha1"`
	SHA256   string `json:"sha256"`
	SHA512   string `json:"sha512"`

	Manifest      *axml.Manifest     `json:"manifest,omitempty"`
	ManifestError string             `json:"manifest_error,omitempty"`
	Dex           *DexReport         `json:"dex,omitempty"`
	DexError      string             `json:"dex_error,omitempty"`
	Certificates  []cert.Certificate `json:"cert"`
	Entries       []container.Entry  `json:"entries"`

	URLs          []string `json:"urls,omitempty"`
	ShellCommands []string `json:"shell_commands,omitempty"`
}

// Analyzer APK 静态分析聚合器
type Analyzer struct {
	logger     *logrus.Logger
	classifier *signatures.Classifier
}

// NewAnalyzer 创建分析聚合器
func NewAnalyzer(logger *logrus.Logger) *Analyzer {
	return &Analyzer{
		logger:     logger,
		classifier: signatures.NewClassifier(logger),
	}
}

// Analyze 解码一个 APK 字节缓冲区为结构化结果。
// 容器解析失败对整次解码是致命的；manifest / dex / 证书单项失败
// 只清空对应字段并记录子错误，尽量返回部分结果。
// 三个子解码器各自消费独立条目的字节，在独立 goroutine 上并行执行。
func (a *Analyzer) Analyze(filename string, data []byte, opts Options) (*Package, error) {
	startTime := time.Now()

	if len(data) == 0 {
		return nil, ErrParsing
	}

	a.logger.WithFields(logrus.Fields{
		"file_name": filename,
		"size":      len(data),
	}).Info("Starting APK analysis")

	archive, err := container.Open(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAPKParsing, err)
	}

	pkg := &Package{
		FileName:     filename,
		Size:         len(data),
		Entries:      archive.Entries,
		Certificates: []cert.Certificate{},
	}

	// 整包摘要与三个子解码器并行，结果在聚合前 join
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		digests := hashutil.DigestAll(data)
		pkg.MD5 = digests.MD5
		pkg.SHA1 = digests.SHA1
		pkg.SHA256 = digests.SHA256
		pkg.SHA512 = digests.SHA512
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		pkg.Manifest, pkg.ManifestError = a.decodeManifest(archive)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		pkg.Dex, pkg.DexError = a.decodeDex(archive)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		pkg.Certificates = cert.Extract(archive, a.logger)
	}()

	wg.Wait()

	// 字符串分类严格依赖 DEX 解码结果，顺序在其之后
	if pkg.Dex != nil {
		classified := a.classifier.Classify(pkg.Dex.Strings, opts.StringProcessing)
		if opts.StringProcessing {
			pkg.URLs = classified.URLs
			pkg.ShellCommands = classified.ShellCommands
		}
	}

	a.logger.WithFields(logrus.Fields{
		"file_name":    filename,
		"package_name": pkg.PackageName(),
		"certs":        len(pkg.Certificates),
		"duration_ms":  time.Since(startTime).Milliseconds(),
	}).Info("APK analysis completed")

	return pkg, nil
}

// decodeManifest 解码 AndroidManifest.xml 条目（若存在）
func (a *Analyzer) decodeManifest(archive *container.Archive) (*axml.Manifest, string) {
	raw, err := archive.ReadEntry(manifestEntryName)
	if err != nil {
		a.logger.WithError(err).Warn("AndroidManifest.xml not readable")
		return nil, err.Error()
	}
	manifest, err := axml.Decode(raw)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to decode binary manifest")
		return nil, err.Error()
	}
	return manifest, ""
}

// decodeDex 解码 classes.dex 条目（若存在）并计算其摘要
func (a *Analyzer) decodeDex(archive *container.Archive) (*DexReport, string) {
	raw, err := archive.ReadEntry(dexEntryName)
	if err != nil {
		a.logger.WithError(err).Warn("classes.dex not readable")
		return nil, err.Error()
	}
	summary, err := dex.Decode(raw)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to decode dex")
		return nil, err.Error()
	}
	if !summary.SizeMatches() {
		a.logger.WithFields(logrus.Fields{
			"declared": summary.DeclaredFileSize,
			"actual":   summary.ActualFileSize,
		}).Warn("Dex declared file size does not match entry length")
	}
	return &DexReport{Summary: *summary, Digests: hashutil.DigestAll(raw)}, ""
}

// PackageName manifest 中的包标识，无 manifest 时为空
func (p *Package) PackageName() string {
	if p.Manifest == nil {
		return ""
	}
	return p.Manifest.PackageName
}
