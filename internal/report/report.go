package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apk-inspect/apk-inspect-go/internal/apk"
)

// WriteJSON 将分析结果以缩进 JSON 写入 w
func WriteJSON(w io.Writer, pkg *apk.Package) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	return enc.Encode(pkg)
}

// SaveJSON 将分析结果保存为 <out>/<报告名>.json
func SaveJSON(outDir string, pkg *apk.Package) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(outDir, baseName(pkg.FileName)+".json")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := WriteJSON(f, pkg); err != nil {
		return "", err
	}
	return path, nil
}

// SaveHTML 将分析结果渲染为 <out>/<报告名>.html
func SaveHTML(outDir string, pkg *apk.Package) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(outDir, baseName(pkg.FileName)+".html")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := WriteHTML(f, pkg); err != nil {
		return "", err
	}
	return path, nil
}

func baseName(fileName string) string {
	base := filepath.Base(fileName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
