package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/apk-inspect/apk-inspect-go/internal/apk"
	"github.com/apk-inspect/apk-inspect-go/internal/config"
	"github.com/apk-inspect/apk-inspect-go/internal/container"
	"github.com/apk-inspect/apk-inspect-go/internal/extractor"
	"github.com/apk-inspect/apk-inspect-go/internal/report"
	"github.com/apk-inspect/apk-inspect-go/internal/unpack"
)

var version = "dev"

var (
	flagNoStrings    bool
	flagExtractDir   string
	flagDecompileDir string
	flagOutputDir    string
	flagHTML         bool
	flagVerbose      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "apkinspect TARGET",
		Short:        "Static analyzer for Android application packages",
		Long:         "apkinspect decodes the container, manifest, DEX and signing certificates of an APK and prints a JSON report.",
		Args:         cobra.ExactArgs(1),
		RunE:         runAnalyze,
		SilenceUsage: true,
	}
	rootCmd.Flags().BoolVar(&flagNoStrings, "no-string-processing", false, "skip URL and shell command classification of DEX strings")
	rootCmd.Flags().StringVar(&flagExtractDir, "extract", "", "extract manifest, DEX and signature entries into DIR")
	rootCmd.Flags().StringVar(&flagDecompileDir, "decompile", "", "run apktool and dex2jar against the APK, writing into DIR")
	rootCmd.Flags().StringVarP(&flagOutputDir, "output", "o", "", "write JSON report into DIR instead of stdout")
	rootCmd.Flags().BoolVar(&flagHTML, "html", false, "also write an HTML report (requires --output)")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if flagVerbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	target := args[0]
	data, err := os.ReadFile(target)
	if err != nil {
		return fmt.Errorf("read %s: %w", target, err)
	}

	analyzer := apk.NewAnalyzer(logger)
	pkg, err := analyzer.Analyze(target, data, apk.Options{
		StringProcessing: !flagNoStrings,
	})
	if err != nil {
		return err
	}

	if flagExtractDir != "" {
		archive, aerr := container.Open(data)
		if aerr != nil {
			return aerr
		}
		if _, aerr := extractor.NewExtractor(logger).Extract(flagExtractDir, archive); aerr != nil {
			return aerr
		}
	}

	if flagDecompileDir != "" {
		if derr := decompile(cmd.Context(), logger, target); derr != nil {
			return derr
		}
	}

	if flagOutputDir == "" {
		return report.WriteJSON(os.Stdout, pkg)
	}
	path, err := report.SaveJSON(flagOutputDir, pkg)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "report written to", path)
	if flagHTML {
		path, err = report.SaveHTML(flagOutputDir, pkg)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "report written to", path)
	}
	return nil
}

// decompile 在 PATH 中有对应工具时运行 apktool / dex2jar, 缺失的工具跳过
func decompile(ctx context.Context, logger *logrus.Logger, target string) error {
	runner := unpack.NewRunner(logger, config.ToolsConfig{
		ApktoolPath: "apktool",
		Dex2jarPath: "d2j-dex2jar",
	})
	base := strings.TrimSuffix(filepath.Base(target), filepath.Ext(target))

	if runner.ApktoolAvailable() {
		if err := runner.Apktool(ctx, target, filepath.Join(flagDecompileDir, base)); err != nil {
			return err
		}
	} else {
		logger.Warn("apktool not found in PATH, skipping resource decode")
	}
	if runner.Dex2jarAvailable() {
		if err := runner.Dex2jar(ctx, target, filepath.Join(flagDecompileDir, base+".jar")); err != nil {
			return err
		}
	} else {
		logger.Warn("dex2jar not found in PATH, skipping jar conversion")
	}
	return nil
}
