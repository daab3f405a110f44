package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Log      LogConfig      `mapstructure:"log"`
	APKDir   string         `mapstructure:"apk_dir"`
	OutDir   string         `mapstructure:"out_dir"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Path     string `mapstructure:"path"`
}

// AnalysisConfig 分析行为配置
type AnalysisConfig struct {
	StringProcessing bool `mapstructure:"string_processing"`
	ExtractEntries   bool `mapstructure:"extract_entries"`
}

// WatcherConfig 目录监控配置
type WatcherConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	WatchDir string `mapstructure:"watch_dir"`
	Pattern  string `mapstructure:"pattern"`
}

// WorkerConfig 分析工作池配置
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	QueueSize   int `mapstructure:"queue_size"`
}

// ToolsConfig 外部工具配置
type ToolsConfig struct {
	ApktoolPath string `mapstructure:"apktool_path"`
	Dex2jarPath string `mapstructure:"dex2jar_path"`
	Timeout     int    `mapstructure:"timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load 加载配置文件, 环境变量优先于文件
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.BindEnv("database.host", "MYSQL_HOST")
	v.BindEnv("database.port", "MYSQL_PORT")
	v.BindEnv("database.user", "MYSQL_USER")
	v.BindEnv("database.password", "MYSQL_PASSWORD")
	v.BindEnv("database.dbname", "MYSQL_DBNAME")
	v.BindEnv("server.port", "SERVER_PORT")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./data/reports.db")
	v.SetDefault("analysis.string_processing", true)
	v.SetDefault("analysis.extract_entries", false)
	v.SetDefault("watcher.enabled", false)
	v.SetDefault("watcher.pattern", "*.apk")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queue_size", 100)
	v.SetDefault("tools.apktool_path", "apktool")
	v.SetDefault("tools.dex2jar_path", "d2j-dex2jar")
	v.SetDefault("tools.timeout", 120)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("apk_dir", "./apks")
	v.SetDefault("out_dir", "./output")

	// 配置文件缺失时仅用默认值与环境变量
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// DSN 返回 MySQL 连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}
