package domain

import (
	"time"
)

// 报告状态
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// AnalysisReport 一次 APK 静态分析的持久化记录
type AnalysisReport struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	FileName    string    `gorm:"size:255;index" json:"file_name"`
	FileSize    int64     `json:"file_size"`
	MD5         string    `gorm:"size:32;uniqueIndex" json:"md5"`
	SHA256      string    `gorm:"size:64" json:"sha256"`
	PackageName string    `gorm:"size:255;index" json:"package_name"`
	VersionName string    `gorm:"size:64" json:"version_name"`
	Status      string    `gorm:"size:16;index" json:"status"`
	Report      string    `gorm:"type:longtext" json:"report,omitempty"`
	Error       string    `gorm:"size:1024" json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (AnalysisReport) TableName() string {
	return "analysis_reports"
}
