package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/apk-inspect/apk-inspect-go/internal/domain"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("report not found")

// ReportRepository 分析报告存取接口
type ReportRepository interface {
	Create(report *domain.AnalysisReport) error
	Update(report *domain.AnalysisReport) error
	Upsert(report *domain.AnalysisReport) error
	FindByID(id string) (*domain.AnalysisReport, error)
	FindByMD5(md5 string) (*domain.AnalysisReport, error)
	List(offset, limit int) ([]domain.AnalysisReport, int64, error)
}

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository 创建报告仓库
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Create(report *domain.AnalysisReport) error {
	return r.db.Create(report).Error
}

func (r *reportRepository) Update(report *domain.AnalysisReport) error {
	return r.db.Save(report).Error
}

// Upsert 按 MD5 去重, 同一文件重复提交时覆盖旧报告
func (r *reportRepository) Upsert(report *domain.AnalysisReport) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "md5"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"file_name", "file_size", "sha256", "package_name",
			"version_name", "status", "report", "error", "updated_at",
		}),
	}).Create(report).Error
}

func (r *reportRepository) FindByID(id string) (*domain.AnalysisReport, error) {
	var report domain.AnalysisReport
	err := r.db.Where("id = ?", id).First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *reportRepository) FindByMD5(md5 string) (*domain.AnalysisReport, error) {
	var report domain.AnalysisReport
	err := r.db.Where("md5 = ?", md5).First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *reportRepository) List(offset, limit int) ([]domain.AnalysisReport, int64, error) {
	var reports []domain.AnalysisReport
	var total int64
	if err := r.db.Model(&domain.AnalysisReport{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&reports).Error
	if err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}
