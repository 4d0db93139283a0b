package history

import (
	"context"

	"gorm.io/gorm"
)

// Repository 升级历史数据访问接口
type Repository interface {
	// Create 创建记录
	Create(ctx context.Context, record *UpgradeRecord) error
	// List 按时间倒序获取记录，instance为空时不过滤，limit<=0时不限制
	List(ctx context.Context, instance string, limit int) ([]*UpgradeRecord, error)
	// ListByRun 获取一次运行的全部记录
	ListByRun(ctx context.Context, runID string) ([]*UpgradeRecord, error)
	// LatestUpgraded 获取实例最近一次成功升级的记录
	LatestUpgraded(ctx context.Context, instance string) (*UpgradeRecord, error)
}

// repository 升级历史数据访问实现
type repository struct {
	db *gorm.DB
}

// NewRepository 创建升级历史数据访问实例
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Create 创建记录
func (r *repository) Create(ctx context.Context, record *UpgradeRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// List 按时间倒序获取记录
func (r *repository) List(ctx context.Context, instance string, limit int) ([]*UpgradeRecord, error) {
	var records []*UpgradeRecord
	query := r.db.WithContext(ctx).Model(&UpgradeRecord{})
	if instance != "" {
		query = query.Where("instance = ?", instance)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("started_at DESC, id DESC").Find(&records).Error
	return records, err
}

// ListByRun 获取一次运行的全部记录
func (r *repository) ListByRun(ctx context.Context, runID string) ([]*UpgradeRecord, error) {
	var records []*UpgradeRecord
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&records).Error
	return records, err
}

// LatestUpgraded 获取实例最近一次成功升级的记录
func (r *repository) LatestUpgraded(ctx context.Context, instance string) (*UpgradeRecord, error) {
	var record UpgradeRecord
	err := r.db.WithContext(ctx).
		Where("instance = ? AND status = ?", instance, StatusUpgraded).
		Order("started_at DESC, id DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}
