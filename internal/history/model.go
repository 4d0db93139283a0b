package history

import (
	"time"
)

// 升级结果
const (
	StatusUpgraded = "upgraded"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

// UpgradeRecord 升级历史记录，每次运行中每个实例一条
type UpgradeRecord struct {
	ID        uint      `gorm:"primarykey" json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	RunID    string `gorm:"size:36;not null;index" json:"run_id" yaml:"run_id"`
	Instance string `gorm:"size:64;not null;index" json:"instance" yaml:"instance"`
	Method   string `gorm:"size:32;not null" json:"method" yaml:"method"`
	Plan     string `gorm:"size:16;not null" json:"plan" yaml:"plan"` // minor, nightly, instance

	Source string `gorm:"size:64" json:"source" yaml:"source"`
	Target string `gorm:"size:64" json:"target" yaml:"target"`

	Status     string `gorm:"size:16;not null;index" json:"status" yaml:"status"`
	Error      string `gorm:"type:text" json:"error,omitempty" yaml:"error,omitempty"`
	BackupPath string `gorm:"size:500" json:"backup_path,omitempty" yaml:"backup_path,omitempty"`

	StartedAt  time.Time `gorm:"not null" json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// TableName 指定表名
func (UpgradeRecord) TableName() string {
	return "upgrade_records"
}

// Duration 升级耗时
func (r *UpgradeRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
