package history

import (
	"context"

	"go.uber.org/zap"
)

// Recorder 写入升级历史，写入失败只记录警告
type Recorder struct {
	repo   Repository
	logger *zap.Logger
}

// NewRecorder 创建历史记录器
func NewRecorder(repo Repository, logger *zap.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record 写入一条记录
func (r *Recorder) Record(ctx context.Context, record *UpgradeRecord) {
	if err := r.repo.Create(ctx, record); err != nil {
		r.logger.Warn("failed to record upgrade history",
			zap.String("instance", record.Instance),
			zap.String("status", record.Status),
			zap.Error(err))
	}
}
