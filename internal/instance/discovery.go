package instance

import (
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
)

// Discovery 扫描实例目录
type Discovery struct {
	layout Layout
	logger *zap.Logger
}

// NewDiscovery 创建实例扫描器
func NewDiscovery(layout Layout, logger *zap.Logger) *Discovery {
	return &Discovery{layout: layout, logger: logger}
}

// Layout 返回目录布局
func (d *Discovery) Layout() Layout {
	return d.layout
}

// List 列出所有实例
// 根目录不存在时返回空列表；单个实例元数据损坏时记录警告并跳过
func (d *Discovery) List() ([]*Instance, error) {
	entries, err := os.ReadDir(d.layout.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Instance{}, nil
		}
		return nil, fmt.Errorf("failed to read instances directory: %w", err)
	}

	result := make([]*Instance, 0, len(entries))
	for _, entry := range entries {
		// 跳过文件以及<name>.backup、<name>.dump等非实例目录
		if !entry.IsDir() || !ValidName(entry.Name()) {
			continue
		}

		inst, err := d.load(entry.Name())
		if err != nil {
			d.logger.Warn("skipping instance with invalid metadata",
				zap.String("instance", entry.Name()),
				zap.Error(err))
			continue
		}
		result = append(result, inst)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Get 按名称读取单个实例
func (d *Discovery) Get(name string) (*Instance, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("invalid instance name %q", name)
	}
	return d.load(name)
}

func (d *Discovery) load(name string) (*Instance, error) {
	dataDir := d.layout.DataDir(name)
	meta, err := ReadMetadata(dataDir)
	if err != nil {
		return nil, err
	}
	return &Instance{
		Name:    name,
		Meta:    *meta,
		DataDir: dataDir,
	}, nil
}
