package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/control"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/instance"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/method"
	"github.com/bingooyong/ops-scaffold-framework/serverup/pkg/types"
)

// InitBinary 初始化数据目录的可执行文件名
const InitBinary = "initdb"

// ErrInstanceExists 实例已存在
var ErrInstanceExists = errors.New("instance already exists")

// Options 初始化参数
type Options struct {
	Name      string
	System    bool
	Nightly   bool
	Version   types.Version // 主版本号
	Method    method.InstallMethod
	Port      int // 为0时自动分配
	StartConf instance.StartConf

	// InhibitUserCreation 不创建默认数据库，升级时由恢复过程创建
	InhibitUserCreation bool
	// InhibitStart 初始化后不启动
	InhibitStart bool
	// UpgradeMarker 升级标记，非空时写入数据目录
	UpgradeMarker json.RawMessage
	// Overwrite 数据目录已存在时覆盖
	Overwrite bool

	DefaultUser     string
	DefaultDatabase string
}

// Initializer 实例初始化接口
type Initializer interface {
	Init(ctx context.Context, opts *Options) error
}

// BinResolver 解析实例使用的二进制目录
type BinResolver interface {
	BinDir(meta *instance.Metadata) (string, error)
}

// DatabaseCreator 创建数据库
type DatabaseCreator interface {
	EnsureDatabase(ctx context.Context, socketPath, name string) error
}

// ServerInitializer 通过initdb初始化实例
type ServerInitializer struct {
	discovery *instance.Discovery
	bins      BinResolver
	controls  control.Factory
	db        DatabaseCreator
	runner    method.Runner
	portBase  int
	logger    *zap.Logger
}

// NewServerInitializer 创建初始化器
func NewServerInitializer(
	discovery *instance.Discovery,
	bins BinResolver,
	controls control.Factory,
	db DatabaseCreator,
	runner method.Runner,
	portBase int,
	logger *zap.Logger,
) *ServerInitializer {
	if portBase == 0 {
		portBase = 5433
	}
	return &ServerInitializer{
		discovery: discovery,
		bins:      bins,
		controls:  controls,
		db:        db,
		runner:    runner,
		portBase:  portBase,
		logger:    logger,
	}
}

// Init 初始化实例
func (s *ServerInitializer) Init(ctx context.Context, opts *Options) error {
	if !instance.ValidName(opts.Name) {
		return fmt.Errorf("invalid instance name %q: must match [A-Za-z_][A-Za-z0-9_]*", opts.Name)
	}
	if opts.Version.IsEmpty() {
		return fmt.Errorf("version is required")
	}
	startConf := opts.StartConf
	if startConf == "" {
		startConf = instance.StartAuto
	}
	if !startConf.Valid() {
		return fmt.Errorf("invalid start configuration %q", startConf)
	}

	dataDir := s.discovery.Layout().DataDir(opts.Name)
	if _, err := os.Stat(dataDir); err == nil {
		if !opts.Overwrite {
			return fmt.Errorf("%w: %s", ErrInstanceExists, opts.Name)
		}
		s.logger.Warn("overwriting existing data directory", zap.String("path", dataDir))
		if err := os.RemoveAll(dataDir); err != nil {
			return fmt.Errorf("failed to remove data directory: %w", err)
		}
	}

	port := opts.Port
	if port == 0 {
		var err error
		if port, err = s.allocatePort(); err != nil {
			return err
		}
	}

	meta := &instance.Metadata{
		Method:    opts.Method,
		Version:   opts.Version,
		Nightly:   opts.Nightly,
		Port:      port,
		StartConf: startConf,
	}
	binDir, err := s.bins.BinDir(meta)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dataDir), 0755); err != nil {
		return fmt.Errorf("failed to create instances directory: %w", err)
	}

	argv := []string{
		filepath.Join(binDir, InitBinary),
		"-D", dataDir,
		"-U", opts.DefaultUser,
		"--auth=trust",
		"-E", "UTF8",
	}
	s.logger.Info("initializing data directory",
		zap.String("instance", opts.Name),
		zap.String("version", opts.Version.String()),
		zap.String("path", dataDir))
	if _, err := s.runner.Run(ctx, argv, nil); err != nil {
		os.RemoveAll(dataDir)
		return fmt.Errorf("failed to initialize data directory: %w", err)
	}

	if err := instance.WriteMetadata(dataDir, meta); err != nil {
		return err
	}
	if len(opts.UpgradeMarker) > 0 {
		if err := instance.WriteUpgradeMarker(dataDir, opts.UpgradeMarker); err != nil {
			return err
		}
	}

	inst := &instance.Instance{Name: opts.Name, Meta: *meta, System: opts.System, DataDir: dataDir}
	ctl, err := s.controls.For(inst)
	if err != nil {
		return err
	}

	switch {
	case !opts.InhibitStart:
		if err := ctl.Start(ctx); err != nil {
			return err
		}
		if !opts.InhibitUserCreation {
			if err := s.createDefaultDatabase(ctx, ctl, opts); err != nil {
				return err
			}
		}
	case !opts.InhibitUserCreation:
		guard, err := ctl.RunGuarded(ctx)
		if err != nil {
			return err
		}
		defer guard.Close()
		if err := s.createDefaultDatabase(ctx, ctl, opts); err != nil {
			return err
		}
	}

	s.logger.Info("instance initialized",
		zap.String("instance", opts.Name),
		zap.Int("port", port),
		zap.Bool("started", !opts.InhibitStart))
	return nil
}

func (s *ServerInitializer) createDefaultDatabase(ctx context.Context, ctl control.Instance, opts *Options) error {
	if opts.DefaultDatabase == "" {
		return nil
	}
	if err := s.db.EnsureDatabase(ctx, ctl.SocketPath(), opts.DefaultDatabase); err != nil {
		return fmt.Errorf("failed to create database %q: %w", opts.DefaultDatabase, err)
	}
	return nil
}

// allocatePort 分配未被其他实例使用的最小端口
func (s *ServerInitializer) allocatePort() (int, error) {
	instances, err := s.discovery.List()
	if err != nil {
		return 0, err
	}
	used := make(map[int]bool, len(instances))
	for _, inst := range instances {
		used[inst.Meta.Port] = true
	}
	for port := s.portBase; port <= 65535; port++ {
		if !used[port] {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free port available")
}

// ResolveVersion 返回最新的匹配查询的已安装主版本
// 稳定版查询中的版本号可以是完整版本或主版本
func ResolveVersion(ctx context.Context, m method.Method, query method.VersionQuery) (types.Version, error) {
	records, err := m.InstalledVersions(ctx)
	if err != nil {
		return "", err
	}
	record, ok := method.NewestInstalled(records, query.MatchesMajor)
	if !ok {
		return "", fmt.Errorf("no installed version matching %s via %s, run `serverup install` first", query, m.Name())
	}
	return record.MajorVersion, nil
}
