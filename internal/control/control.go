package control

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/config"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/instance"
)

// ServerBinary 服务器可执行文件名
const ServerBinary = "postgres"

// Instance 实例进程控制接口
type Instance interface {
	// Name 实例名
	Name() string

	// Start 确保实例在运行，已运行时直接返回
	Start(ctx context.Context) error

	// Stop 停止实例，未运行时直接返回
	Stop(ctx context.Context) error

	// IsRunning 实例是否在运行
	IsRunning(ctx context.Context) bool

	// SocketPath 实例的unix socket路径
	SocketPath() string

	// RunGuarded 在前台直接运行服务器，返回的Guard关闭时终止进程
	RunGuarded(ctx context.Context) (Guard, error)
}

// Guard 作用域内运行的服务器进程
type Guard interface {
	Close() error
}

// Factory 创建实例进程控制器
type Factory interface {
	For(inst *instance.Instance) (Instance, error)
}

// Options 进程控制配置
type Options struct {
	RunDir       string
	StartTimeout time.Duration
	StopTimeout  time.Duration
}

// ProcessFactory 基于pid文件和进程组管理服务器进程
type ProcessFactory struct {
	methods config.MethodsConfig
	opts    Options
	logger  *zap.Logger

	// children 本进程启动的服务器，用于回收子进程
	mu       sync.Mutex
	children map[int]*child
}

// NewProcessFactory 创建进程控制器工厂
func NewProcessFactory(methods config.MethodsConfig, opts Options, logger *zap.Logger) *ProcessFactory {
	if opts.StartTimeout == 0 {
		opts.StartTimeout = 30 * time.Second
	}
	if opts.StopTimeout == 0 {
		opts.StopTimeout = 30 * time.Second
	}
	return &ProcessFactory{
		methods:  methods,
		opts:     opts,
		logger:   logger,
		children: make(map[int]*child),
	}
}

// For 创建实例的进程控制器
func (f *ProcessFactory) For(inst *instance.Instance) (Instance, error) {
	cfg, ok := f.methods.Find(string(inst.Meta.Method))
	if !ok {
		return nil, fmt.Errorf("unknown installation method %q for instance %q", inst.Meta.Method, inst.Name)
	}
	runDir := filepath.Join(f.opts.RunDir, inst.Name)
	return &Process{
		factory: f,
		name:    inst.Name,
		dataDir: inst.DataDir,
		port:    inst.Meta.Port,
		binDir:  cfg.BinDirFor(inst.Meta.Version.String(), inst.Meta.Nightly),
		runDir:  runDir,
		logger:  f.logger.With(zap.String("instance", inst.Name)),
	}, nil
}

// BinDir 返回实例使用的服务器二进制目录
func (f *ProcessFactory) BinDir(meta *instance.Metadata) (string, error) {
	cfg, ok := f.methods.Find(string(meta.Method))
	if !ok {
		return "", fmt.Errorf("unknown installation method %q", meta.Method)
	}
	return cfg.BinDirFor(meta.Version.String(), meta.Nightly), nil
}

func (f *ProcessFactory) track(c *child) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.children[c.pid] = c
}

func (f *ProcessFactory) lookup(pid int) (*child, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.children[pid]
	return c, ok
}

// SocketPath 返回端口对应的socket文件路径
func SocketPath(socketDir string, port int) string {
	return filepath.Join(socketDir, ".s.PGSQL."+strconv.Itoa(port))
}
