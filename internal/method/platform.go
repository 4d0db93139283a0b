package method

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/config"
)

// Platform 当前平台可用的安装方式
type Platform interface {
	// AvailableMethods 检测当前平台支持的安装方式
	AvailableMethods(ctx context.Context) (*Available, error)

	// MakeMethod 创建安装方式实例
	MakeMethod(name InstallMethod, avail *Available) (Method, error)
}

// MethodStatus 单个安装方式的检测结果
type MethodStatus struct {
	Name      InstallMethod
	Title     string
	Supported bool
	Reason    string // 不支持的原因
}

// Available 安装方式检测结果，保持配置中的顺序
type Available struct {
	platform Platform
	statuses []MethodStatus
}

// NewAvailable 创建检测结果
func NewAvailable(platform Platform, statuses []MethodStatus) *Available {
	return &Available{platform: platform, statuses: statuses}
}

// Statuses 返回全部检测结果
func (a *Available) Statuses() []MethodStatus {
	return a.statuses
}

// IsSupported 安装方式是否可用
func (a *Available) IsSupported(name InstallMethod) bool {
	for _, s := range a.statuses {
		if s.Name == name {
			return s.Supported
		}
	}
	return false
}

// Title 返回安装方式的显示名称
func (a *Available) Title(name InstallMethod) string {
	for _, s := range a.statuses {
		if s.Name == name && s.Title != "" {
			return s.Title
		}
	}
	return name.Title()
}

// Supported 返回所有可用的安装方式
func (a *Available) Supported() []InstallMethod {
	var result []InstallMethod
	for _, s := range a.statuses {
		if s.Supported {
			result = append(result, s.Name)
		}
	}
	return result
}

// FormatError 描述没有可用安装方式时的错误信息
func (a *Available) FormatError() string {
	var b strings.Builder
	b.WriteString("the default installation method is not supported on this platform\n")
	for _, s := range a.statuses {
		if s.Supported {
			fmt.Fprintf(&b, "  * %s: supported, use %s\n", a.Title(s.Name), s.Name.Option())
		} else {
			fmt.Fprintf(&b, "  * %s: %s\n", a.Title(s.Name), s.Reason)
		}
	}
	if len(a.Supported()) == 0 {
		b.WriteString("no installation method is available on this platform")
	} else {
		b.WriteString("choose one with --method or run with --interactive")
	}
	return strings.TrimRight(b.String(), "\n")
}

// InstantiateAll 创建所有可用安装方式的实例
func (a *Available) InstantiateAll() ([]Method, error) {
	var methods []Method
	for _, name := range a.Supported() {
		m, err := a.platform.MakeMethod(name, a)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, nil
}

// CommandPlatform 基于配置声明的外部命令实现的平台
type CommandPlatform struct {
	methods  config.MethodsConfig
	runner   Runner
	logger   *zap.Logger
	lookPath func(string) (string, error)
	hostInfo func(ctx context.Context) (*host.InfoStat, error)
}

// NewCommandPlatform 创建平台检测器
func NewCommandPlatform(methods config.MethodsConfig, runner Runner, logger *zap.Logger) *CommandPlatform {
	return &CommandPlatform{
		methods:  methods,
		runner:   runner,
		logger:   logger,
		lookPath: exec.LookPath,
		hostInfo: host.InfoWithContext,
	}
}

// AvailableMethods 检测当前平台支持的安装方式
func (p *CommandPlatform) AvailableMethods(ctx context.Context) (*Available, error) {
	var info *host.InfoStat
	if p.needsHostInfo() {
		var err error
		info, err = p.hostInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to detect host platform: %w", err)
		}
		p.logger.Debug("detected host platform",
			zap.String("platform", info.Platform),
			zap.String("family", info.PlatformFamily),
			zap.String("version", info.PlatformVersion))
	}

	statuses := make([]MethodStatus, 0, len(p.methods))
	for _, m := range p.methods {
		status := MethodStatus{
			Name:      InstallMethod(m.Name),
			Title:     m.Title,
			Supported: true,
		}
		if reason := p.checkMethod(&m, info); reason != "" {
			status.Supported = false
			status.Reason = reason
		}
		p.logger.Debug("installation method detected",
			zap.String("method", m.Name),
			zap.Bool("supported", status.Supported),
			zap.String("reason", status.Reason))
		statuses = append(statuses, status)
	}

	return NewAvailable(p, statuses), nil
}

// checkMethod 返回安装方式不可用的原因，可用时返回空字符串
func (p *CommandPlatform) checkMethod(m *config.MethodConfig, info *host.InfoStat) string {
	if len(m.Platforms) > 0 && !matchPlatform(m.Platforms, info) {
		return fmt.Sprintf("not supported on %s", describeHost(info))
	}
	for _, tool := range m.Requires {
		if _, err := p.lookPath(tool); err != nil {
			return fmt.Sprintf("required tool %q not found in PATH", tool)
		}
	}
	return ""
}

func (p *CommandPlatform) needsHostInfo() bool {
	for _, m := range p.methods {
		if len(m.Platforms) > 0 {
			return true
		}
	}
	return false
}

// MakeMethod 创建安装方式实例
func (p *CommandPlatform) MakeMethod(name InstallMethod, avail *Available) (Method, error) {
	if !avail.IsSupported(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, avail.Title(name))
	}
	cfg, ok := p.methods.Find(string(name))
	if !ok {
		return nil, fmt.Errorf("%w: unknown method %q", ErrUnsupported, name)
	}
	return NewCommandMethod(*cfg, p.runner, p.logger), nil
}

func matchPlatform(platforms []string, info *host.InfoStat) bool {
	for _, want := range platforms {
		want = strings.ToLower(want)
		if want == runtime.GOOS {
			return true
		}
		if info != nil && (want == strings.ToLower(info.Platform) || want == strings.ToLower(info.PlatformFamily)) {
			return true
		}
	}
	return false
}

func describeHost(info *host.InfoStat) string {
	if info == nil || info.Platform == "" {
		return runtime.GOOS
	}
	if info.PlatformVersion != "" {
		return info.Platform + " " + info.PlatformVersion
	}
	return info.Platform
}
