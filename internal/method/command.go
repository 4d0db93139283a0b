package method

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/config"
)

// 外部命令的参数通过环境变量传递
const (
	EnvQuery       = "SERVERUP_QUERY"
	EnvNightly     = "SERVERUP_NIGHTLY"
	EnvVersion     = "SERVERUP_VERSION"
	EnvMajor       = "SERVERUP_MAJOR"
	EnvPackage     = "SERVERUP_PACKAGE"
	EnvExtraPrefix = "SERVERUP_EXTRA_"
)

// Runner 外部命令执行器
type Runner interface {
	// Run 执行命令并返回标准输出
	Run(ctx context.Context, argv []string, env []string) ([]byte, error)
}

// ExecRunner 基于os/exec的命令执行器
type ExecRunner struct {
	// Stderr 命令的标准错误同时输出到这里(可选)
	Stderr io.Writer
	logger *zap.Logger
}

// NewExecRunner 创建命令执行器
func NewExecRunner(stderr io.Writer, logger *zap.Logger) *ExecRunner {
	return &ExecRunner{Stderr: stderr, logger: logger}
}

// Run 执行命令并返回标准输出
func (r *ExecRunner) Run(ctx context.Context, argv []string, env []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if r.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, r.Stderr)
	} else {
		cmd.Stderr = &stderr
	}

	r.logger.Debug("running command",
		zap.Strings("argv", argv),
		zap.Strings("env", env))

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("command %q failed: %w: %s", strings.Join(argv, " "), err, msg)
		}
		return nil, fmt.Errorf("command %q failed: %w", strings.Join(argv, " "), err)
	}
	return stdout.Bytes(), nil
}

// CommandMethod 通过配置声明的外部命令实现的安装方式
type CommandMethod struct {
	cfg    config.MethodConfig
	runner Runner
	logger *zap.Logger
}

// NewCommandMethod 创建安装方式实例
func NewCommandMethod(cfg config.MethodConfig, runner Runner, logger *zap.Logger) *CommandMethod {
	return &CommandMethod{
		cfg:    cfg,
		runner: runner,
		logger: logger.With(zap.String("method", cfg.Name)),
	}
}

// Name 返回安装方式标识
func (m *CommandMethod) Name() InstallMethod {
	return InstallMethod(m.cfg.Name)
}

// InstalledVersions 列出已安装的版本
func (m *CommandMethod) InstalledVersions(ctx context.Context) ([]InstalledRecord, error) {
	out, err := m.runner.Run(ctx, m.cfg.InstalledCommand, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}

	var records []InstalledRecord
	if len(bytes.TrimSpace(out)) > 0 {
		if err := json.Unmarshal(out, &records); err != nil {
			return nil, fmt.Errorf("%w: failed to parse output of %s: %w", ErrQuery, m.cfg.Name, err)
		}
	}

	m.logger.Debug("installed versions", zap.Int("count", len(records)))
	return records, nil
}

// GetVersion 将版本查询解析为具体的可安装版本
func (m *CommandMethod) GetVersion(ctx context.Context, query VersionQuery) (*InstallCandidate, error) {
	env := []string{
		EnvQuery + "=" + query.String(),
		EnvNightly + "=" + strconv.FormatBool(query.IsNightly()),
	}
	if v := query.Version(); v != nil {
		env = append(env, EnvVersion+"="+v.String())
	}

	out, err := m.runner.Run(ctx, m.cfg.ResolveCommand, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolution, err)
	}

	var candidate *InstallCandidate
	if err := json.Unmarshal(bytes.TrimSpace(out), &candidate); err != nil {
		return nil, fmt.Errorf("%w: failed to parse output of %s: %w", ErrResolution, m.cfg.Name, err)
	}
	if candidate == nil || candidate.Version.IsEmpty() {
		return nil, fmt.Errorf("%w: no package matching %s", ErrResolution, query)
	}

	m.logger.Debug("resolved version",
		zap.String("query", query.String()),
		zap.String("version", candidate.FullVersion().String()))
	return candidate, nil
}

// Install 安装指定版本
func (m *CommandMethod) Install(ctx context.Context, settings *Settings) error {
	env := []string{
		EnvPackage + "=" + settings.PackageName,
		EnvMajor + "=" + settings.MajorVersion.String(),
		EnvVersion + "=" + settings.Version.String(),
		EnvNightly + "=" + strconv.FormatBool(settings.Nightly),
	}
	keys := make([]string, 0, len(settings.Extra))
	for k := range settings.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, EnvExtraPrefix+strings.ToUpper(k)+"="+settings.Extra[k])
	}

	m.logger.Info("installing package",
		zap.String("package", settings.PackageName),
		zap.String("version", settings.Version.String()),
		zap.Bool("nightly", settings.Nightly))

	if _, err := m.runner.Run(ctx, m.cfg.InstallCommand, env); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrInstall, settings.PackageName, settings.Version, err)
	}
	return nil
}
