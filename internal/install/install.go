package install

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/method"
	"github.com/bingooyong/ops-scaffold-framework/serverup/pkg/errors"
)

// Options 安装命令参数
type Options struct {
	// Method 指定安装方式，为空时使用默认安装方式
	Method string
	// Interactive 默认安装方式不可用时交互选择
	Interactive bool
	// Version 指定版本
	Version string
	// Nightly 安装nightly版本
	Nightly bool
}

// AlreadyInstalledError 请求的版本已经安装
type AlreadyInstalledError struct {
	Record    method.InstalledRecord
	Installed method.InstallMethod // 已安装所用的安装方式
	Requested method.InstallMethod // 本次请求的安装方式
}

// Error 实现error接口
func (e *AlreadyInstalledError) Error() string {
	if e.SameMethod() {
		return fmt.Sprintf("server %s (%s) is already installed, use `serverup upgrade` for upgrade",
			e.Record.MajorVersion, e.Record.FullVersion())
	}
	return fmt.Sprintf("server %s is already installed via %s, please deinstall before installing via %s",
		e.Record.MajorVersion, e.Installed.Option(), e.Requested.Option())
}

// SameMethod 冲突是否来自同一安装方式
func (e *AlreadyInstalledError) SameMethod() bool {
	return e.Installed == e.Requested
}

// ExitCode 返回冲突对应的退出码
func (e *AlreadyInstalledError) ExitCode() int {
	if e.SameMethod() {
		return int(errors.AlreadyInstalled)
	}
	return int(errors.InstalledViaOtherMethod)
}

// Installer 全新安装执行器
type Installer struct {
	platform      method.Platform
	defaultMethod method.InstallMethod
	in            io.Reader
	out           io.Writer
	logger        *zap.Logger
}

// NewInstaller 创建安装执行器
func NewInstaller(platform method.Platform, defaultMethod method.InstallMethod, logger *zap.Logger) *Installer {
	if defaultMethod == "" {
		defaultMethod = method.Package
	}
	return &Installer{
		platform:      platform,
		defaultMethod: defaultMethod,
		in:            os.Stdin,
		out:           os.Stdout,
		logger:        logger,
	}
}

// SetIO 设置交互输入和输出
func (i *Installer) SetIO(in io.Reader, out io.Writer) {
	i.in = in
	i.out = out
}

// Install 安装服务器
func (i *Installer) Install(ctx context.Context, opts *Options) error {
	avail, err := i.platform.AvailableMethods(ctx)
	if err != nil {
		return err
	}
	if opts.Method == "" && !opts.Interactive && !avail.IsSupported(i.defaultMethod) {
		return errors.New(errors.Failure, avail.FormatError())
	}

	methods, err := avail.InstantiateAll()
	if err != nil {
		return err
	}

	effective, err := i.effectiveMethod(opts, avail)
	if err != nil {
		return err
	}
	logger := i.logger.With(zap.String("method", effective.String()))

	query := method.NewQuery(opts.Nightly, opts.Version)
	if err := checkInstalled(ctx, methods, query, effective); err != nil {
		return err
	}

	var chosen method.Method
	for _, m := range methods {
		if m.Name() == effective {
			chosen = m
			break
		}
	}
	if chosen == nil {
		return fmt.Errorf("%w: %s", method.ErrUnsupported, avail.Title(effective))
	}

	settings, err := method.NewSettingsBuilder(chosen, query).AutoVersion(ctx)
	if err != nil {
		return err
	}
	settings.Print(i.out)

	logger.Info("installing server",
		zap.String("package", settings.PackageName),
		zap.String("version", settings.Version.String()),
		zap.Bool("nightly", settings.Nightly))
	if err := chosen.Install(ctx, settings); err != nil {
		return err
	}

	arg := ""
	if opts.Nightly {
		arg = " --nightly"
	}
	fmt.Fprintf(i.out, "\nServer is installed now. Great!\n"+
		"Initialize and start a new database instance with:\n"+
		"  serverup init <name>%s\n", arg)
	return nil
}

// effectiveMethod 确定本次使用的安装方式
func (i *Installer) effectiveMethod(opts *Options, avail *method.Available) (method.InstallMethod, error) {
	if opts.Method != "" {
		name := method.InstallMethod(opts.Method)
		if !avail.IsSupported(name) {
			return "", fmt.Errorf("%w: %s\n%s", method.ErrUnsupported, opts.Method, avail.FormatError())
		}
		return name, nil
	}
	if avail.IsSupported(i.defaultMethod) {
		return i.defaultMethod, nil
	}
	// 仅交互模式会走到这里
	return i.choose(avail)
}

// choose 交互选择可用的安装方式
func (i *Installer) choose(avail *method.Available) (method.InstallMethod, error) {
	supported := avail.Supported()
	if len(supported) == 0 {
		return "", errors.New(errors.Failure, avail.FormatError())
	}

	fmt.Fprintf(i.out, "%s is not available on this platform. Choose an installation method:\n",
		avail.Title(i.defaultMethod))
	for n, name := range supported {
		fmt.Fprintf(i.out, "  %d. %s\n", n+1, avail.Title(name))
	}

	reader := bufio.NewReader(i.in)
	for {
		fmt.Fprintf(i.out, "Method [1-%d]: ", len(supported))
		line, err := reader.ReadString('\n')
		answer := strings.TrimSpace(line)
		if answer != "" {
			if n, convErr := strconv.Atoi(answer); convErr == nil && n >= 1 && n <= len(supported) {
				return supported[n-1], nil
			}
			for _, name := range supported {
				if answer == name.String() {
					return name, nil
				}
			}
			fmt.Fprintf(i.out, "Invalid choice %q\n", answer)
		}
		if err != nil {
			return "", fmt.Errorf("no installation method chosen: %w", err)
		}
	}
}

// checkInstalled 检查请求的版本是否已通过任一安装方式安装
func checkInstalled(ctx context.Context, methods []method.Method, query method.VersionQuery, effective method.InstallMethod) error {
	for _, m := range methods {
		records, err := m.InstalledVersions(ctx)
		if err != nil {
			return err
		}
		if record, ok := method.FindInstalled(records, query); ok {
			return &AlreadyInstalledError{
				Record:    *record,
				Installed: m.Name(),
				Requested: effective,
			}
		}
	}
	return nil
}
