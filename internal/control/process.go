package control

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// child 本进程启动的子进程
type child struct {
	pid    int
	exited chan struct{}
	err    error
}

func startChild(cmd *exec.Cmd, onExit func()) (*child, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	c := &child{pid: cmd.Process.Pid, exited: make(chan struct{})}

	// 在后台等待进程退出
	go func() {
		c.err = cmd.Wait()
		if onExit != nil {
			onExit()
		}
		close(c.exited)
	}()
	return c, nil
}

func (c *child) alive() bool {
	select {
	case <-c.exited:
		return false
	default:
		return true
	}
}

// Process 服务器实例进程控制器
type Process struct {
	factory *ProcessFactory
	name    string
	dataDir string
	port    int
	binDir  string
	runDir  string
	logger  *zap.Logger
}

// Name 实例名
func (p *Process) Name() string {
	return p.name
}

// SocketPath 实例的unix socket路径
func (p *Process) SocketPath() string {
	return SocketPath(p.runDir, p.port)
}

func (p *Process) pidFile() string {
	return filepath.Join(p.runDir, "server.pid")
}

func (p *Process) logFile() string {
	return filepath.Join(p.runDir, "server.log")
}

// command 构造在前台运行服务器的命令
func (p *Process) command() *exec.Cmd {
	cmd := exec.Command(filepath.Join(p.binDir, ServerBinary),
		"-D", p.dataDir,
		"-p", strconv.Itoa(p.port),
		"-k", p.runDir,
		"-c", "listen_addresses=",
	)
	// 设置进程组，确保服务器独立运行
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
	return cmd
}

// IsRunning 实例是否在运行
func (p *Process) IsRunning(ctx context.Context) bool {
	pid, err := p.readPID()
	if err != nil {
		return false
	}
	return p.pidAlive(ctx, pid)
}

func (p *Process) pidAlive(ctx context.Context, pid int) bool {
	if c, ok := p.factory.lookup(pid); ok {
		return c.alive()
	}
	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		p.logger.Debug("failed to check process", zap.Int("pid", pid), zap.Error(err))
		return false
	}
	return exists
}

func (p *Process) readPID() (int, error) {
	data, err := os.ReadFile(p.pidFile())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file %s: %w", p.pidFile(), err)
	}
	return pid, nil
}

// Start 确保实例在运行
func (p *Process) Start(ctx context.Context) error {
	if pid, err := p.readPID(); err == nil && p.pidAlive(ctx, pid) {
		p.logger.Debug("server already running", zap.Int("pid", pid))
		return nil
	}

	if err := os.MkdirAll(p.runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	// 清理残留的socket
	os.Remove(p.SocketPath())

	logFile, err := os.OpenFile(p.logFile(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	cmd := p.command()
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	c, err := startChild(cmd, func() { logFile.Close() })
	if err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start server %q: %w", p.name, err)
	}
	p.factory.track(c)

	if err := os.WriteFile(p.pidFile(), []byte(strconv.Itoa(c.pid)), 0644); err != nil {
		p.terminate(c)
		return fmt.Errorf("failed to write pid file: %w", err)
	}

	p.logger.Info("server started",
		zap.Int("pid", c.pid),
		zap.Int("port", p.port),
		zap.String("binary", cmd.Path))

	if err := waitForSocket(ctx, p.SocketPath(), c.exited, p.factory.opts.StartTimeout); err != nil {
		p.terminate(c)
		os.Remove(p.pidFile())
		return fmt.Errorf("server %q did not become ready (see %s): %w", p.name, p.logFile(), err)
	}
	return nil
}

// Stop 停止实例
func (p *Process) Stop(ctx context.Context) error {
	pid, err := p.readPID()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.logger.Debug("server not running, nothing to stop")
			return nil
		}
		return err
	}

	if !p.pidAlive(ctx, pid) {
		p.logger.Debug("server process not running, nothing to stop", zap.Int("pid", pid))
		os.Remove(p.pidFile())
		return nil
	}

	p.logger.Info("stopping server", zap.Int("pid", pid))

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		p.logger.Warn("failed to send SIGTERM, process may have exited",
			zap.Int("pid", pid),
			zap.Error(err))
		os.Remove(p.pidFile())
		return nil
	}

	if !p.waitExit(ctx, pid, p.factory.opts.StopTimeout) {
		p.logger.Warn("server graceful shutdown timeout, killing", zap.Int("pid", pid))
		if err := proc.Kill(); err != nil {
			p.logger.Warn("failed to kill process, may have already exited",
				zap.Int("pid", pid),
				zap.Error(err))
		}
		if !p.waitExit(context.Background(), pid, 5*time.Second) {
			return fmt.Errorf("server %q (pid %d) did not exit", p.name, pid)
		}
	}

	os.Remove(p.pidFile())
	p.logger.Info("server stopped", zap.Int("pid", pid))
	return nil
}

// waitExit 等待进程退出，超时返回false
func (p *Process) waitExit(ctx context.Context, pid int, timeout time.Duration) bool {
	if c, ok := p.factory.lookup(pid); ok {
		select {
		case <-c.exited:
			return true
		case <-time.After(timeout):
			return false
		case <-ctx.Done():
			return false
		}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if !p.pidAlive(ctx, pid) {
			return true
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// terminate 终止启动失败的子进程
func (p *Process) terminate(c *child) {
	syscall.Kill(-c.pid, syscall.SIGKILL)
	<-c.exited
}

// RunGuarded 在前台直接运行服务器
func (p *Process) RunGuarded(ctx context.Context) (Guard, error) {
	if err := os.MkdirAll(p.runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	os.Remove(p.SocketPath())

	cmd := p.command()
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	guard, err := RunGuarded(cmd, p.factory.opts.StopTimeout, p.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to run server %q: %w", p.name, err)
	}

	if err := waitForSocket(ctx, p.SocketPath(), guard.child.exited, p.factory.opts.StartTimeout); err != nil {
		guard.Close()
		return nil, fmt.Errorf("server %q did not become ready: %w", p.name, err)
	}
	return guard, nil
}
