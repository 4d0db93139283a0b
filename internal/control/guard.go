package control

import (
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ProcessGuard 作用域内的子进程，Close时终止整个进程组
type ProcessGuard struct {
	child   *child
	timeout time.Duration
	logger  *zap.Logger

	once sync.Once
	err  error
}

// RunGuarded 启动命令并返回守护对象
// 命令必须设置Setpgid，Close会向整个进程组发送信号
func RunGuarded(cmd *exec.Cmd, timeout time.Duration, logger *zap.Logger) (*ProcessGuard, error) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true

	c, err := startChild(cmd, nil)
	if err != nil {
		return nil, err
	}
	logger.Debug("guarded process started", zap.Int("pid", c.pid), zap.String("binary", cmd.Path))

	return &ProcessGuard{child: c, timeout: timeout, logger: logger}, nil
}

// PID 子进程pid
func (g *ProcessGuard) PID() int {
	return g.child.pid
}

// Exited 子进程退出时关闭
func (g *ProcessGuard) Exited() <-chan struct{} {
	return g.child.exited
}

// Close 先发送SIGTERM，超时后发送SIGKILL，可重复调用
func (g *ProcessGuard) Close() error {
	g.once.Do(func() {
		if !g.child.alive() {
			return
		}

		pgid := -g.child.pid
		if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
			g.logger.Debug("failed to send SIGTERM to process group",
				zap.Int("pid", g.child.pid),
				zap.Error(err))
		}

		select {
		case <-g.child.exited:
		case <-time.After(g.timeout):
			g.logger.Warn("guarded process did not exit in time, killing",
				zap.Int("pid", g.child.pid))
			if err := syscall.Kill(pgid, syscall.SIGKILL); err != nil {
				g.err = err
			}
			<-g.child.exited
		}
		g.logger.Debug("guarded process terminated", zap.Int("pid", g.child.pid))
	})
	return g.err
}
