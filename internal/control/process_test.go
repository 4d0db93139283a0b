package control

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/config"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/instance"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/method"
)

// fakeServer 创建socket文件后一直运行，收到SIGTERM时删除socket退出
const fakeServer = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    -k) sock="$2"; shift ;;
    -p) port="$2"; shift ;;
  esac
  shift
done
trap 'rm -f "$sock/.s.PGSQL.$port"; exit 0' TERM INT
touch "$sock/.s.PGSQL.$port"
while true; do sleep 0.1; done
`

// brokenServer 启动后立即退出
const brokenServer = "#!/bin/sh\necho 'FATAL: data directory is missing' >&2\nexit 1\n"

func setupFactory(t *testing.T, script string) (*ProcessFactory, *instance.Instance) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process groups are not available on windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	root := t.TempDir()
	binDir := filepath.Join(root, "bin", "16")
	require.NoError(t, os.MkdirAll(binDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(binDir, ServerBinary), []byte(script), 0755))

	methods := config.MethodsConfig{{
		Name:   "package",
		BinDir: filepath.Join(root, "bin", "${major}"),
	}}
	factory := NewProcessFactory(methods, Options{
		RunDir:       filepath.Join(root, "run"),
		StartTimeout: 5 * time.Second,
		StopTimeout:  5 * time.Second,
	}, zap.NewNop())

	inst := &instance.Instance{
		Name:    "main",
		DataDir: filepath.Join(root, "data", "main"),
		Meta:    instance.Metadata{Method: method.Package, Version: "16", Port: 5433},
	}
	return factory, inst
}

func TestProcessStartStop(t *testing.T) {
	factory, inst := setupFactory(t, fakeServer)
	ctx := context.Background()

	ctl, err := factory.For(inst)
	require.NoError(t, err)
	assert.Equal(t, "main", ctl.Name())
	assert.False(t, ctl.IsRunning(ctx))

	require.NoError(t, ctl.Start(ctx))
	assert.True(t, ctl.IsRunning(ctx))
	assert.FileExists(t, ctl.SocketPath())

	// 重复启动不会再启动新进程
	require.NoError(t, ctl.Start(ctx))

	require.NoError(t, ctl.Stop(ctx))
	assert.False(t, ctl.IsRunning(ctx))

	// 未运行时停止直接返回
	require.NoError(t, ctl.Stop(ctx))
}

func TestProcessStartFailure(t *testing.T) {
	factory, inst := setupFactory(t, brokenServer)

	ctl, err := factory.For(inst)
	require.NoError(t, err)

	err = ctl.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not become ready")
	assert.False(t, ctl.IsRunning(context.Background()))
}

func TestProcessRunGuarded(t *testing.T) {
	factory, inst := setupFactory(t, fakeServer)

	ctl, err := factory.For(inst)
	require.NoError(t, err)

	guard, err := ctl.RunGuarded(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, ctl.SocketPath())

	pg := guard.(*ProcessGuard)
	require.NoError(t, guard.Close())
	select {
	case <-pg.Exited():
	default:
		t.Fatal("expected guarded process to exit after Close")
	}

	// 可重复关闭
	require.NoError(t, guard.Close())
}

func TestFactoryUnknownMethod(t *testing.T) {
	factory := NewProcessFactory(nil, Options{RunDir: t.TempDir()}, zap.NewNop())

	_, err := factory.For(&instance.Instance{Name: "main", Meta: instance.Metadata{Method: "snap"}})
	assert.Error(t, err)
}

func TestSocketPath(t *testing.T) {
	assert.Equal(t, "/run/serverup/main/.s.PGSQL.5433", SocketPath("/run/serverup/main", 5433))
}
