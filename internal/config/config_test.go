package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "serverup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
paths:
  instances_dir: /var/lib/serverup
  run_dir: /run/serverup
log:
  level: debug
connection:
  wait_timeout: 10s
install:
  default_method: tarball
history:
  enabled: false
methods:
  - name: tarball
    title: Portable Tarball
    requires: [tar]
    bin_dir: /opt/pg/${major}/bin
    installed_command: [pg-tarball, installed]
    resolve_command: [pg-tarball, resolve]
    install_command: [pg-tarball, install]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/serverup", cfg.Paths.InstancesDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10*time.Second, cfg.Connection.WaitTimeout)
	assert.Equal(t, "postgres", cfg.Connection.User)
	assert.Equal(t, 30*time.Second, cfg.Server.StopTimeout)
	assert.Equal(t, 5433, cfg.Server.PortBase)
	assert.False(t, cfg.History.Enabled)

	require.Len(t, cfg.Methods, 1)
	m, ok := cfg.Methods.Find("tarball")
	require.True(t, ok)
	assert.Equal(t, "Portable Tarball", m.Title)
	assert.Equal(t, []string{"tar"}, m.Requires)
	assert.Equal(t, []string{"pg-tarball", "resolve"}, m.ResolveCommand)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  level: info\n"))
	require.NoError(t, err)

	assert.Equal(t, "package", cfg.Install.DefaultMethod)
	assert.True(t, cfg.History.Enabled)
	assert.Len(t, cfg.Methods, 2)
	assert.NotContains(t, cfg.Paths.InstancesDir, "~")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SERVERUP_LOG_LEVEL", "warn")
	t.Setenv("SERVERUP_PATHS_INSTANCES_DIR", "/srv/instances")

	cfg, err := Load(writeConfig(t, "log:\n  level: info\n"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/srv/instances", cfg.Paths.InstancesDir)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad level", "log:\n  level: loud\n"},
		{"unknown default method", "install:\n  default_method: snap\n"},
		{"duplicate method", "methods:\n  - {name: a, bin_dir: /a}\n  - {name: a, bin_dir: /b}\ninstall:\n  default_method: a\n"},
		{"missing bin dir", "methods:\n  - {name: a}\ninstall:\n  default_method: a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestBinDirFor(t *testing.T) {
	m := MethodConfig{
		Name:          "package",
		BinDir:        "/usr/lib/postgresql/${major}/bin",
		NightlyBinDir: "/opt/${method}/nightly/bin",
	}

	assert.Equal(t, "/usr/lib/postgresql/16/bin", m.BinDirFor("16", false))
	assert.Equal(t, "/opt/package/nightly/bin", m.BinDirFor("17", true))

	m.NightlyBinDir = ""
	assert.Equal(t, "/usr/lib/postgresql/17/bin", m.BinDirFor("17", true))
}
