package method

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/config"
	"github.com/bingooyong/ops-scaffold-framework/serverup/pkg/types"
)

// fakeRunner 记录调用并返回预设输出
type fakeRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   []fakeCall
}

type fakeCall struct {
	argv []string
	env  []string
}

func (f *fakeRunner) Run(_ context.Context, argv []string, env []string) ([]byte, error) {
	f.calls = append(f.calls, fakeCall{argv: argv, env: env})
	key := strings.Join(argv, " ")
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return []byte(f.outputs[key]), nil
}

func testMethodConfig() config.MethodConfig {
	return config.MethodConfig{
		Name:             "package",
		Title:            "Native System Package",
		Requires:         []string{"apt-get"},
		Platforms:        []string{"debian"},
		InstalledCommand: []string{"pkg", "installed"},
		ResolveCommand:   []string{"pkg", "resolve"},
		InstallCommand:   []string{"pkg", "install"},
		BinDir:           "/usr/lib/postgresql/${major}/bin",
	}
}

func TestCommandMethodInstalledVersions(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"pkg installed": `[{"major_version":"16","version":"16.2","revision":"1"},{"major_version":"17","version":"17-devel","nightly":true}]`,
	}}
	m := NewCommandMethod(testMethodConfig(), runner, zap.NewNop())

	records, err := m.InstalledVersions(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, types.Version("16.2-1"), records[0].FullVersion())
	assert.True(t, records[1].Nightly)
}

func TestCommandMethodInstalledVersionsEmptyOutput(t *testing.T) {
	m := NewCommandMethod(testMethodConfig(), &fakeRunner{}, zap.NewNop())

	records, err := m.InstalledVersions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCommandMethodQueryError(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{"pkg installed": errors.New("exit status 1")}}
	m := NewCommandMethod(testMethodConfig(), runner, zap.NewNop())

	_, err := m.InstalledVersions(context.Background())
	assert.ErrorIs(t, err, ErrQuery)
}

func TestCommandMethodGetVersion(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"pkg resolve": `{"package_name":"postgresql-16","major_version":"16","version":"16.3","revision":"1"}`,
	}}
	m := NewCommandMethod(testMethodConfig(), runner, zap.NewNop())

	candidate, err := m.GetVersion(context.Background(), Stable(versionPtr("16")))
	require.NoError(t, err)
	assert.Equal(t, "postgresql-16", candidate.PackageName)
	assert.Equal(t, types.Version("16.3-1"), candidate.FullVersion())

	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0].env, "SERVERUP_QUERY=stable:16")
	assert.Contains(t, runner.calls[0].env, "SERVERUP_NIGHTLY=false")
	assert.Contains(t, runner.calls[0].env, "SERVERUP_VERSION=16")
}

func TestCommandMethodGetVersionNoMatch(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"pkg resolve": "null"}}
	m := NewCommandMethod(testMethodConfig(), runner, zap.NewNop())

	_, err := m.GetVersion(context.Background(), Nightly())
	assert.ErrorIs(t, err, ErrResolution)
	assert.Contains(t, err.Error(), "unable to determine version")
}

func TestCommandMethodInstall(t *testing.T) {
	runner := &fakeRunner{}
	m := NewCommandMethod(testMethodConfig(), runner, zap.NewNop())

	err := m.Install(context.Background(), &Settings{
		Method:       Package,
		PackageName:  "postgresql-16",
		MajorVersion: "16",
		Version:      "16.3-1",
		Extra:        map[string]string{"channel": "pgdg"},
	})
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	env := runner.calls[0].env
	assert.Contains(t, env, "SERVERUP_PACKAGE=postgresql-16")
	assert.Contains(t, env, "SERVERUP_MAJOR=16")
	assert.Contains(t, env, "SERVERUP_VERSION=16.3-1")
	assert.Contains(t, env, "SERVERUP_EXTRA_CHANNEL=pgdg")
}

func TestCommandMethodInstallError(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{"pkg install": errors.New("dpkg lock held")}}
	m := NewCommandMethod(testMethodConfig(), runner, zap.NewNop())

	err := m.Install(context.Background(), &Settings{PackageName: "postgresql-16", Version: "16.3"})
	assert.ErrorIs(t, err, ErrInstall)
	assert.Contains(t, err.Error(), "dpkg lock held")
}

func newTestPlatform(methods config.MethodsConfig, tools map[string]bool, platform string) *CommandPlatform {
	p := NewCommandPlatform(methods, &fakeRunner{}, zap.NewNop())
	p.lookPath = func(name string) (string, error) {
		if tools[name] {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}
	p.hostInfo = func(context.Context) (*host.InfoStat, error) {
		return &host.InfoStat{Platform: platform, PlatformFamily: "debian", PlatformVersion: "22.04"}, nil
	}
	return p
}

func TestCommandPlatformAvailableMethods(t *testing.T) {
	docker := config.MethodConfig{Name: "docker", Title: "Docker Container", Requires: []string{"docker"}, BinDir: "/opt/docker/bin"}
	rpm := config.MethodConfig{Name: "rpm", Requires: []string{"rpm"}, Platforms: []string{"rhel"}, BinDir: "/usr/pgsql/bin"}
	p := newTestPlatform(config.MethodsConfig{testMethodConfig(), docker, rpm},
		map[string]bool{"apt-get": true, "rpm": true}, "ubuntu")

	avail, err := p.AvailableMethods(context.Background())
	require.NoError(t, err)

	assert.True(t, avail.IsSupported(Package))
	assert.False(t, avail.IsSupported(Docker))
	assert.False(t, avail.IsSupported("rpm"))
	assert.Equal(t, []InstallMethod{Package}, avail.Supported())
	assert.Equal(t, "Docker Container", avail.Title(Docker))

	msg := avail.FormatError()
	assert.Contains(t, msg, `required tool "docker" not found`)
	assert.Contains(t, msg, "not supported on ubuntu 22.04")
	assert.Contains(t, msg, "--method=package")

	methods, err := avail.InstantiateAll()
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, Package, methods[0].Name())

	_, err = p.MakeMethod(Docker, avail)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSettingsBuilder(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"pkg resolve": `{"package_name":"postgresql-17","major_version":"17","version":"17-devel","revision":"20261019"}`,
	}}
	m := NewCommandMethod(testMethodConfig(), runner, zap.NewNop())

	settings, err := NewSettingsBuilder(m, Nightly()).WithExtra("channel", "snapshot").AutoVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Package, settings.Method)
	assert.True(t, settings.Nightly)
	assert.Equal(t, types.Version("17"), settings.MajorVersion)
	assert.Equal(t, types.Version("17-devel-20261019"), settings.Version)

	var out bytes.Buffer
	settings.Print(&out)
	assert.Contains(t, out.String(), "postgresql-17")
	assert.Contains(t, out.String(), "channel:")
}
