package instance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/method"
	"github.com/bingooyong/ops-scaffold-framework/serverup/pkg/types"
)

func writeInstance(t *testing.T, root, name string, meta *Metadata) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, WriteMetadata(dir, meta))
}

func TestDiscoveryList(t *testing.T) {
	root := t.TempDir()
	writeInstance(t, root, "main", &Metadata{Method: method.Package, Version: "16", Port: 5433, StartConf: StartAuto})
	writeInstance(t, root, "nightly_one", &Metadata{Method: method.Docker, Version: "17", Nightly: true, Port: 5434})

	// 备份与转储目录、文件以及非法名称都应被忽略
	require.NoError(t, os.MkdirAll(filepath.Join(root, "main.backup"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "main.dump"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "9lives"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes"), []byte("x"), 0644))

	// 元数据损坏
	require.NoError(t, os.MkdirAll(filepath.Join(root, "broken"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken", MetadataFile), []byte("{"), 0644))

	core, logs := observer.New(zap.WarnLevel)
	d := NewDiscovery(NewLayout(root), zap.New(core))

	instances, err := d.List()
	require.NoError(t, err)
	require.Len(t, instances, 2)

	assert.Equal(t, "main", instances[0].Name)
	assert.Equal(t, types.Version("16"), instances[0].Meta.Version)
	assert.Equal(t, filepath.Join(root, "main"), instances[0].DataDir)
	assert.True(t, instances[0].Source.IsEmpty())
	assert.True(t, instances[0].Target.IsEmpty())

	assert.Equal(t, "nightly_one", instances[1].Name)
	assert.True(t, instances[1].Meta.Nightly)
	assert.Equal(t, StartAuto, instances[1].Meta.StartConf)

	warnings := logs.FilterMessage("skipping instance with invalid metadata").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "broken", warnings[0].ContextMap()["instance"])
}

func TestDiscoveryListMissingRoot(t *testing.T) {
	d := NewDiscovery(NewLayout(filepath.Join(t.TempDir(), "absent")), zap.NewNop())

	instances, err := d.List()
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestDiscoveryGet(t *testing.T) {
	root := t.TempDir()
	writeInstance(t, root, "main", &Metadata{Method: method.Package, Version: "16", Port: 5433})
	d := NewDiscovery(NewLayout(root), zap.NewNop())

	inst, err := d.Get("main")
	require.NoError(t, err)
	assert.Equal(t, 5433, inst.Meta.Port)

	_, err = d.Get("main.backup")
	assert.Error(t, err)
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("main"))
	assert.True(t, ValidName("_dev2"))
	assert.False(t, ValidName("2dev"))
	assert.False(t, ValidName("main.backup"))
	assert.False(t, ValidName("with-dash"))
	assert.False(t, ValidName(""))
}

func TestLayout(t *testing.T) {
	l := NewLayout("/data")
	assert.Equal(t, "/data/main", l.DataDir("main"))
	assert.Equal(t, "/data/main.dump", l.DumpPath("main"))
	assert.Equal(t, "/data/main.backup", BackupPath(l.DataDir("main")))
}
