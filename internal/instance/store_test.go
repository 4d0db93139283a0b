package instance

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/method"
	"github.com/bingooyong/ops-scaffold-framework/serverup/pkg/types"
)

func TestMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	meta := &Metadata{Method: method.Package, Version: "16", Port: 5433, StartConf: StartManual}

	require.NoError(t, WriteMetadata(dir, meta))

	raw, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"start_conf": "manual"`)

	_, err = os.Stat(filepath.Join(dir, MetadataFile+".tmp"))
	assert.True(t, os.IsNotExist(err))

	got, err := ReadMetadata(dir)
	require.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestReadMetadataRejectsIncomplete(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte(`{"version":"16"}`), 0644))

	_, err := ReadMetadata(dir)
	assert.Error(t, err)
}

func TestBackupMeta(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

	require.NoError(t, WriteBackupMeta(dir, &types.BackupMeta{Timestamp: ts}))

	got, err := ReadBackupMeta(dir)
	require.NoError(t, err)
	assert.True(t, ts.Equal(got.Timestamp))
}

func TestUpgradeMarker(t *testing.T) {
	dir := t.TempDir()
	inst := &Instance{Name: "main", Source: "16.2", Target: "16.3"}
	started := time.Date(2026, 10, 19, 9, 0, 0, 0, time.FixedZone("CST", 8*3600))
	marker, err := json.Marshal(inst.UpgradeMeta(started))
	require.NoError(t, err)

	require.NoError(t, WriteUpgradeMarker(dir, marker))

	data, err := os.ReadFile(filepath.Join(dir, UpgradeMarkerFile))
	require.NoError(t, err)
	var got types.UpgradeMeta
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, types.Version("16.2"), got.Source)
	assert.Equal(t, types.Version("16.3"), got.Target)
	assert.Equal(t, os.Getpid(), got.PID)
	assert.True(t, started.Equal(got.Started))
	assert.Equal(t, time.UTC, got.Started.Location())
}
