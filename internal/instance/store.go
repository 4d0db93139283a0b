package instance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bingooyong/ops-scaffold-framework/serverup/pkg/types"
)

const (
	// MetadataFile 实例元数据文件名
	MetadataFile = "metadata.json"
	// BackupMetaFile 备份信息文件名
	BackupMetaFile = "backup.json"
	// UpgradeMarkerFile 升级标记文件名
	UpgradeMarkerFile = "upgrade_marker.json"
)

// ReadMetadata 读取数据目录中的元数据
func ReadMetadata(dataDir string) (*Metadata, error) {
	path := filepath.Join(dataDir, MetadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata %s: %w", path, err)
	}
	if meta.Method == "" {
		return nil, fmt.Errorf("invalid metadata %s: method is empty", path)
	}
	if meta.Version.IsEmpty() {
		return nil, fmt.Errorf("invalid metadata %s: version is empty", path)
	}
	if meta.StartConf == "" {
		meta.StartConf = StartAuto
	}
	return &meta, nil
}

// WriteMetadata 写入数据目录中的元数据(原子性写入)
func WriteMetadata(dataDir string, meta *Metadata) error {
	return writeJSONAtomic(filepath.Join(dataDir, MetadataFile), meta, func(data []byte) error {
		var verify Metadata
		return json.Unmarshal(data, &verify)
	})
}

// WriteBackupMeta 在备份目录中写入backup.json
func WriteBackupMeta(backupDir string, meta *types.BackupMeta) error {
	return writeJSONAtomic(filepath.Join(backupDir, BackupMetaFile), meta, func(data []byte) error {
		var verify types.BackupMeta
		return json.Unmarshal(data, &verify)
	})
}

// ReadBackupMeta 读取备份目录中的backup.json
func ReadBackupMeta(backupDir string) (*types.BackupMeta, error) {
	data, err := os.ReadFile(filepath.Join(backupDir, BackupMetaFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read backup metadata: %w", err)
	}
	var meta types.BackupMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backup metadata: %w", err)
	}
	return &meta, nil
}

// WriteUpgradeMarker 在数据目录中写入升级标记
func WriteUpgradeMarker(dataDir string, marker json.RawMessage) error {
	return writeJSONAtomic(filepath.Join(dataDir, UpgradeMarkerFile), marker, func(data []byte) error {
		var verify types.UpgradeMeta
		return json.Unmarshal(data, &verify)
	})
}

// writeJSONAtomic 序列化后写入临时文件，校验可读后重命名
func writeJSONAtomic(path string, v interface{}, verify func([]byte) error) error {
	tmpPath := path + ".tmp"

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	// 验证临时文件可读
	verifyData, err := os.ReadFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to read temporary file for verification: %w", err)
	}
	if err := verify(verifyData); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to verify temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
