package types

import "time"

// UpgradeMeta 升级标记
// 重新初始化实例时写入新数据目录，用于事后排查
type UpgradeMeta struct {
	Source  Version   `json:"source"`
	Target  Version   `json:"target"`
	Started time.Time `json:"started"`
	PID     int       `json:"pid"`
}

// BackupMeta 备份目录中的backup.json内容
type BackupMeta struct {
	Timestamp time.Time `json:"timestamp"`
}
