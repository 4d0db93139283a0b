package instance

import (
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/method"
	"github.com/bingooyong/ops-scaffold-framework/serverup/pkg/types"
)

// StartConf 实例启动方式
type StartConf string

const (
	// StartAuto 随系统自动启动
	StartAuto StartConf = "auto"
	// StartManual 手动启动
	StartManual StartConf = "manual"
)

// Valid 是否为合法的启动方式
func (s StartConf) Valid() bool {
	return s == StartAuto || s == StartManual
}

// Metadata 实例元数据，对应数据目录下的metadata.json
type Metadata struct {
	// Method 安装方式
	Method method.InstallMethod `json:"method"`

	// Version 主版本号
	Version types.Version `json:"version"`

	// Nightly 是否为nightly实例
	Nightly bool `json:"nightly"`

	// Port 监听端口
	Port int `json:"port"`

	// StartConf 启动方式
	StartConf StartConf `json:"start_conf"`
}

// Instance 本地服务器实例
type Instance struct {
	Name    string
	Meta    Metadata
	System  bool
	DataDir string

	// Source/Target 仅在一次升级过程中使用，不持久化
	Source types.Version
	Target types.Version
}

// UpgradeMeta 生成传递给重新初始化的升级标记，未知版本记为unknown
// started与备份目录的时间戳相同
func (i *Instance) UpgradeMeta(started time.Time) types.UpgradeMeta {
	return types.UpgradeMeta{
		Source:  orUnknown(i.Source),
		Target:  orUnknown(i.Target),
		Started: started.UTC(),
		PID:     os.Getpid(),
	}
}

func orUnknown(v types.Version) types.Version {
	if v.IsEmpty() {
		return "unknown"
	}
	return v
}

// BackupPath 返回升级前数据目录的备份路径
func (i *Instance) BackupPath() string {
	return BackupPath(i.DataDir)
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidName 实例名是否合法
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Layout 实例目录布局
type Layout struct {
	Root string
}

// NewLayout 创建目录布局
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// DataDir 实例数据目录
func (l Layout) DataDir(name string) string {
	return filepath.Join(l.Root, name)
}

// DumpPath 升级时的转储目录
func (l Layout) DumpPath(name string) string {
	return filepath.Join(l.Root, name+".dump")
}

// BackupPath 数据目录对应的备份目录
func BackupPath(dataDir string) string {
	return filepath.Clean(dataDir) + ".backup"
}
