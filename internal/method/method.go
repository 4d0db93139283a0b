package method

import (
	"context"
	"errors"

	"github.com/bingooyong/ops-scaffold-framework/serverup/pkg/types"
)

// InstallMethod 安装方式标识
type InstallMethod string

const (
	// Package 系统包管理器安装
	Package InstallMethod = "package"
	// Docker 容器镜像安装
	Docker InstallMethod = "docker"
)

// Title 返回内置安装方式的显示名称，配置声明的安装方式以Available.Title为准
func (m InstallMethod) Title() string {
	switch m {
	case Package:
		return "Native System Package"
	case Docker:
		return "Docker Container"
	default:
		return string(m)
	}
}

// Option 返回对应的命令行选项
func (m InstallMethod) Option() string {
	return "--method=" + string(m)
}

// String 返回安装方式名称
func (m InstallMethod) String() string {
	return string(m)
}

var (
	// ErrQuery 查询已安装版本失败
	ErrQuery = errors.New("failed to query installed versions")
	// ErrResolution 无法解析目标版本
	ErrResolution = errors.New("unable to determine version")
	// ErrInstall 安装失败
	ErrInstall = errors.New("installation failed")
	// ErrUnsupported 安装方式在当前平台不可用
	ErrUnsupported = errors.New("installation method is not supported")
)

// InstalledRecord 已安装的服务器版本
type InstalledRecord struct {
	MajorVersion types.Version `json:"major_version"`
	Version      types.Version `json:"version"`
	Revision     string        `json:"revision,omitempty"`
	Nightly      bool          `json:"nightly,omitempty"`
}

// FullVersion 返回包含修订号的完整版本
func (r *InstalledRecord) FullVersion() types.Version {
	return fullVersion(r.Version, r.Revision)
}

// InstallCandidate 可安装的服务器版本
type InstallCandidate struct {
	PackageName  string        `json:"package_name"`
	MajorVersion types.Version `json:"major_version"`
	Version      types.Version `json:"version"`
	Revision     string        `json:"revision,omitempty"`
}

// FullVersion 返回包含修订号的完整版本
func (c *InstallCandidate) FullVersion() types.Version {
	return fullVersion(c.Version, c.Revision)
}

func fullVersion(v types.Version, revision string) types.Version {
	if revision == "" {
		return v
	}
	return types.Version(string(v) + "-" + revision)
}

// Method 安装方式能力接口
type Method interface {
	// Name 返回安装方式标识
	Name() InstallMethod

	// InstalledVersions 列出已安装的版本
	InstalledVersions(ctx context.Context) ([]InstalledRecord, error)

	// GetVersion 将版本查询解析为具体的可安装版本
	GetVersion(ctx context.Context, query VersionQuery) (*InstallCandidate, error)

	// Install 安装指定版本
	Install(ctx context.Context, settings *Settings) error
}

// FindInstalled 返回第一个匹配查询的已安装记录
func FindInstalled(records []InstalledRecord, query VersionQuery) (*InstalledRecord, bool) {
	for i := range records {
		if query.Matches(&records[i]) {
			return &records[i], true
		}
	}
	return nil, false
}

// NewestInstalled 返回满足条件的最新已安装记录
func NewestInstalled(records []InstalledRecord, accept func(*InstalledRecord) bool) (*InstalledRecord, bool) {
	var newest *InstalledRecord
	for i := range records {
		r := &records[i]
		if !accept(r) {
			continue
		}
		if newest == nil || newest.FullVersion().Less(r.FullVersion()) {
			newest = r
		}
	}
	return newest, newest != nil
}
