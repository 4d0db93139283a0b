package method

import (
	"github.com/bingooyong/ops-scaffold-framework/serverup/pkg/types"
)

// VersionQuery 版本查询：稳定版(可指定版本)或nightly
type VersionQuery struct {
	nightly bool
	version *types.Version
}

// Stable 稳定版查询，version为nil表示任意稳定版
func Stable(version *types.Version) VersionQuery {
	return VersionQuery{version: version}
}

// Nightly nightly查询
func Nightly() VersionQuery {
	return VersionQuery{nightly: true}
}

// NewQuery 根据命令行选项构造查询
func NewQuery(nightly bool, version string) VersionQuery {
	if nightly {
		return Nightly()
	}
	if version != "" {
		v := types.Version(version)
		return Stable(&v)
	}
	return Stable(nil)
}

// IsNightly 是否为nightly查询
func (q VersionQuery) IsNightly() bool {
	return q.nightly
}

// Version 返回指定的稳定版本，未指定时为nil
func (q VersionQuery) Version() *types.Version {
	return q.version
}

// Matches 判断已安装记录是否满足查询
// 指定版本的稳定版查询要求版本完全相同
func (q VersionQuery) Matches(record *InstalledRecord) bool {
	if q.nightly {
		return record.Nightly
	}
	if record.Nightly {
		return false
	}
	if q.version == nil {
		return true
	}
	return record.Version == *q.version
}

// MatchesMajor 在Matches的基础上，指定版本的稳定版查询也接受同一主版本的记录
// 用于`--to-version 17`这类只给出主版本的查询
func (q VersionQuery) MatchesMajor(record *InstalledRecord) bool {
	if q.Matches(record) {
		return true
	}
	return q.version != nil && !q.nightly && !record.Nightly && record.MajorVersion == *q.version
}

// String 返回查询的文本形式：nightly、stable或stable:<version>
func (q VersionQuery) String() string {
	switch {
	case q.nightly:
		return "nightly"
	case q.version != nil:
		return "stable:" + q.version.String()
	default:
		return "stable"
	}
}
