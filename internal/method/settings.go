package method

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/gosuri/uitable"

	"github.com/bingooyong/ops-scaffold-framework/serverup/pkg/types"
)

// Settings 安装参数
type Settings struct {
	Method       InstallMethod
	PackageName  string
	MajorVersion types.Version
	Version      types.Version
	Nightly      bool
	Extra        map[string]string
}

// Print 输出安装参数摘要
func (s *Settings) Print(w io.Writer) {
	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true

	table.AddRow("Installation method:", s.Method.Title())
	table.AddRow("Package name:", s.PackageName)
	table.AddRow("Major version:", s.MajorVersion)
	table.AddRow("Exact version:", s.Version)
	if s.Nightly {
		table.AddRow("Nightly:", "yes")
	}

	keys := make([]string, 0, len(s.Extra))
	for k := range s.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		table.AddRow(k+":", s.Extra[k])
	}

	fmt.Fprintln(w, "Installation settings:")
	fmt.Fprintln(w, table)
}

// SettingsBuilder 构造安装参数
type SettingsBuilder struct {
	method Method
	query  VersionQuery
	extra  map[string]string
}

// NewSettingsBuilder 创建安装参数构造器
func NewSettingsBuilder(m Method, query VersionQuery) *SettingsBuilder {
	return &SettingsBuilder{
		method: m,
		query:  query,
		extra:  make(map[string]string),
	}
}

// WithExtra 设置附加参数
func (b *SettingsBuilder) WithExtra(key, value string) *SettingsBuilder {
	b.extra[key] = value
	return b
}

// AutoVersion 解析查询对应的版本并生成安装参数
func (b *SettingsBuilder) AutoVersion(ctx context.Context) (*Settings, error) {
	candidate, err := b.method.GetVersion(ctx, b.query)
	if err != nil {
		return nil, err
	}
	return &Settings{
		Method:       b.method.Name(),
		PackageName:  candidate.PackageName,
		MajorVersion: candidate.MajorVersion,
		Version:      candidate.FullVersion(),
		Nightly:      b.query.IsNightly(),
		Extra:        b.extra,
	}, nil
}
