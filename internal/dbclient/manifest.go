package dbclient

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	// ManifestFile 转储目录中的清单文件
	ManifestFile = "manifest.json"
	// dumpFormat 转储格式版本
	dumpFormat = 1
)

// Manifest 逻辑转储清单
type Manifest struct {
	Format        int        `json:"format"`
	ServerVersion string     `json:"server_version"`
	CreatedAt     time.Time  `json:"created_at"`
	Databases     []Database `json:"databases"`
}

// Database 单个数据库的结构
type Database struct {
	Name      string     `json:"name"`
	Dir       string     `json:"dir"`
	Schemas   []string   `json:"schemas,omitempty"`
	Sequences []Sequence `json:"sequences,omitempty"`
	Tables    []Table    `json:"tables,omitempty"`
}

// Sequence 序列
type Sequence struct {
	Schema    string `json:"schema"`
	Name      string `json:"name"`
	DataType  string `json:"data_type,omitempty"`
	Start     int64  `json:"start,omitempty"`
	Min       int64  `json:"min,omitempty"`
	Max       int64  `json:"max,omitempty"`
	Increment int64  `json:"increment,omitempty"`
	Cache     int64  `json:"cache,omitempty"`
	Cycle     bool   `json:"cycle,omitempty"`
	OwnedBy   string `json:"owned_by,omitempty"` // 已转义的 schema.table.column
	LastValue *int64 `json:"last_value,omitempty"`
}

// Table 表结构及数据文件
type Table struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	File        string       `json:"file"`
	Rows        int64        `json:"rows"`
	Columns     []Column     `json:"columns"`
	Constraints []Constraint `json:"constraints,omitempty"`
	Indexes     []string     `json:"indexes,omitempty"`
}

// Column 列定义
type Column struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	NotNull bool   `json:"not_null,omitempty"`
	Default string `json:"default,omitempty"` // 生成列时为生成表达式

	// Identity 标识列类型：a为ALWAYS，d为BY DEFAULT
	Identity string `json:"identity,omitempty"`
	// Generated 生成列类型：s为STORED
	Generated string `json:"generated,omitempty"`
}

// Constraint 约束定义
type Constraint struct {
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"` // p, u, c, f
	Definition string `json:"definition"`
}

// ForeignKey 是否为外键约束
func (c *Constraint) ForeignKey() bool {
	if c.Type != "" {
		return c.Type == "f"
	}
	return strings.HasPrefix(c.Definition, "FOREIGN KEY")
}

// copyColumns 数据文件包含的列，生成列不导出
func (t *Table) copyColumns() []string {
	cols := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		if col.Generated == "" {
			cols = append(cols, col.Name)
		}
	}
	return cols
}

// copyTarget COPY语句中的表和列
func (t *Table) copyTarget() string {
	ident := pgx.Identifier{t.Schema, t.Name}.Sanitize()
	cols := t.copyColumns()
	if len(cols) == 0 {
		return ident
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return ident + " (" + strings.Join(quoted, ", ") + ")"
}

// WriteManifest 写入清单
func WriteManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest 读取清单
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	if m.Format != dumpFormat {
		return nil, fmt.Errorf("unsupported dump format %d", m.Format)
	}
	return &m, nil
}
