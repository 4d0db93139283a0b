package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"gopkg.in/yaml.v3"
)

// 输出格式
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// writeOutput 按格式输出，表格格式由fillTable填充
func writeOutput(w io.Writer, format string, v interface{}, fillTable func(t *uitable.Table)) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatTable, "":
		table := uitable.New()
		table.MaxColWidth = 60
		fillTable(table)
		_, err := fmt.Fprintln(w, table)
		return err
	default:
		return fmt.Errorf("unsupported output format %q: use table, json or yaml", format)
	}
}

// relativeTime 相对时间，零值显示为-
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
