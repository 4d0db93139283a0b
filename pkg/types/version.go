package types

import (
	"strings"
	"unicode"
)

// Version 服务器版本号
// 按自然顺序比较：数字段按数值比较，文本段按字典序比较，
// 数字段高于文本段(16.0 > 16-beta1)
type Version string

// String 返回版本字符串
func (v Version) String() string {
	return string(v)
}

// IsEmpty 是否为空版本
func (v Version) IsEmpty() bool {
	return strings.TrimSpace(string(v)) == ""
}

// Compare 比较两个版本，v<other 返回-1，相等返回0，v>other 返回1
func (v Version) Compare(other Version) int {
	a := splitVersion(string(v))
	b := splitVersion(string(other))

	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareSegment(a[i], b[i]); c != 0 {
			return c
		}
	}

	switch {
	case len(a) == len(b):
		return 0
	case len(a) > len(b):
		// 多出的数字段更新(16.1-2 > 16.1)，多出的文本段更旧(17-devel < 17)
		if isNumeric(a[len(b)]) {
			return 1
		}
		return -1
	default:
		if isNumeric(b[len(a)]) {
			return -1
		}
		return 1
	}
}

// Less 是否早于other
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// splitVersion 将版本拆分为数字段和文本段
func splitVersion(s string) []string {
	var (
		segments []string
		current  strings.Builder
		digits   bool
	)

	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, current.String())
			current.Reset()
		}
	}

	for _, r := range s {
		switch {
		case r == '.' || r == '-' || r == '+' || r == '_' || r == '~' || unicode.IsSpace(r):
			flush()
		case unicode.IsDigit(r):
			if current.Len() > 0 && !digits {
				flush()
			}
			digits = true
			current.WriteRune(r)
		default:
			if current.Len() > 0 && digits {
				flush()
			}
			digits = false
			current.WriteRune(unicode.ToLower(r))
		}
	}
	flush()

	return segments
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// compareSegment 比较单个版本段
func compareSegment(a, b string) int {
	an, bn := isNumeric(a), isNumeric(b)
	switch {
	case an && bn:
		a = strings.TrimLeft(a, "0")
		b = strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	case an:
		return 1
	case bn:
		return -1
	default:
		return strings.Compare(a, b)
	}
}
