package version

// Version 版本号，通过构建时注入
var Version = "dev"

// BuildTime 构建时间，通过构建时注入
var BuildTime = "unknown"

// GitCommit Git 提交哈希，通过构建时注入
var GitCommit = "unknown"

// GetFullVersion 获取完整版本信息
func GetFullVersion() string {
	return Version + " (" + GitCommit + ")" + " built at " + BuildTime
}
