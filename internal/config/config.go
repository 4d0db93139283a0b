package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config serverup配置结构
type Config struct {
	Paths      PathsConfig      `mapstructure:"paths"`
	Log        LogConfig        `mapstructure:"log"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Server     ServerConfig     `mapstructure:"server"`
	Install    InstallConfig    `mapstructure:"install"`
	History    HistoryConfig    `mapstructure:"history"`
	Methods    MethodsConfig    `mapstructure:"methods"`
}

// PathsConfig 目录配置
type PathsConfig struct {
	InstancesDir string `mapstructure:"instances_dir"` // 实例数据目录的根目录
	RunDir       string `mapstructure:"run_dir"`       // pid文件和socket所在目录
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ConnectionConfig 数据库连接配置
type ConnectionConfig struct {
	User        string        `mapstructure:"user"`
	Database    string        `mapstructure:"database"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
}

// ServerConfig 服务器进程配置
type ServerConfig struct {
	StartTimeout time.Duration `mapstructure:"start_timeout"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
	PortBase     int           `mapstructure:"port_base"`
}

// InstallConfig 安装配置
type InstallConfig struct {
	DefaultMethod string `mapstructure:"default_method"`
}

// HistoryConfig 升级历史配置
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MethodsConfig 安装方式列表
type MethodsConfig []MethodConfig

// MethodConfig 单个安装方式配置
type MethodConfig struct {
	Name             string   `mapstructure:"name"`
	Title            string   `mapstructure:"title"`
	Requires         []string `mapstructure:"requires"`  // 必须存在于PATH中的工具
	Platforms        []string `mapstructure:"platforms"` // 支持的平台，为空表示不限制
	InstalledCommand []string `mapstructure:"installed_command"`
	ResolveCommand   []string `mapstructure:"resolve_command"`
	InstallCommand   []string `mapstructure:"install_command"`
	BinDir           string   `mapstructure:"bin_dir"`         // 支持${major}变量
	NightlyBinDir    string   `mapstructure:"nightly_bin_dir"` // 为空时使用bin_dir
}

// Find 按名称查找安装方式配置
func (m MethodsConfig) Find(name string) (*MethodConfig, bool) {
	for i := range m {
		if m[i].Name == name {
			return &m[i], true
		}
	}
	return nil, false
}

// DefaultConfigPath 默认配置文件路径
func DefaultConfigPath() string {
	return filepath.Join(userConfigDir(), "serverup", "serverup.yaml")
}

// Load 加载配置文件
// configPath为空时读取默认路径，默认路径不存在时仅使用默认值
func Load(configPath string) (*Config, error) {
	v := viper.New()

	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigPath()
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量 SERVERUP_LOG_LEVEL -> log.level
	v.SetEnvPrefix("SERVERUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if !v.IsSet("history.enabled") {
		config.History.Enabled = true
	}

	setDefaults(config)
	expandPaths(config)

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// envKeys 支持环境变量覆盖的配置项
var envKeys = []string{
	"paths.instances_dir",
	"paths.run_dir",
	"log.level",
	"log.file",
	"connection.user",
	"connection.database",
	"connection.wait_timeout",
	"install.default_method",
	"history.enabled",
	"history.path",
}

// validate 验证配置
func validate(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[config.Log.Level] {
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}

	if config.Server.PortBase <= 0 || config.Server.PortBase > 65535 {
		return fmt.Errorf("invalid port base: %d", config.Server.PortBase)
	}

	seen := make(map[string]bool)
	for i, m := range config.Methods {
		if m.Name == "" {
			return fmt.Errorf("methods[%d]: name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("methods[%d]: duplicate method name %q", i, m.Name)
		}
		seen[m.Name] = true
		if m.BinDir == "" {
			return fmt.Errorf("method %q: bin_dir is required", m.Name)
		}
	}

	if _, ok := config.Methods.Find(config.Install.DefaultMethod); !ok {
		return fmt.Errorf("default method %q is not declared in methods", config.Install.DefaultMethod)
	}

	return nil
}

func expandPaths(config *Config) {
	config.Paths.InstancesDir = expandHome(config.Paths.InstancesDir)
	config.Paths.RunDir = expandHome(config.Paths.RunDir)
	config.Log.File = expandHome(config.Log.File)
	config.History.Path = expandHome(config.History.Path)
	for i := range config.Methods {
		config.Methods[i].BinDir = expandHome(config.Methods[i].BinDir)
		config.Methods[i].NightlyBinDir = expandHome(config.Methods[i].NightlyBinDir)
	}
}

// expandHome 展开路径中的~
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return expandHome("~/.config")
}

// BinDirFor 返回指定主版本的服务器二进制目录
func (m *MethodConfig) BinDirFor(major string, nightly bool) string {
	dir := m.BinDir
	if nightly && m.NightlyBinDir != "" {
		dir = m.NightlyBinDir
	}
	return os.Expand(dir, func(key string) string {
		switch key {
		case "major":
			return major
		case "method":
			return m.Name
		default:
			return os.Getenv(key)
		}
	})
}
