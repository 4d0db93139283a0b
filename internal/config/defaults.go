package config

import "time"

// setDefaults 设置默认值
func setDefaults(config *Config) {
	setPathsDefaults(&config.Paths)
	setLogDefaults(&config.Log)
	setConnectionDefaults(&config.Connection)
	setServerDefaults(&config.Server)

	if config.History.Path == "" {
		config.History.Path = "~/.local/share/serverup/history.db"
	}

	if len(config.Methods) == 0 {
		config.Methods = defaultMethods()
	}
	for i := range config.Methods {
		if config.Methods[i].Title == "" {
			config.Methods[i].Title = config.Methods[i].Name
		}
	}
	if config.Install.DefaultMethod == "" {
		config.Install.DefaultMethod = "package"
	}
}

// setPathsDefaults 设置目录默认值
func setPathsDefaults(paths *PathsConfig) {
	if paths.InstancesDir == "" {
		paths.InstancesDir = "~/.local/share/serverup/data"
	}
	if paths.RunDir == "" {
		paths.RunDir = "~/.local/share/serverup/run"
	}
}

// setLogDefaults 设置日志默认值
func setLogDefaults(log *LogConfig) {
	if log.Level == "" {
		log.Level = "info"
	}
	if log.MaxSize == 0 {
		log.MaxSize = 100
	}
	if log.MaxBackups == 0 {
		log.MaxBackups = 3
	}
	if log.MaxAge == 0 {
		log.MaxAge = 28
	}
}

// setConnectionDefaults 设置连接默认值
func setConnectionDefaults(conn *ConnectionConfig) {
	if conn.User == "" {
		conn.User = "postgres"
	}
	if conn.Database == "" {
		conn.Database = "postgres"
	}
	if conn.WaitTimeout == 0 {
		conn.WaitTimeout = 30 * time.Second
	}
}

// setServerDefaults 设置服务器进程默认值
func setServerDefaults(server *ServerConfig) {
	if server.StartTimeout == 0 {
		server.StartTimeout = 30 * time.Second
	}
	if server.StopTimeout == 0 {
		server.StopTimeout = 30 * time.Second
	}
	if server.PortBase == 0 {
		server.PortBase = 5433
	}
}

// defaultMethods 未配置时使用的安装方式
func defaultMethods() MethodsConfig {
	return MethodsConfig{
		{
			Name:             "package",
			Title:            "Native System Package",
			Requires:         []string{"apt-get", "dpkg-query", "serverup-apt"},
			Platforms:        []string{"ubuntu", "debian"},
			InstalledCommand: []string{"serverup-apt", "installed"},
			ResolveCommand:   []string{"serverup-apt", "resolve"},
			InstallCommand:   []string{"serverup-apt", "install"},
			BinDir:           "/usr/lib/postgresql/${major}/bin",
		},
		{
			Name:             "docker",
			Title:            "Docker Container",
			Requires:         []string{"docker", "serverup-docker"},
			InstalledCommand: []string{"serverup-docker", "installed"},
			ResolveCommand:   []string{"serverup-docker", "resolve"},
			InstallCommand:   []string{"serverup-docker", "install"},
			BinDir:           "~/.local/share/serverup/docker/${major}/bin",
			NightlyBinDir:    "~/.local/share/serverup/docker/nightly/bin",
		},
	}
}
