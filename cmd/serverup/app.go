package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/bootstrap"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/config"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/control"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/dbclient"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/history"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/instance"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/logger"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/method"
)

// app 命令共享的组件
type app struct {
	configPath string
	logLevel   string

	cfg         *config.Config
	logger      *zap.Logger
	runner      *method.ExecRunner
	platform    *method.CommandPlatform
	discovery   *instance.Discovery
	controls    *control.ProcessFactory
	db          *dbclient.Client
	initializer *bootstrap.ServerInitializer
	historyDB   *gorm.DB
}

// setup 加载配置、初始化日志并组装组件
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	if err := logger.Init(&logger.Config{
		Level:      cfg.Log.Level,
		FilePath:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger.Logger
	a.runner = method.NewExecRunner(os.Stderr, a.logger)
	a.platform = method.NewCommandPlatform(cfg.Methods, a.runner, a.logger)
	a.discovery = instance.NewDiscovery(instance.NewLayout(cfg.Paths.InstancesDir), a.logger)
	a.controls = control.NewProcessFactory(cfg.Methods, control.Options{
		RunDir:       cfg.Paths.RunDir,
		StartTimeout: cfg.Server.StartTimeout,
		StopTimeout:  cfg.Server.StopTimeout,
	}, a.logger)
	a.db = dbclient.New(dbclient.Options{
		User:        cfg.Connection.User,
		Database:    cfg.Connection.Database,
		WaitTimeout: cfg.Connection.WaitTimeout,
	}, a.logger)
	a.initializer = bootstrap.NewServerInitializer(
		a.discovery, a.controls, a.controls, a.db, a.runner, cfg.Server.PortBase, a.logger)

	a.logger.Debug("configuration loaded",
		zap.String("instances_dir", cfg.Paths.InstancesDir),
		zap.Int("methods", len(cfg.Methods)))
	return nil
}

// history 打开升级历史，未启用时返回nil
func (a *app) history() (history.Repository, error) {
	if !a.cfg.History.Enabled {
		return nil, nil
	}
	if a.historyDB == nil {
		db, err := history.Open(a.cfg.History.Path, a.logger)
		if err != nil {
			return nil, err
		}
		a.historyDB = db
	}
	return history.NewRepository(a.historyDB), nil
}

func (a *app) close() error {
	if a.historyDB == nil {
		return nil
	}
	err := history.Close(a.historyDB)
	a.historyDB = nil
	return err
}

func defaultConfigHint() string {
	return config.DefaultConfigPath()
}
