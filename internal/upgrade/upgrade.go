package upgrade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/bootstrap"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/control"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/history"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/instance"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/method"
	"github.com/bingooyong/ops-scaffold-framework/serverup/pkg/types"
)

// DatabaseClient 逻辑转储与恢复，调用阻塞直到完成
type DatabaseClient interface {
	Dump(ctx context.Context, socketPath, dumpPath string) error
	Restore(ctx context.Context, socketPath, dumpPath string) error
}

// Recorder 升级历史记录
type Recorder interface {
	Record(ctx context.Context, record *history.UpgradeRecord)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, *history.UpgradeRecord) {}

// Upgrader 升级执行器
type Upgrader struct {
	discovery   *instance.Discovery
	platform    method.Platform
	controls    control.Factory
	initializer bootstrap.Initializer
	db          DatabaseClient
	logger      *zap.Logger

	recorder        Recorder
	out             io.Writer
	defaultUser     string
	defaultDatabase string
	now             func() time.Time
}

// NewUpgrader 创建升级执行器
func NewUpgrader(
	discovery *instance.Discovery,
	platform method.Platform,
	controls control.Factory,
	initializer bootstrap.Initializer,
	db DatabaseClient,
	logger *zap.Logger,
) *Upgrader {
	return &Upgrader{
		discovery:       discovery,
		platform:        platform,
		controls:        controls,
		initializer:     initializer,
		db:              db,
		logger:          logger,
		recorder:        nopRecorder{},
		out:             os.Stdout,
		defaultUser:     "postgres",
		defaultDatabase: "postgres",
		now:             time.Now,
	}
}

// SetRecorder 设置历史记录器
func (u *Upgrader) SetRecorder(r Recorder) {
	u.recorder = r
}

// SetOutput 设置面向用户的输出
func (u *Upgrader) SetOutput(w io.Writer) {
	u.out = w
}

// SetConnection 设置重新初始化时的默认用户和数据库
func (u *Upgrader) SetConnection(user, database string) {
	u.defaultUser = user
	u.defaultDatabase = database
}

// Upgrade 执行升级
func (u *Upgrader) Upgrade(ctx context.Context, opts *Options) error {
	plan := Interpret(opts, u.logger)

	all, err := u.discovery.List()
	if err != nil {
		return err
	}
	instances := plan.Filter(all)
	if len(instances) == 0 {
		if opts.Nightly {
			u.logger.Warn("no instances found, nothing to upgrade")
		} else {
			u.logger.Warn("no instances found, nothing to upgrade " +
				"(note: nightly instances are upgraded only if `--nightly` is specified)")
		}
		return nil
	}

	byMethod := make(map[method.InstallMethod][]*instance.Instance)
	for _, inst := range instances {
		byMethod[inst.Meta.Method] = append(byMethod[inst.Meta.Method], inst)
	}
	names := make([]method.InstallMethod, 0, len(byMethod))
	for name := range byMethod {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	avail, err := u.platform.AvailableMethods(ctx)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := u.logger.With(zap.String("run_id", runID), zap.String("plan", string(plan.Kind)))

	for _, name := range names {
		group := byMethod[name]
		if !avail.IsSupported(name) {
			logger.Warn(fmt.Sprintf("method %s is not available, instances using it: %s, skipping",
				avail.Title(name), instanceNames(group)))
			continue
		}
		m, err := u.platform.MakeMethod(name, avail)
		if err != nil {
			return err
		}

		r := &run{
			Upgrader: u,
			id:       runID,
			plan:     plan,
			opts:     opts,
			method:   m,
			logger:   logger.With(zap.String("method", string(name))),
		}
		switch plan.Kind {
		case KindMinor:
			err = r.minor(ctx, group)
		case KindNightly:
			err = r.nightly(ctx, group)
		case KindInstance:
			for _, inst := range group {
				if err = r.single(ctx, inst, plan.Query); err != nil {
					break
				}
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// run 一个安装方式分组内的升级
type run struct {
	*Upgrader
	id     string
	plan   *Plan
	opts   *Options
	method method.Method
	logger *zap.Logger
}

// resolve 解析目标版本并查找已安装版本
func (r *run) resolve(ctx context.Context, query method.VersionQuery,
	accept func(*method.InstalledRecord) bool) (*method.InstallCandidate, types.Version, error) {
	candidate, err := r.method.GetVersion(ctx, query)
	if err != nil {
		if errors.Is(err, method.ErrResolution) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("%w: %w", method.ErrResolution, err)
	}

	records, err := r.method.InstalledVersions(ctx)
	if err != nil {
		return nil, "", err
	}
	var installed types.Version
	if record, ok := method.NewestInstalled(records, accept); ok {
		installed = record.FullVersion()
	}
	return candidate, installed, nil
}

// upToDate 已安装版本不低于目标版本且未强制升级
func (r *run) upToDate(installed, target types.Version) bool {
	return !r.opts.Force && !installed.IsEmpty() && installed.Compare(target) >= 0
}

// minor 按主版本分组升级，已是最新的分组只跳过该分组
func (r *run) minor(ctx context.Context, instances []*instance.Instance) error {
	byMajor := make(map[types.Version][]*instance.Instance)
	for _, inst := range instances {
		byMajor[inst.Meta.Version] = append(byMajor[inst.Meta.Version], inst)
	}
	majors := make([]types.Version, 0, len(byMajor))
	for v := range byMajor {
		majors = append(majors, v)
	}
	sort.Slice(majors, func(i, j int) bool { return majors[i].Less(majors[j]) })

	for _, major := range majors {
		group := byMajor[major]
		names := instanceNames(group)
		started := r.now()

		major := major
		candidate, installed, err := r.resolve(ctx, method.Stable(&major), func(rec *method.InstalledRecord) bool {
			return !rec.Nightly && rec.MajorVersion == major
		})
		if err != nil {
			return err
		}
		target := candidate.FullVersion()
		setVersions(group, installed, target)

		if r.upToDate(installed, target) {
			r.logger.Info(fmt.Sprintf("version %s is up to date %s, skipping instances: %s", major, installed, names))
			r.record(ctx, group, history.StatusSkipped, started, nil)
			continue
		}

		fmt.Fprintf(r.out, "Upgrading version: %s to %s, instances: %s\n", major, target, names)

		// 先停止实例，避免在运行中替换二进制
		for _, inst := range group {
			if err := r.stop(ctx, inst); err != nil {
				r.logger.Warn("failed to stop instance",
					zap.String("instance", inst.Name),
					zap.Error(err))
			}
		}

		r.logger.Info("upgrading the package")
		if err := r.method.Install(ctx, &method.Settings{
			Method:       r.method.Name(),
			PackageName:  candidate.PackageName,
			MajorVersion: major,
			Version:      target,
			Nightly:      false,
		}); err != nil {
			r.record(ctx, group, history.StatusFailed, started, err)
			return err
		}

		for _, inst := range group {
			ctl, err := r.controls.For(inst)
			if err == nil {
				err = ctl.Start(ctx)
			}
			if err != nil {
				err = fmt.Errorf("failed to start %q: %w", inst.Name, err)
				r.record(ctx, group, history.StatusFailed, started, err)
				return err
			}
		}
		r.record(ctx, group, history.StatusUpgraded, started, nil)
	}
	return nil
}

func (r *run) stop(ctx context.Context, inst *instance.Instance) error {
	ctl, err := r.controls.For(inst)
	if err != nil {
		return err
	}
	return ctl.Stop(ctx)
}

// nightly 所有nightly实例一起升级到最新nightly
func (r *run) nightly(ctx context.Context, instances []*instance.Instance) error {
	query := method.Nightly()
	names := instanceNames(instances)
	started := r.now()

	candidate, installed, err := r.resolve(ctx, query, query.Matches)
	if err != nil {
		return err
	}
	target := candidate.FullVersion()
	setVersions(instances, installed, target)

	if r.upToDate(installed, target) {
		r.logger.Info(fmt.Sprintf("nightly is up to date %s, skipping instances: %s", installed, names))
		r.record(ctx, instances, history.StatusSkipped, started, nil)
		return nil
	}

	fmt.Fprintf(r.out, "Upgrading nightly: %s to %s, instances: %s\n", orNone(installed), target, names)

	for _, inst := range instances {
		if err := r.dumpAndStop(ctx, inst); err != nil {
			r.record(ctx, instances, history.StatusFailed, started, err)
			return err
		}
	}

	r.logger.Info("upgrading the package")
	if err := r.method.Install(ctx, &method.Settings{
		Method:       r.method.Name(),
		PackageName:  candidate.PackageName,
		MajorVersion: candidate.MajorVersion,
		Version:      target,
		Nightly:      true,
	}); err != nil {
		r.record(ctx, instances, history.StatusFailed, started, err)
		return err
	}

	for i, inst := range instances {
		if err := r.reinitAndRestore(ctx, inst, candidate.MajorVersion, true); err != nil {
			r.record(ctx, instances[i:], history.StatusFailed, started, err)
			return err
		}
		r.record(ctx, []*instance.Instance{inst}, history.StatusUpgraded, started, nil)
	}
	return nil
}

// single 单个实例升级到查询指定的版本
func (r *run) single(ctx context.Context, inst *instance.Instance, query method.VersionQuery) error {
	started := r.now()
	group := []*instance.Instance{inst}

	candidate, installed, err := r.resolve(ctx, query, query.MatchesMajor)
	if err != nil {
		return err
	}
	target := candidate.FullVersion()
	setVersions(group, installed, target)

	// 包已是最新但实例仍在旧主版本时继续迁移
	onTarget := inst.Meta.Version == candidate.MajorVersion && inst.Meta.Nightly == query.IsNightly()
	if onTarget && r.upToDate(installed, target) {
		r.logger.Info(fmt.Sprintf("version %s is up to date %s, skipping instance: %s", query, installed, inst.Name))
		r.record(ctx, group, history.StatusSkipped, started, nil)
		return nil
	}

	fmt.Fprintf(r.out, "Upgrading instance %s to %s\n", inst.Name, target)

	if err := r.dumpAndStop(ctx, inst); err != nil {
		r.record(ctx, group, history.StatusFailed, started, err)
		return err
	}

	r.logger.Info("installing the package")
	if err := r.method.Install(ctx, &method.Settings{
		Method:       r.method.Name(),
		PackageName:  candidate.PackageName,
		MajorVersion: candidate.MajorVersion,
		Version:      target,
		Nightly:      query.IsNightly(),
	}); err != nil {
		r.record(ctx, group, history.StatusFailed, started, err)
		return err
	}

	if err := r.reinitAndRestore(ctx, inst, candidate.MajorVersion, query.IsNightly()); err != nil {
		r.record(ctx, group, history.StatusFailed, started, err)
		return err
	}
	r.record(ctx, group, history.StatusUpgraded, started, nil)
	return nil
}

// record 写入分组内每个实例的升级结果
func (r *run) record(ctx context.Context, instances []*instance.Instance, status string, started time.Time, err error) {
	finished := r.now()
	for _, inst := range instances {
		rec := &history.UpgradeRecord{
			RunID:      r.id,
			Instance:   inst.Name,
			Method:     string(r.method.Name()),
			Plan:       string(r.plan.Kind),
			Source:     inst.Source.String(),
			Target:     inst.Target.String(),
			Status:     status,
			StartedAt:  started,
			FinishedAt: finished,
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if r.plan.Kind != KindMinor && status != history.StatusSkipped {
			rec.BackupPath = inst.BackupPath()
		}
		r.recorder.Record(ctx, rec)
	}
}

func setVersions(instances []*instance.Instance, source, target types.Version) {
	for _, inst := range instances {
		inst.Source = source
		inst.Target = target
	}
}

func instanceNames(instances []*instance.Instance) string {
	names := make([]string, 0, len(instances))
	for _, inst := range instances {
		names = append(names, inst.Name)
	}
	return strings.Join(names, ", ")
}

func orNone(v types.Version) string {
	if v.IsEmpty() {
		return "none"
	}
	return v.String()
}

// dumpAndStop 转储实例所有数据库后停止实例
func (r *run) dumpAndStop(ctx context.Context, inst *instance.Instance) error {
	if err := r.dumpAndStopInner(ctx, inst); err != nil {
		return fmt.Errorf("failed to dump %q: %w", inst.Name, err)
	}
	return nil
}

func (r *run) dumpAndStopInner(ctx context.Context, inst *instance.Instance) error {
	backup := inst.BackupPath()
	if _, err := os.Stat(backup); err == nil {
		return fmt.Errorf("backup directory %s from an earlier upgrade already exists, remove it or move it away before upgrading this instance again", backup)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check backup directory: %w", err)
	}

	ctl, err := r.controls.For(inst)
	if err != nil {
		return err
	}
	r.logger.Info("ensuring instance is started", zap.String("instance", inst.Name))
	if err := ctl.Start(ctx); err != nil {
		return err
	}

	dumpPath := r.discovery.Layout().DumpPath(inst.Name)
	if err := os.RemoveAll(dumpPath); err != nil {
		return fmt.Errorf("failed to remove stale dump: %w", err)
	}

	r.logger.Info("dumping instance",
		zap.String("instance", inst.Name),
		zap.String("dump_path", dumpPath))
	if err := r.db.Dump(ctx, ctl.SocketPath(), dumpPath); err != nil {
		return err
	}

	r.logger.Info("stopping instance", zap.String("instance", inst.Name))
	return ctl.Stop(ctx)
}

// reinitAndRestore 备份数据目录，重新初始化后从转储恢复
func (r *run) reinitAndRestore(ctx context.Context, inst *instance.Instance, major types.Version, nightly bool) error {
	if err := r.reinitAndRestoreInner(ctx, inst, major, nightly); err != nil {
		return fmt.Errorf("failed to restore %q: %w", inst.Name, err)
	}
	return nil
}

func (r *run) reinitAndRestoreInner(ctx context.Context, inst *instance.Instance, major types.Version, nightly bool) error {
	backup := inst.BackupPath()
	r.logger.Info("backing up data directory",
		zap.String("instance", inst.Name),
		zap.String("backup_path", backup))
	if err := os.Rename(inst.DataDir, backup); err != nil {
		return fmt.Errorf("failed to back up data directory: %w", err)
	}
	started := r.now().UTC()
	if err := instance.WriteBackupMeta(backup, &types.BackupMeta{Timestamp: started}); err != nil {
		return err
	}

	marker, err := json.Marshal(inst.UpgradeMeta(started))
	if err != nil {
		return fmt.Errorf("failed to marshal upgrade marker: %w", err)
	}

	r.logger.Info("reinitializing instance", zap.String("instance", inst.Name))
	if err := r.initializer.Init(ctx, &bootstrap.Options{
		Name:                inst.Name,
		System:              inst.System,
		Nightly:             nightly,
		Version:             major,
		Method:              r.method.Name(),
		Port:                inst.Meta.Port,
		StartConf:           inst.Meta.StartConf,
		InhibitUserCreation: true,
		InhibitStart:        true,
		UpgradeMarker:       marker,
		Overwrite:           true,
		DefaultUser:         r.defaultUser,
		DefaultDatabase:     r.defaultDatabase,
	}); err != nil {
		return err
	}

	meta, err := instance.ReadMetadata(inst.DataDir)
	if err != nil {
		return err
	}
	inst.Meta = *meta

	ctl, err := r.controls.For(inst)
	if err != nil {
		return err
	}
	if err := r.restore(ctx, inst, ctl); err != nil {
		return err
	}

	r.logger.Info("starting instance", zap.String("instance", inst.Name))
	if err := ctl.Start(ctx); err != nil {
		return err
	}

	r.logger.Warn("backup directory kept, remove it before the next upgrade of this instance",
		zap.String("instance", inst.Name),
		zap.String("backup_path", backup))
	return nil
}

// restore 在受控的临时服务器上恢复数据，返回前终止该服务器
func (r *run) restore(ctx context.Context, inst *instance.Instance, ctl control.Instance) error {
	guard, err := ctl.RunGuarded(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := guard.Close(); err != nil {
			r.logger.Warn("failed to stop restore server",
				zap.String("instance", inst.Name),
				zap.Error(err))
		}
	}()

	dumpPath := r.discovery.Layout().DumpPath(inst.Name)
	r.logger.Info("restoring instance",
		zap.String("instance", inst.Name),
		zap.String("dump_path", dumpPath))
	return r.db.Restore(ctx, ctl.SocketPath(), dumpPath)
}
