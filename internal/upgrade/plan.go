package upgrade

import (
	"go.uber.org/zap"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/instance"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/method"
)

// Options 升级命令参数
type Options struct {
	// Name 指定实例名，为空时升级一组实例
	Name string
	// Nightly 升级所有nightly实例
	Nightly bool
	// ToNightly 将指定实例升级到nightly
	ToNightly bool
	// ToVersion 将指定实例升级到指定版本
	ToVersion string
	// Force 即使已是最新版本也执行升级
	Force bool
}

// Kind 升级类型
type Kind string

const (
	// KindMinor 同一主版本内的包升级，不迁移数据
	KindMinor Kind = "minor"
	// KindNightly 所有nightly实例升级到最新nightly
	KindNightly Kind = "nightly"
	// KindInstance 单个实例升级到指定版本
	KindInstance Kind = "instance"
)

// Plan 一次升级运行的计划
type Plan struct {
	Kind  Kind
	Name  string
	Query method.VersionQuery
}

// Interpret 将命令参数转换为升级计划
func Interpret(opts *Options, logger *zap.Logger) *Plan {
	if opts.Name != "" {
		if opts.Nightly {
			logger.Warn("cannot upgrade specific nightly instance, " +
				"use `--to-nightly` to upgrade to nightly. " +
				"Use `--nightly` without instance name to upgrade all nightly instances")
		}
		return &Plan{
			Kind:  KindInstance,
			Name:  opts.Name,
			Query: method.NewQuery(opts.ToNightly, opts.ToVersion),
		}
	}
	if opts.Nightly {
		return &Plan{Kind: KindNightly, Query: method.Nightly()}
	}
	return &Plan{Kind: KindMinor, Query: method.Stable(nil)}
}

// Filter 选出计划涉及的实例
func (p *Plan) Filter(instances []*instance.Instance) []*instance.Instance {
	result := make([]*instance.Instance, 0, len(instances))
	for _, inst := range instances {
		var keep bool
		switch p.Kind {
		case KindMinor:
			keep = !inst.Meta.Nightly
		case KindNightly:
			keep = inst.Meta.Nightly
		case KindInstance:
			keep = inst.Name == p.Name
		}
		if keep {
			result = append(result, inst)
		}
	}
	return result
}
