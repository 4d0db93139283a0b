package upgrade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/instance"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/method"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		kind  Kind
		query string
	}{
		{name: "minor by default", opts: Options{}, kind: KindMinor, query: "stable"},
		{name: "all nightly", opts: Options{Nightly: true}, kind: KindNightly, query: "nightly"},
		{name: "named instance", opts: Options{Name: "main"}, kind: KindInstance, query: "stable"},
		{name: "named to nightly", opts: Options{Name: "main", ToNightly: true}, kind: KindInstance, query: "nightly"},
		{name: "named to version", opts: Options{Name: "main", ToVersion: "17"}, kind: KindInstance, query: "stable:17"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Interpret(&tt.opts, zap.NewNop())
			assert.Equal(t, tt.kind, plan.Kind)
			assert.Equal(t, tt.query, plan.Query.String())
			assert.Equal(t, tt.opts.Name, plan.Name)
		})
	}
}

func TestInterpretWarnsOnNamedNightly(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	plan := Interpret(&Options{Name: "main", Nightly: true}, zap.New(core))

	assert.Equal(t, KindInstance, plan.Kind)
	assert.False(t, plan.Query.IsNightly())
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "--to-nightly")
}

func TestPlanFilter(t *testing.T) {
	instances := []*instance.Instance{
		{Name: "main", Meta: instance.Metadata{Method: method.Package, Version: "16"}},
		{Name: "edge", Meta: instance.Metadata{Method: method.Package, Version: "17", Nightly: true}},
		{Name: "other", Meta: instance.Metadata{Method: method.Docker, Version: "15"}},
	}

	names := func(list []*instance.Instance) []string {
		var result []string
		for _, inst := range list {
			result = append(result, inst.Name)
		}
		return result
	}

	assert.Equal(t, []string{"main", "other"}, names((&Plan{Kind: KindMinor}).Filter(instances)))
	assert.Equal(t, []string{"edge"}, names((&Plan{Kind: KindNightly}).Filter(instances)))
	assert.Equal(t, []string{"edge"}, names((&Plan{Kind: KindInstance, Name: "edge"}).Filter(instances)))
	assert.Empty(t, (&Plan{Kind: KindInstance, Name: "missing"}).Filter(instances))
}
