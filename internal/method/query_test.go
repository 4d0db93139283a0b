package method

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bingooyong/ops-scaffold-framework/serverup/pkg/types"
)

func versionPtr(v string) *types.Version {
	version := types.Version(v)
	return &version
}

func TestVersionQueryMatches(t *testing.T) {
	stable := &InstalledRecord{MajorVersion: "16", Version: "16.2", Revision: "1"}
	nightly := &InstalledRecord{MajorVersion: "17", Version: "17-devel", Nightly: true}

	tests := []struct {
		name   string
		query  VersionQuery
		record *InstalledRecord
		want   bool
	}{
		{"any stable matches stable", Stable(nil), stable, true},
		{"any stable rejects nightly", Stable(nil), nightly, false},
		{"pinned exact", Stable(versionPtr("16.2")), stable, true},
		{"pinned is not a prefix match", Stable(versionPtr("16")), stable, false},
		{"pinned other version", Stable(versionPtr("16.3")), stable, false},
		{"pinned rejects nightly with same version", Stable(versionPtr("17-devel")), nightly, false},
		{"nightly matches nightly", Nightly(), nightly, true},
		{"nightly rejects stable", Nightly(), stable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.query.Matches(tt.record))
		})
	}
}

func TestVersionQueryMatchesMajor(t *testing.T) {
	stable := &InstalledRecord{MajorVersion: "17", Version: "17.2"}
	nightly := &InstalledRecord{MajorVersion: "17", Version: "17-devel", Nightly: true}

	assert.True(t, Stable(versionPtr("17")).MatchesMajor(stable))
	assert.True(t, Stable(versionPtr("17.2")).MatchesMajor(stable))
	assert.False(t, Stable(versionPtr("16")).MatchesMajor(stable))
	assert.False(t, Stable(versionPtr("17")).MatchesMajor(nightly))
	assert.True(t, Stable(nil).MatchesMajor(stable))
	assert.True(t, Nightly().MatchesMajor(nightly))
	assert.False(t, Nightly().MatchesMajor(stable))

	// 安装冲突检查仍然要求版本完全相同
	assert.False(t, Stable(versionPtr("17")).Matches(stable))
}

func TestNewQuery(t *testing.T) {
	assert.True(t, NewQuery(true, "").IsNightly())
	assert.Equal(t, "stable", NewQuery(false, "").String())
	assert.Equal(t, "stable:16.2", NewQuery(false, "16.2").String())
	assert.Equal(t, "nightly", NewQuery(true, "16.2").String())
	assert.Nil(t, NewQuery(false, "").Version())
}

func TestFindAndNewestInstalled(t *testing.T) {
	records := []InstalledRecord{
		{MajorVersion: "15", Version: "15.6"},
		{MajorVersion: "16", Version: "16.1"},
		{MajorVersion: "16", Version: "16.3"},
		{MajorVersion: "17", Version: "17-devel", Nightly: true},
	}

	found, ok := FindInstalled(records, Nightly())
	assert.True(t, ok)
	assert.Equal(t, types.Version("17-devel"), found.Version)

	_, ok = FindInstalled(records, Stable(versionPtr("16.2")))
	assert.False(t, ok)

	newest, ok := NewestInstalled(records, func(r *InstalledRecord) bool {
		return !r.Nightly && r.MajorVersion == "16"
	})
	assert.True(t, ok)
	assert.Equal(t, types.Version("16.3"), newest.Version)

	_, ok = NewestInstalled(records, func(r *InstalledRecord) bool { return r.MajorVersion == "14" })
	assert.False(t, ok)
}

func TestFullVersion(t *testing.T) {
	r := InstalledRecord{Version: "16.2", Revision: "1.pgdg22.04"}
	assert.Equal(t, types.Version("16.2-1.pgdg22.04"), r.FullVersion())

	c := InstallCandidate{Version: "16.2"}
	assert.Equal(t, types.Version("16.2"), c.FullVersion())
}
