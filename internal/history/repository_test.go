package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

// RepositoryTestSuite 升级历史测试套件
type RepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo Repository
	ctx  context.Context
}

// SetupSuite 测试套件初始化
func (s *RepositoryTestSuite) SetupSuite() {
	// 使用 SQLite 内存数据库
	db, err := Open(":memory:", zap.NewNop())
	require.NoError(s.T(), err, "初始化数据库失败")

	s.db = db
	s.repo = NewRepository(db)
	s.ctx = context.Background()
}

// SetupTest 每个测试用例前清空表
func (s *RepositoryTestSuite) SetupTest() {
	s.db.Exec("DELETE FROM upgrade_records")
}

// TearDownSuite 测试套件清理
func (s *RepositoryTestSuite) TearDownSuite() {
	Close(s.db)
}

func (s *RepositoryTestSuite) seed() {
	base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	records := []*UpgradeRecord{
		{RunID: "run-1", Instance: "main", Method: "package", Plan: "minor", Source: "16.2", Target: "16.3", Status: StatusUpgraded, StartedAt: base},
		{RunID: "run-1", Instance: "reports", Method: "package", Plan: "minor", Source: "16.3", Target: "16.3", Status: StatusSkipped, StartedAt: base.Add(time.Minute)},
		{RunID: "run-2", Instance: "main", Method: "package", Plan: "instance", Source: "16.3", Target: "17.0", Status: StatusFailed, Error: "failed to dump", StartedAt: base.Add(time.Hour)},
	}
	for _, r := range records {
		require.NoError(s.T(), s.repo.Create(s.ctx, r))
	}
}

// TestList 按时间倒序并支持过滤与限制
func (s *RepositoryTestSuite) TestList() {
	s.seed()

	all, err := s.repo.List(s.ctx, "", 0)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("run-2", all[0].RunID)

	mainOnly, err := s.repo.List(s.ctx, "main", 0)
	s.Require().NoError(err)
	s.Len(mainOnly, 2)

	limited, err := s.repo.List(s.ctx, "", 1)
	s.Require().NoError(err)
	s.Len(limited, 1)
}

// TestListByRun 获取一次运行的记录
func (s *RepositoryTestSuite) TestListByRun() {
	s.seed()

	records, err := s.repo.ListByRun(s.ctx, "run-1")
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal("main", records[0].Instance)
	s.Equal(StatusSkipped, records[1].Status)
}

// TestLatestUpgraded 最近一次成功升级
func (s *RepositoryTestSuite) TestLatestUpgraded() {
	s.seed()

	record, err := s.repo.LatestUpgraded(s.ctx, "main")
	s.Require().NoError(err)
	s.Equal("16.3", record.Target)

	_, err = s.repo.LatestUpgraded(s.ctx, "reports")
	s.ErrorIs(err, gorm.ErrRecordNotFound)
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}

type failingRepository struct {
	Repository
}

func (failingRepository) Create(context.Context, *UpgradeRecord) error {
	return errors.New("database is locked")
}

func TestRecorderWarnsOnFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewRecorder(failingRepository{}, zap.New(core))

	r.Record(context.Background(), &UpgradeRecord{Instance: "main", Status: StatusUpgraded})

	entries := logs.FilterMessage("failed to record upgrade history").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "main", entries[0].ContextMap()["instance"])
}

func TestUpgradeRecordDuration(t *testing.T) {
	start := time.Now()
	r := &UpgradeRecord{StartedAt: start}
	assert.Zero(t, r.Duration())

	r.FinishedAt = start.Add(90 * time.Second)
	assert.Equal(t, 90*time.Second, r.Duration())
}
