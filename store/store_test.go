package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/BaSui01/meshflow/config"
	"github.com/BaSui01/meshflow/types"
)

func setupTestStore(t *testing.T) *Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, InitDatabase(db))

	s, err := New(Options{DB: db, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return s
}

func succeededRecord(format string) *ConversionRecord {
	return &ConversionRecord{
		ID:            uuid.New().String(),
		SourceURL:     "https://assets.example.com/model.glb",
		OutputFormat:  format,
		Filename:      fmt.Sprintf("converted_model_1700000000.%s", format),
		Status:        StatusSucceeded,
		TriangleCount: 12,
		VertexCount:   24,
		InputBytes:    4096,
		OutputBytes:   684,
		DurationMS:    135,
	}
}

func TestNew_RequiresDB(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db is required")
}

func TestStore_CreateAndGetByID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	record := succeededRecord("stl")
	require.NoError(t, s.Create(ctx, record))

	// CreatedAt 应被自动填充
	assert.False(t, record.CreatedAt.IsZero())

	got, err := s.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, "https://assets.example.com/model.glb", got.SourceURL)
	assert.Equal(t, "stl", got.OutputFormat)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, 12, got.TriangleCount)
	assert.Equal(t, 24, got.VertexCount)
	assert.Equal(t, int64(684), got.OutputBytes)
}

func TestStore_CreateValidation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.Create(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record is required")

	err = s.Create(ctx, &ConversionRecord{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record id is required")
}

func TestStore_GetByID_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetByID(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestStore_ListRecent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		record := succeededRecord("stl")
		record.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		record.Filename = fmt.Sprintf("converted_model_%d.stl", i)
		require.NoError(t, s.Create(ctx, record))
	}

	records, err := s.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// 按时间倒序，最新的在前
	assert.Equal(t, "converted_model_4.stl", records[0].Filename)
	assert.Equal(t, "converted_model_3.stl", records[1].Filename)
	assert.Equal(t, "converted_model_2.stl", records[2].Filename)
}

func TestStore_ListRecent_DefaultLimit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, succeededRecord("obj")))

	records, err := s.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStore_ListByStatus(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, succeededRecord("stl")))

	failed := succeededRecord("obj")
	failed.Status = StatusFailed
	failed.ErrorCode = string(types.ErrDecodeError)
	failed.ErrorMessage = "invalid or corrupt GLB file"
	require.NoError(t, s.Create(ctx, failed))

	records, err := s.ListByStatus(ctx, StatusFailed, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(types.ErrDecodeError), records[0].ErrorCode)
	assert.Equal(t, "obj", records[0].OutputFormat)
}

func TestStore_CountByStatus(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Create(ctx, succeededRecord("stl")))
	}
	failed := succeededRecord("obj")
	failed.Status = StatusFailed
	require.NoError(t, s.Create(ctx, failed))

	summaries, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	counts := make(map[string]int64)
	for _, summary := range summaries {
		counts[summary.Status] = summary.Count
	}
	assert.Equal(t, int64(3), counts[StatusSucceeded])
	assert.Equal(t, int64(1), counts[StatusFailed])
}

func TestStore_Purge(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	old := succeededRecord("stl")
	old.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, old))

	recent := succeededRecord("obj")
	recent.CreatedAt = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, recent))

	deleted, err := s.Purge(ctx, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	records, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, recent.ID, records[0].ID)
}

func TestStore_PingAndClose(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
}

func TestOpen_Sqlite(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cfg := config.DatabaseConfig{
		Driver:       "sqlite",
		Name:         filepath.Join(t.TempDir(), "meshflow_test.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}

	s, err := Open(cfg, logger)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	record := succeededRecord("stl")
	require.NoError(t, s.Create(ctx, record))

	got, err := s.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.Filename, got.Filename)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestOpen_MissingDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database driver not configured")
}

func TestConversionRecord_TableName(t *testing.T) {
	assert.Equal(t, "conversion_records", ConversionRecord{}.TableName())
}

// stubReporter 按调用顺序记录上报的操作名与 database 标签
type stubReporter struct {
	ops []string
	dbs []string
}

func (r *stubReporter) RecordDBQuery(database, operation string, duration time.Duration) {
	r.dbs = append(r.dbs, database)
	r.ops = append(r.ops, operation)
}

func (r *stubReporter) RecordDBConnections(database string, open, idle int) {}

func TestStore_AttachMetrics_RecordsQueryDurations(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	reporter := &stubReporter{}
	s.AttachMetrics(reporter)

	record := succeededRecord("stl")
	require.NoError(t, s.Create(ctx, record))

	_, err := s.GetByID(ctx, record.ID)
	require.NoError(t, err)

	_, err = s.ListRecent(ctx, 5)
	require.NoError(t, err)

	// 查询失败同样计入耗时
	_, err = s.GetByID(ctx, "no-such-id")
	require.Error(t, err)

	assert.Equal(t, []string{"create", "get_by_id", "list_recent", "get_by_id"}, reporter.ops)

	// 未指定 Driver 时标签回退为 unknown
	for _, db := range reporter.dbs {
		assert.Equal(t, "unknown", db)
	}
}

func TestStore_AttachMetrics_UsesDriverLabel(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, InitDatabase(db))

	s, err := New(Options{DB: db, Logger: zaptest.NewLogger(t), Driver: "sqlite"})
	require.NoError(t, err)

	reporter := &stubReporter{}
	s.AttachMetrics(reporter)

	require.NoError(t, s.Create(context.Background(), succeededRecord("obj")))
	assert.Equal(t, []string{"sqlite"}, reporter.dbs)
}
