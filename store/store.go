package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/meshflow/config"
	"github.com/BaSui01/meshflow/internal/database"
	"github.com/BaSui01/meshflow/types"
)

// =============================================================================
// 🗄️ 转换历史存储
// =============================================================================

// 转换记录状态
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ConversionRecord 单次转换的持久化记录
type ConversionRecord struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	SourceURL     string    `gorm:"not null" json:"source_url"`                                                      // GLB 资产来源地址
	OutputFormat  string    `gorm:"size:8;not null;index:idx_conversion_records_output_format" json:"output_format"` // stl 或 obj
	Filename      string    `gorm:"not null;default:''" json:"filename"`                                             // 下发给客户端的附件名
	Status        string    `gorm:"size:16;not null;index:idx_conversion_records_status" json:"status"`
	ErrorCode     string    `gorm:"size:64;not null;default:''" json:"error_code,omitempty"`
	ErrorMessage  string    `gorm:"not null;default:''" json:"error_message,omitempty"`
	TriangleCount int       `gorm:"not null;default:0" json:"triangle_count"`
	VertexCount   int       `gorm:"not null;default:0" json:"vertex_count"`
	InputBytes    int64     `gorm:"not null;default:0" json:"input_bytes"`  // 下载的 GLB 大小
	OutputBytes   int64     `gorm:"not null;default:0" json:"output_bytes"` // 导出结果大小
	DurationMS    int64     `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	CreatedAt     time.Time `gorm:"not null;index:idx_conversion_records_created_at" json:"created_at"`
}

// TableName 指定表名
func (ConversionRecord) TableName() string {
	return "conversion_records"
}

// StatusSummary 按状态聚合的计数
type StatusSummary struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// MetricsReporter 接收存储层的查询耗时与连接数指标。
type MetricsReporter interface {
	RecordDBQuery(database, operation string, duration time.Duration)
	RecordDBConnections(database string, open, idle int)
}

// Store 转换历史存储（封装 gorm）
type Store struct {
	db      *gorm.DB
	pool    *database.PoolManager
	logger  *zap.Logger
	driver  string
	metrics MetricsReporter
}

// Options 存储配置
type Options struct {
	DB     *gorm.DB
	Logger *zap.Logger

	// Pool 为 nil 时不做连接池管理（如测试场景）
	Pool *database.PoolManager

	// Driver 作为指标的 database 标签值，可留空
	Driver string
}

// New 基于已有 gorm 连接创建存储
func New(opts Options) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("db is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Driver == "" {
		opts.Driver = "unknown"
	}

	return &Store{
		db:     opts.DB,
		pool:   opts.Pool,
		logger: opts.Logger,
		driver: opts.Driver,
	}, nil
}

// Open 根据配置打开数据库并完成迁移
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Driver == "" {
		return nil, fmt.Errorf("database driver not configured")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, mysql, sqlite)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := InitDatabase(db); err != nil {
		return nil, err
	}

	poolCfg := database.DefaultPoolConfig()
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.ConnMaxLifetime = cfg.ConnMaxLifetime
	}

	pool, err := database.NewPoolManager(db, poolCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init connection pool: %w", err)
	}

	logger.Info("Database connected",
		zap.String("driver", cfg.Driver),
		zap.Int("max_open_conns", poolCfg.MaxOpenConns),
	)

	return &Store{
		db:     db,
		pool:   pool,
		logger: logger,
		driver: cfg.Driver,
	}, nil
}

// InitDatabase 自动迁移转换历史表结构
func InitDatabase(db *gorm.DB) error {
	if err := db.AutoMigrate(&ConversionRecord{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// AttachMetrics 注册指标收集器。之后每次查询上报一次耗时，
// 连接数快照由连接池的健康检查循环周期性上报。
// 应在开始服务请求之前调用。
func (s *Store) AttachMetrics(r MetricsReporter) {
	s.metrics = r
	if s.pool != nil {
		s.pool.SetReporter(s.driver, r)
	}
}

// observe 上报一次查询耗时，配合 defer 使用
func (s *Store) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(s.driver, op, time.Since(start))
	}
}

// DB 返回底层 gorm 连接
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping 检查数据库连通性
func (s *Store) Ping(ctx context.Context) error {
	if s.pool != nil {
		return s.pool.Ping(ctx)
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.pool != nil {
		return s.pool.Close()
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Create 写入一条转换记录
func (s *Store) Create(ctx context.Context, record *ConversionRecord) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	defer s.observe("create", time.Now())

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		s.logger.Error("Failed to persist conversion record",
			zap.String("id", record.ID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to create conversion record: %w", err)
	}
	return nil
}

// GetByID 按 ID 查询转换记录
func (s *Store) GetByID(ctx context.Context, id string) (*ConversionRecord, error) {
	defer s.observe("get_by_id", time.Now())

	var record ConversionRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrNotFound,
				fmt.Sprintf("conversion record not found: %s", id))
		}
		return nil, fmt.Errorf("failed to query conversion record: %w", err)
	}
	return &record, nil
}

// ListRecent 按时间倒序返回最近的转换记录
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ConversionRecord, error) {
	defer s.observe("list_recent", time.Now())

	if limit <= 0 {
		limit = 50
	}

	var records []ConversionRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversion records: %w", err)
	}
	return records, nil
}

// ListByStatus 按状态过滤转换记录
func (s *Store) ListByStatus(ctx context.Context, status string, limit int) ([]ConversionRecord, error) {
	defer s.observe("list_by_status", time.Now())

	if limit <= 0 {
		limit = 50
	}

	var records []ConversionRecord
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversion records: %w", err)
	}
	return records, nil
}

// CountByStatus 按状态聚合记录数
func (s *Store) CountByStatus(ctx context.Context) ([]StatusSummary, error) {
	defer s.observe("count_by_status", time.Now())

	var summaries []StatusSummary
	err := s.db.WithContext(ctx).
		Model(&ConversionRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Order("status").
		Scan(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count conversion records: %w", err)
	}
	return summaries, nil
}

// Purge 删除早于给定时间的记录，返回删除数量
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	defer s.observe("purge", time.Now())

	result := s.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&ConversionRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge conversion records: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.logger.Info("Purged conversion records",
			zap.Int64("count", result.RowsAffected),
			zap.Time("before", before),
		)
	}
	return result.RowsAffected, nil
}
