package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cvision/internal/config"
	"cvision/internal/logger"
	"cvision/internal/storage/models"
	"cvision/internal/tracing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("cvision/storage/mysql")

type spanCtxKey struct{}

// GormTracingPlugin 为每次 GORM 操作创建一个客户端 span
type GormTracingPlugin struct {
	tracer trace.Tracer
	dbName string
}

// NewGormTracingPlugin 创建追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{tracer: mysqlTracer, dbName: dbName}
}

// Name 插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 在 create/query/update/delete/row/raw 前后挂载回调
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		op     string
		name   string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"INSERT", "create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"SELECT", "query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"UPDATE", "update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"DELETE", "delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"ROW", "row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"RAW", "raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		if err := h.before("otel:before_"+h.name, p.before(h.op)); err != nil {
			return err
		}
		if err := h.after("otel:after_"+h.name, p.after()); err != nil {
			return err
		}
	}
	return nil
}

func (p *GormTracingPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		ctx, span := p.tracer.Start(ctx, operation+" "+table,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", table),
			),
		)
		db.Statement.Context = context.WithValue(ctx, spanCtxKey{}, span)
	}
}

func (p *GormTracingPlugin) after() func(*gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(spanCtxKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
		if sql := db.Statement.SQL.String(); sql != "" {
			span.SetAttributes(attribute.String("db.statement", tracing.SafeSQL(sql)))
		}
		switch {
		case db.Error == nil:
			span.SetStatus(codes.Ok, "")
		case errors.Is(db.Error, gorm.ErrRecordNotFound):
			// 查不到是正常业务结果
			span.SetAttributes(attribute.String("error.type", "record_not_found"))
			span.SetStatus(codes.Ok, "record not found")
		default:
			span.RecordError(db.Error)
			span.SetAttributes(attribute.String("error.type", "database_error"))
			span.SetStatus(codes.Error, db.Error.Error())
		}
	}
}

// MySQL 简历、岗位和 outbox 的持久化
type MySQL struct {
	db     *gorm.DB
	cfg    *config.MySQLConfig
	logger zerolog.Logger
}

// BuildDSN DSN 非空时直接使用，否则由分项拼接
func BuildDSN(cfg *config.MySQLConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

func gormLogLevel(level int) gormlogger.LogLevel {
	switch level {
	case 1:
		return gormlogger.Silent
	case 2:
		return gormlogger.Error
	case 3:
		return gormlogger.Warn
	default:
		return gormlogger.Info
	}
}

// NewMySQL 连接 MySQL、注册追踪插件并自动迁移表结构
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	db, err := gorm.Open(mysql.Open(BuildDSN(cfg)), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
		PrepareStmt:                              true,
	})
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	err = db.Session(&gorm.Session{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}).AutoMigrate(
		&models.ParsedResume{},
		&models.JobRequirement{},
		&models.OutboxMessage{},
	)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	m := &MySQL{db: db, cfg: cfg, logger: logger.Component("mysql")}
	m.logger.Info().Str("database", cfg.Database).Msg("成功连接到MySQL并完成表结构迁移")
	return m, nil
}

// DB 底层 GORM 实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭连接池
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// SaveResume 写入简历，同一事务内写入 outbox 事件。重复提交同一 ResumeID 时整体覆盖
func (m *MySQL) SaveResume(ctx context.Context, resume *models.ParsedResume, event *models.OutboxMessage) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(resume).Error; err != nil {
			return fmt.Errorf("保存简历 %s 失败: %w", resume.ResumeID, err)
		}
		if event == nil {
			return nil
		}
		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("写入 outbox 事件失败: %w", err)
		}
		return nil
	})
}

// UpdateResumeFields 部分更新简历字段
func (m *MySQL) UpdateResumeFields(ctx context.Context, resumeID string, updates map[string]interface{}) error {
	return m.db.WithContext(ctx).Model(&models.ParsedResume{}).
		Where("resume_id = ?", resumeID).
		Updates(updates).Error
}

// GetResume 按 ID 查询简历
func (m *MySQL) GetResume(ctx context.Context, resumeID string) (*models.ParsedResume, error) {
	var r models.ParsedResume
	if err := m.db.WithContext(ctx).Where("resume_id = ?", resumeID).First(&r).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// GetResumeByMD5 按文件 MD5 查询，Redis 不可用时用于去重
func (m *MySQL) GetResumeByMD5(ctx context.Context, md5Hex string) (*models.ParsedResume, error) {
	var r models.ParsedResume
	if err := m.db.WithContext(ctx).Select("resume_id", "file_md5").Where("file_md5 = ?", md5Hex).First(&r).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// GetResumesByIDs 批量查询，结果顺序与 ids 一致，不存在的 ID 被跳过
func (m *MySQL) GetResumesByIDs(ctx context.Context, ids []string) ([]models.ParsedResume, error) {
	if len(ids) == 0 {
		return []models.ParsedResume{}, nil
	}
	var rows []models.ParsedResume
	if err := m.db.WithContext(ctx).Where("resume_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]models.ParsedResume, len(rows))
	for _, r := range rows {
		byID[r.ResumeID] = r
	}
	out := make([]models.ParsedResume, 0, len(rows))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListResumes 分页列出最近的简历
func (m *MySQL) ListResumes(ctx context.Context, limit, offset int) ([]models.ParsedResume, error) {
	var rows []models.ParsedResume
	err := m.db.WithContext(ctx).
		Omit("resume_json", "embeddings_json").
		Order("created_at desc").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	return rows, err
}

// CreateJob 新建岗位需求
func (m *MySQL) CreateJob(ctx context.Context, job *models.JobRequirement) error {
	return m.db.WithContext(ctx).Create(job).Error
}

// GetJob 按 ID 查询岗位
func (m *MySQL) GetJob(ctx context.Context, jobID string) (*models.JobRequirement, error) {
	var j models.JobRequirement
	if err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&j).Error; err != nil {
		return nil, notFound(err)
	}
	return &j, nil
}

// UpdateJobStatus 更新岗位状态，errMsg 为空时清空错误信息
func (m *MySQL) UpdateJobStatus(ctx context.Context, jobID, status, errMsg string) error {
	res := m.db.WithContext(ctx).Model(&models.JobRequirement{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{"status": status, "error_message": errMsg})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveJobEmbeddings 写入岗位视图和向量并置为 completed，同一事务内写入 outbox 事件
func (m *MySQL) SaveJobEmbeddings(ctx context.Context, jobID string, views, embeddings datatypes.JSON, status string, event *models.OutboxMessage) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.JobRequirement{}).
			Where("job_id = ?", jobID).
			Updates(map[string]interface{}{
				"views_json":      views,
				"embeddings_json": embeddings,
				"status":          status,
				"error_message":   "",
			})
		if res.Error != nil {
			return fmt.Errorf("保存岗位 %s 向量失败: %w", jobID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if event == nil {
			return nil
		}
		return tx.Create(event).Error
	})
}

// ProcessPendingOutbox 锁定一批 PENDING 消息交给 handle 处理，然后在同一事务内保存处理结果。
// 使用 FOR UPDATE SKIP LOCKED，多实例 relay 不会拿到同一条消息。
func (m *MySQL) ProcessPendingOutbox(ctx context.Context, limit int, handle func(ctx context.Context, msg *models.OutboxMessage)) (int, error) {
	processed := 0
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var messages []models.OutboxMessage
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", models.OutboxStatusPending).
			Order("created_at asc").
			Limit(limit).
			Find(&messages).Error
		if err != nil {
			return fmt.Errorf("获取待投递 outbox 消息失败: %w", err)
		}
		for i := range messages {
			handle(ctx, &messages[i])
			if err := tx.Save(&messages[i]).Error; err != nil {
				return fmt.Errorf("更新 outbox 消息 %d 失败: %w", messages[i].ID, err)
			}
			processed++
		}
		return nil
	})
	return processed, err
}
