package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"match-engine-go/internal/constants"
	"match-engine-go/internal/storage/models"
	"match-engine-go/internal/tracing"
)

// UpsertJobMatch 写入持久层匹配结果，同一 (user_id, profile_id) 后写覆盖先写
func (m *MySQL) UpsertJobMatch(ctx context.Context, match *models.JobMatch) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.UpsertJobMatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemMySQL,
			attribute.String("db.name", m.dbName),
			attribute.String("db.operation", "INSERT_ON_DUPLICATE"),
			attribute.String("db.sql.table", "job_matches"),
		))
	defer span.End()

	if match.UpdatedAt.IsZero() {
		match.UpdatedAt = time.Now().UTC()
	}
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "profile_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "matches", "updated_at"}),
	}).Create(match).Error
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return fmt.Errorf("写入匹配结果失败: %w", err)
	}
	return nil
}

// GetJobMatch 读取持久层匹配结果，不存在时返回 ErrNotFound
func (m *MySQL) GetJobMatch(ctx context.Context, userID, profileID string) (*models.JobMatch, error) {
	var match models.JobMatch
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND profile_id = ?", userID, profileID).
		First(&match).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询匹配结果失败: %w", err)
	}
	return &match, nil
}

// DeleteJobMatch 删除持久层匹配结果，记录不存在不算错误
func (m *MySQL) DeleteJobMatch(ctx context.Context, userID, profileID string) error {
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND profile_id = ?", userID, profileID).
		Delete(&models.JobMatch{}).Error
	if err != nil {
		return fmt.Errorf("删除匹配结果失败: %w", err)
	}
	return nil
}

// DeleteStaleJobMatches 删除 before 之前更新的匹配结果
func (m *MySQL) DeleteStaleJobMatches(ctx context.Context, before time.Time) (int64, error) {
	res := m.db.WithContext(ctx).
		Where("updated_at < ?", before).
		Delete(&models.JobMatch{})
	if res.Error != nil {
		return 0, fmt.Errorf("清理过期匹配结果失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeSentOutbox 删除 before 之前已投递的发件箱消息
func (m *MySQL) PurgeSentOutbox(ctx context.Context, before time.Time) (int64, error) {
	res := m.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", constants.OutboxStatusSent, before).
		Delete(&models.OutboxMessage{})
	if res.Error != nil {
		return 0, fmt.Errorf("清理发件箱失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}
