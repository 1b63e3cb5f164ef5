package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"match-engine-go/internal/constants"
	"match-engine-go/internal/storage/models"
)

// ProfileRepository 档案存储；创建和编辑时在同一事务内写入 profile.changed 发件箱消息
type ProfileRepository struct {
	mysql      *MySQL
	exchange   string
	routingKey string
}

// NewProfileRepository 创建档案存储
func NewProfileRepository(m *MySQL, exchange, routingKey string) *ProfileRepository {
	return &ProfileRepository{mysql: m, exchange: exchange, routingKey: routingKey}
}

// CreateProfile 新建档案，版本从 1 开始
func (r *ProfileRepository) CreateProfile(ctx context.Context, userID string, data map[string]any) (*models.Profile, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成UUIDv7失败: %w", err)
	}
	raw, err := models.RecordToJSON(data)
	if err != nil {
		return nil, err
	}

	p := &models.Profile{
		ProfileID: id.String(),
		UserID:    userID,
		Version:   1,
		Data:      raw,
	}
	err = r.mysql.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("创建档案失败: %w", err)
		}
		return r.enqueueChanged(tx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProfile 覆盖档案内容并递增版本；档案不存在或不属于该用户时返回 ErrNotFound
func (r *ProfileRepository) UpdateProfile(ctx context.Context, userID, profileID string, data map[string]any) (*models.Profile, error) {
	raw, err := models.RecordToJSON(data)
	if err != nil {
		return nil, err
	}

	var p models.Profile
	err = r.mysql.Transaction(ctx, func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("profile_id = ? AND user_id = ?", profileID, userID).
			First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("查询档案失败: %w", err)
		}

		p.Data = raw
		p.Version++
		if err := tx.Save(&p).Error; err != nil {
			return fmt.Errorf("更新档案失败: %w", err)
		}
		return r.enqueueChanged(tx, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile 查询用户自己的档案
func (r *ProfileRepository) GetProfile(ctx context.Context, userID, profileID string) (*models.Profile, error) {
	var p models.Profile
	err := r.mysql.DB().WithContext(ctx).
		Where("profile_id = ? AND user_id = ?", profileID, userID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询档案失败: %w", err)
	}
	return &p, nil
}

// ListProfiles 列出用户的全部档案，按创建时间升序
func (r *ProfileRepository) ListProfiles(ctx context.Context, userID string) ([]models.Profile, error) {
	var profiles []models.Profile
	err := r.mysql.DB().WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").Order("profile_id asc").
		Find(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("查询档案列表失败: %w", err)
	}
	return profiles, nil
}

func (r *ProfileRepository) enqueueChanged(tx *gorm.DB, p *models.Profile) error {
	payload, err := json.Marshal(ProfileChangedEvent{
		UserID:    p.UserID,
		ProfileID: p.ProfileID,
		Version:   p.Version,
		ChangedAt: p.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("序列化档案事件失败: %w", err)
	}

	msg := &models.OutboxMessage{
		AggregateID:      p.ProfileID,
		EventType:        constants.EventProfileChanged,
		Payload:          string(payload),
		TargetExchange:   r.exchange,
		TargetRoutingKey: r.routingKey,
		Status:           constants.OutboxStatusPending,
	}
	if err := tx.Create(msg).Error; err != nil {
		return fmt.Errorf("写入发件箱失败: %w", err)
	}
	return nil
}
