package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"spapi_partner_v1_202608/internal/model"
)

// ==================== 接口定义 ====================

// TokenHistoryRepository token 变更审计仓储接口（只追加）
type TokenHistoryRepository interface {
	Append(ctx context.Context, entry *model.TokenHistory) error
	ListByPartner(ctx context.Context, partnerID string, limit int) ([]model.TokenHistory, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ==================== 仓储实现 ====================

type tokenHistoryRepo struct {
	db *gorm.DB
}

// NewTokenHistoryRepository 创建审计仓储
func NewTokenHistoryRepository(db *gorm.DB) TokenHistoryRepository {
	return &tokenHistoryRepo{db: db}
}

func (r *tokenHistoryRepo) Append(ctx context.Context, entry *model.TokenHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *tokenHistoryRepo) ListByPartner(ctx context.Context, partnerID string, limit int) ([]model.TokenHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []model.TokenHistory
	err := r.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// PurgeBefore 删除保留期之外的记录（保留期长，默认两年，见 cleanup 任务）
func (r *tokenHistoryRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&model.TokenHistory{})
	return result.RowsAffected, result.Error
}
