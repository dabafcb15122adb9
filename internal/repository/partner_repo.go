package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"spapi_partner_v1_202608/internal/model"
)

// ==================== 接口定义 ====================

// PartnerRepository 合作方仓储接口
type PartnerRepository interface {
	Create(ctx context.Context, partner *model.Partner) error
	GetByID(ctx context.Context, id int64) (*model.Partner, error)
	GetByPartnerID(ctx context.Context, partnerID string) (*model.Partner, error)
	GetByAmazonID(ctx context.Context, amazonID string) (*model.Partner, error)
	GetByClientID(ctx context.Context, clientID string) (*model.Partner, error)
	Update(ctx context.Context, partner *model.Partner) error
	UpdateFields(ctx context.Context, partnerID string, fields map[string]interface{}) error
	Delete(ctx context.Context, partnerID string) error

	// 列表查询
	List(ctx context.Context, filter PartnerFilter) ([]model.Partner, int64, error)
	ListByStatus(ctx context.Context, status string) ([]model.Partner, error)
	ListStaleAuthorized(ctx context.Context, cutoff time.Time) ([]model.Partner, error)

	// 状态相关
	UpdateStatus(ctx context.Context, partnerID string, status string) error
	UpdateTokens(ctx context.Context, partnerID string, refreshToken string, refreshedAt time.Time) error
	UpdateSecretPair(ctx context.Context, partnerID string, newSecret string, newExpiry *time.Time, oldSecret string, oldExpiry *time.Time) error
}

// ==================== 过滤条件 ====================

// PartnerFilter 合作方过滤条件
type PartnerFilter struct {
	Type     string // 空串表示不筛选
	AuthType string
	Status   string
	AmazonID string
	Page     int
	PageSize int
}

// ==================== 仓储实现 ====================

type partnerRepo struct {
	db *gorm.DB
}

// NewPartnerRepository 创建合作方仓储
func NewPartnerRepository(db *gorm.DB) PartnerRepository {
	return &partnerRepo{db: db}
}

func (r *partnerRepo) Create(ctx context.Context, partner *model.Partner) error {
	return r.db.WithContext(ctx).Create(partner).Error
}

func (r *partnerRepo) GetByID(ctx context.Context, id int64) (*model.Partner, error) {
	var partner model.Partner
	if err := r.db.WithContext(ctx).First(&partner, id).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *partnerRepo) GetByPartnerID(ctx context.Context, partnerID string) (*model.Partner, error) {
	var partner model.Partner
	if err := r.db.WithContext(ctx).Where("partner_id = ?", partnerID).First(&partner).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *partnerRepo) GetByAmazonID(ctx context.Context, amazonID string) (*model.Partner, error) {
	var partner model.Partner
	if err := r.db.WithContext(ctx).Where("amazon_id = ?", amazonID).First(&partner).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}

// GetByClientID 按 LWA clientId 查找（密钥轮换通知按 clientId 定位归属）
func (r *partnerRepo) GetByClientID(ctx context.Context, clientID string) (*model.Partner, error) {
	var partner model.Partner
	if err := r.db.WithContext(ctx).Where("client_id = ?", clientID).First(&partner).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *partnerRepo) Update(ctx context.Context, partner *model.Partner) error {
	return r.db.WithContext(ctx).Save(partner).Error
}

func (r *partnerRepo) UpdateFields(ctx context.Context, partnerID string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Partner{}).Where("partner_id = ?", partnerID).Updates(fields).Error
}

func (r *partnerRepo) Delete(ctx context.Context, partnerID string) error {
	return r.db.WithContext(ctx).Where("partner_id = ?", partnerID).Delete(&model.Partner{}).Error
}

func (r *partnerRepo) List(ctx context.Context, filter PartnerFilter) ([]model.Partner, int64, error) {
	var partners []model.Partner
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Partner{})

	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.AuthType != "" {
		query = query.Where("auth_type = ?", filter.AuthType)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.AmazonID != "" {
		query = query.Where("amazon_id = ?", filter.AmazonID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	offset := (filter.Page - 1) * filter.PageSize
	if err := query.Order("created_at DESC").Limit(filter.PageSize).Offset(offset).Find(&partners).Error; err != nil {
		return nil, 0, err
	}

	return partners, total, nil
}

func (r *partnerRepo) ListByStatus(ctx context.Context, status string) ([]model.Partner, error) {
	var partners []model.Partner
	err := r.db.WithContext(ctx).
		Model(&model.Partner{}).
		Where("status = ?", status).
		Find(&partners).Error
	return partners, err
}

// ListStaleAuthorized 查出刷新时间早于 cutoff（或从未刷新）的已授权 partner
// Token 保活任务据此挑出需要探测的对象
func (r *partnerRepo) ListStaleAuthorized(ctx context.Context, cutoff time.Time) ([]model.Partner, error) {
	var partners []model.Partner
	err := r.db.WithContext(ctx).
		Model(&model.Partner{}).
		Where("status = ? AND refresh_token <> ''", model.StatusAuthorized).
		Where("last_token_refresh_at IS NULL OR last_token_refresh_at < ?", cutoff).
		Find(&partners).Error
	return partners, err
}

func (r *partnerRepo) UpdateStatus(ctx context.Context, partnerID string, status string) error {
	return r.db.WithContext(ctx).
		Model(&model.Partner{}).
		Where("partner_id = ?", partnerID).
		Update("status", status).Error
}

// UpdateTokens 回写 refresh token 和刷新时间
func (r *partnerRepo) UpdateTokens(ctx context.Context, partnerID string, refreshToken string, refreshedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Partner{}).
		Where("partner_id = ?", partnerID).
		Updates(map[string]interface{}{
			"refresh_token":         refreshToken,
			"last_token_refresh_at": refreshedAt,
		}).Error
}

// UpdateSecretPair 原子替换密钥对：新密钥上位，旧密钥连同过期时间保留宽限
func (r *partnerRepo) UpdateSecretPair(ctx context.Context, partnerID string, newSecret string, newExpiry *time.Time, oldSecret string, oldExpiry *time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Partner{}).
		Where("partner_id = ?", partnerID).
		Updates(map[string]interface{}{
			"client_secret":            newSecret,
			"client_secret_expiry":     newExpiry,
			"old_client_secret":        oldSecret,
			"old_client_secret_expiry": oldExpiry,
		}).Error
}
