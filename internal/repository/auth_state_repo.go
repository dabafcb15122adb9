package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"spapi_partner_v1_202608/internal/model"
)

// ==================== 接口定义 ====================

// AuthStateRepository 防伪造 state 仓储接口
// Consume 为读后即删：同一个 state 第二次消费返回 gorm.ErrRecordNotFound
type AuthStateRepository interface {
	Save(ctx context.Context, state *model.AuthState) error
	Consume(ctx context.Context, token string) (*model.AuthState, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// ==================== 仓储实现 ====================

type authStateRepo struct {
	db  *gorm.DB
	now func() time.Time // 注入时钟，测试可控
}

// NewAuthStateRepository 创建 state 仓储
func NewAuthStateRepository(db *gorm.DB) AuthStateRepository {
	return &authStateRepo{db: db, now: time.Now}
}

// NewAuthStateRepositoryWithClock 指定时钟的工厂方法（测试用）
func NewAuthStateRepositoryWithClock(db *gorm.DB, now func() time.Time) AuthStateRepository {
	return &authStateRepo{db: db, now: now}
}

func (r *authStateRepo) Save(ctx context.Context, state *model.AuthState) error {
	return r.db.WithContext(ctx).Create(state).Error
}

// Consume 取出并删除 state
// 已过期的记录即使还在表里也视同不存在
func (r *authStateRepo) Consume(ctx context.Context, token string) (*model.AuthState, error) {
	var state model.AuthState
	err := r.db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, r.now()).
		First(&state).Error
	if err != nil {
		return nil, err
	}

	// 用完即焚，防止同一个 state 被重放
	if err := r.db.WithContext(ctx).Delete(&model.AuthState{}, "token = ?", token).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// PurgeExpired 清理过期 state，由定时任务调用
func (r *authStateRepo) PurgeExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", r.now()).
		Delete(&model.AuthState{})
	return result.RowsAffected, result.Error
}
