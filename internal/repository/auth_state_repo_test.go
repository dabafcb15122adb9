package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"spapi_partner_v1_202608/internal/model"
)

// ==================== 测试辅助 ====================

func setupStateTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}

	db.AutoMigrate(&model.AuthState{})
	return db
}

// ==================== 单元测试 ====================

func TestAuthStateRepo_ConsumeOnce(t *testing.T) {
	db := setupStateTestDB(t)
	repo := NewAuthStateRepository(db)
	ctx := context.Background()

	state := &model.AuthState{
		Token:     "state_token_abc",
		ExpiresAt: time.Now().Add(10 * time.Minute),
		PartnerID: "p-1",
	}
	if err := repo.Save(ctx, state); err != nil {
		t.Fatalf("保存 state 失败: %v", err)
	}

	// 第一次消费成功
	got, err := repo.Consume(ctx, "state_token_abc")
	if err != nil {
		t.Fatalf("消费 state 失败: %v", err)
	}
	if got.PartnerID != "p-1" {
		t.Errorf("partner_id = %s, want p-1", got.PartnerID)
	}

	// 读后即删：第二次消费必须失败
	_, err = repo.Consume(ctx, "state_token_abc")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("重复消费应返回 ErrRecordNotFound, got %v", err)
	}
}

func TestAuthStateRepo_ExpiredBehavesAsNotFound(t *testing.T) {
	db := setupStateTestDB(t)

	// 注入可控时钟
	current := time.Now()
	repo := NewAuthStateRepositoryWithClock(db, func() time.Time { return current })
	ctx := context.Background()

	state := &model.AuthState{
		Token:     "state_5min",
		ExpiresAt: current.Add(5 * time.Minute),
	}
	if err := repo.Save(ctx, state); err != nil {
		t.Fatalf("保存 state 失败: %v", err)
	}

	// 时间拨过 TTL
	current = current.Add(6 * time.Minute)

	_, err := repo.Consume(ctx, "state_5min")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("过期 state 应视同不存在, got %v", err)
	}
}

func TestAuthStateRepo_UnknownToken(t *testing.T) {
	db := setupStateTestDB(t)
	repo := NewAuthStateRepository(db)

	_, err := repo.Consume(context.Background(), "never_issued")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("未知 state 应返回 ErrRecordNotFound, got %v", err)
	}
}

func TestAuthStateRepo_PurgeExpired(t *testing.T) {
	db := setupStateTestDB(t)

	current := time.Now()
	repo := NewAuthStateRepositoryWithClock(db, func() time.Time { return current })
	ctx := context.Background()

	repo.Save(ctx, &model.AuthState{Token: "old_1", ExpiresAt: current.Add(-1 * time.Minute)})
	repo.Save(ctx, &model.AuthState{Token: "old_2", ExpiresAt: current.Add(-1 * time.Hour)})
	repo.Save(ctx, &model.AuthState{Token: "alive", ExpiresAt: current.Add(10 * time.Minute)})

	n, err := repo.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("清理失败: %v", err)
	}
	if n != 2 {
		t.Errorf("清理条数 = %d, want 2", n)
	}

	// 活着的还在
	if _, err := repo.Consume(ctx, "alive"); err != nil {
		t.Errorf("未过期 state 不应被清理: %v", err)
	}
}
