package task

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"spapi_partner_v1_202608/internal/repository"
)

// CleanupTask 存储清理任务
// 每小时清一次过期 state；每天清一次超出保留期的 token 审计
type CleanupTask struct {
	StateRepo   repository.AuthStateRepository
	HistoryRepo repository.TokenHistoryRepository
	Cron        *cron.Cron

	historyRetention time.Duration
}

// NewCleanupTask 工厂方法
func NewCleanupTask(stateRepo repository.AuthStateRepository, historyRepo repository.TokenHistoryRepository) *CleanupTask {
	return &CleanupTask{
		StateRepo:   stateRepo,
		HistoryRepo: historyRepo,
		Cron:        cron.New(cron.WithSeconds()),
		// 审计保留两年
		historyRetention: 2 * 365 * 24 * time.Hour,
	}
}

// Start 启动定时任务
func (t *CleanupTask) Start() {
	// 整点清理过期 state
	_, err := t.Cron.AddFunc("0 0 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		t.purgeStates(ctx)
	})
	if err != nil {
		log.Fatalf("无法启动 state 清理任务: %v", err)
	}

	// 每天凌晨 3 点清理过期审计
	_, err = t.Cron.AddFunc("0 0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		t.purgeHistory(ctx)
	})
	if err != nil {
		log.Fatalf("无法启动审计清理任务: %v", err)
	}

	t.Cron.Start()
	log.Println("[Task] 存储清理任务已启动")
}

// Stop 停止定时任务
func (t *CleanupTask) Stop() {
	t.Cron.Stop()
}

func (t *CleanupTask) purgeStates(ctx context.Context) {
	n, err := t.StateRepo.PurgeExpired(ctx)
	if err != nil {
		log.Printf("[Cron] 清理过期 state 失败: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[Cron] 已清理过期 state %d 条", n)
	}
}

func (t *CleanupTask) purgeHistory(ctx context.Context) {
	cutoff := time.Now().Add(-t.historyRetention)
	n, err := t.HistoryRepo.PurgeBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[Cron] 清理 token 审计失败: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[Cron] 已清理 %s 之前的 token 审计 %d 条", cutoff.Format("2006-01-02"), n)
	}
}
