package task

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"spapi_partner_v1_202608/internal/model"
	"spapi_partner_v1_202608/internal/repository"
	"spapi_partner_v1_202608/internal/service"
)

// TokenTask Token 保活定时任务
// 周期性刷新已授权 partner 的 refresh token：既保证凭证可用，
// 也能尽早发现被亚马逊作废的 token（invalid_grant 会把 partner 打回待授权）
type TokenTask struct {
	PartnerRepo repository.PartnerRepository
	AuthFlow    *service.AuthFlowService
	Cron        *cron.Cron

	// 距上次刷新超过该间隔才纳入本轮
	staleAfter time.Duration

	// 控制并发探测的数量，防止触发 LWA 限流
	concurrencyLimit int
	sleepTime        time.Duration
}

// NewTokenTask 工厂方法
func NewTokenTask(partnerRepo repository.PartnerRepository, authFlow *service.AuthFlowService) *TokenTask {
	return &TokenTask{
		PartnerRepo:      partnerRepo,
		AuthFlow:         authFlow,
		Cron:             cron.New(cron.WithSeconds()), // 支持秒级控制
		staleAfter:       40 * time.Minute,
		concurrencyLimit: 20,
		sleepTime:        50 * time.Millisecond, // 每个协程启动间隔，平滑波峰
	}
}

// Start 启动定时任务
func (t *TokenTask) Start() {
	// 首次执行
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		log.Println("[Task] 服务启动，正在执行首次 Token 检查...")
		t.refreshJob(ctx)
	}()

	// 定时策略
	_, err := t.Cron.AddFunc("0 0/30 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		t.refreshJob(ctx)
	})
	if err != nil {
		log.Fatalf("无法启动 Token 定时任务: %v", err)
	}

	t.Cron.Start()
	log.Println("[Task] Token 保活任务已启动 (每30分钟检查一次)")
}

// Stop 停止定时任务
func (t *TokenTask) Stop() {
	t.Cron.Stop()
}

// RunOnce 执行一轮刷新
func (t *TokenTask) RunOnce(ctx context.Context) {
	t.refreshJob(ctx)
}

// refreshJob 自动刷新逻辑
func (t *TokenTask) refreshJob(ctx context.Context) {
	cutoff := time.Now().Add(-t.staleAfter)
	partners, err := t.PartnerRepo.ListStaleAuthorized(ctx, cutoff)
	if err != nil {
		log.Printf("[Cron] 待刷新 partner 查询失败: %v", err)
		return
	}

	// 1. 信号量通道控制并发上限
	sem := make(chan struct{}, t.concurrencyLimit)
	var wg sync.WaitGroup

	log.Printf("[Cron] 开始处理 %d 个 partner 的 Token 刷新，并发上限: %d", len(partners), t.concurrencyLimit)

	for i := range partners {
		// 检查上下文是否已取消（超时处理）
		select {
		case <-ctx.Done():
			log.Println("[Cron] 任务超时停止")
			return
		default:
		}

		// 2. 获取信号量（已满则阻塞，起到限流作用）
		sem <- struct{}{}
		wg.Add(1)

		// 3. 平滑波峰
		time.Sleep(t.sleepTime)

		partner := partners[i]
		go func(p model.Partner) {
			defer wg.Done()
			defer func() { <-sem }()

			// invalid_grant 在 service 层处理：partner 会被打回待授权
			if _, err := t.AuthFlow.RefreshPartnerToken(ctx, p.PartnerID, "scheduled"); err != nil {
				// 日志仅记录，不中断其他协程
				log.Printf("[Cron] partner [%s] 刷新失败: %v", p.PartnerID, err)
			}
		}(partner)
	}

	// 4. 等待所有 Goroutine 完成
	wg.Wait()
	log.Println("[Cron] 本轮 Token 刷新任务完成")
}
