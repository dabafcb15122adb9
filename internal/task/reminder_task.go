package task

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"spapi_partner_v1_202608/internal/model"
	"spapi_partner_v1_202608/internal/repository"
	"spapi_partner_v1_202608/internal/service"
)

// ReminderTask 停用提醒定时任务
// 每天扫一遍 MARKED_INACTIVE 的 partner，距上次提醒满间隔的逐个发送；
// 探测到 401/invalid_grant 时把 partner 流转到 AUTHORIZATION_REVOKED
type ReminderTask struct {
	PartnerRepo repository.PartnerRepository
	Reminder    *service.ReminderService
	Status      *service.StatusService
	Cron        *cron.Cron

	// 两次提醒之间的最小间隔
	reminderInterval time.Duration

	// 单实例防重入：一轮没跑完（或没放弃）之前不允许下一轮开始
	running atomic.Bool
}

// NewReminderTask 工厂方法
func NewReminderTask(partnerRepo repository.PartnerRepository, reminder *service.ReminderService, status *service.StatusService) *ReminderTask {
	return &ReminderTask{
		PartnerRepo:      partnerRepo,
		Reminder:         reminder,
		Status:           status,
		Cron:             cron.New(cron.WithSeconds()),
		reminderInterval: 7 * 24 * time.Hour,
	}
}

// Start 启动定时任务
func (t *ReminderTask) Start() {
	// 每天凌晨 2 点执行
	_, err := t.Cron.AddFunc("0 0 2 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		t.RunOnce(ctx)
	})
	if err != nil {
		log.Fatalf("无法启动停用提醒任务: %v", err)
	}

	t.Cron.Start()
	log.Println("[Task] 停用提醒任务已启动 (每天 02:00 扫描)")
}

// Stop 停止定时任务
func (t *ReminderTask) Stop() {
	t.Cron.Stop()
}

// RunOnce 执行一轮扫描
// partner 逐个串行处理：单个失败记日志后继续，留给下一轮重试
func (t *ReminderTask) RunOnce(ctx context.Context) {
	if !t.running.CompareAndSwap(false, true) {
		log.Println("[Cron] 上一轮提醒扫描还在进行，跳过本轮")
		return
	}
	defer t.running.Store(false)

	partners, err := t.PartnerRepo.ListByStatus(ctx, model.StatusInactive)
	if err != nil {
		log.Printf("[Cron] 查询停用 partner 失败: %v", err)
		return
	}

	log.Printf("[Cron] 开始提醒扫描，停用 partner 共 %d 个", len(partners))

	sent, skipped := 0, 0
	for i := range partners {
		select {
		case <-ctx.Done():
			log.Println("[Cron] 提醒扫描超时停止")
			return
		default:
		}

		partner := &partners[i]
		if !t.eligible(partner) {
			skipped++
			continue
		}

		revoked, err := t.Reminder.SendReminder(ctx, partner)
		if err != nil {
			log.Printf("[Cron] partner %s 提醒发送失败: %v", partner.PartnerID, err)
			continue
		}

		if revoked {
			// 卖家已在亚马逊侧撤销授权
			if err := t.Status.MarkRevoked(ctx, partner); err != nil {
				log.Printf("[Cron] partner %s 标记撤销失败: %v", partner.PartnerID, err)
			} else {
				log.Printf("[Cron] partner %s 授权已被卖家撤销", partner.PartnerID)
			}
			continue
		}

		// 成功只更新提醒时间戳，不动状态
		now := time.Now()
		err = t.PartnerRepo.UpdateFields(ctx, partner.PartnerID, map[string]interface{}{
			"last_reminder_sent_at": now,
		})
		if err != nil {
			log.Printf("[Cron] partner %s 更新提醒时间失败: %v", partner.PartnerID, err)
			continue
		}
		sent++
	}

	log.Printf("[Cron] 本轮提醒扫描完成：发送 %d，未到期 %d", sent, skipped)
}

// eligible 从未提醒过，或距上次提醒已满间隔
func (t *ReminderTask) eligible(partner *model.Partner) bool {
	if partner.LastReminderSentAt == nil {
		return true
	}
	return time.Since(*partner.LastReminderSentAt) >= t.reminderInterval
}
