package task

import (
	"context"
	"log"

	"spapi_partner_v1_202608/internal/repository"
	"spapi_partner_v1_202608/internal/service"
)

// ==================== TaskManager 后台任务管理器 ====================

// TaskManager 统一管理授权生命周期的后台任务
// 管理范围：Token 保活、停用提醒、过期数据清理
// 不包含：SQS 轮换通知消费（队列层独立管理）
type TaskManager struct {
	tokenTask    *TokenTask
	reminderTask *ReminderTask
	cleanupTask  *CleanupTask
}

// TaskManagerDeps 任务管理器依赖
type TaskManagerDeps struct {
	// Repositories
	PartnerRepo repository.PartnerRepository
	StateRepo   repository.AuthStateRepository
	HistoryRepo repository.TokenHistoryRepository

	// Services
	AuthFlow *service.AuthFlowService
	Reminder *service.ReminderService
	Status   *service.StatusService
}

// TaskManagerConfig 任务管理器配置
type TaskManagerConfig struct {
	TokenEnabled    bool
	ReminderEnabled bool
	CleanupEnabled  bool
}

// DefaultConfig 默认配置
func DefaultConfig() *TaskManagerConfig {
	return &TaskManagerConfig{
		TokenEnabled:    true,
		ReminderEnabled: true,
		CleanupEnabled:  true,
	}
}

// NewTaskManager 创建任务管理器
func NewTaskManager(deps *TaskManagerDeps, cfg *TaskManagerConfig) *TaskManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	tm := &TaskManager{}

	if cfg.TokenEnabled && deps.AuthFlow != nil {
		tm.tokenTask = NewTokenTask(deps.PartnerRepo, deps.AuthFlow)
	}
	if cfg.ReminderEnabled && deps.Reminder != nil {
		tm.reminderTask = NewReminderTask(deps.PartnerRepo, deps.Reminder, deps.Status)
	}
	if cfg.CleanupEnabled {
		tm.cleanupTask = NewCleanupTask(deps.StateRepo, deps.HistoryRepo)
	}

	return tm
}

// ==================== 生命周期管理 ====================

// Start 启动所有任务
func (tm *TaskManager) Start() {
	log.Println("[TaskManager] 正在启动后台任务...")

	if tm.tokenTask != nil {
		tm.tokenTask.Start()
	}
	if tm.reminderTask != nil {
		tm.reminderTask.Start()
	}
	if tm.cleanupTask != nil {
		tm.cleanupTask.Start()
	}

	log.Println("[TaskManager] 后台任务已全部启动")
}

// Stop 停止所有任务
func (tm *TaskManager) Stop() {
	log.Println("[TaskManager] 正在停止后台任务...")

	if tm.tokenTask != nil {
		tm.tokenTask.Stop()
	}
	if tm.reminderTask != nil {
		tm.reminderTask.Stop()
	}
	if tm.cleanupTask != nil {
		tm.cleanupTask.Stop()
	}

	log.Println("[TaskManager] 后台任务已全部停止")
}

// ==================== 手动触发接口 ====================

// TriggerTokenRefresh 触发一轮 Token 刷新
func (tm *TaskManager) TriggerTokenRefresh(ctx context.Context) error {
	if tm.tokenTask == nil {
		return ErrTaskDisabled
	}
	tm.tokenTask.RunOnce(ctx)
	return nil
}

// TriggerReminderSweep 触发一轮停用提醒扫描
func (tm *TaskManager) TriggerReminderSweep(ctx context.Context) error {
	if tm.reminderTask == nil {
		return ErrTaskDisabled
	}
	tm.reminderTask.RunOnce(ctx)
	return nil
}

// ==================== 状态查询 ====================

// Status 获取任务启用状态
func (tm *TaskManager) Status() map[string]bool {
	return map[string]bool{
		"token_refresh":  tm.tokenTask != nil,
		"reminder_sweep": tm.reminderTask != nil,
		"cleanup":        tm.cleanupTask != nil,
	}
}

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrTaskDisabled TaskError = "task is disabled"
)
