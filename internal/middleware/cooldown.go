package middleware

import (
	"fmt"
	"sync"
	"time"
)

// ==================== ActionRateLimiter 操作冷却限流器 ====================

// ActionRateLimiter 手动操作限流器
// 防止运营频繁触发刷新/轮换把 LWA 端点打到限流
type ActionRateLimiter struct {
	locks sync.Map // key -> *lockEntry
}

// lockEntry 锁条目
type lockEntry struct {
	lastTime time.Time
	mu       sync.Mutex
}

// 全局限流器实例
var globalLimiter = &ActionRateLimiter{}

// GetLimiter 获取全局限流器
func GetLimiter() *ActionRateLimiter {
	return globalLimiter
}

// ==================== 限流检查 ====================

// CheckResult 检查结果
type CheckResult struct {
	Allowed    bool          // 是否允许
	RetryAfter time.Duration // 剩余冷却时间
}

// Check 检查是否允许执行，允许时同步更新最后执行时间
// key: 限流键，如 "partner:p-1:refresh"
// interval: 冷却间隔
func (r *ActionRateLimiter) Check(key string, interval time.Duration) CheckResult {
	actual, _ := r.locks.LoadOrStore(key, &lockEntry{})
	entry := actual.(*lockEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(entry.lastTime)

	if elapsed < interval {
		return CheckResult{
			Allowed:    false,
			RetryAfter: interval - elapsed,
		}
	}

	entry.lastTime = now
	return CheckResult{
		Allowed:    true,
		RetryAfter: 0,
	}
}

// Reset 重置指定 key 的限流
func (r *ActionRateLimiter) Reset(key string) {
	r.locks.Delete(key)
}

// ==================== Key 生成工具 ====================

// ActionType 操作类型
type ActionType string

const (
	ActionRefresh       ActionType = "refresh"
	ActionRotate        ActionType = "rotate"
	ActionTokenSweep    ActionType = "token_sweep"
	ActionReminderSweep ActionType = "reminder_sweep"
)

// PartnerActionKey 生成 partner 级限流 Key
func PartnerActionKey(partnerID string, action ActionType) string {
	return fmt.Sprintf("partner:%s:%s", partnerID, action)
}

// GlobalActionKey 生成全局限流 Key
func GlobalActionKey(action ActionType) string {
	return fmt.Sprintf("global:%s", action)
}

// ==================== 默认冷却间隔 ====================

// DefaultIntervals 默认冷却间隔配置
var DefaultIntervals = map[ActionType]time.Duration{
	ActionRefresh:       1 * time.Minute,  // 手动刷新：LWA 对 token 端点有频控
	ActionRotate:        10 * time.Minute, // 密钥轮换：亚马逊侧异步处理，短时间重复没有意义
	ActionTokenSweep:    5 * time.Minute,  // 手动触发保活扫描
	ActionReminderSweep: 5 * time.Minute,  // 手动触发提醒扫描
}

// GetInterval 获取操作类型的默认间隔
func GetInterval(action ActionType) time.Duration {
	if interval, ok := DefaultIntervals[action]; ok {
		return interval
	}
	return 1 * time.Minute
}
