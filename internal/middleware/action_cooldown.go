package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== 操作冷却中间件 ====================

// ActionCooldown 手动操作冷却中间件
// 按 partner + 操作类型维度限流，没有 partner 维度时退化为全局限流
//
// 使用示例:
//
//	router.POST("/api/auth/refresh",
//	    middleware.ActionCooldown(middleware.ActionRefresh, 0),
//	    ctrl.RefreshToken,
//	)
//
// 参数:
//   - action: 操作类型
//   - interval: 冷却间隔，0 表示使用默认值
func ActionCooldown(action ActionType, interval time.Duration) gin.HandlerFunc {
	if interval == 0 {
		interval = GetInterval(action)
	}
	cooldown := interval

	return func(c *gin.Context) {
		partnerID := c.Param("partner_id")
		if partnerID == "" {
			partnerID = c.Query("partner_id")
		}

		var key string
		if partnerID != "" {
			key = PartnerActionKey(partnerID, action)
		} else {
			key = GlobalActionKey(action)
		}

		result := GetLimiter().Check(key, cooldown)
		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       fmt.Sprintf("操作过于频繁，请 %.0f 秒后重试", result.RetryAfter.Seconds()),
				"retry_after": int(result.RetryAfter.Seconds()),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
