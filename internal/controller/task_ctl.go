package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"spapi_partner_v1_202608/internal/task"
)

// TaskController 后台任务控制器
type TaskController struct {
	taskManager *task.TaskManager
}

// NewTaskController 创建后台任务控制器
func NewTaskController(taskManager *task.TaskManager) *TaskController {
	return &TaskController{taskManager: taskManager}
}

// ==================== Handler 实现 ====================

// TriggerTokenRefresh
// @Summary 手动触发一轮 Token 保活扫描
// @Tags Task (后台任务)
// @Produce json
// @Success 202 {object} map[string]interface{} "已触发"
// @Failure 429 {object} map[string]interface{} "冷却中"
// @Router /api/tasks/token-refresh [post]
func (ctrl *TaskController) TriggerTokenRefresh(c *gin.Context) {
	// 扫描可能耗时数分钟，异步执行立即返回
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		ctrl.taskManager.TriggerTokenRefresh(ctx)
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "Token 刷新扫描已触发"})
}

// TriggerReminderSweep
// @Summary 手动触发一轮停用提醒扫描
// @Tags Task (后台任务)
// @Produce json
// @Success 202 {object} map[string]interface{} "已触发"
// @Failure 429 {object} map[string]interface{} "冷却中"
// @Router /api/tasks/reminder-sweep [post]
func (ctrl *TaskController) TriggerReminderSweep(c *gin.Context) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		ctrl.taskManager.TriggerReminderSweep(ctx)
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "停用提醒扫描已触发"})
}

// GetStatus
// @Summary 后台任务启用状态
// @Tags Task (后台任务)
// @Produce json
// @Success 200 {object} map[string]bool "任务状态"
// @Router /api/tasks/status [get]
func (ctrl *TaskController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, ctrl.taskManager.Status())
}
