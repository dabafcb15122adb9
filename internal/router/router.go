package router

import (
	"github.com/gin-gonic/gin"

	"spapi_partner_v1_202608/internal/controller"
	"spapi_partner_v1_202608/internal/middleware"
)

// Controllers 控制器集合
type Controllers struct {
	Auth     *controller.AuthController
	Partner  *controller.PartnerController
	Rotation *controller.RotationController
	Task     *controller.TaskController
}

// SetupRouter 注册所有路由
func SetupRouter(ctrls *Controllers) *gin.Engine {
	r := gin.Default()

	api := r.Group("/api")
	{
		// auth 授权组
		auth := api.Group("/auth")
		{
			// GET /api/auth/login 生成授权链接
			auth.GET("/login", ctrls.Auth.Login)

			// GET /api/auth/callback 三条入驻链路在此汇合
			auth.GET("/callback", ctrls.Auth.Callback)

			// GET /api/auth/appstore 亚马逊应用商店发起的授权入口
			auth.GET("/appstore", ctrls.Auth.AppstoreEntry)

			// POST /api/auth/self 自授权表单提交
			auth.POST("/self", ctrls.Auth.SelfAuth)

			// POST /api/auth/refresh 手动刷新，按 partner 冷却防止打爆 LWA
			auth.POST("/refresh",
				middleware.ActionCooldown(middleware.ActionRefresh, 0),
				ctrls.Auth.RefreshToken)
		}

		// partner 合作方管理
		partners := api.Group("/partners")
		{
			partners.GET("", ctrls.Partner.GetList)
			partners.GET("/:partner_id", ctrls.Partner.GetDetail)
			partners.DELETE("/:partner_id", ctrls.Partner.Delete)
			partners.POST("/:partner_id/mark-inactive", ctrls.Partner.MarkInactive)
			partners.GET("/:partner_id/token-history", ctrls.Partner.GetTokenHistory)
			partners.POST("/:partner_id/rotate-secret",
				middleware.ActionCooldown(middleware.ActionRotate, 0),
				ctrls.Rotation.Rotate)
		}

		// task 后台任务手动触发
		tasks := api.Group("/tasks")
		{
			tasks.GET("/status", ctrls.Task.GetStatus)
			tasks.POST("/token-refresh",
				middleware.ActionCooldown(middleware.ActionTokenSweep, 0),
				ctrls.Task.TriggerTokenRefresh)
			tasks.POST("/reminder-sweep",
				middleware.ActionCooldown(middleware.ActionReminderSweep, 0),
				ctrls.Task.TriggerReminderSweep)
		}
	}

	return r
}
