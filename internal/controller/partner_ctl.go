package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"spapi_partner_v1_202608/internal/model"
	"spapi_partner_v1_202608/internal/repository"
	"spapi_partner_v1_202608/internal/service"
)

type PartnerController struct {
	partnerRepo repository.PartnerRepository
	historyRepo repository.TokenHistoryRepository
	status      *service.StatusService
}

func NewPartnerController(partnerRepo repository.PartnerRepository, historyRepo repository.TokenHistoryRepository, status *service.StatusService) *PartnerController {
	return &PartnerController{
		partnerRepo: partnerRepo,
		historyRepo: historyRepo,
		status:      status,
	}
}

// partnerResp 对外展示结构，凭证字段一律不返回
func partnerResp(p *model.Partner) gin.H {
	return gin.H{
		"partner_id":            p.PartnerID,
		"amazon_id":             p.AmazonID,
		"name":                  p.Name,
		"type":                  p.Type,
		"auth_type":             p.AuthType,
		"status":                p.Status,
		"last_token_refresh_at": p.LastTokenRefreshAt,
		"marked_inactive_at":    p.MarkedInactiveAt,
		"auth_revoked_at":       p.AuthRevokedAt,
		"last_reminder_sent_at": p.LastReminderSentAt,
		"created_at":            p.CreatedAt,
		"updated_at":            p.UpdatedAt,
	}
}

// GetList
// @Summary partner 列表
// @Tags Partner (合作方模块)
// @Produce json
// @Param status query string false "按状态筛选"
// @Param auth_type query string false "按授权方式筛选"
// @Param page query int false "页码"
// @Param page_size query int false "每页条数"
// @Success 200 {object} map[string]interface{} "列表"
// @Router /api/partners [get]
func (ctrl *PartnerController) GetList(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := repository.PartnerFilter{
		Status:   c.Query("status"),
		AuthType: c.Query("auth_type"),
		Type:     c.Query("type"),
		Page:     page,
		PageSize: pageSize,
	}

	partners, total, err := ctrl.partnerRepo.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	list := make([]gin.H, 0, len(partners))
	for i := range partners {
		list = append(list, partnerResp(&partners[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"total": total,
		"list":  list,
	})
}

// GetDetail
// @Summary partner 详情
// @Tags Partner (合作方模块)
// @Produce json
// @Param partner_id path string true "partner ID"
// @Success 200 {object} map[string]interface{} "详情"
// @Failure 404 {object} map[string]string "不存在"
// @Router /api/partners/{partner_id} [get]
func (ctrl *PartnerController) GetDetail(c *gin.Context) {
	partnerID := c.Param("partner_id")

	partner, err := ctrl.partnerRepo.GetByPartnerID(c.Request.Context(), partnerID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"kind":  service.KindNotFound,
			"error": "partner 不存在",
		})
		return
	}

	c.JSON(http.StatusOK, partnerResp(partner))
}

// MarkInactive
// @Summary 标记停用
// @Description 仅 oauth/appstore 且当前 AUTHORIZED 的 partner 可停用；停用后进入提醒周期
// @Tags Partner (合作方模块)
// @Produce json
// @Param partner_id path string true "partner ID"
// @Success 200 {object} map[string]interface{} "停用结果"
// @Failure 400 {object} map[string]string "状态机校验失败"
// @Router /api/partners/{partner_id}/mark-inactive [post]
func (ctrl *PartnerController) MarkInactive(c *gin.Context) {
	partnerID := c.Param("partner_id")

	partner, err := ctrl.status.MarkInactive(c.Request.Context(), partnerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "partner 已标记停用",
		"partner_id": partner.PartnerID,
		"status":     partner.Status,
	})
}

// GetTokenHistory
// @Summary token 变更审计
// @Tags Partner (合作方模块)
// @Produce json
// @Param partner_id path string true "partner ID"
// @Param limit query int false "条数，默认 50"
// @Success 200 {object} map[string]interface{} "审计记录"
// @Router /api/partners/{partner_id}/token-history [get]
func (ctrl *PartnerController) GetTokenHistory(c *gin.Context) {
	partnerID := c.Param("partner_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := ctrl.historyRepo.ListByPartner(c.Request.Context(), partnerID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	// 审计对外只暴露原因和时间，token 值不返回
	list := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		list = append(list, gin.H{
			"reason":     e.Reason,
			"source":     e.Source,
			"request_id": e.RequestID,
			"created_at": e.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"list": list})
}

// Delete
// @Summary 删除 partner（管理员操作）
// @Tags Partner (合作方模块)
// @Produce json
// @Param partner_id path string true "partner ID"
// @Success 200 {object} map[string]string "删除结果"
// @Router /api/partners/{partner_id} [delete]
func (ctrl *PartnerController) Delete(c *gin.Context) {
	partnerID := c.Param("partner_id")

	if _, err := ctrl.partnerRepo.GetByPartnerID(c.Request.Context(), partnerID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"kind":  service.KindNotFound,
			"error": "partner 不存在",
		})
		return
	}

	if err := ctrl.partnerRepo.Delete(c.Request.Context(), partnerID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "partner 已删除"})
}
