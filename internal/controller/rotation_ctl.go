package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"spapi_partner_v1_202608/internal/service"
)

type RotationController struct {
	rotation *service.RotationService
}

func NewRotationController(s *service.RotationService) *RotationController {
	return &RotationController{rotation: s}
}

// Rotate
// @Summary 发起密钥轮换
// @Description 仅 self 类型可用；亚马逊受理后异步下发新密钥（SQS 通知回流）
// @Tags Rotation (密钥轮换模块)
// @Produce json
// @Param partner_id path string true "partner ID"
// @Success 202 {object} map[string]string "已受理"
// @Failure 400 {object} map[string]string "类型不支持/参数错误"
// @Router /api/partners/{partner_id}/rotate-secret [post]
func (ctrl *RotationController) Rotate(c *gin.Context) {
	partnerID := c.Param("partner_id")

	if err := ctrl.rotation.RotateSecret(c.Request.Context(), partnerID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "轮换请求已受理，新密钥将通过通知异步下发",
	})
}
