package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"spapi_partner_v1_202608/internal/service"
)

type AuthController struct {
	authFlow *service.AuthFlowService
}

func NewAuthController(s *service.AuthFlowService) *AuthController {
	return &AuthController{authFlow: s}
}

// Login
// @Summary 获取亚马逊授权链接
// @Description 生成 Seller Central 同意页链接；partner_id 为空时创建新 partner
// @Tags Auth (授权模块)
// @Accept json
// @Produce json
// @Param partner_id query string false "已有 partner ID，再授权时传"
// @Param type query string false "partner 类型 seller/vendor，默认 seller"
// @Success 200 {object} map[string]interface{} "授权链接"
// @Failure 400 {object} map[string]string "错误信息"
// @Router /api/auth/login [get]
func (ctrl *AuthController) Login(c *gin.Context) {
	partnerID := c.Query("partner_id")
	partnerType := c.Query("type")

	url, err := ctrl.authFlow.BuildConsentURL(c.Request.Context(), partnerID, partnerType)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "获取成功",
		"auth_url": url,
	})
}

// Callback
// @Summary 授权回调
// @Description 接收亚马逊返回的 state / selling_partner_id / spapi_oauth_code，换取 token 并入库
// @Tags Auth (授权模块)
// @Accept json
// @Produce json
// @Param state query string true "防伪造校验码"
// @Param selling_partner_id query string true "亚马逊侧账号标识"
// @Param spapi_oauth_code query string true "授权码"
// @Success 200 {object} map[string]interface{} "授权成功信息"
// @Failure 400 {object} map[string]string "拒绝授权/参数错误"
// @Router /api/auth/callback [get]
func (ctrl *AuthController) Callback(c *gin.Context) {
	state := c.Query("state")
	sellingPartnerID := c.Query("selling_partner_id")
	code := c.Query("spapi_oauth_code")

	if errParam := c.Query("error"); errParam != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "卖家拒绝了授权", "amazon_msg": errParam})
		return
	}
	if state == "" || sellingPartnerID == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"kind":  service.KindValidation,
			"error": "缺少必要参数 state / selling_partner_id / spapi_oauth_code",
		})
		return
	}

	result, err := ctrl.authFlow.HandleCallback(c.Request.Context(), state, sellingPartnerID, code)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "授权成功",
		"partner_id":    result.Partner.PartnerID,
		"amazon_id":     result.Partner.AmazonID,
		"status":        result.Partner.Status,
		"reauthorized":  result.Reauthorized,
		"token_rotated": result.TokenRotated,
	})
}

// AppstoreEntry
// @Summary Appstore 流入口
// @Description 亚马逊应用商店发起授权时跳转到这里；铸造本系统 state 后带双 nonce 跳回亚马逊
// @Tags Auth (授权模块)
// @Produce json
// @Param amazon_callback_uri query string true "亚马逊回跳地址"
// @Param amazon_state query string true "亚马逊侧 nonce"
// @Param selling_partner_id query string false "亚马逊侧账号标识"
// @Param version query string false "beta 表示测试工作流"
// @Success 302 {string} string "重定向回亚马逊"
// @Failure 400 {object} map[string]string "参数错误"
// @Router /api/auth/appstore [get]
func (ctrl *AuthController) AppstoreEntry(c *gin.Context) {
	amazonCallbackURI := c.Query("amazon_callback_uri")
	amazonState := c.Query("amazon_state")
	sellingPartnerID := c.Query("selling_partner_id")
	version := c.Query("version")

	redirectURL, err := ctrl.authFlow.HandleAppstoreEntry(
		c.Request.Context(), amazonCallbackURI, amazonState, sellingPartnerID, version)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Redirect(http.StatusFound, redirectURL)
}

// SelfAuth
// @Summary 自授权入驻
// @Description 直接提交 refresh_token + client 凭证（form 表单），partner 创建即 AUTHORIZED
// @Tags Auth (授权模块)
// @Accept x-www-form-urlencoded
// @Produce json
// @Param refresh_token formData string true "refresh token"
// @Param client_id formData string true "LWA client id"
// @Param client_secret formData string true "LWA client secret"
// @Success 200 {object} map[string]interface{} "创建成功"
// @Failure 400 {object} map[string]string "参数错误"
// @Router /api/auth/self [post]
func (ctrl *AuthController) SelfAuth(c *gin.Context) {
	var req service.SelfAuthReq
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"kind":  service.KindValidation,
			"error": "参数错误: " + err.Error(),
		})
		return
	}

	partner, err := ctrl.authFlow.RegisterSelfPartner(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "partner 创建成功",
		"partner_id": partner.PartnerID,
		"status":     partner.Status,
	})
}

// RefreshToken
// @Summary 手动刷新 partner token
// @Description 强制刷新指定 partner 的 token；invalid_grant 会把 partner 打回 PENDING_AUTH
// @Tags Auth (授权模块)
// @Produce json
// @Param partner_id query string true "partner ID"
// @Success 200 {object} map[string]interface{} "刷新结果"
// @Failure 400 {object} map[string]string "错误信息"
// @Router /api/auth/refresh [post]
func (ctrl *AuthController) RefreshToken(c *gin.Context) {
	partnerID := c.Query("partner_id")
	if partnerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"kind":  service.KindValidation,
			"error": "缺少 partner_id 参数",
		})
		return
	}

	partner, err := ctrl.authFlow.RefreshPartnerToken(c.Request.Context(), partnerID, "manual")
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Token 刷新成功",
		"partner_id": partner.PartnerID,
		"status":     partner.Status,
	})
}
