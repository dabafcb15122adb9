package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"spapi_partner_v1_202608/internal/service"
)

// respondError 把 service 层错误分类映射成 HTTP 响应
// 响应里带稳定的 kind 字段 + 可读 message；凭证值绝不出现在响应中
func respondError(c *gin.Context, err error) {
	kind := service.ErrorKind(err)

	var status int
	switch kind {
	case service.KindValidation, service.KindInvalidTransition:
		status = http.StatusBadRequest
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindInvalidGrant:
		// refresh token 已死，partner 已被打回 PENDING_AUTH，提示重新授权
		status = http.StatusConflict
	case service.KindExchange:
		status = http.StatusBadGateway
	case service.KindUpstream:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	resp := gin.H{
		"kind":  kind,
		"error": err.Error(),
	}

	// 授权端点拒绝时透传亚马逊的错误码，方便排查
	var ex *service.ExchangeError
	if errors.As(err, &ex) {
		resp["authority_code"] = ex.Code
		resp["authority_message"] = ex.Description
	}

	c.JSON(status, resp)
}
