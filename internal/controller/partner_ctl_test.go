package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"spapi_partner_v1_202608/internal/model"
	"spapi_partner_v1_202608/internal/repository"
	"spapi_partner_v1_202608/internal/service"
)

// ==================== 测试辅助 ====================

func setupPartnerRouter(t *testing.T) (*gin.Engine, repository.PartnerRepository, repository.TokenHistoryRepository) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	db.AutoMigrate(&model.Partner{}, &model.TokenHistory{})

	partnerRepo := repository.NewPartnerRepository(db)
	historyRepo := repository.NewTokenHistoryRepository(db)
	status := service.NewStatusService(partnerRepo, historyRepo)
	ctrl := NewPartnerController(partnerRepo, historyRepo, status)

	r := gin.New()
	r.GET("/api/partners", ctrl.GetList)
	r.GET("/api/partners/:partner_id", ctrl.GetDetail)
	r.POST("/api/partners/:partner_id/mark-inactive", ctrl.MarkInactive)
	r.GET("/api/partners/:partner_id/token-history", ctrl.GetTokenHistory)
	r.DELETE("/api/partners/:partner_id", ctrl.Delete)
	return r, partnerRepo, historyRepo
}

// ==================== 单元测试 ====================

func TestGetDetail_HidesCredentials(t *testing.T) {
	r, partnerRepo, _ := setupPartnerRouter(t)

	partnerRepo.Create(context.Background(), &model.Partner{
		PartnerID:    "p-1",
		AmazonID:     "A2EXAMPLE1234",
		AuthType:     model.AuthTypeSelf,
		Status:       model.StatusAuthorized,
		ClientID:     "amzn1.application-oa2-client.self",
		ClientSecret: "super-secret-value",
		RefreshToken: "Atzr|refresh-token-value",
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/partners/p-1", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	// 凭证字段一律不出现在响应里
	body := w.Body.String()
	assert.NotContains(t, body, "super-secret-value")
	assert.NotContains(t, body, "Atzr|refresh-token-value")
	assert.Contains(t, body, "A2EXAMPLE1234")
}

func TestGetDetail_NotFound(t *testing.T) {
	r, _, _ := setupPartnerRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/partners/p-none", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetList_FilterByStatus(t *testing.T) {
	r, partnerRepo, _ := setupPartnerRouter(t)
	ctx := context.Background()

	partnerRepo.Create(ctx, &model.Partner{PartnerID: "p-1", Status: model.StatusAuthorized})
	partnerRepo.Create(ctx, &model.Partner{PartnerID: "p-2", Status: model.StatusPendingAuth})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/partners?status=AUTHORIZED", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Total int64            `json:"total"`
		List  []map[string]any `json:"list"`
	}
	err := json.Unmarshal(w.Body.Bytes(), &body)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), body.Total)
	assert.Equal(t, "p-1", body.List[0]["partner_id"])
}

func TestMarkInactive_InvalidTransition(t *testing.T) {
	r, partnerRepo, _ := setupPartnerRouter(t)

	partnerRepo.Create(context.Background(), &model.Partner{
		PartnerID: "p-1",
		AuthType:  model.AuthTypeOAuth,
		Status:    model.StatusPendingAuth,
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/partners/p-1/mark-inactive", nil)
	r.ServeHTTP(w, req)

	// 状态机校验失败映射为 400
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &body)
	assert.Equal(t, service.KindInvalidTransition, body["kind"])
}

func TestMarkInactive_Success(t *testing.T) {
	r, partnerRepo, _ := setupPartnerRouter(t)

	partnerRepo.Create(context.Background(), &model.Partner{
		PartnerID: "p-1",
		AuthType:  model.AuthTypeOAuth,
		Status:    model.StatusAuthorized,
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/partners/p-1/mark-inactive", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &body)
	assert.Equal(t, model.StatusInactive, body["status"])
}

func TestGetTokenHistory_HidesTokenValues(t *testing.T) {
	r, _, historyRepo := setupPartnerRouter(t)

	historyRepo.Append(context.Background(), &model.TokenHistory{
		PartnerID:       "p-1",
		OldRefreshToken: "Atzr|old-token-value",
		NewRefreshToken: "Atzr|new-token-value",
		Reason:          model.HistoryReasonRotated,
		Source:          "scheduled",
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/partners/p-1/token-history", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	// 审计对外只暴露原因和时间，token 值绝不返回
	body := w.Body.String()
	assert.NotContains(t, body, "Atzr|old-token-value")
	assert.NotContains(t, body, "Atzr|new-token-value")
	assert.Contains(t, body, model.HistoryReasonRotated)
}

func TestDelete_Partner(t *testing.T) {
	r, partnerRepo, _ := setupPartnerRouter(t)

	partnerRepo.Create(context.Background(), &model.Partner{
		PartnerID: "p-1",
		Status:    model.StatusAuthorized,
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/partners/p-1", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// 删除后再查 404
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/partners/p-1", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
