package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"spapi_partner_v1_202608/internal/model"
	"spapi_partner_v1_202608/internal/repository"
)

// 业务常量
const (
	// ReminderEndpointDefault Application Integrations API 的通知端点（北美区）
	ReminderEndpointDefault = "https://sellingpartnerapi-na.amazon.com/appIntegrations/2024-04-01/notifications"

	// ReminderTemplateID 停用提醒使用的通知模板
	ReminderTemplateID = "REAUTHORIZATION_REMINDER"
)

// ==================== 配置 ====================

type ReminderConfig struct {
	Endpoint string        // 默认 ReminderEndpointDefault
	Timeout  time.Duration // 默认 10s
}

// ==================== 服务实现 ====================

// ReminderService 停用提醒投递
// 用 partner 的 refresh token 现刷一个 access token 去调通知接口；
// 刷新遇到 invalid_grant 或接口返回 401 都视为卖家已撤销授权
type ReminderService struct {
	Config      *ReminderConfig
	PartnerRepo repository.PartnerRepository
	HistoryRepo repository.TokenHistoryRepository
	LWA         *LWAService
	AppCred     *AppCredService
	client      *resty.Client
}

// NewReminderService 工厂方法
func NewReminderService(cfg *ReminderConfig, partnerRepo repository.PartnerRepository, historyRepo repository.TokenHistoryRepository, lwa *LWAService, appCred *AppCredService) *ReminderService {
	if cfg.Endpoint == "" {
		cfg.Endpoint = ReminderEndpointDefault
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &ReminderService{
		Config:      cfg,
		PartnerRepo: partnerRepo,
		HistoryRepo: historyRepo,
		LWA:         lwa,
		AppCred:     appCred,
		client:      resty.New().SetTimeout(cfg.Timeout),
	}
}

// SendReminder 给单个 partner 发送重新授权提醒
// 返回值 revoked=true 表示探测到卖家已在亚马逊侧撤销授权
func (s *ReminderService) SendReminder(ctx context.Context, partner *model.Partner) (revoked bool, err error) {
	// 1. 取调用凭证
	clientID, clientSecret := partner.ClientID, partner.ClientSecret
	if !partner.IsSelfAuthorized() {
		creds, err := s.AppCred.Get(ctx)
		if err != nil {
			return false, err
		}
		clientID, clientSecret = creds.ClientID, creds.ClientSecret
	}

	// 2. 现刷 access token；invalid_grant 即撤销信号
	tokens, err := s.LWA.Refresh(ctx, partner.RefreshToken, clientID, clientSecret)
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			return true, nil
		}
		return false, err
	}

	// 3. 刷新响应里带了新 refresh token 说明亚马逊已轮换，必须立即落库，
	// 否则库里留的是已作废的旧值
	if tokens.RefreshToken != "" && tokens.RefreshToken != partner.RefreshToken {
		oldToken := partner.RefreshToken
		if err := s.PartnerRepo.UpdateTokens(ctx, partner.PartnerID, tokens.RefreshToken, time.Now()); err != nil {
			return false, err
		}
		partner.RefreshToken = tokens.RefreshToken

		entry := &model.TokenHistory{
			PartnerID:       partner.PartnerID,
			OldRefreshToken: oldToken,
			NewRefreshToken: tokens.RefreshToken,
			Reason:          model.HistoryReasonRotated,
			Source:          "reminder",
			RequestID:       uuid.NewString(),
		}
		if err := s.HistoryRepo.Append(ctx, entry); err != nil {
			log.Printf("[Reminder] 写 token 审计失败 partner=%s: %v", partner.PartnerID, err)
		}
	}

	// 4. 调 appIntegrations 通知接口
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("x-amz-access-token", tokens.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"templateId": ReminderTemplateID,
			"notificationParameters": map[string]string{
				"partnerId": partner.PartnerID,
			},
		}).
		Post(s.Config.Endpoint)
	if err != nil {
		return false, &UpstreamError{Op: "send_reminder", Wrapped: err}
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		// 亚马逊侧已收回访问权限
		return true, nil
	case resp.StatusCode() >= 200 && resp.StatusCode() < 300:
		return false, nil
	case resp.StatusCode() >= 500:
		return false, &UpstreamError{
			Op:         "send_reminder",
			StatusCode: resp.StatusCode(),
			Wrapped:    fmt.Errorf("authority returned %s", resp.Status()),
		}
	default:
		return false, &ExchangeError{
			StatusCode:  resp.StatusCode(),
			Description: string(resp.Body()),
		}
	}
}
