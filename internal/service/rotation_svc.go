package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"gorm.io/gorm"

	"spapi_partner_v1_202608/internal/repository"
)

// 业务常量
const (
	// RotationEndpointDefault Application Management API 的密钥轮换端点（北美区）
	RotationEndpointDefault = "https://sellingpartnerapi-na.amazon.com/applications/2023-11-30/clientSecret"

	// RotationScope client_credentials 授权所需的 scope
	RotationScope = "sellingpartnerapi::client_credential_rotation"
)

// ==================== 配置 ====================

type RotationConfig struct {
	Endpoint string        // 默认 RotationEndpointDefault
	Timeout  time.Duration // 默认 10s
}

// ==================== 服务实现 ====================

// RotationService 密钥轮换协调器
// 主动轮换只对 self 类型开放；新密钥通过异步通知回流（见 ApplyNewSecret）
type RotationService struct {
	Config      *RotationConfig
	PartnerRepo repository.PartnerRepository
	LWA         *LWAService
	client      *resty.Client
}

// NewRotationService 工厂方法
func NewRotationService(cfg *RotationConfig, partnerRepo repository.PartnerRepository, lwa *LWAService) *RotationService {
	if cfg.Endpoint == "" {
		cfg.Endpoint = RotationEndpointDefault
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &RotationService{
		Config:      cfg,
		PartnerRepo: partnerRepo,
		LWA:         lwa,
		client:      resty.New().SetTimeout(cfg.Timeout),
	}
}

// ==================== 主动轮换 ====================

// RotateSecret 发起密钥轮换
// 亚马逊返回 204 空响应即受理成功，新密钥稍后经 SQS 通知送达
func (s *RotationService) RotateSecret(ctx context.Context, partnerID string) error {
	partner, err := s.PartnerRepo.GetByPartnerID(ctx, partnerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundErr("partner %s not found", partnerID)
		}
		return err
	}
	if !partner.IsSelfAuthorized() {
		return validationErr("partner %s 是 %s 类型，密钥轮换仅支持 self 类型", partnerID, partner.AuthType)
	}

	// 1. 用 client_credentials 拿应用级 token
	accessToken, err := s.LWA.ClientCredentials(ctx, partner.ClientID, partner.ClientSecret, RotationScope)
	if err != nil {
		return err
	}

	// 2. 空 body POST 轮换端点
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("x-amz-access-token", accessToken).
		Post(s.Config.Endpoint)
	if err != nil {
		return &UpstreamError{Op: "rotate_secret", Wrapped: err}
	}

	switch {
	case resp.StatusCode() == http.StatusNoContent || resp.StatusCode() == http.StatusOK:
		log.Printf("[Rotation] partner %s 轮换请求已受理，等待新密钥通知", partnerID)
		return nil
	case resp.StatusCode() >= 500:
		return &UpstreamError{
			Op:         "rotate_secret",
			StatusCode: resp.StatusCode(),
			Wrapped:    fmt.Errorf("authority returned %s", resp.Status()),
		}
	default:
		return &ExchangeError{
			StatusCode:  resp.StatusCode(),
			Description: string(resp.Body()),
		}
	}
}

// ==================== 被动轮换（通知回流） ====================

// ApplyNewSecret 消费“新密钥已签发”通知
// SQS 至少一次投递：按值幂等，重复投递同一个新密钥等价于空操作；
// 未知 clientId 记日志后丢弃（没有可更新的 partner，重试也没有意义）
func (s *RotationService) ApplyNewSecret(ctx context.Context, event *ClientNewSecret) error {
	partner, err := s.PartnerRepo.GetByClientID(ctx, event.ClientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[Rotation] 收到未知 clientId 的轮换通知，丢弃: %s", event.String())
			return nil
		}
		return err
	}

	// 重复投递：当前密钥已经是通知里的新值，直接跳过
	if partner.ClientSecret == event.NewClientSecret {
		log.Printf("[Rotation] partner %s 的新密钥已生效，跳过重复通知", partner.PartnerID)
		return nil
	}

	// 原子替换密钥对：旧密钥连同过期时间保留一个宽限窗口
	newExpiry := event.NewClientSecretExpiry
	oldExpiry := event.OldClientSecretExpiry
	err = s.PartnerRepo.UpdateSecretPair(ctx,
		partner.PartnerID,
		event.NewClientSecret, &newExpiry,
		partner.ClientSecret, &oldExpiry,
	)
	if err != nil {
		return err
	}

	log.Printf("[Rotation] partner %s 密钥已更新，旧密钥保留至 %s",
		partner.PartnerID, oldExpiry.Format(time.RFC3339))
	return nil
}
