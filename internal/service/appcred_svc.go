package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"spapi_partner_v1_202608/pkg/utils"
)

// ==================== 配置 ====================

type AppCredConfig struct {
	SecretID string        // Secrets Manager 中共享应用凭证的 secret id
	CacheTTL time.Duration // 默认 15 分钟
}

// ==================== 数据结构 ====================

// AppCredentials 共享应用凭证（oauth / appstore 类型的 partner 共用）
type AppCredentials struct {
	ClientID      string `json:"AppClientId"`
	ClientSecret  string `json:"AppClientSecret"`
	ApplicationID string `json:"AppId"` // Seller Central 应用 ID，拼授权链接用
}

// secretsAPI Secrets Manager 的最小调用面，测试时替换
type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ==================== 服务实现 ====================

// AppCredService 共享应用凭证提供者
// Secrets Manager 拉取 + 显式 TTL 缓存，轮换通知到达后调用 Invalidate 强制回源
type AppCredService struct {
	Config *AppCredConfig
	sm     secretsAPI
	cache  *utils.TTLCache
}

const appCredCacheKey = "lwa_app_credentials"

// NewAppCredService 工厂方法
// cache 由组合根创建并传入，保证进程内只有一份
func NewAppCredService(cfg *AppCredConfig, sm secretsAPI, cache *utils.TTLCache) *AppCredService {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	return &AppCredService{Config: cfg, sm: sm, cache: cache}
}

// Get 获取共享应用凭证，优先走缓存
func (s *AppCredService) Get(ctx context.Context) (*AppCredentials, error) {
	if raw, ok := s.cache.Get(appCredCacheKey); ok {
		var creds AppCredentials
		if err := json.Unmarshal([]byte(raw), &creds); err == nil {
			return &creds, nil
		}
		// 缓存内容解析不了就当没命中，回源重拉
		s.cache.Invalidate(appCredCacheKey)
	}

	out, err := s.sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.Config.SecretID),
	})
	if err != nil {
		return nil, &UpstreamError{Op: "get_app_credentials", Wrapped: err}
	}
	if out.SecretString == nil {
		return nil, &UpstreamError{Op: "get_app_credentials", Wrapped: fmt.Errorf("secret %s has no string payload", s.Config.SecretID)}
	}

	var creds AppCredentials
	if err := json.Unmarshal([]byte(*out.SecretString), &creds); err != nil {
		return nil, &UpstreamError{Op: "get_app_credentials", Wrapped: err}
	}

	s.cache.Set(appCredCacheKey, *out.SecretString, s.Config.CacheTTL)
	return &creds, nil
}

// Invalidate 清掉缓存，下次 Get 强制回源
func (s *AppCredService) Invalidate() {
	s.cache.Invalidate(appCredCacheKey)
}
