package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// 业务常量
const (
	// LWATokenURL 北美区 LWA token 端点，其他区域通过配置覆盖
	LWATokenURL = "https://api.amazon.com/auth/o2/token"
)

// ==================== 配置 ====================

type LWAConfig struct {
	TokenURL string        // 默认 LWATokenURL，测试时指向 httptest server
	Timeout  time.Duration // 默认 10s，单次外部调用秒级超时
}

// ==================== 数据结构 ====================

// TokenResult token 端点成功响应
type TokenResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"` // refresh 授权类型下可能为空，表示未变
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// lwaErrorResp token 端点错误响应体
type lwaErrorResp struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// ==================== 服务实现 ====================

// LWAService LWA token 交换客户端
// 三种 grant 都走同一个端点的 form POST；这里不做任何重试，
// 重试策略由调用方决定（invalid_grant 绝不允许重试）
type LWAService struct {
	Config *LWAConfig
	client *resty.Client
}

// NewLWAService 工厂方法
func NewLWAService(cfg *LWAConfig) *LWAService {
	if cfg.TokenURL == "" {
		cfg.TokenURL = LWATokenURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")

	return &LWAService{Config: cfg, client: client}
}

// ExchangeAuthCode 授权码换 token（authorization_code grant）
func (s *LWAService) ExchangeAuthCode(ctx context.Context, code, redirectURI, clientID, clientSecret string) (*TokenResult, error) {
	return s.post(ctx, "exchange_auth_code", map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"redirect_uri":  redirectURI,
		"client_id":     clientID,
		"client_secret": clientSecret,
	})
}

// Refresh 刷新 access token（refresh_token grant）
// 响应里没有 refresh_token 字段时表示亚马逊未轮换，沿用旧值
func (s *LWAService) Refresh(ctx context.Context, refreshToken, clientID, clientSecret string) (*TokenResult, error) {
	return s.post(ctx, "refresh", map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     clientID,
		"client_secret": clientSecret,
	})
}

// ClientCredentials 获取应用级 access token（client_credentials grant）
// 用于密钥轮换和通知类接口，token 不落库
func (s *LWAService) ClientCredentials(ctx context.Context, clientID, clientSecret, scope string) (string, error) {
	result, err := s.post(ctx, "client_credentials", map[string]string{
		"grant_type":    "client_credentials",
		"scope":         scope,
		"client_id":     clientID,
		"client_secret": clientSecret,
	})
	if err != nil {
		return "", err
	}
	return result.AccessToken, nil
}

// post 发送 form 请求并统一分类错误
func (s *LWAService) post(ctx context.Context, op string, form map[string]string) (*TokenResult, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(form).
		Post(s.Config.TokenURL)

	// A. 网络层错误
	if err != nil {
		return nil, &UpstreamError{Op: op, Wrapped: err}
	}

	// B. 成功
	if resp.StatusCode() == http.StatusOK {
		var result TokenResult
		if err := json.Unmarshal(resp.Body(), &result); err != nil {
			return nil, &UpstreamError{Op: op, Wrapped: err}
		}
		return &result, nil
	}

	// C. 亚马逊 5xx，调用方可退避重试
	if resp.StatusCode() >= 500 {
		return nil, &UpstreamError{
			Op:         op,
			StatusCode: resp.StatusCode(),
			Wrapped:    fmt.Errorf("authority returned %s", resp.Status()),
		}
	}

	// D. 4xx 明确拒绝，解析错误体
	var lwaErr lwaErrorResp
	_ = json.Unmarshal(resp.Body(), &lwaErr)

	// invalid_grant 单独成类：refresh token 已死，必须触发重新授权
	if lwaErr.Error == "invalid_grant" {
		return nil, ErrInvalidGrant
	}

	return nil, &ExchangeError{
		StatusCode:  resp.StatusCode(),
		Code:        lwaErr.Error,
		Description: lwaErr.Description,
	}
}
