package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"spapi_partner_v1_202608/internal/model"
	"spapi_partner_v1_202608/internal/repository"
	"spapi_partner_v1_202608/pkg/utils"
)

// 业务常量
const (
	// ConsentURLDefault Seller Central 授权同意页，必须与应用后台配置一致
	ConsentURLDefault = "https://sellercentral.amazon.com/apps/authorize/consent"

	// state 有效期：直连授权 10 分钟，appstore 流亚马逊跳转链路长，给 15 分钟
	StateTTLOAuth    = 10 * time.Minute
	StateTTLAppstore = 15 * time.Minute

	// state 长度 43 字符，字符集 66 个，约 260 bit 熵
	stateTokenLength = 43
)

// ==================== 配置 ====================

type AuthFlowConfig struct {
	ConsentURL  string // 默认 ConsentURLDefault
	RedirectURI string // 本系统的回调地址，必须与应用后台配置完全一致
	DraftApp    bool   // draft 状态的应用授权链接要带 version=beta
}

// ==================== 请求/响应结构 ====================

// SelfAuthReq 自授权表单（form-urlencoded 提交）
type SelfAuthReq struct {
	RefreshToken string `form:"refresh_token" binding:"required"`
	ClientID     string `form:"client_id" binding:"required"`
	ClientSecret string `form:"client_secret" binding:"required"`
	AmazonID     string `form:"selling_partner_id"`
	Name         string `form:"name"`
	Type         string `form:"type"` // seller / vendor，默认 seller
}

// CallbackResult 回调处理结果
type CallbackResult struct {
	Partner      *model.Partner
	Reauthorized bool
	TokenRotated bool // 亚马逊返回的 refresh token 与上一轮不同
}

// ==================== 服务实现 ====================

// AuthFlowService 授权流编排
// 三条入驻链路（直连 OAuth / 自授权 / Appstore）在回调处汇合
type AuthFlowService struct {
	Config      *AuthFlowConfig
	PartnerRepo repository.PartnerRepository
	StateRepo   repository.AuthStateRepository
	HistoryRepo repository.TokenHistoryRepository
	Status      *StatusService
	LWA         *LWAService
	AppCred     *AppCredService
}

// NewAuthFlowService 工厂方法
func NewAuthFlowService(
	cfg *AuthFlowConfig,
	partnerRepo repository.PartnerRepository,
	stateRepo repository.AuthStateRepository,
	historyRepo repository.TokenHistoryRepository,
	status *StatusService,
	lwa *LWAService,
	appCred *AppCredService,
) *AuthFlowService {
	if cfg.ConsentURL == "" {
		cfg.ConsentURL = ConsentURLDefault
	}
	return &AuthFlowService{
		Config:      cfg,
		PartnerRepo: partnerRepo,
		StateRepo:   stateRepo,
		HistoryRepo: historyRepo,
		Status:      status,
		LWA:         lwa,
		AppCred:     appCred,
	}
}

// ==================== 直连 OAuth 流 ====================

// BuildConsentURL 生成授权链接
// partnerID 为空时视为首次入驻，先落一条 PENDING_AUTH 记录；
// 不为空时是再授权，state 里带上旧 refresh token 供回调后比对写审计
func (s *AuthFlowService) BuildConsentURL(ctx context.Context, partnerID, partnerType string) (string, error) {
	var partner *model.Partner
	var err error
	isNew := partnerID == ""

	if isNew {
		// 首次授权：占位记录先在内存里组装，等 state 落库成功后再创建，
		// 避免中途失败留下没有 state 指向的孤儿记录
		if partnerType == "" {
			partnerType = model.PartnerTypeSeller
		}
		if partnerType != model.PartnerTypeSeller && partnerType != model.PartnerTypeVendor {
			return "", validationErr("type 必须是 seller 或 vendor")
		}
		partner = &model.Partner{
			PartnerID: uuid.NewString(),
			Type:      partnerType,
			AuthType:  model.AuthTypeOAuth,
			Status:    model.StatusPendingAuth,
		}
	} else {
		partner, err = s.PartnerRepo.GetByPartnerID(ctx, partnerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", notFoundErr("partner %s not found", partnerID)
			}
			return "", err
		}
		if partner.IsSelfAuthorized() {
			return "", validationErr("self 类型的 partner 不走跳转授权")
		}
	}

	creds, err := s.AppCred.Get(ctx)
	if err != nil {
		return "", err
	}

	// 生成 state 并持久化，绑定本次授权尝试
	token, err := utils.GenerateRandomString(stateTokenLength)
	if err != nil {
		return "", err
	}
	state := &model.AuthState{
		Token:            token,
		ExpiresAt:        time.Now().Add(StateTTLOAuth),
		RedirectURI:      s.Config.RedirectURI,
		PartnerID:        partner.PartnerID,
		Reauthorize:      !isNew,
		PrevRefreshToken: partner.RefreshToken,
	}
	if err = s.StateRepo.Save(ctx, state); err != nil {
		return "", err
	}

	if isNew {
		// 这里失败只会留下一条孤儿 state，到期自动清理；
		// 回调侧 resolveCallbackPartner 也能按亚马逊身份兜底建档
		if err = s.PartnerRepo.Create(ctx, partner); err != nil {
			return "", err
		}
	}

	// 拼接 Seller Central 同意页链接
	q := url.Values{}
	q.Set("application_id", creds.ApplicationID)
	q.Set("state", token)
	q.Set("redirect_uri", s.Config.RedirectURI)
	if s.Config.DraftApp {
		// draft 应用必须带 version=beta，否则同意页直接报错
		q.Set("version", "beta")
	}
	return fmt.Sprintf("%s?%s", s.Config.ConsentURL, q.Encode()), nil
}

// ==================== Appstore 流 ====================

// HandleAppstoreEntry 处理亚马逊应用商店发起的授权
// 亚马逊带着自己的 nonce (amazon_state) 和回跳地址进来，
// 我们铸造自己的 state 后带着两个 nonce 跳回亚马逊
func (s *AuthFlowService) HandleAppstoreEntry(ctx context.Context, amazonCallbackURI, amazonState, sellingPartnerID, version string) (string, error) {
	if amazonCallbackURI == "" || amazonState == "" {
		return "", validationErr("缺少 amazon_callback_uri 或 amazon_state 参数")
	}

	token, err := utils.GenerateRandomString(stateTokenLength)
	if err != nil {
		return "", err
	}
	state := &model.AuthState{
		Token:             token,
		ExpiresAt:         time.Now().Add(StateTTLAppstore),
		RedirectURI:       s.Config.RedirectURI,
		AmazonState:       amazonState,
		AmazonCallbackURI: amazonCallbackURI,
		Version:           version, // "beta" 表示测试工作流
	}
	if err = s.StateRepo.Save(ctx, state); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("redirect_uri", s.Config.RedirectURI)
	q.Set("amazon_state", amazonState)
	q.Set("state", token)
	if version != "" {
		q.Set("version", version)
	}
	return fmt.Sprintf("%s?%s", amazonCallbackURI, q.Encode()), nil
}

// ==================== 回调汇合点 ====================

// HandleCallback 处理授权回调：校验 state -> 换 token -> 落库
// 直连流与 appstore 流在这里汇合，靠 state 元数据区分
func (s *AuthFlowService) HandleCallback(ctx context.Context, stateToken, sellingPartnerID, oauthCode string) (*CallbackResult, error) {
	// 1. 消费 state（过期/未知/重放都会落到 NotFound）
	state, err := s.StateRepo.Consume(ctx, stateToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("授权已超时或 state 无效，请重新发起授权")
		}
		return nil, err
	}

	// 2. 换取 token
	creds, err := s.AppCred.Get(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := s.LWA.ExchangeAuthCode(ctx, oauthCode, state.RedirectURI, creds.ClientID, creds.ClientSecret)
	if err != nil {
		return nil, err
	}

	// 3. 定位或创建 partner
	partner, err := s.resolveCallbackPartner(ctx, state, sellingPartnerID)
	if err != nil {
		return nil, err
	}

	// 4. 回写凭证并置为 AUTHORIZED（回调链路允许从撤销状态回来）
	prevToken := state.PrevRefreshToken
	partner.AmazonID = sellingPartnerID
	partner.RefreshToken = tokens.RefreshToken
	if err = s.Status.MarkAuthorizedFromCallback(ctx, partner); err != nil {
		return nil, err
	}

	// 5. 再授权且 token 确实换了新值才写审计
	rotated := prevToken != "" && prevToken != tokens.RefreshToken
	if rotated {
		s.appendHistory(ctx, partner.PartnerID, prevToken, tokens.RefreshToken, model.HistoryReasonReauthorized, "callback")
	}

	return &CallbackResult{
		Partner:      partner,
		Reauthorized: state.Reauthorize,
		TokenRotated: rotated,
	}, nil
}

// resolveCallbackPartner 按 state 元数据定位 partner
// appstore 流固定新建记录（每次同意视为一个独立租户，不做去重）
func (s *AuthFlowService) resolveCallbackPartner(ctx context.Context, state *model.AuthState, sellingPartnerID string) (*model.Partner, error) {
	// Appstore 流：无条件新建
	if state.AmazonState != "" {
		partner := &model.Partner{
			PartnerID: uuid.NewString(),
			AmazonID:  sellingPartnerID,
			Type:      model.PartnerTypeSeller,
			AuthType:  model.AuthTypeAppstore,
			Status:    model.StatusPendingAuth,
		}
		if err := s.PartnerRepo.Create(ctx, partner); err != nil {
			return nil, err
		}
		return partner, nil
	}

	// 直连流：state 里有发起时绑定的 partner
	if state.PartnerID != "" {
		partner, err := s.PartnerRepo.GetByPartnerID(ctx, state.PartnerID)
		if err == nil {
			return partner, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		// 发起后记录被删了，继续按外部身份兜底
	}

	// 兜底：按亚马逊侧身份找，找不到就新建
	partner, err := s.PartnerRepo.GetByAmazonID(ctx, sellingPartnerID)
	if err == nil {
		return partner, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	partner = &model.Partner{
		PartnerID: uuid.NewString(),
		AmazonID:  sellingPartnerID,
		Type:      model.PartnerTypeSeller,
		AuthType:  model.AuthTypeOAuth,
		Status:    model.StatusPendingAuth,
	}
	if err = s.PartnerRepo.Create(ctx, partner); err != nil {
		return nil, err
	}
	return partner, nil
}

// ==================== 自授权流 ====================

// RegisterSelfPartner 自授权入驻：凭证直接提交，无跳转、无 state
// 创建即 AUTHORIZED
func (s *AuthFlowService) RegisterSelfPartner(ctx context.Context, req *SelfAuthReq) (*model.Partner, error) {
	if req.RefreshToken == "" || req.ClientID == "" || req.ClientSecret == "" {
		return nil, validationErr("refresh_token、client_id、client_secret 均为必填")
	}
	partnerType := req.Type
	if partnerType == "" {
		partnerType = model.PartnerTypeSeller
	}
	if partnerType != model.PartnerTypeSeller && partnerType != model.PartnerTypeVendor {
		return nil, validationErr("type 必须是 seller 或 vendor")
	}

	// clientId 查重：轮换通知按 clientId 定位，必须唯一
	if existing, err := s.PartnerRepo.GetByClientID(ctx, req.ClientID); err == nil && existing != nil {
		return nil, validationErr("client_id 已被 partner %s 占用", existing.PartnerID)
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now()
	partner := &model.Partner{
		PartnerID:          uuid.NewString(),
		AmazonID:           req.AmazonID,
		Name:               req.Name,
		Type:               partnerType,
		AuthType:           model.AuthTypeSelf,
		Status:             model.StatusAuthorized,
		ClientID:           req.ClientID,
		ClientSecret:       req.ClientSecret,
		RefreshToken:       req.RefreshToken,
		LastTokenRefreshAt: &now,
	}
	if err := s.PartnerRepo.Create(ctx, partner); err != nil {
		return nil, err
	}
	return partner, nil
}

// ==================== Token 刷新 ====================

// RefreshPartnerToken 刷新并回写 token
// invalid_grant -> 强制打回 PENDING_AUTH；成功 -> 清掉停用标记
func (s *AuthFlowService) RefreshPartnerToken(ctx context.Context, partnerID, source string) (*model.Partner, error) {
	partner, err := s.PartnerRepo.GetByPartnerID(ctx, partnerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("partner %s not found", partnerID)
		}
		return nil, err
	}
	// 撤销状态不接受刷新：token 可用不等于卖家重新同意，必须走同意页
	if partner.Status == model.StatusAuthRevoked {
		return nil, &InvalidTransitionError{
			From: partner.Status,
			To:   model.StatusAuthorized,
			Why:  "revoked partners must re-authorize through the consent flow",
		}
	}
	if partner.RefreshToken == "" {
		return nil, validationErr("partner %s 没有 refresh token，需先完成授权", partnerID)
	}

	clientID, clientSecret, err := s.credentialsFor(ctx, partner)
	if err != nil {
		return nil, err
	}

	tokens, err := s.LWA.Refresh(ctx, partner.RefreshToken, clientID, clientSecret)
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			// 旧 token 已死，打回待授权后把原始错误继续往上抛
			if stErr := s.Status.ForcePendingAuth(ctx, partner, source); stErr != nil {
				log.Printf("[Auth] partner %s 回退 PENDING_AUTH 失败: %v", partnerID, stErr)
			}
			return partner, err
		}
		return nil, err
	}

	// 响应未带 refresh_token 表示未轮换
	oldToken := partner.RefreshToken
	if tokens.RefreshToken != "" && tokens.RefreshToken != oldToken {
		partner.RefreshToken = tokens.RefreshToken
		s.appendHistory(ctx, partner.PartnerID, oldToken, tokens.RefreshToken, model.HistoryReasonRotated, source)
	}
	if err = s.Status.MarkAuthorized(ctx, partner); err != nil {
		return nil, err
	}
	return partner, nil
}

// credentialsFor self 类型用自己的凭证，其余用共享应用凭证
func (s *AuthFlowService) credentialsFor(ctx context.Context, partner *model.Partner) (string, string, error) {
	if partner.IsSelfAuthorized() {
		return partner.ClientID, partner.ClientSecret, nil
	}
	creds, err := s.AppCred.Get(ctx)
	if err != nil {
		return "", "", err
	}
	return creds.ClientID, creds.ClientSecret, nil
}

// appendHistory 新旧值不同才写入；写失败只记日志不影响主流程
func (s *AuthFlowService) appendHistory(ctx context.Context, partnerID, oldToken, newToken, reason, source string) {
	if oldToken == newToken {
		return
	}
	entry := &model.TokenHistory{
		PartnerID:       partnerID,
		OldRefreshToken: oldToken,
		NewRefreshToken: newToken,
		Reason:          reason,
		Source:          source,
		RequestID:       uuid.NewString(),
	}
	if err := s.HistoryRepo.Append(ctx, entry); err != nil {
		log.Printf("[Auth] 写 token 审计失败 partner=%s: %v", partnerID, err)
	}
}
