package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"spapi_partner_v1_202608/internal/model"
	"spapi_partner_v1_202608/internal/repository"
)

// StatusService 合作方状态机
// 所有状态变更必须走这里，表外流转一律拒绝
type StatusService struct {
	PartnerRepo repository.PartnerRepository
	HistoryRepo repository.TokenHistoryRepository
}

// NewStatusService 工厂方法
func NewStatusService(partnerRepo repository.PartnerRepository, historyRepo repository.TokenHistoryRepository) *StatusService {
	return &StatusService{
		PartnerRepo: partnerRepo,
		HistoryRepo: historyRepo,
	}
}

// 状态流转表
// key: 当前状态, value: 允许进入的下一状态集合
var allowedTransitions = map[string][]string{
	model.StatusPendingAuth: {model.StatusAuthorized},
	model.StatusAuthorized:  {model.StatusPendingAuth, model.StatusInactive},
	model.StatusInactive:    {model.StatusAuthorized, model.StatusAuthRevoked},
	model.StatusAuthRevoked: {model.StatusPendingAuth},
}

// ValidateTransition 校验状态流转是否在表内
// 同状态视为无操作，放行
func ValidateTransition(from, to string) error {
	if from == to {
		return nil
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to, Why: "transition not in state table"}
}

// MarkAuthorized 授权完成：按状态表严格校验
// AUTHORIZATION_REVOKED 在这里不放行——token 刷新成功不等于卖家重新同意，
// 撤销的 partner 只能经由同意页回调回来（见 MarkAuthorizedFromCallback）
func (s *StatusService) MarkAuthorized(ctx context.Context, partner *model.Partner) error {
	if err := ValidateTransition(partner.Status, model.StatusAuthorized); err != nil {
		return err
	}
	return s.applyAuthorized(ctx, partner)
}

// MarkAuthorizedFromCallback 同意页回调专用
// 撤销状态下的成功回调属于全新授权流，内部等价于先回到 PENDING_AUTH 再授权
func (s *StatusService) MarkAuthorizedFromCallback(ctx context.Context, partner *model.Partner) error {
	from := partner.Status
	if from == model.StatusAuthRevoked {
		from = model.StatusPendingAuth
	}
	if err := ValidateTransition(from, model.StatusAuthorized); err != nil {
		return err
	}
	return s.applyAuthorized(ctx, partner)
}

// applyAuthorized 任何一次成功授权都会清掉停用/撤销标记
func (s *StatusService) applyAuthorized(ctx context.Context, partner *model.Partner) error {
	now := time.Now()
	partner.Status = model.StatusAuthorized
	partner.MarkedInactiveAt = nil
	partner.AuthRevokedAt = nil
	partner.LastTokenRefreshAt = &now
	return s.PartnerRepo.Update(ctx, partner)
}

// MarkInactive 运营标记停用
// 仅 oauth/appstore 且当前 AUTHORIZED 的 partner 可以停用；
// 清空提醒时间戳，让下一轮提醒扫描立即命中
func (s *StatusService) MarkInactive(ctx context.Context, partnerID string) (*model.Partner, error) {
	partner, err := s.PartnerRepo.GetByPartnerID(ctx, partnerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("partner %s not found", partnerID)
		}
		return nil, err
	}

	if partner.IsSelfAuthorized() {
		return nil, &InvalidTransitionError{
			From: partner.Status,
			To:   model.StatusInactive,
			Why:  "self-authorized partners cannot be marked inactive",
		}
	}
	if partner.Status != model.StatusAuthorized {
		return nil, &InvalidTransitionError{
			From: partner.Status,
			To:   model.StatusInactive,
			Why:  "only AUTHORIZED partners can be marked inactive",
		}
	}

	now := time.Now()
	partner.Status = model.StatusInactive
	partner.MarkedInactiveAt = &now
	partner.LastReminderSentAt = nil
	if err := s.PartnerRepo.Update(ctx, partner); err != nil {
		return nil, err
	}
	return partner, nil
}

// MarkRevoked 提醒探测发现亚马逊侧已撤销授权
func (s *StatusService) MarkRevoked(ctx context.Context, partner *model.Partner) error {
	if err := ValidateTransition(partner.Status, model.StatusAuthRevoked); err != nil {
		return err
	}

	now := time.Now()
	partner.Status = model.StatusAuthRevoked
	partner.AuthRevokedAt = &now
	return s.PartnerRepo.Update(ctx, partner)
}

// ForcePendingAuth refresh 收到 invalid_grant：旧 token 已死，打回待授权
// 这是状态表之外唯一的强制流转：无论当前处于什么状态都执行，
// 同时写一条 token_invalidated 审计（新值为空）
func (s *StatusService) ForcePendingAuth(ctx context.Context, partner *model.Partner, source string) error {
	oldToken := partner.RefreshToken

	partner.Status = model.StatusPendingAuth
	partner.RefreshToken = ""
	if err := s.PartnerRepo.Update(ctx, partner); err != nil {
		return err
	}

	if oldToken != "" {
		entry := &model.TokenHistory{
			PartnerID:       partner.PartnerID,
			OldRefreshToken: oldToken,
			NewRefreshToken: "",
			Reason:          model.HistoryReasonInvalidated,
			Source:          source,
			RequestID:       uuid.NewString(),
		}
		if err := s.HistoryRepo.Append(ctx, entry); err != nil {
			// 审计写失败不阻断状态回退，仅记录
			log.Printf("[Status] 写 token 审计失败 partner=%s: %v", partner.PartnerID, err)
		}
	}
	return nil
}
