package model

// Token 变更原因常量
const (
	HistoryReasonReauthorized = "reauthorized"      // 卖家重新走授权流
	HistoryReasonRotated      = "rotated_by_amazon" // 亚马逊侧主动轮换（回调返回了新 refresh token）
	HistoryReasonInvalidated  = "token_invalidated" // refresh 收到 invalid_grant，旧 token 已死
)

// TokenHistory refresh token 变更审计记录
// 只追加不修改；仅在新旧值不同的时候写入
type TokenHistory struct {
	BaseModel

	PartnerID string `gorm:"size:64;index;not null"`

	OldRefreshToken string `gorm:"size:512"`
	NewRefreshToken string `gorm:"size:512"` // invalid_grant 场景为空串

	Reason string `gorm:"size:30;not null"`

	// 请求来源信息，排查问题用
	Source    string `gorm:"size:30"` // callback / refresh_job / manual
	RequestID string `gorm:"size:64"`
}

func (TokenHistory) TableName() string {
	return "token_histories"
}
