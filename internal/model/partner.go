package model

import (
	"time"
)

// Partner 类型常量（seller / vendor）
const (
	PartnerTypeSeller = "seller"
	PartnerTypeVendor = "vendor"
)

// 授权方式常量
const (
	AuthTypeOAuth    = "oauth"    // 标准授权流：跳转 Seller Central 同意页
	AuthTypeSelf     = "self"     // 自授权：直接提交 refresh_token + client 凭证
	AuthTypeAppstore = "appstore" // Appstore 流：亚马逊应用商店发起，带 amazon_state
)

// Partner 状态机常量
// 状态流转规则见 service.StatusService，禁止绕过校验直接改库
const (
	StatusPendingAuth = "PENDING_AUTH"          // 等待授权完成
	StatusAuthorized  = "AUTHORIZED"            // 授权有效
	StatusInactive    = "MARKED_INACTIVE"       // 运营手动标记停用，进入提醒周期
	StatusAuthRevoked = "AUTHORIZATION_REVOKED" // 卖家已在亚马逊侧撤销授权
)

type Partner struct {
	BaseModel

	// 1. 核心身份
	PartnerID string `gorm:"size:64;uniqueIndex"` // 系统内部 ID (uuid)
	AmazonID  string `gorm:"size:64;index"`       // selling_partner_id，亚马逊侧账号标识
	Name      string `gorm:"size:100"`
	Region    string `gorm:"size:20;default:'NA'"` // NA / EU / FE，决定 LWA 与 SP-API 端点

	// 2. 分类
	Type     string `gorm:"size:20;not null;default:'seller'"`
	AuthType string `gorm:"size:20;not null;default:'oauth'"`

	// 3. 状态
	Status string `gorm:"size:30;index;not null;default:'PENDING_AUTH'"`

	// 4. 凭证材料
	// self 类型存放卖家专属的 client 凭证；oauth/appstore 使用共享应用凭证，不落库
	ClientID     string `gorm:"size:128;index"`
	ClientSecret string `gorm:"size:255"`
	RefreshToken string `gorm:"size:512"`

	// 5. 密钥轮换（仅 self 类型会用到）
	// 旧密钥保留到其过期时间，给在途请求一个宽限窗口
	ClientSecretExpiry    *time.Time
	OldClientSecret       string `gorm:"size:255"`
	OldClientSecretExpiry *time.Time

	// 6. 生命周期时间戳
	LastTokenRefreshAt *time.Time
	MarkedInactiveAt   *time.Time
	AuthRevokedAt      *time.Time
	LastReminderSentAt *time.Time `gorm:"index"` // 停用提醒的最近发送时间，标记停用时清空
}

func (Partner) TableName() string {
	return "partners"
}

// IsSelfAuthorized 是否自授权类型
func (p *Partner) IsSelfAuthorized() bool {
	return p.AuthType == AuthTypeSelf
}
