package model

import (
	"time"
)

// AuthState 防伪造 state 记录
// 发起授权时写入，回调时消费；Consume 采用读后即删，保证一次性使用
type AuthState struct {
	// state 本身即主键，crypto/rand 生成，43 字符（约 260 bit 熵）
	Token     string    `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index;not null"` // 过期后查询视同不存在

	// 回调绑定
	RedirectURI string `gorm:"size:512"`

	// 元数据
	PartnerID        string `gorm:"size:64"` // 再授权时指向已有 partner，首次授权为空
	Reauthorize      bool
	PrevRefreshToken string `gorm:"size:512"` // 再授权前的 refresh token，用于回调后比对写审计

	// Appstore 流专用：亚马逊带来的 nonce 与回跳地址
	AmazonState       string `gorm:"size:255"`
	AmazonCallbackURI string `gorm:"size:512"`
	Version           string `gorm:"size:20"` // "beta" 表示 draft app 测试工作流
}

func (AuthState) TableName() string {
	return "auth_states"
}

// Expired 判断是否已过期
func (s *AuthState) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
