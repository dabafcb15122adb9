package service

import (
	"encoding/json"
	"fmt"
	"time"
)

// 通知类型常量
const (
	NotificationTypeNewSecret = "APPLICATION_OAUTH_CLIENT_NEW_SECRET"
)

// ==================== 通知信封 ====================

// NotificationEnvelope 亚马逊通知的外层信封
// notificationType 是判别字段，未知类型显式拒绝而不是静默丢弃
type NotificationEnvelope struct {
	NotificationVersion string          `json:"notificationVersion"`
	NotificationType    string          `json:"notificationType"`
	PayloadVersion      string          `json:"payloadVersion"`
	EventTime           time.Time       `json:"eventTime"`
	Payload             json.RawMessage `json:"payload"`
}

// newSecretPayload 信封内层：新密钥下发
type newSecretPayload struct {
	ApplicationOAuthClientNewSecret *ClientNewSecret `json:"applicationOAuthClientNewSecret"`
}

// ClientNewSecret 密钥轮换完成事件的有效载荷
type ClientNewSecret struct {
	ClientID              string    `json:"clientId"`
	NewClientSecret       string    `json:"newClientSecret"`
	NewClientSecretExpiry time.Time `json:"newClientSecretExpiryTime"`
	OldClientSecretExpiry time.Time `json:"oldClientSecretExpiryTime"`
}

// ==================== 解析 ====================

// ParseNewSecretNotification 解析密钥轮换通知
// 信封格式非法、判别字段未知、载荷缺字段都返回 ValidationError
func ParseNewSecretNotification(body []byte) (*ClientNewSecret, error) {
	var envelope NotificationEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, validationErr("通知信封解析失败: %v", err)
	}

	if envelope.NotificationType != NotificationTypeNewSecret {
		return nil, validationErr("未知的通知类型: %q", envelope.NotificationType)
	}

	var payload newSecretPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return nil, validationErr("通知载荷解析失败: %v", err)
	}
	if payload.ApplicationOAuthClientNewSecret == nil {
		return nil, validationErr("通知载荷缺少 applicationOAuthClientNewSecret")
	}

	secret := payload.ApplicationOAuthClientNewSecret
	if secret.ClientID == "" || secret.NewClientSecret == "" {
		return nil, validationErr("通知载荷缺少 clientId 或 newClientSecret")
	}
	return secret, nil
}

// String 打日志用，绝不输出密钥本身
func (s *ClientNewSecret) String() string {
	return fmt.Sprintf("ClientNewSecret{clientId=%s, newExpiry=%s, oldExpiry=%s}",
		s.ClientID, s.NewClientSecretExpiry.Format(time.RFC3339), s.OldClientSecretExpiry.Format(time.RFC3339))
}
