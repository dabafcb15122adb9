package service

import (
	"errors"
	"fmt"
)

// 错误分类常量
// 对外（controller 层）统一映射为 HTTP 状态码 + 稳定的 kind 字段
const (
	KindValidation        = "validation_error"
	KindNotFound          = "not_found"
	KindInvalidTransition = "invalid_state_transition"
	KindExchange          = "authority_exchange_error"
	KindInvalidGrant      = "invalid_grant"
	KindUpstream          = "upstream_unavailable"
)

// ErrInvalidGrant refresh token 已被亚马逊侧永久作废
// 调用方收到该错误必须把 partner 打回 PENDING_AUTH，禁止重试
var ErrInvalidGrant = errors.New("lwa: refresh token invalidated (invalid_grant)")

// ==================== 请求类错误 ====================

// ValidationError 请求参数缺失或非法，4xx，不重试
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErr(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError partner 或 state 不存在（含 state 已过期的场景）
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func notFoundErr(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError 状态机校验失败
type InvalidTransitionError struct {
	From string
	To   string
	Why  string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s: %s", e.From, e.To, e.Why)
}

// ==================== 外部依赖类错误 ====================

// ExchangeError 亚马逊 token 端点明确拒绝（4xx）
// 透传亚马逊返回的 error code / description，不做二次加工
type ExchangeError struct {
	StatusCode  int
	Code        string // 如 invalid_client / unauthorized_client
	Description string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("lwa exchange rejected: status=%d code=%s desc=%s", e.StatusCode, e.Code, e.Description)
}

// UpstreamError 网络错误或亚马逊 5xx，调用方可自行退避重试
// StatusCode 为 0 表示网络层错误，没拿到响应
type UpstreamError struct {
	Op         string
	StatusCode int
	Wrapped    error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream unavailable during %s: status=%d: %v", e.Op, e.StatusCode, e.Wrapped)
	}
	return fmt.Sprintf("upstream unavailable during %s: %v", e.Op, e.Wrapped)
}

func (e *UpstreamError) Unwrap() error { return e.Wrapped }

// ==================== 分类辅助 ====================

// ErrorKind 返回错误的稳定分类标识
func ErrorKind(err error) string {
	var ve *ValidationError
	var nf *NotFoundError
	var it *InvalidTransitionError
	var ex *ExchangeError
	var up *UpstreamError

	switch {
	case errors.Is(err, ErrInvalidGrant):
		return KindInvalidGrant
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &nf):
		return KindNotFound
	case errors.As(err, &it):
		return KindInvalidTransition
	// Upstream 必须先于 Exchange 判断：errors.As 会沿 Unwrap 链下钻，
	// 外层已经是 Upstream 的错误不允许被内层错误改写成不可重试
	case errors.As(err, &up):
		return KindUpstream
	case errors.As(err, &ex):
		return KindExchange
	default:
		return "internal_error"
	}
}
