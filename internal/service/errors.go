package service

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// 错误类别，对外返回 {"error": KIND, "message": ...}
const (
	KindValidationError       = "VALIDATION_ERROR"
	KindInvalidKey            = "INVALID_KEY"
	KindKeyExpired            = "KEY_EXPIRED"
	KindKeySuspended          = "KEY_SUSPENDED"
	KindDeviceLimitReached    = "DEVICE_LIMIT_REACHED"
	KindDeviceNotFound        = "DEVICE_NOT_FOUND"
	KindInvalidToken          = "INVALID_TOKEN"
	KindSessionExpired        = "SESSION_EXPIRED"
	KindAdBypassNotCompleted  = "AD_BYPASS_NOT_COMPLETED"
	KindRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	KindInvalidSignature      = "INVALID_SIGNATURE"
	KindAmountMismatch        = "AMOUNT_MISMATCH"
	KindBusinessError         = "BUSINESS_ERROR"
	KindInsufficientBalance   = "INSUFFICIENT_BALANCE"
	KindQuotaExceeded         = "QUOTA_EXCEEDED"
	KindKeyGenerationExhaust  = "KEY_GENERATION_EXHAUSTED"
	KindShortenerError        = "SHORTENER_ERROR"
	KindNotFound              = "NOT_FOUND"
	KindUnauthorized          = "UNAUTHORIZED"
)

// ServiceError 业务错误，携带类别和对外提示
type ServiceError struct {
	Kind    string
	Message string
	Status  int
}

func (e *ServiceError) Error() string {
	return e.Kind + ": " + e.Message
}

// NewError 创建业务错误，HTTP 状态码按类别推导
func NewError(kind, message string) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, Status: statusForKind(kind)}
}

func statusForKind(kind string) int {
	switch kind {
	case KindValidationError:
		return fiber.StatusBadRequest
	case KindInvalidKey, KindInvalidToken, KindNotFound, KindDeviceNotFound:
		return fiber.StatusNotFound
	case KindUnauthorized, KindInvalidSignature:
		return fiber.StatusUnauthorized
	case KindDeviceLimitReached:
		return fiber.StatusConflict
	case KindRateLimitExceeded, KindQuotaExceeded:
		return fiber.StatusTooManyRequests
	case KindKeyGenerationExhaust:
		return fiber.StatusServiceUnavailable
	case KindShortenerError:
		return fiber.StatusBadGateway
	default:
		// 业务规则类错误统一 400
		return fiber.StatusBadRequest
	}
}

// ErrorKind 取出错误类别，非业务错误返回空串
func ErrorKind(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind 判断错误是否属于指定类别
func IsKind(err error, kind string) bool {
	return ErrorKind(err) == kind
}
