package model

import "time"

// 免费密钥会话状态
const (
	SessionStatusPending   = "PENDING"   // 等待广告跳转回调
	SessionStatusCompleted = "COMPLETED" // 回调完成，可领取
	SessionStatusClaimed   = "CLAIMED"   // 已领取（终态）
	SessionStatusExpired   = "EXPIRED"   // 超时失效
)

// FreeKeySession 免费密钥领取会话，一次性使用
type FreeKeySession struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	Token        string     `json:"token" gorm:"uniqueIndex;not null"`
	ProductID    uint       `json:"product_id" gorm:"index;not null"`
	UserID       *uint      `json:"user_id" gorm:"index"`
	IPAddress    string     `json:"ip_address" gorm:"index"`
	Status       string     `json:"status" gorm:"not null;default:'PENDING'"`
	ShortURL     string     `json:"short_url"`
	ExpiresAt    time.Time  `json:"expires_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	ClaimedAt    *time.Time `json:"claimed_at"`
	LicenseKeyID *uint      `json:"license_key_id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
