package model

import "time"

// ResellerApiKey 经销商 API 凭证，rsk_ 前缀的不透明令牌
type ResellerApiKey struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	ResellerID uint       `json:"reseller_id" gorm:"index;not null"`
	Key        string     `json:"-" gorm:"uniqueIndex;not null"`
	Name       string     `json:"name"`
	IsActive   bool       `json:"is_active" gorm:"not null;default:true"`
	LastUsedAt *time.Time `json:"last_used_at"`
	LastUsedIP string     `json:"last_used_ip"`
	RateLimit  int        `json:"rate_limit" gorm:"default:0"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
