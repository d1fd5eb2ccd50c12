package model

import (
	"time"
)

// 许可证状态
const (
	KeyStatusInactive = "INACTIVE" // 已签发未激活
	KeyStatusActive   = "ACTIVE"   // 已绑定设备
	KeyStatusExpired  = "EXPIRED"  // 已过期（终态）
	KeyStatusDisabled = "DISABLED" // 管理员停用
)

// 密钥来源
const (
	CreatedBySystemFreeKey = "SYSTEM_FREE_KEY"
	CreatedBySystemOrder   = "SYSTEM_ORDER"
)

// LicenseKey 许可证密钥，设备绑定和过期状态的唯一事实来源
type LicenseKey struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	Key            string     `json:"key" gorm:"uniqueIndex;not null"`
	PlanID         uint       `json:"plan_id" gorm:"index;not null"`
	UserID         *uint      `json:"user_id" gorm:"index"`
	Status         string     `json:"status" gorm:"not null;default:'INACTIVE'"`
	MaxDevices     int        `json:"max_devices" gorm:"not null;default:1"`
	CurrentDevices int        `json:"current_devices" gorm:"not null;default:0"`
	ActivatedAt    *time.Time `json:"activated_at"`
	ExpiresAt      *time.Time `json:"expires_at"` // 空值表示永久
	CreatedBy      string     `json:"created_by" gorm:"index"`
	Notes          string     `json:"notes"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsExpiredAt 判断在给定时间点密钥是否已过期
func (k *LicenseKey) IsExpiredAt(now time.Time) bool {
	if k.Status == KeyStatusExpired {
		return true
	}
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// RemainingDevices 剩余设备槽位
func (k *LicenseKey) RemainingDevices() int {
	remaining := k.MaxDevices - k.CurrentDevices
	if remaining < 0 {
		return 0
	}
	return remaining
}
