package model

import "time"

// 设备绑定状态
const (
	DeviceStatusActive   = "ACTIVE"
	DeviceStatusInactive = "INACTIVE"
)

// DeviceActivation 设备绑定记录，每个 (密钥, 硬件指纹) 组合只有一行，
// 重复激活在原行上翻转状态而不是新建
type DeviceActivation struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	KeyID         uint       `json:"key_id" gorm:"uniqueIndex:idx_key_hwid;not null"`
	Hwid          string     `json:"hwid" gorm:"uniqueIndex:idx_key_hwid;not null"`
	DeviceName    string     `json:"device_name"`
	DeviceInfo    string     `json:"device_info"`
	Status        string     `json:"status" gorm:"not null;default:'ACTIVE'"`
	ActivatedAt   time.Time  `json:"activated_at"`
	DeactivatedAt *time.Time `json:"deactivated_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
