package model

import "time"

// 套餐时长类型
const (
	DurationHour     = "HOUR"
	DurationDay      = "DAY"
	DurationMonth    = "MONTH"
	DurationYear     = "YEAR"
	DurationLifetime = "LIFETIME"
)

// Plan 套餐，定义密钥的时长和设备上限。
// 由目录服务维护，本核心只读
type Plan struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	Name          string    `json:"name" gorm:"not null"`
	DurationType  string    `json:"duration_type" gorm:"not null"`
	DurationValue int       `json:"duration_value" gorm:"not null;default:1"`
	MaxDevices    int       `json:"max_devices" gorm:"not null;default:1"`
	Price         float64   `json:"price" gorm:"type:decimal(20,2);not null;default:0"`
	Status        string    `json:"status" gorm:"default:'active'"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
