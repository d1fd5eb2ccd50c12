package model

import "time"

// 密钥使用动作
const (
	UsageActionActivate   = "ACTIVATE"
	UsageActionDeactivate = "DEACTIVATE"
	UsageActionValidate   = "VALIDATE"
	UsageActionExpire     = "EXPIRE"
)

// KeyUsageLog 密钥使用审计日志，只追加不修改
type KeyUsageLog struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	KeyID      uint      `json:"key_id" gorm:"index"`
	LicenseKey string    `json:"license_key" gorm:"index"`
	Action     string    `json:"action"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	Details    string    `json:"details"` // JSON 详情
	CreatedAt  time.Time `json:"created_at"`
}
