package model

import "time"

// 操作对象
const (
	TargetLicenseKey = "license_key"
	TargetReseller   = "reseller"
	TargetPlan       = "plan"
	TargetProduct    = "product"
)

// OperationLog 管理端操作日志
type OperationLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	TargetID  string    `json:"target_id"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}
