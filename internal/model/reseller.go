package model

import "time"

// 经销商状态
const (
	ResellerStatusPending   = "PENDING"
	ResellerStatusApproved  = "APPROVED"
	ResellerStatusSuspended = "SUSPENDED"
	ResellerStatusRejected  = "REJECTED"
)

// Reseller 经销商账户。balance 是唯一可消费的余额，
// 必须始终等于该经销商最新一条 ResellerTransaction 的 balance_after
type Reseller struct {
	ID                  uint      `json:"id" gorm:"primaryKey"`
	UserID              uint      `json:"user_id" gorm:"uniqueIndex;not null"`
	Balance             float64   `json:"balance" gorm:"type:decimal(20,2);not null;default:0"`
	TotalSpent          float64   `json:"total_spent" gorm:"type:decimal(20,2);not null;default:0"`
	Currency            string    `json:"currency" gorm:"default:'USD'"`
	DiscountPercent     float64   `json:"discount_percent" gorm:"type:decimal(5,2);not null;default:0"`
	Status              string    `json:"status" gorm:"not null;default:'PENDING'"`
	FreeKeyQuotaDaily   int       `json:"free_key_quota_daily" gorm:"not null;default:0"`
	FreeKeyQuotaMonthly int       `json:"free_key_quota_monthly" gorm:"not null;default:0"`
	FreeKeyPlanID       *uint     `json:"free_key_plan_id"`
	MaxKeysPerOrder     int       `json:"max_keys_per_order" gorm:"not null;default:100"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
