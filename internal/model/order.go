package model

import "time"

// 订单状态
const (
	OrderStatusPending   = "PENDING"
	OrderStatusCompleted = "COMPLETED"
)

// Order 订单，PENDING 订单只有通过验证过签名的支付回调才能变为 COMPLETED
type Order struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	OrderCode     string     `json:"order_code" gorm:"uniqueIndex;not null"`
	UserID        *uint      `json:"user_id" gorm:"index"`
	PlanID        uint       `json:"plan_id" gorm:"not null"`
	LicenseKeyID  *uint      `json:"license_key_id"`
	Amount        float64    `json:"amount" gorm:"type:decimal(20,2);not null"`
	FinalAmount   float64    `json:"final_amount" gorm:"type:decimal(20,2);not null"`
	Status        string     `json:"status" gorm:"not null;default:'PENDING'"`
	TransactionID string     `json:"transaction_id"`
	PaidAt        *time.Time `json:"paid_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
