package model

import "time"

// 经销商账变类型
const (
	TxTypeDeposit     = "DEPOSIT"
	TxTypePurchaseKey = "PURCHASE_KEY"
	TxTypeRefund      = "REFUND"
	TxTypeAdjustment  = "ADJUSTMENT"
	TxTypeBonus       = "BONUS"
)

// ResellerTransaction 不可变的账变流水，审计级记录。
// 对每条记录 balance_after - balance_before == amount（带符号）
type ResellerTransaction struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ResellerID    uint      `json:"reseller_id" gorm:"index;not null"`
	Type          string    `json:"type" gorm:"not null"`
	Amount        float64   `json:"amount" gorm:"type:decimal(20,2);not null"`
	BalanceBefore float64   `json:"balance_before" gorm:"type:decimal(20,2);not null"`
	BalanceAfter  float64   `json:"balance_after" gorm:"type:decimal(20,2);not null"`
	PlanID        *uint     `json:"plan_id"`
	Quantity      int       `json:"quantity"`
	UnitPrice     float64   `json:"unit_price" gorm:"type:decimal(20,2)"`
	Discount      float64   `json:"discount" gorm:"type:decimal(5,2)"`
	Reference     string    `json:"reference" gorm:"index"`
	Note          string    `json:"note"`
	CreatedAt     time.Time `json:"created_at"`
}
