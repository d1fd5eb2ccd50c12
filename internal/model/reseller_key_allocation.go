package model

import "time"

// 密钥分配类型
const (
	AllocationTypePurchased = "PURCHASED"
	AllocationTypeFree      = "FREE"
)

// ResellerKeyAllocation 经销商与其名下许可证密钥的关联
type ResellerKeyAllocation struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ResellerID   uint      `json:"reseller_id" gorm:"index:idx_alloc_quota;not null"`
	LicenseKeyID uint      `json:"license_key_id" gorm:"index;not null"`
	Type         string    `json:"type" gorm:"index:idx_alloc_quota;not null"`
	AllocatedAt  time.Time `json:"allocated_at" gorm:"index:idx_alloc_quota"`
	CreatedAt    time.Time `json:"created_at"`
}
