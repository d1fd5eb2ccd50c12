package model

import "time"

// Product 产品，只保留核心需要的免费密钥套餐关联
type Product struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	Name          string    `json:"name" gorm:"not null"`
	FreeKeyPlanID *uint     `json:"free_key_plan_id"`
	Status        string    `json:"status" gorm:"default:'active'"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
