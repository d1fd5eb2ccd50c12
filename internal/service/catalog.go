package service

import (
	"errors"

	"license-key-engine/internal/database"
	"license-key-engine/internal/model"

	"gorm.io/gorm"
)

// Catalog 目录协作方，套餐和产品由外部目录系统维护，核心只消费
type Catalog interface {
	GetPlan(planID uint) (*model.Plan, error)
	GetProduct(productID uint) (*model.Product, error)
}

// DefaultCatalog 默认实现直接读本地表
var DefaultCatalog Catalog = dbCatalog{}

type dbCatalog struct{}

func (dbCatalog) GetPlan(planID uint) (*model.Plan, error) {
	var plan model.Plan
	if err := database.DB.First(&plan, planID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(KindBusinessError, "套餐不存在")
		}
		return nil, err
	}
	return &plan, nil
}

func (dbCatalog) GetProduct(productID uint) (*model.Product, error) {
	var product model.Product
	if err := database.DB.First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(KindNotFound, "产品不存在")
		}
		return nil, err
	}
	return &product, nil
}

// GetPlan 通过目录协作方查套餐
func GetPlan(planID uint) (*model.Plan, error) {
	return DefaultCatalog.GetPlan(planID)
}

// GetProduct 通过目录协作方查产品
func GetProduct(productID uint) (*model.Product, error) {
	return DefaultCatalog.GetProduct(productID)
}
