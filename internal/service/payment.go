package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"license-key-engine/internal/database"
	"license-key-engine/internal/model"
	"license-key-engine/internal/util"

	"gorm.io/gorm"
)

// PaymentWebhook 支付网关回调载荷
type PaymentWebhook struct {
	OrderCode string `json:"order_code" validate:"required"`
	// 零元订单合法，不能用 required（数值的 required 等于非零）
	Amount        float64 `json:"amount" validate:"gte=0"`
	TransactionID string  `json:"transaction_id" validate:"required"`
	Signature     string  `json:"signature" validate:"required"`
}

// WebhookResult 回调处理结果
type WebhookResult struct {
	OrderCode        string `json:"order_code"`
	AlreadyProcessed bool   `json:"already_processed"`
	LicenseKey       string `json:"license_key,omitempty"`
}

// webhookSignPayload 参与签名的规范串
func webhookSignPayload(orderCode string, amount float64, transactionID string) string {
	return fmt.Sprintf("%s|%.2f|%s", orderCode, amount, transactionID)
}

// SignWebhook 用共享密钥计算回调签名（测试和网关模拟用）
func SignWebhook(orderCode string, amount float64, transactionID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(webhookSignPayload(orderCode, amount, transactionID)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature 常数时间比较回调签名
func VerifyWebhookSignature(in PaymentWebhook, secret string) bool {
	if in.Signature == "" {
		return false
	}
	expected := SignWebhook(in.OrderCode, in.Amount, in.TransactionID, secret)
	return hmac.Equal([]byte(expected), []byte(in.Signature))
}

// CreateOrder 创建待支付订单，同时签发一把 INACTIVE 密钥等待支付确认
func CreateOrder(planID uint, userID *uint) (*model.Order, *model.LicenseKey, error) {
	plan, err := GetPlan(planID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	order := &model.Order{
		OrderCode:   util.GenerateOrderCode(),
		UserID:      userID,
		PlanID:      planID,
		Amount:      plan.Price,
		FinalAmount: plan.Price,
		Status:      model.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var key *model.LicenseKey
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		k, err := IssueKeyTx(tx, plan, model.CreatedBySystemOrder, IssueOptions{UserID: userID})
		if err != nil {
			return err
		}
		key = k
		order.LicenseKeyID = &k.ID
		return tx.Create(order).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return order, key, nil
}

// ProcessPaymentWebhook 幂等地把已确认的支付转成激活的密钥。
// 签名校验失败或金额不符时不产生任何状态变化并记录告警；
// 重放已处理订单返回 AlreadyProcessed 而不是错误
func ProcessPaymentWebhook(in PaymentWebhook, remoteIP string) (*WebhookResult, error) {
	if !VerifyWebhookSignature(in, cfg.PaymentWebhookSecret) {
		logger.Warn().Str("order_code", in.OrderCode).Str("ip", remoteIP).
			Msg("支付回调签名校验失败")
		return nil, NewError(KindInvalidSignature, "签名校验失败")
	}

	var order model.Order
	if err := database.DB.Where("order_code = ?", in.OrderCode).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 重放安全：未知订单按已处理响应，不报错
			return &WebhookResult{OrderCode: in.OrderCode, AlreadyProcessed: true}, nil
		}
		return nil, err
	}
	if order.Status != model.OrderStatusPending {
		return &WebhookResult{OrderCode: in.OrderCode, AlreadyProcessed: true}, nil
	}

	// 金额必须与订单终价完全一致，防范篡改或部分支付
	if math.Abs(in.Amount-order.FinalAmount) >= 0.005 {
		logger.Warn().Str("order_code", in.OrderCode).
			Float64("expected", order.FinalAmount).Float64("got", in.Amount).
			Str("ip", remoteIP).Msg("支付回调金额不符")
		return nil, NewError(KindAmountMismatch, "支付金额与订单不符")
	}

	plan, err := GetPlan(order.PlanID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result := &WebhookResult{OrderCode: order.OrderCode}
	var activatedKey *model.LicenseKey

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		// 条件更新只放行一次，重复投递和并发投递都在这里挡住
		res := tx.Model(&model.Order{}).
			Where("id = ? AND status = ?", order.ID, model.OrderStatusPending).
			Updates(map[string]interface{}{
				"status":         model.OrderStatusCompleted,
				"transaction_id": in.TransactionID,
				"paid_at":        now,
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			result.AlreadyProcessed = true
			return nil
		}

		if order.LicenseKeyID == nil {
			return fmt.Errorf("订单 %s 缺少关联密钥", order.OrderCode)
		}
		var key model.LicenseKey
		if err := tx.First(&key, *order.LicenseKeyID).Error; err != nil {
			return err
		}

		// 付费订单的到期时间以支付确认为起点。
		// 如果用户抢先完成了设备激活（activated_at 已有值），保留激活时的锚点
		updates := map[string]interface{}{
			"status":      model.KeyStatusActive,
			"max_devices": plan.MaxDevices,
			"updated_at":  now,
		}
		if key.ActivatedAt == nil {
			key.ActivatedAt = &now
			key.ExpiresAt = CalculateExpirationDate(plan.DurationType, plan.DurationValue, now)
			updates["activated_at"] = now
			updates["expires_at"] = key.ExpiresAt
		}
		if err := tx.Model(&model.LicenseKey{}).Where("id = ?", key.ID).Updates(updates).Error; err != nil {
			return err
		}
		key.Status = model.KeyStatusActive
		key.MaxDevices = plan.MaxDevices

		appendUsageLog(tx, &key, model.UsageActionActivate, remoteIP, "", map[string]interface{}{
			"activatedVia":   "webhook",
			"order_code":     order.OrderCode,
			"transaction_id": in.TransactionID,
		})
		activatedKey = &key
		result.LicenseKey = key.Key
		return nil
	})
	if err != nil {
		return nil, err
	}

	if activatedKey != nil {
		notifyAsync("order.paid", map[string]interface{}{
			"order_code": order.OrderCode,
			"key":        activatedKey.Key,
		})
		syncKeyAsync(activatedKey)
	}
	return result, nil
}
