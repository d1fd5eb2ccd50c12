package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-key-engine/internal/database"
	"license-key-engine/internal/model"
)

func TestVerifyWebhookSignature(t *testing.T) {
	const secret = "test-secret"

	in := PaymentWebhook{
		OrderCode:     "ORD-TEST",
		Amount:        29.90,
		TransactionID: "TX-1",
	}
	in.Signature = SignWebhook(in.OrderCode, in.Amount, in.TransactionID, secret)
	assert.True(t, VerifyWebhookSignature(in, secret))

	// 密钥不对
	assert.False(t, VerifyWebhookSignature(in, "wrong-secret"))

	// 载荷被改
	tampered := in
	tampered.Amount = 0.01
	assert.False(t, VerifyWebhookSignature(tampered, secret))

	// 空签名
	in.Signature = ""
	assert.False(t, VerifyWebhookSignature(in, secret))
}

func TestCreateOrder(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	plan := seedPlan(t, model.DurationMonth, 1, 3, 49.9)

	order, key, err := CreateOrder(plan.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, 49.9, order.FinalAmount)
	require.NotNil(t, order.LicenseKeyID)
	assert.Equal(t, *order.LicenseKeyID, key.ID)
	assert.Equal(t, model.KeyStatusInactive, key.Status)
	assert.Nil(t, key.ExpiresAt, "未支付的订单密钥不应有到期时间")
}

func TestProcessPaymentWebhook(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	plan := seedPlan(t, model.DurationMonth, 1, 3, 49.9)
	order, key, err := CreateOrder(plan.ID, nil)
	require.NoError(t, err)

	webhook := PaymentWebhook{
		OrderCode:     order.OrderCode,
		Amount:        order.FinalAmount,
		TransactionID: "TX-100",
	}
	webhook.Signature = SignWebhook(webhook.OrderCode, webhook.Amount, webhook.TransactionID, cfg.PaymentWebhookSecret)

	res, err := ProcessPaymentWebhook(webhook, "203.0.113.1")
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, key.Key, res.LicenseKey)

	// 订单完成，密钥激活且到期时间以支付确认为起点
	var storedOrder model.Order
	require.NoError(t, database.DB.First(&storedOrder, order.ID).Error)
	assert.Equal(t, model.OrderStatusCompleted, storedOrder.Status)
	assert.Equal(t, "TX-100", storedOrder.TransactionID)
	require.NotNil(t, storedOrder.PaidAt)

	var storedKey model.LicenseKey
	require.NoError(t, database.DB.First(&storedKey, key.ID).Error)
	assert.Equal(t, model.KeyStatusActive, storedKey.Status)
	require.NotNil(t, storedKey.ExpiresAt)
	require.NotNil(t, storedKey.ActivatedAt)

	// 重放同一回调是无操作
	replay, err := ProcessPaymentWebhook(webhook, "203.0.113.1")
	require.NoError(t, err)
	assert.True(t, replay.AlreadyProcessed)

	var afterReplay model.LicenseKey
	require.NoError(t, database.DB.First(&afterReplay, key.ID).Error)
	assert.True(t, storedKey.ExpiresAt.Equal(*afterReplay.ExpiresAt), "重放不应改变到期时间")
}

func TestProcessPaymentWebhookRejections(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	plan := seedPlan(t, model.DurationMonth, 1, 3, 49.9)
	order, key, err := CreateOrder(plan.ID, nil)
	require.NoError(t, err)

	t.Run("invalid_signature", func(t *testing.T) {
		in := PaymentWebhook{
			OrderCode:     order.OrderCode,
			Amount:        order.FinalAmount,
			TransactionID: "TX-1",
			Signature:     "deadbeef",
		}
		_, err := ProcessPaymentWebhook(in, "203.0.113.2")
		assert.Equal(t, KindInvalidSignature, ErrorKind(err))
	})

	t.Run("amount_mismatch", func(t *testing.T) {
		in := PaymentWebhook{
			OrderCode:     order.OrderCode,
			Amount:        1.00,
			TransactionID: "TX-1",
		}
		in.Signature = SignWebhook(in.OrderCode, in.Amount, in.TransactionID, cfg.PaymentWebhookSecret)
		_, err := ProcessPaymentWebhook(in, "203.0.113.2")
		assert.Equal(t, KindAmountMismatch, ErrorKind(err))

		// 订单保持 PENDING、密钥保持 INACTIVE，等待人工核查
		var storedOrder model.Order
		require.NoError(t, database.DB.First(&storedOrder, order.ID).Error)
		assert.Equal(t, model.OrderStatusPending, storedOrder.Status)

		var storedKey model.LicenseKey
		require.NoError(t, database.DB.First(&storedKey, key.ID).Error)
		assert.Equal(t, model.KeyStatusInactive, storedKey.Status)
	})

	t.Run("unknown_order", func(t *testing.T) {
		in := PaymentWebhook{
			OrderCode:     "ORD-DOES-NOT-EXIST",
			Amount:        10,
			TransactionID: "TX-1",
		}
		in.Signature = SignWebhook(in.OrderCode, in.Amount, in.TransactionID, cfg.PaymentWebhookSecret)
		res, err := ProcessPaymentWebhook(in, "203.0.113.2")
		require.NoError(t, err)
		assert.True(t, res.AlreadyProcessed)
	})
}

// 并发投递同一回调：恰好一次生效
func TestProcessPaymentWebhookConcurrent(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	plan := seedPlan(t, model.DurationMonth, 1, 3, 9.9)
	order, key, err := CreateOrder(plan.ID, nil)
	require.NoError(t, err)

	webhook := PaymentWebhook{
		OrderCode:     order.OrderCode,
		Amount:        order.FinalAmount,
		TransactionID: "TX-RACE",
	}
	webhook.Signature = SignWebhook(webhook.OrderCode, webhook.Amount, webhook.TransactionID, cfg.PaymentWebhookSecret)

	const attempts = 5
	var wg sync.WaitGroup
	var mu sync.Mutex
	processed := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ProcessPaymentWebhook(webhook, "203.0.113.3")
			if err != nil {
				t.Errorf("回调处理失败: %v", err)
				return
			}
			if !res.AlreadyProcessed {
				mu.Lock()
				processed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, processed, "并发投递应恰好一次生效")

	var logCount int64
	database.DB.Model(&model.KeyUsageLog{}).
		Where("key_id = ? AND action = ?", key.ID, model.UsageActionActivate).
		Count(&logCount)
	assert.Equal(t, int64(1), logCount)
}
