package handler

import (
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-key-engine/internal/config"
	"license-key-engine/internal/database"
	"license-key-engine/internal/model"
	"license-key-engine/internal/service"
)

func newWebhookTestApp() *fiber.App {
	app := fiber.New()
	app.Post("/api/v1/webhook/payment", HandlePaymentWebhook)
	return app
}

func TestHandlePaymentWebhook(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	cfg, err := config.Load()
	require.NoError(t, err)

	app := newWebhookTestApp()

	plan := &model.Plan{
		Name:          "免费套餐",
		DurationType:  model.DurationDay,
		DurationValue: 7,
		MaxDevices:    1,
		Price:         0,
	}
	require.NoError(t, database.DB.Create(plan).Error)

	order, key, err := service.CreateOrder(plan.ID, nil)
	require.NoError(t, err)

	t.Run("missing_fields_rejected", func(t *testing.T) {
		// 缺少订单号和签名必须在业务逻辑之前挡下
		resp := postJSON(t, app, "/api/v1/webhook/payment", fiber.Map{"amount": 5})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

		var stored model.Order
		require.NoError(t, database.DB.First(&stored, order.ID).Error)
		assert.Equal(t, model.OrderStatusPending, stored.Status)
	})

	t.Run("bad_signature_rejected", func(t *testing.T) {
		payload := service.PaymentWebhook{
			OrderCode:     order.OrderCode,
			Amount:        order.FinalAmount,
			TransactionID: "TX-0",
			Signature:     "deadbeef",
		}
		resp := postJSON(t, app, "/api/v1/webhook/payment", payload)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("zero_amount_order", func(t *testing.T) {
		// 零元订单的回调金额为 0，校验不应把它当缺失字段拒掉
		payload := service.PaymentWebhook{
			OrderCode:     order.OrderCode,
			Amount:        0,
			TransactionID: "TX-0",
		}
		payload.Signature = service.SignWebhook(
			payload.OrderCode, payload.Amount, payload.TransactionID, cfg.PaymentWebhookSecret)

		resp := postJSON(t, app, "/api/v1/webhook/payment", payload)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var stored model.LicenseKey
		require.NoError(t, database.DB.First(&stored, key.ID).Error)
		assert.Equal(t, model.KeyStatusActive, stored.Status)
	})

	t.Run("negative_amount_rejected", func(t *testing.T) {
		payload := service.PaymentWebhook{
			OrderCode:     order.OrderCode,
			Amount:        -1,
			TransactionID: "TX-0",
		}
		payload.Signature = service.SignWebhook(
			payload.OrderCode, payload.Amount, payload.TransactionID, cfg.PaymentWebhookSecret)

		resp := postJSON(t, app, "/api/v1/webhook/payment", payload)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}
