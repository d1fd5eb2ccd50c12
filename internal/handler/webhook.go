package handler

import (
	"license-key-engine/internal/service"

	"github.com/gofiber/fiber/v2"
)

// HandlePaymentWebhook 支付网关回调。
// 重放已处理订单返回200和提示，不算错误
func HandlePaymentWebhook(c *fiber.Ctx) error {
	input := new(service.PaymentWebhook)
	if err := parseAndValidate(c, input); err != nil {
		return respondError(c, err)
	}

	result, err := service.ProcessPaymentWebhook(*input, c.IP())
	if err != nil {
		return respondError(c, err)
	}

	if result.AlreadyProcessed {
		return c.JSON(fiber.Map{
			"message":    "订单不存在或已处理",
			"order_code": result.OrderCode,
		})
	}

	return c.JSON(fiber.Map{
		"message":     "支付确认成功",
		"order_code":  result.OrderCode,
		"license_key": result.LicenseKey,
	})
}

type CreateOrderInput struct {
	PlanID uint `json:"plan_id" validate:"required"`
}

// HandleCreateOrder 创建待支付订单（商城下单后调用）
func HandleCreateOrder(c *fiber.Ctx) error {
	input := new(CreateOrderInput)
	if err := parseAndValidate(c, input); err != nil {
		return respondError(c, err)
	}

	var userID *uint
	if id, ok := c.Locals("userID").(uint); ok {
		userID = &id
	}

	order, key, err := service.CreateOrder(input.PlanID, userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order": order,
		// 密钥在支付确认前保持 INACTIVE
		"license_key": key.Key,
	})
}
