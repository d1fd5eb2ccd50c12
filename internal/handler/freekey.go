package handler

import (
	"license-key-engine/internal/service"

	"github.com/gofiber/fiber/v2"
)

type FreeKeyGenerateInput struct {
	ProductID uint `json:"product_id" validate:"required"`
}

// HandleFreeKeyGenerate 发起免费密钥领取，返回广告跳转短链
func HandleFreeKeyGenerate(c *fiber.Ctx) error {
	input := new(FreeKeyGenerateInput)
	if err := parseAndValidate(c, input); err != nil {
		return respondError(c, err)
	}

	// 登录用户额外按用户计数，匿名只按IP
	var userID *uint
	if id, ok := c.Locals("userID").(uint); ok {
		userID = &id
	}

	result, err := service.GenerateFreeKeySession(input.ProductID, userID, c.IP())
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// HandleFreeKeyCallback 广告服务回调，完成后跳转到领取页
func HandleFreeKeyCallback(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   service.KindValidationError,
			"message": "缺少会话令牌",
		})
	}

	target, err := service.FreeKeyCallback(token)
	if err != nil {
		return respondError(c, err)
	}

	return c.Redirect(target, fiber.StatusFound)
}

type FreeKeyClaimInput struct {
	Token string `json:"token" validate:"required"`
}

// HandleFreeKeyClaim 领取密钥，重复领取幂等返回同一把
func HandleFreeKeyClaim(c *fiber.Ctx) error {
	input := new(FreeKeyClaimInput)
	if err := parseAndValidate(c, input); err != nil {
		return respondError(c, err)
	}

	result, err := service.ClaimFreeKey(input.Token)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(result)
}
