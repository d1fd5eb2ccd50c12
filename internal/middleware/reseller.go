package middleware

import (
	"license-key-engine/internal/service"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ResellerAuth 经销商 rsk_ 凭证认证，认证成功把经销商放进上下文。
// 使用痕迹记录与认证分离，异步更新
func ResellerAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "UNAUTHORIZED",
				"message": "未提供 API 凭证",
			})
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" || !strings.HasPrefix(tokenParts[1], "rsk_") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "UNAUTHORIZED",
				"message": "无效的凭证格式",
			})
		}

		apiKey := tokenParts[1]
		reseller, err := service.AuthenticateReseller(apiKey)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "UNAUTHORIZED",
				"message": "无效的 API 凭证",
			})
		}

		ip := c.IP()
		go service.UpdateApiKeyLastUsed(apiKey, ip)

		c.Locals("reseller", reseller)
		return c.Next()
	}
}
