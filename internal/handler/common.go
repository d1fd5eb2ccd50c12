package handler

import (
	"errors"

	"license-key-engine/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// parseAndValidate 解析请求体并校验字段。
// 只返回错误不写响应：成功写响应会返回 nil，调用方的 err != nil
// 守卫就形同虚设，被拒绝的请求会继续执行后面的业务逻辑
func parseAndValidate(c *fiber.Ctx, input interface{}) error {
	if err := c.BodyParser(input); err != nil {
		return service.NewError(service.KindValidationError, "无效的输入数据")
	}
	if err := validate.Struct(input); err != nil {
		return service.NewError(service.KindValidationError, "参数校验失败: "+err.Error())
	}
	return nil
}

// respondError 把服务层错误映射为结构化响应，未知错误不泄露内部细节
func respondError(c *fiber.Ctx, err error) error {
	var se *service.ServiceError
	if errors.As(err, &se) {
		return c.Status(se.Status).JSON(fiber.Map{
			"error":   se.Kind,
			"message": se.Message,
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "INTERNAL_ERROR",
		"message": "服务器内部错误",
	})
}
