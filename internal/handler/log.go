package handler

import (
	"strconv"

	"license-key-engine/internal/service"

	"github.com/gofiber/fiber/v2"
)

// HandleGetLogs 管理员查询操作日志，支持按操作对象和动作过滤
func HandleGetLogs(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))

	logs, total, err := service.GetOperationLogs(service.OperationLogFilter{
		Target: c.Query("target"),
		Action: c.Query("action"),
	}, page, pageSize)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"total": total,
		"page":  page,
	})
}

// HandleGetUserLogs 当前管理员自己的操作记录
func HandleGetUserLogs(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))
	userID := c.Locals("userID").(uint)

	logs, total, err := service.GetOperationLogs(service.OperationLogFilter{
		UserID: userID,
	}, page, pageSize)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"total": total,
		"page":  page,
	})
}
