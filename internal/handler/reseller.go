package handler

import (
	"license-key-engine/internal/model"
	"license-key-engine/internal/service"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func currentReseller(c *fiber.Ctx) *model.Reseller {
	return c.Locals("reseller").(*model.Reseller)
}

type ResellerRegisterInput struct {
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

// HandleResellerRegister 用户申请成为经销商，等待审批
func HandleResellerRegister(c *fiber.Ctx) error {
	input := new(ResellerRegisterInput)
	if err := parseAndValidate(c, input); err != nil {
		return respondError(c, err)
	}

	userID := c.Locals("userID").(uint)
	reseller, err := service.RegisterReseller(userID, input.Currency)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(reseller)
}

type PurchaseInput struct {
	PlanID   uint `json:"plan_id" validate:"required"`
	Quantity int  `json:"quantity" validate:"required,min=1"`
}

// HandleResellerPurchase 经销商余额购买密钥
func HandleResellerPurchase(c *fiber.Ctx) error {
	input := new(PurchaseInput)
	if err := parseAndValidate(c, input); err != nil {
		return respondError(c, err)
	}

	reseller := currentReseller(c)
	result, err := service.PurchaseResellerKeys(reseller.ID, input.PlanID, input.Quantity)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// HandleResellerBalance 余额查询
func HandleResellerBalance(c *fiber.Ctx) error {
	reseller, err := service.GetResellerBalance(currentReseller(c).ID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"balance":     reseller.Balance,
		"total_spent": reseller.TotalSpent,
		"currency":    reseller.Currency,
	})
}

// HandleResellerQuota 免费密钥额度查询
func HandleResellerQuota(c *fiber.Ctx) error {
	quota, err := service.CheckFreeKeyQuota(currentReseller(c).ID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"remaining": fiber.Map{
			"daily":   quota.DailyRemaining,
			"monthly": quota.MonthlyRemaining,
		},
		"used": fiber.Map{
			"daily":   quota.DailyUsed,
			"monthly": quota.MonthlyUsed,
		},
	})
}

// HandleResellerFreeKey 从免费额度签发密钥
func HandleResellerFreeKey(c *fiber.Ctx) error {
	key, err := service.GenerateResellerFreeKey(currentReseller(c).ID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(key)
}

// HandleResellerTransactions 流水查询
func HandleResellerTransactions(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))

	txs, total, err := service.ListResellerTransactions(currentReseller(c).ID, page, pageSize)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"transactions": txs,
		"total":        total,
		"page":         page,
	})
}

type ResellerStatusInput struct {
	Status string `json:"status" validate:"required,oneof=APPROVED SUSPENDED REJECTED"`
}

// HandleResellerApprove 管理员审批/停用经销商
func HandleResellerApprove(c *fiber.Ctx) error {
	resellerID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   service.KindValidationError,
			"message": "无效的经销商ID",
		})
	}

	input := new(ResellerStatusInput)
	if err := parseAndValidate(c, input); err != nil {
		return respondError(c, err)
	}

	reseller, err := service.SetResellerStatus(uint(resellerID), input.Status)
	if err != nil {
		return respondError(c, err)
	}

	adminID := c.Locals("userID").(uint)
	service.LogOperation(adminID, "set_status", model.TargetReseller, strconv.Itoa(resellerID), fiber.Map{
		"status": input.Status,
	})

	return c.JSON(reseller)
}

type DepositInput struct {
	Amount float64 `json:"amount" validate:"required"`
	Type   string  `json:"type" validate:"omitempty,oneof=DEPOSIT ADJUSTMENT BONUS REFUND"`
	Note   string  `json:"note"`
}

// HandleResellerDeposit 管理员入账/调整余额
func HandleResellerDeposit(c *fiber.Ctx) error {
	resellerID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   service.KindValidationError,
			"message": "无效的经销商ID",
		})
	}

	input := new(DepositInput)
	if err := parseAndValidate(c, input); err != nil {
		return respondError(c, err)
	}
	if input.Type == "" {
		input.Type = model.TxTypeDeposit
	}

	entry, err := service.CreditResellerBalance(uint(resellerID), input.Amount, input.Type, input.Note)
	if err != nil {
		return respondError(c, err)
	}

	adminID := c.Locals("userID").(uint)
	service.LogOperation(adminID, "credit_balance", model.TargetReseller, strconv.Itoa(resellerID), fiber.Map{
		"amount": input.Amount,
		"type":   input.Type,
	})

	return c.Status(fiber.StatusCreated).JSON(entry)
}

type ApiKeyInput struct {
	Name      string `json:"name"`
	RateLimit int    `json:"rate_limit"`
}

// HandleCreateResellerApiKey 管理员为经销商创建 API 凭证，明文只返回一次
func HandleCreateResellerApiKey(c *fiber.Ctx) error {
	resellerID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   service.KindValidationError,
			"message": "无效的经销商ID",
		})
	}

	input := new(ApiKeyInput)
	if err := parseAndValidate(c, input); err != nil {
		return respondError(c, err)
	}

	token, cred, err := service.CreateResellerApiKey(uint(resellerID), input.Name, input.RateLimit)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"api_key":    token,
		"credential": cred,
	})
}
