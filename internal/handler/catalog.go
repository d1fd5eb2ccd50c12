package handler

import (
	"license-key-engine/internal/database"
	"license-key-engine/internal/model"
	"license-key-engine/internal/service"

	"github.com/gofiber/fiber/v2"
)

type PlanInput struct {
	Name          string  `json:"name" validate:"required"`
	DurationType  string  `json:"duration_type" validate:"required,oneof=HOUR DAY MONTH YEAR LIFETIME"`
	DurationValue int     `json:"duration_value" validate:"min=0"`
	MaxDevices    int     `json:"max_devices" validate:"required,min=1"`
	Price         float64 `json:"price" validate:"min=0"`
}

// HandleCreatePlan 管理员维护套餐（目录服务的最小管理面）
func HandleCreatePlan(c *fiber.Ctx) error {
	input := new(PlanInput)
	if err := parseAndValidate(c, input); err != nil {
		return respondError(c, err)
	}
	if input.DurationType != model.DurationLifetime && input.DurationValue < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   service.KindValidationError,
			"message": "非永久套餐的时长必须大于零",
		})
	}

	plan := &model.Plan{
		Name:          input.Name,
		DurationType:  input.DurationType,
		DurationValue: input.DurationValue,
		MaxDevices:    input.MaxDevices,
		Price:         input.Price,
		Status:        "active",
	}
	if err := database.DB.Create(plan).Error; err != nil {
		return respondError(c, err)
	}

	adminID := c.Locals("userID").(uint)
	service.LogOperation(adminID, "create", model.TargetPlan, "", input)

	return c.Status(fiber.StatusCreated).JSON(plan)
}

// HandleListPlans 套餐列表
func HandleListPlans(c *fiber.Ctx) error {
	var plans []model.Plan
	if err := database.DB.Where("status = ?", "active").Find(&plans).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"plans": plans})
}

type ProductInput struct {
	Name          string `json:"name" validate:"required"`
	FreeKeyPlanID *uint  `json:"free_key_plan_id"`
}

// HandleCreateProduct 管理员维护产品
func HandleCreateProduct(c *fiber.Ctx) error {
	input := new(ProductInput)
	if err := parseAndValidate(c, input); err != nil {
		return respondError(c, err)
	}

	product := &model.Product{
		Name:          input.Name,
		FreeKeyPlanID: input.FreeKeyPlanID,
		Status:        "active",
	}
	if err := database.DB.Create(product).Error; err != nil {
		return respondError(c, err)
	}

	adminID := c.Locals("userID").(uint)
	service.LogOperation(adminID, "create", model.TargetProduct, "", input)

	return c.Status(fiber.StatusCreated).JSON(product)
}
