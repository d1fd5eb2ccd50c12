package handler

import (
	"license-key-engine/internal/database"
	"license-key-engine/internal/model"
	"license-key-engine/internal/service"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

type ActivateInput struct {
	Key        string `json:"key" validate:"required"`
	Hwid       string `json:"hwid" validate:"required"`
	DeviceName string `json:"device_name"`
	DeviceInfo string `json:"device_info"`
}

type DeactivateInput struct {
	Key  string `json:"key" validate:"required"`
	Hwid string `json:"hwid" validate:"required"`
}

// HandleLicenseActivate 设备激活
func HandleLicenseActivate(c *fiber.Ctx) error {
	input := new(ActivateInput)
	if err := parseAndValidate(c, input); err != nil {
		return respondError(c, err)
	}

	result, err := service.ActivateKey(service.ActivateInput{
		Key:        input.Key,
		Hwid:       input.Hwid,
		DeviceName: input.DeviceName,
		DeviceInfo: input.DeviceInfo,
		IPAddress:  c.IP(),
		UserAgent:  c.Get("User-Agent"),
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(result)
}

// HandleDeviceDeactivate 设备解绑
func HandleDeviceDeactivate(c *fiber.Ctx) error {
	input := new(DeactivateInput)
	if err := parseAndValidate(c, input); err != nil {
		return respondError(c, err)
	}

	if err := service.DeactivateDevice(input.Key, input.Hwid, c.IP(), c.Get("User-Agent")); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "设备解绑成功",
	})
}

// HandleLicenseValidate 密钥校验，只读
func HandleLicenseValidate(c *fiber.Ctx) error {
	key := c.Query("key")
	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   service.KindValidationError,
			"message": "许可证密钥不能为空",
		})
	}

	result, err := service.ValidateKey(key, c.Query("hwid"), c.IP(), c.Get("User-Agent"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(result)
}

// HandleGetLicense 密钥详情及设备列表
func HandleGetLicense(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   service.KindValidationError,
			"message": "许可证密钥不能为空",
		})
	}

	license, devices, err := service.GetKeyDetail(key)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"license": license,
		"devices": devices,
	})
}

// HandleKeyUsage 查询密钥使用记录
func HandleKeyUsage(c *fiber.Ctx) error {
	key := c.Query("key")
	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   service.KindValidationError,
			"message": "许可证密钥不能为空",
		})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	usages, err := service.GetKeyUsageLogs(key, limit)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"usages": usages,
	})
}

type IssueInput struct {
	PlanID   uint   `json:"plan_id" validate:"required"`
	UserID   *uint  `json:"user_id"`
	Quantity int    `json:"quantity"`
	Status   string `json:"status" validate:"omitempty,oneof=INACTIVE ACTIVE"`
	Notes    string `json:"notes"`
}

// HandleLicenseIssue 管理员签发密钥，可批量
func HandleLicenseIssue(c *fiber.Ctx) error {
	input := new(IssueInput)
	if err := parseAndValidate(c, input); err != nil {
		return respondError(c, err)
	}
	if input.Quantity <= 0 {
		input.Quantity = 1
	}
	if input.Quantity > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   service.KindValidationError,
			"message": "单次最多签发100把密钥",
		})
	}

	adminID := c.Locals("userID").(uint)
	createdBy := "ADMIN_" + strconv.FormatUint(uint64(adminID), 10)

	keys := make([]*model.LicenseKey, 0, input.Quantity)
	for i := 0; i < input.Quantity; i++ {
		key, err := service.IssueKey(input.PlanID, createdBy, service.IssueOptions{
			UserID: input.UserID,
			Status: input.Status,
			Notes:  input.Notes,
		})
		if err != nil {
			return respondError(c, err)
		}
		keys = append(keys, key)
	}

	service.LogOperation(adminID, "issue", model.TargetLicenseKey, "", fiber.Map{
		"plan_id":  input.PlanID,
		"quantity": input.Quantity,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"keys": keys,
	})
}

// 密钥列表查询参数
type KeySearchQuery struct {
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
	Status   string `query:"status"`
	PlanID   uint   `query:"plan_id"`
	Creator  string `query:"creator"`
}

// HandleGetAllLicenses 管理员查询密钥列表，附带状态统计
func HandleGetAllLicenses(c *fiber.Ctx) error {
	query := new(KeySearchQuery)
	if err := c.QueryParser(query); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   service.KindValidationError,
			"message": "无效的查询参数",
		})
	}

	// 设置默认值
	if query.Page < 1 {
		query.Page = 1
	}
	if query.PageSize < 1 {
		query.PageSize = 20
	}
	if query.PageSize > 100 {
		query.PageSize = 100
	}

	db := database.DB.Model(&model.LicenseKey{})
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}
	if query.PlanID != 0 {
		db = db.Where("plan_id = ?", query.PlanID)
	}
	if query.Creator != "" {
		db = db.Where("created_by = ?", query.Creator)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return respondError(c, err)
	}

	var keys []model.LicenseKey
	offset := (query.Page - 1) * query.PageSize
	if err := db.Order("created_at DESC").Offset(offset).Limit(query.PageSize).Find(&keys).Error; err != nil {
		return respondError(c, err)
	}

	// 30天内到期数量
	var expiringSoon int64
	database.DB.Model(&model.LicenseKey{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at BETWEEN ? AND ?",
			model.KeyStatusActive, time.Now(), time.Now().AddDate(0, 0, 30)).
		Count(&expiringSoon)

	return c.JSON(fiber.Map{
		"licenses":      keys,
		"total":         total,
		"expiring_soon": expiringSoon,
		"page":          query.Page,
		"size":          query.PageSize,
	})
}

// HandleLicenseDisable 管理员停用密钥
func HandleLicenseDisable(c *fiber.Ctx) error {
	return setLicenseDisabled(c, true)
}

// HandleLicenseEnable 管理员恢复密钥
func HandleLicenseEnable(c *fiber.Ctx) error {
	return setLicenseDisabled(c, false)
}

func setLicenseDisabled(c *fiber.Ctx, disabled bool) error {
	key := c.Params("key")
	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   service.KindValidationError,
			"message": "许可证密钥不能为空",
		})
	}

	license, err := service.SetKeyDisabled(key, disabled)
	if err != nil {
		return respondError(c, err)
	}

	adminID := c.Locals("userID").(uint)
	action := "disable"
	if !disabled {
		action = "enable"
	}
	service.LogOperation(adminID, action, model.TargetLicenseKey, license.Key, nil)

	return c.JSON(license)
}
