package service

import (
	"errors"
	"time"

	"license-key-engine/internal/database"
	"license-key-engine/internal/model"
	"license-key-engine/internal/util"

	"gorm.io/gorm"
)

// 密钥生成-查重最多重试次数
const maxKeyGenAttempts = 10

// ActivateInput 设备激活请求
type ActivateInput struct {
	Key        string
	Hwid       string
	DeviceName string
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}

// ActivateResult 激活结果
type ActivateResult struct {
	Key              string     `json:"key"`
	Status           string     `json:"status"`
	ExpiresAt        *time.Time `json:"expires_at"`
	MaxDevices       int        `json:"max_devices"`
	CurrentDevices   int        `json:"current_devices"`
	AlreadyActivated bool       `json:"already_activated"`
}

// ValidateResult 校验结果
type ValidateResult struct {
	Valid            bool       `json:"valid"`
	Status           string     `json:"status"`
	ExpiresAt        *time.Time `json:"expires_at"`
	MaxDevices       int        `json:"max_devices"`
	CurrentDevices   int        `json:"current_devices"`
	RemainingDevices int        `json:"remaining_devices"`
}

// findKey 按归一化后的密钥查找
func findKey(db *gorm.DB, rawKey string) (*model.LicenseKey, error) {
	if !util.IsValidKeyFormat(rawKey) {
		return nil, NewError(KindValidationError, "许可证密钥格式无效")
	}

	var key model.LicenseKey
	err := db.Where("key = ?", util.FormatKey(rawKey)).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(KindInvalidKey, "许可证不存在")
		}
		return nil, err
	}
	return &key, nil
}

// checkKeyUsable 过期和停用检查，惰性过期在这里生效
func checkKeyUsable(key *model.LicenseKey, now time.Time) error {
	if EnsureNotExpired(key, now) {
		return NewError(KindKeyExpired, "许可证已过期")
	}
	if key.Status == model.KeyStatusDisabled {
		return NewError(KindKeySuspended, "许可证已被停用")
	}
	return nil
}

// ActivateKey 把设备绑定到密钥上。
// 同一 (密钥, 硬件指纹) 重复激活幂等返回成功，不消耗槽位。
// 槽位检查和占用是同一条条件更新，并发打满上限时恰好放行剩余数量
func ActivateKey(in ActivateInput) (*ActivateResult, error) {
	if in.Hwid == "" {
		return nil, NewError(KindValidationError, "硬件指纹不能为空")
	}

	now := time.Now()
	key, err := findKey(database.DB, in.Key)
	if err != nil {
		return nil, err
	}
	if err := checkKeyUsable(key, now); err != nil {
		return nil, err
	}

	// 套餐在开启事务前读出：事务内的所有查询必须走 tx，
	// 经由全局连接池的读会在单连接配置下等待自己持有的连接
	var plan *model.Plan
	if key.ActivatedAt == nil {
		plan, err = GetPlan(key.PlanID)
		if err != nil {
			return nil, err
		}
	}

	result := &ActivateResult{Key: key.Key}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		// 事务内重查绑定，两个同指纹请求并发时只有一个走占位路径
		var binding model.DeviceActivation
		bindErr := tx.Where("key_id = ? AND hwid = ?", key.ID, in.Hwid).First(&binding).Error
		if bindErr == nil && binding.Status == model.DeviceStatusActive {
			// 已绑定，幂等成功
			result.AlreadyActivated = true
			appendUsageLog(tx, key, model.UsageActionValidate, in.IPAddress, in.UserAgent, map[string]interface{}{
				"hwid": in.Hwid,
				"note": "repeat activation",
			})
			return nil
		}
		if bindErr != nil && !errors.Is(bindErr, gorm.ErrRecordNotFound) {
			return bindErr
		}

		// 条件占用槽位，行数为0说明已满
		res := tx.Model(&model.LicenseKey{}).
			Where("id = ? AND current_devices < max_devices", key.ID).
			UpdateColumn("current_devices", gorm.Expr("current_devices + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return NewError(KindDeviceLimitReached, "设备数量已达上限")
		}

		if bindErr == nil {
			// 原绑定行翻转回 ACTIVE
			if err := tx.Model(&binding).Updates(map[string]interface{}{
				"status":         model.DeviceStatusActive,
				"device_name":    in.DeviceName,
				"device_info":    in.DeviceInfo,
				"activated_at":   now,
				"deactivated_at": nil,
			}).Error; err != nil {
				return err
			}
		} else {
			binding = model.DeviceActivation{
				KeyID:       key.ID,
				Hwid:        in.Hwid,
				DeviceName:  in.DeviceName,
				DeviceInfo:  in.DeviceInfo,
				Status:      model.DeviceStatusActive,
				ActivatedAt: now,
			}
			if err := tx.Create(&binding).Error; err != nil {
				return err
			}
		}

		updates := map[string]interface{}{"updated_at": now}
		if key.ActivatedAt == nil {
			// 首次激活：此刻起算到期时间，支持"激活才开始计时"的套餐
			key.ActivatedAt = &now
			if key.ExpiresAt == nil {
				key.ExpiresAt = CalculateExpirationDate(plan.DurationType, plan.DurationValue, now)
			}
			updates["activated_at"] = now
			updates["expires_at"] = key.ExpiresAt
		}
		if key.Status == model.KeyStatusInactive {
			key.Status = model.KeyStatusActive
			updates["status"] = model.KeyStatusActive
		}
		if err := tx.Model(&model.LicenseKey{}).Where("id = ?", key.ID).Updates(updates).Error; err != nil {
			return err
		}

		key.CurrentDevices++
		appendUsageLog(tx, key, model.UsageActionActivate, in.IPAddress, in.UserAgent, map[string]interface{}{
			"hwid":        in.Hwid,
			"device_name": in.DeviceName,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Status = key.Status
	result.ExpiresAt = key.ExpiresAt
	result.MaxDevices = key.MaxDevices
	result.CurrentDevices = key.CurrentDevices
	return result, nil
}

// DeactivateDevice 解绑设备并释放槽位，不改变密钥状态
func DeactivateDevice(rawKey, hwid, ip, userAgent string) error {
	if hwid == "" {
		return NewError(KindValidationError, "硬件指纹不能为空")
	}

	now := time.Now()
	key, err := findKey(database.DB, rawKey)
	if err != nil {
		return err
	}

	return database.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.DeviceActivation{}).
			Where("key_id = ? AND hwid = ? AND status = ?", key.ID, hwid, model.DeviceStatusActive).
			Updates(map[string]interface{}{
				"status":         model.DeviceStatusInactive,
				"deactivated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return NewError(KindDeviceNotFound, "该设备未绑定此许可证")
		}

		// 槽位计数下限为0
		if err := tx.Model(&model.LicenseKey{}).
			Where("id = ?", key.ID).
			UpdateColumn("current_devices", gorm.Expr("MAX(current_devices - 1, 0)")).Error; err != nil {
			return err
		}

		appendUsageLog(tx, key, model.UsageActionDeactivate, ip, userAgent, map[string]interface{}{
			"hwid": hwid,
		})
		return nil
	})
}

// ValidateKey 只读校验。除惰性过期翻转外不改任何状态。
// 带 hwid 时要求该设备有 ACTIVE 绑定
func ValidateKey(rawKey, hwid, ip, userAgent string) (*ValidateResult, error) {
	now := time.Now()
	key, err := findKey(database.DB, rawKey)
	if err != nil {
		return nil, err
	}
	if err := checkKeyUsable(key, now); err != nil {
		return nil, err
	}

	if hwid != "" {
		var count int64
		if err := database.DB.Model(&model.DeviceActivation{}).
			Where("key_id = ? AND hwid = ? AND status = ?", key.ID, hwid, model.DeviceStatusActive).
			Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, NewError(KindDeviceNotFound, "该设备未绑定此许可证")
		}
	}

	appendUsageLog(database.DB, key, model.UsageActionValidate, ip, userAgent, map[string]interface{}{
		"hwid": hwid,
	})

	return &ValidateResult{
		Valid:            true,
		Status:           key.Status,
		ExpiresAt:        key.ExpiresAt,
		MaxDevices:       key.MaxDevices,
		CurrentDevices:   key.CurrentDevices,
		RemainingDevices: key.RemainingDevices(),
	}, nil
}

// IssueOptions 签发选项
type IssueOptions struct {
	UserID *uint
	Status string // 默认 INACTIVE；管理员可直接签发 ACTIVE
	Notes  string
}

// IssueKeyTx 在事务内签发一把新密钥：生成-查重-重试，上限后报
// KEY_GENERATION_EXHAUSTED。直接签发 ACTIVE 时此刻起算到期时间
func IssueKeyTx(tx *gorm.DB, plan *model.Plan, createdBy string, opts IssueOptions) (*model.LicenseKey, error) {
	status := opts.Status
	if status == "" {
		status = model.KeyStatusInactive
	}

	now := time.Now()
	key := &model.LicenseKey{
		PlanID:     plan.ID,
		UserID:     opts.UserID,
		Status:     status,
		MaxDevices: plan.MaxDevices,
		CreatedBy:  createdBy,
		Notes:      opts.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if status == model.KeyStatusActive {
		key.ActivatedAt = &now
		key.ExpiresAt = CalculateExpirationDate(plan.DurationType, plan.DurationValue, now)
	}

	for attempt := 0; attempt < maxKeyGenAttempts; attempt++ {
		candidate := util.GenerateKeyString()
		var count int64
		if err := tx.Model(&model.LicenseKey{}).Where("key = ?", candidate).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			continue
		}
		key.Key = candidate
		if err := tx.Create(key).Error; err != nil {
			return nil, err
		}
		return key, nil
	}
	return nil, NewError(KindKeyGenerationExhaust, "生成唯一密钥失败，请重试")
}

// IssueKey 非事务场景的签发入口
func IssueKey(planID uint, createdBy string, opts IssueOptions) (*model.LicenseKey, error) {
	plan, err := GetPlan(planID)
	if err != nil {
		return nil, err
	}

	var issued *model.LicenseKey
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		k, err := IssueKeyTx(tx, plan, createdBy, opts)
		if err != nil {
			return err
		}
		issued = k
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// GetKeyDetail 密钥详情及设备列表
func GetKeyDetail(rawKey string) (*model.LicenseKey, []model.DeviceActivation, error) {
	key, err := findKey(database.DB, rawKey)
	if err != nil {
		return nil, nil, err
	}
	// 查询也应用惰性过期，调用方拿到的状态是准的
	EnsureNotExpired(key, time.Now())

	var devices []model.DeviceActivation
	if err := database.DB.Where("key_id = ?", key.ID).Order("activated_at desc").Find(&devices).Error; err != nil {
		return nil, nil, err
	}
	return key, devices, nil
}

// SetKeyDisabled 管理员停用/恢复密钥。已过期的密钥不可恢复
func SetKeyDisabled(rawKey string, disabled bool) (*model.LicenseKey, error) {
	key, err := findKey(database.DB, rawKey)
	if err != nil {
		return nil, err
	}
	if EnsureNotExpired(key, time.Now()) {
		return nil, NewError(KindKeyExpired, "许可证已过期")
	}

	target := model.KeyStatusDisabled
	if !disabled {
		// 恢复：有设备绑定回 ACTIVE，否则回 INACTIVE
		if key.CurrentDevices > 0 {
			target = model.KeyStatusActive
		} else {
			target = model.KeyStatusInactive
		}
	}

	if err := database.DB.Model(&model.LicenseKey{}).
		Where("id = ?", key.ID).
		Updates(map[string]interface{}{"status": target, "updated_at": time.Now()}).Error; err != nil {
		return nil, err
	}
	key.Status = target
	return key, nil
}
