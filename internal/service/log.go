package service

import (
	"encoding/json"
	"license-key-engine/internal/database"
	"license-key-engine/internal/model"
	"time"

	"gorm.io/gorm"
)

func LogOperation(userID uint, action string, target string, targetID string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	log := &model.OperationLog{
		UserID:    userID,
		Action:    action,
		Target:    target,
		TargetID:  targetID,
		Details:   string(detailsJSON),
		CreatedAt: time.Now(),
	}

	return database.DB.Create(log).Error
}

// appendUsageLog 追加密钥使用审计记录。传入事务句柄时与业务变更同一原子单元提交
func appendUsageLog(db *gorm.DB, key *model.LicenseKey, action, ip, userAgent string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	entry := &model.KeyUsageLog{
		KeyID:      key.ID,
		LicenseKey: key.Key,
		Action:     action,
		IPAddress:  ip,
		UserAgent:  userAgent,
		Details:    string(detailsJSON),
		CreatedAt:  time.Now(),
	}
	if err := db.Create(entry).Error; err != nil {
		logger.Error().Err(err).Str("key", key.Key).Str("action", action).Msg("写入使用日志失败")
		return err
	}
	return nil
}

// GetKeyUsageLogs 查询某个密钥最近的使用记录
func GetKeyUsageLogs(key string, limit int) ([]model.KeyUsageLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var logs []model.KeyUsageLog
	err := database.DB.Where("license_key = ?", key).
		Order("created_at desc").Limit(limit).Find(&logs).Error
	return logs, err
}

// OperationLogFilter 操作日志查询条件
type OperationLogFilter struct {
	UserID uint
	Target string
	Action string
}

// GetOperationLogs 按条件分页查询操作日志
func GetOperationLogs(filter OperationLogFilter, page, pageSize int) ([]model.OperationLog, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	db := database.DB.Model(&model.OperationLog{})
	if filter.UserID != 0 {
		db = db.Where("user_id = ?", filter.UserID)
	}
	if filter.Target != "" {
		db = db.Where("target = ?", filter.Target)
	}
	if filter.Action != "" {
		db = db.Where("action = ?", filter.Action)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []model.OperationLog
	offset := (page - 1) * pageSize
	if err := db.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
