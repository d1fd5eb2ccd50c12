package service

import (
	"errors"
	"fmt"
	"math"
	"time"

	"license-key-engine/internal/database"
	"license-key-engine/internal/model"
	"license-key-engine/internal/util"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PurchaseResult 批量购买结果
type PurchaseResult struct {
	Keys        []model.LicenseKey        `json:"keys"`
	Transaction model.ResellerTransaction `json:"transaction"`
	UnitPrice   float64                   `json:"unit_price"`
	Total       float64                   `json:"total"`
}

// QuotaResult 免费密钥剩余额度
type QuotaResult struct {
	DailyRemaining   int `json:"daily_remaining"`
	MonthlyRemaining int `json:"monthly_remaining"`
	DailyUsed        int `json:"daily_used"`
	MonthlyUsed      int `json:"monthly_used"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func findReseller(db *gorm.DB, resellerID uint) (*model.Reseller, error) {
	var r model.Reseller
	if err := db.First(&r, resellerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(KindNotFound, "经销商不存在")
		}
		return nil, err
	}
	return &r, nil
}

// RegisterReseller 注册经销商，等待管理员审批
func RegisterReseller(userID uint, currency string) (*model.Reseller, error) {
	if currency == "" {
		currency = "USD"
	}
	r := &model.Reseller{
		UserID:   userID,
		Currency: currency,
		Status:   model.ResellerStatusPending,
	}
	if err := database.DB.Create(r).Error; err != nil {
		return nil, NewError(KindBusinessError, "经销商注册失败，可能已存在")
	}
	return r, nil
}

// SetResellerStatus 管理员审批/停用经销商
func SetResellerStatus(resellerID uint, status string) (*model.Reseller, error) {
	switch status {
	case model.ResellerStatusApproved, model.ResellerStatusSuspended, model.ResellerStatusRejected:
	default:
		return nil, NewError(KindValidationError, "无效的经销商状态")
	}

	r, err := findReseller(database.DB, resellerID)
	if err != nil {
		return nil, err
	}
	if err := database.DB.Model(r).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}).Error; err != nil {
		return nil, err
	}
	r.Status = status
	return r, nil
}

// CreditResellerBalance 管理员入账（充值/调整/奖励/退款）。
// 负数调整同样走条件更新，余额不允许变负
func CreditResellerBalance(resellerID uint, amount float64, txType, note string) (*model.ResellerTransaction, error) {
	switch txType {
	case model.TxTypeDeposit, model.TxTypeAdjustment, model.TxTypeBonus, model.TxTypeRefund:
	default:
		return nil, NewError(KindValidationError, "无效的账变类型")
	}
	amount = round2(amount)
	if amount == 0 {
		return nil, NewError(KindValidationError, "账变金额不能为零")
	}

	var entry *model.ResellerTransaction
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := findReseller(tx, resellerID); err != nil {
			return err
		}

		// 扣减时条件保证余额充足，入账时条件恒真
		res := tx.Model(&model.Reseller{}).
			Where("id = ? AND balance + ? >= 0", resellerID, amount).
			UpdateColumn("balance", gorm.Expr("balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return NewError(KindInsufficientBalance, "余额不足，无法扣减")
		}

		var after model.Reseller
		if err := tx.First(&after, resellerID).Error; err != nil {
			return err
		}

		entry = &model.ResellerTransaction{
			ResellerID:    resellerID,
			Type:          txType,
			Amount:        amount,
			BalanceBefore: round2(after.Balance - amount),
			BalanceAfter:  after.Balance,
			Reference:     uuid.NewString(),
			Note:          note,
			CreatedAt:     time.Now(),
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}

	syncTransactionAsync(entry)
	return entry, nil
}

// PurchaseResellerKeys 经销商用余额批量购买密钥。
// 余额检查和扣减是同一条条件更新：并发请求总消费不可能超过余额，
// 不足时整单失败，不存在部分购买
func PurchaseResellerKeys(resellerID, planID uint, quantity int) (*PurchaseResult, error) {
	reseller, err := findReseller(database.DB, resellerID)
	if err != nil {
		return nil, err
	}
	if reseller.Status != model.ResellerStatusApproved {
		return nil, NewError(KindBusinessError, "经销商未通过审批")
	}
	if quantity <= 0 {
		return nil, NewError(KindValidationError, "购买数量必须大于零")
	}
	if quantity > reseller.MaxKeysPerOrder {
		return nil, NewError(KindBusinessError,
			fmt.Sprintf("单次最多购买 %d 把密钥", reseller.MaxKeysPerOrder))
	}

	plan, err := GetPlan(planID)
	if err != nil {
		return nil, err
	}

	unitPrice := round2(plan.Price * (1 - reseller.DiscountPercent/100))
	total := round2(unitPrice * float64(quantity))

	result := &PurchaseResult{UnitPrice: unitPrice, Total: total}
	now := time.Now()

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		// 余额充足才放行扣减，行数为0即余额不足
		res := tx.Model(&model.Reseller{}).
			Where("id = ? AND balance >= ?", resellerID, total).
			Updates(map[string]interface{}{
				"balance":     gorm.Expr("balance - ?", total),
				"total_spent": gorm.Expr("total_spent + ?", total),
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return NewError(KindInsufficientBalance, "余额不足")
		}

		// 事务内重读拿到精确的扣减前后值
		var after model.Reseller
		if err := tx.First(&after, resellerID).Error; err != nil {
			return err
		}

		entry := model.ResellerTransaction{
			ResellerID:    resellerID,
			Type:          model.TxTypePurchaseKey,
			Amount:        -total,
			BalanceBefore: round2(after.Balance + total),
			BalanceAfter:  after.Balance,
			PlanID:        &planID,
			Quantity:      quantity,
			UnitPrice:     unitPrice,
			Discount:      reseller.DiscountPercent,
			Reference:     uuid.NewString(),
			CreatedAt:     now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		createdBy := fmt.Sprintf("RESELLER_%d", resellerID)
		keys := make([]model.LicenseKey, 0, quantity)
		for i := 0; i < quantity; i++ {
			key, err := IssueKeyTx(tx, plan, createdBy, IssueOptions{})
			if err != nil {
				return err
			}
			alloc := model.ResellerKeyAllocation{
				ResellerID:   resellerID,
				LicenseKeyID: key.ID,
				Type:         model.AllocationTypePurchased,
				AllocatedAt:  now,
				CreatedAt:    now,
			}
			if err := tx.Create(&alloc).Error; err != nil {
				return err
			}
			keys = append(keys, *key)
		}

		result.Keys = keys
		result.Transaction = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	syncTransactionAsync(&result.Transaction)
	notifyAsync("reseller.purchase", map[string]interface{}{
		"reseller_id": resellerID,
		"plan_id":     planID,
		"quantity":    quantity,
		"total":       total,
	})
	return result, nil
}

// 额度统计窗口：当天零点和当月一号零点
func quotaWindows(now time.Time) (dayStart, monthStart time.Time) {
	dayStart = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return
}

func countFreeAllocations(db *gorm.DB, resellerID uint, since time.Time) (int64, error) {
	var count int64
	err := db.Model(&model.ResellerKeyAllocation{}).
		Where("reseller_id = ? AND type = ? AND allocated_at >= ?",
			resellerID, model.AllocationTypeFree, since).
		Count(&count).Error
	return count, err
}

// CheckFreeKeyQuota 查询当日/当月剩余免费密钥额度
func CheckFreeKeyQuota(resellerID uint) (*QuotaResult, error) {
	reseller, err := findReseller(database.DB, resellerID)
	if err != nil {
		return nil, err
	}

	dayStart, monthStart := quotaWindows(time.Now())
	dailyUsed, err := countFreeAllocations(database.DB, resellerID, dayStart)
	if err != nil {
		return nil, err
	}
	monthlyUsed, err := countFreeAllocations(database.DB, resellerID, monthStart)
	if err != nil {
		return nil, err
	}

	daily := reseller.FreeKeyQuotaDaily - int(dailyUsed)
	monthly := reseller.FreeKeyQuotaMonthly - int(monthlyUsed)
	if daily < 0 {
		daily = 0
	}
	if monthly < 0 {
		monthly = 0
	}
	return &QuotaResult{
		DailyRemaining:   daily,
		MonthlyRemaining: monthly,
		DailyUsed:        int(dailyUsed),
		MonthlyUsed:      int(monthlyUsed),
	}, nil
}

// GenerateResellerFreeKey 从经销商免费额度签发密钥。
// 额度占用是一条带计数守卫的条件插入：两个并发请求抢最后一个名额时
// 只有一个插入生效，另一个整个事务回滚报 QUOTA_EXCEEDED
func GenerateResellerFreeKey(resellerID uint) (*model.LicenseKey, error) {
	reseller, err := findReseller(database.DB, resellerID)
	if err != nil {
		return nil, err
	}
	if reseller.Status != model.ResellerStatusApproved {
		return nil, NewError(KindBusinessError, "经销商未通过审批")
	}
	if reseller.FreeKeyPlanID == nil {
		return nil, NewError(KindBusinessError, "未配置免费密钥套餐")
	}
	if reseller.FreeKeyQuotaDaily <= 0 && reseller.FreeKeyQuotaMonthly <= 0 {
		return nil, NewError(KindQuotaExceeded, "免费密钥额度已用完")
	}

	plan, err := GetPlan(*reseller.FreeKeyPlanID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	dayStart, monthStart := quotaWindows(now)

	var issued *model.LicenseKey
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		key, err := IssueKeyTx(tx, plan, fmt.Sprintf("RESELLER_%d", resellerID), IssueOptions{})
		if err != nil {
			return err
		}

		// 计数守卫在插入语句内完成，检查和占用是同一个原子操作
		res := tx.Exec(`
			INSERT INTO reseller_key_allocations (reseller_id, license_key_id, type, allocated_at, created_at)
			SELECT ?, ?, ?, ?, ?
			WHERE (SELECT COUNT(*) FROM reseller_key_allocations
			       WHERE reseller_id = ? AND type = ? AND allocated_at >= ?) < ?
			  AND (SELECT COUNT(*) FROM reseller_key_allocations
			       WHERE reseller_id = ? AND type = ? AND allocated_at >= ?) < ?`,
			resellerID, key.ID, model.AllocationTypeFree, now, now,
			resellerID, model.AllocationTypeFree, dayStart, reseller.FreeKeyQuotaDaily,
			resellerID, model.AllocationTypeFree, monthStart, reseller.FreeKeyQuotaMonthly,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return NewError(KindQuotaExceeded, "免费密钥额度已用完")
		}
		issued = key
		return nil
	})
	if err != nil {
		return nil, err
	}

	syncKeyAsync(issued)
	return issued, nil
}

// AuthenticateReseller 按 API 凭证查找经销商，不修改任何状态
func AuthenticateReseller(apiKey string) (*model.Reseller, error) {
	if apiKey == "" {
		return nil, NewError(KindUnauthorized, "缺少 API 凭证")
	}

	var cred model.ResellerApiKey
	if err := database.DB.Where("key = ? AND is_active = ?", apiKey, true).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(KindUnauthorized, "无效的 API 凭证")
		}
		return nil, err
	}

	reseller, err := findReseller(database.DB, cred.ResellerID)
	if err != nil {
		return nil, NewError(KindUnauthorized, "无效的 API 凭证")
	}
	if reseller.Status != model.ResellerStatusApproved {
		return nil, NewError(KindUnauthorized, "经销商未通过审批")
	}
	return reseller, nil
}

// UpdateApiKeyLastUsed 记录凭证使用痕迹，与认证分离，失败只记日志
func UpdateApiKeyLastUsed(apiKey, ip string) {
	now := time.Now()
	err := database.DB.Model(&model.ResellerApiKey{}).
		Where("key = ?", apiKey).
		Updates(map[string]interface{}{
			"last_used_at": now,
			"last_used_ip": ip,
			"updated_at":   now,
		}).Error
	if err != nil {
		logger.Error().Err(err).Msg("更新凭证使用记录失败")
	}
}

// CreateResellerApiKey 创建经销商 API 凭证，明文只在返回值出现一次
func CreateResellerApiKey(resellerID uint, name string, rateLimit int) (string, *model.ResellerApiKey, error) {
	if _, err := findReseller(database.DB, resellerID); err != nil {
		return "", nil, err
	}

	token := util.GenerateResellerApiKey()
	cred := &model.ResellerApiKey{
		ResellerID: resellerID,
		Key:        token,
		Name:       name,
		IsActive:   true,
		RateLimit:  rateLimit,
	}
	if err := database.DB.Create(cred).Error; err != nil {
		return "", nil, err
	}
	return token, cred, nil
}

// GetResellerBalance 余额查询，校验余额与最新流水一致性并在偏差时告警
func GetResellerBalance(resellerID uint) (*model.Reseller, error) {
	reseller, err := findReseller(database.DB, resellerID)
	if err != nil {
		return nil, err
	}

	var latest model.ResellerTransaction
	err = database.DB.Where("reseller_id = ?", resellerID).
		Order("id desc").First(&latest).Error
	if err == nil && math.Abs(latest.BalanceAfter-reseller.Balance) >= 0.005 {
		logger.Error().Uint("reseller_id", resellerID).
			Float64("balance", reseller.Balance).
			Float64("ledger", latest.BalanceAfter).
			Msg("余额与流水不一致")
	}
	return reseller, nil
}

// ListResellerTransactions 流水分页查询
func ListResellerTransactions(resellerID uint, page, pageSize int) ([]model.ResellerTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	db := database.DB.Model(&model.ResellerTransaction{}).Where("reseller_id = ?", resellerID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txs []model.ResellerTransaction
	offset := (page - 1) * pageSize
	if err := db.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&txs).Error; err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}
