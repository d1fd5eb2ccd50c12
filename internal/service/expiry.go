package service

import (
	"time"

	"license-key-engine/internal/database"
	"license-key-engine/internal/model"
)

// CalculateExpirationDate 根据套餐时长计算到期时间。
// LIFETIME 返回 nil 表示永久有效。
// MONTH/YEAR 按日历加法并在月末截断：1月31日加一个月落在2月的最后一天，
// 不能用 time.AddDate（它会溢出到3月2/3日）
func CalculateExpirationDate(durationType string, durationValue int, from time.Time) *time.Time {
	if durationValue < 0 {
		durationValue = 0
	}

	var expiry time.Time
	switch durationType {
	case model.DurationHour:
		expiry = from.Add(time.Duration(durationValue) * time.Hour)
	case model.DurationDay:
		expiry = from.Add(time.Duration(durationValue) * 24 * time.Hour)
	case model.DurationMonth:
		expiry = addMonthsClamped(from, durationValue)
	case model.DurationYear:
		expiry = addMonthsClamped(from, durationValue*12)
	case model.DurationLifetime:
		return nil
	default:
		// 未知类型按永久处理，签发路径会先校验套餐
		return nil
	}
	return &expiry
}

// addMonthsClamped 日历正确的按月加法，超出目标月天数时截断到月末
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	total := int(month) - 1 + months
	targetYear := year + total/12
	targetMonth := time.Month(total%12 + 1)

	if last := daysInMonth(targetYear, targetMonth); day > last {
		day = last
	}
	return time.Date(targetYear, targetMonth, day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	// 下个月第0天即本月最后一天
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// EnsureNotExpired 惰性过期：任何触碰密钥的操作先经过这里，
// 观察到过期就用条件更新翻转状态（幂等，可与扫描任务并发）。
// 返回 true 表示密钥已过期
func EnsureNotExpired(key *model.LicenseKey, now time.Time) bool {
	if key.Status == model.KeyStatusExpired {
		return true
	}
	if key.ExpiresAt == nil || !now.After(*key.ExpiresAt) {
		return false
	}

	res := database.DB.Model(&model.LicenseKey{}).
		Where("id = ? AND status <> ?", key.ID, model.KeyStatusExpired).
		Updates(map[string]interface{}{"status": model.KeyStatusExpired, "updated_at": now})
	if res.Error != nil {
		logger.Error().Err(res.Error).Str("key", key.Key).Msg("惰性过期更新失败")
		// 更新失败也按过期对待，不放行已过期的密钥
	}
	if res.RowsAffected > 0 {
		appendUsageLog(database.DB, key, model.UsageActionExpire, "", "", map[string]interface{}{
			"expires_at": key.ExpiresAt,
			"via":        "lazy",
		})
	}
	key.Status = model.KeyStatusExpired
	return true
}

// SweepExpiredKeys 批量把到期密钥翻转为 EXPIRED，返回处理数量。
// 条件更新保证与惰性过期、与另一个扫描实例并发运行时不会重复处理
func SweepExpiredKeys(now time.Time) (int64, error) {
	res := database.DB.Model(&model.LicenseKey{}).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
			[]string{model.KeyStatusInactive, model.KeyStatusActive}, now).
		Updates(map[string]interface{}{"status": model.KeyStatusExpired, "updated_at": now})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// StartExpirySweep 启动周期过期扫描，返回停止通道
func StartExpirySweep(interval time.Duration) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				count, err := SweepExpiredKeys(time.Now())
				if err != nil {
					logger.Error().Err(err).Msg("过期扫描失败")
					continue
				}
				if count > 0 {
					logger.Info().Int64("count", count).Msg("过期扫描完成")
				}
			case <-stop:
				return
			}
		}
	}()
	return stop
}
