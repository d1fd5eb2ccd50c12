package service

import (
	"errors"
	"fmt"
	"time"

	"license-key-engine/internal/database"
	"license-key-engine/internal/model"
	"license-key-engine/internal/util"

	"gorm.io/gorm"
)

// GenerateFreeKeyResult 领取会话创建结果
type GenerateFreeKeyResult struct {
	SessionToken string    `json:"session_token"`
	ShortURL     string    `json:"short_url"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ClaimResult 领取结果
type ClaimResult struct {
	Key       string     `json:"key"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at"`
	// 到期时间在首次设备激活时才确定
	ActivateToStart bool `json:"activate_to_start"`
}

// countSessionsToday 统计当天已完成/已领取的会话数。
// PENDING 不计数，被放弃的跳转不占用额度
func countSessionsToday(column string, value interface{}, now time.Time) (int64, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var count int64
	err := database.DB.Model(&model.FreeKeySession{}).
		Where(column+" = ? AND status IN ? AND created_at >= ?",
			value, []string{model.SessionStatusCompleted, model.SessionStatusClaimed}, dayStart).
		Count(&count).Error
	return count, err
}

// GenerateFreeKeySession 创建免费密钥领取会话并生成广告跳转短链。
// 短链服务失败时回滚删除会话，不留孤儿
func GenerateFreeKeySession(productID uint, userID *uint, ip string) (*GenerateFreeKeyResult, error) {
	product, err := GetProduct(productID)
	if err != nil {
		return nil, err
	}
	if product.FreeKeyPlanID == nil {
		return nil, NewError(KindBusinessError, "该产品未开放免费密钥")
	}

	now := time.Now()
	if ip != "" {
		count, err := countSessionsToday("ip_address", ip, now)
		if err != nil {
			return nil, err
		}
		if count >= int64(cfg.FreeKeyDailyPerIP) {
			return nil, NewError(KindRateLimitExceeded, "今日领取次数已达上限")
		}
	}
	if userID != nil {
		count, err := countSessionsToday("user_id", *userID, now)
		if err != nil {
			return nil, err
		}
		if count >= int64(cfg.FreeKeyDailyPerUser) {
			return nil, NewError(KindRateLimitExceeded, "今日领取次数已达上限")
		}
	}

	session := &model.FreeKeySession{
		Token:     util.GenerateSessionToken(),
		ProductID: productID,
		UserID:    userID,
		IPAddress: ip,
		Status:    model.SessionStatusPending,
		ExpiresAt: now.Add(cfg.FreeKeySessionTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := database.DB.Create(session).Error; err != nil {
		return nil, err
	}

	callbackURL := fmt.Sprintf("%s/api/v1/freekey/callback?token=%s", cfg.FreeKeyBaseURL, session.Token)
	shortURL, err := Shortener.Shorten(callbackURL)
	if err != nil {
		// 协作方失败，删除会话
		database.DB.Delete(session)
		logger.Warn().Err(err).Uint("product_id", productID).Msg("短链服务调用失败")
		return nil, NewError(KindShortenerError, "短链服务暂不可用")
	}

	database.DB.Model(session).Update("short_url", shortURL)

	return &GenerateFreeKeyResult{
		SessionToken: session.Token,
		ShortURL:     shortURL,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

// lazyExpireSession 会话超时的惰性翻转，条件更新保证幂等
func lazyExpireSession(session *model.FreeKeySession, now time.Time) bool {
	if session.Status != model.SessionStatusPending && session.Status != model.SessionStatusCompleted {
		return session.Status == model.SessionStatusExpired
	}
	if !now.After(session.ExpiresAt) {
		return false
	}

	database.DB.Model(&model.FreeKeySession{}).
		Where("id = ? AND status IN ?", session.ID,
			[]string{model.SessionStatusPending, model.SessionStatusCompleted}).
		Updates(map[string]interface{}{"status": model.SessionStatusExpired, "updated_at": now})
	session.Status = model.SessionStatusExpired
	return true
}

func findSession(token string) (*model.FreeKeySession, error) {
	var session model.FreeKeySession
	if err := database.DB.Where("token = ?", token).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(KindInvalidToken, "会话不存在")
		}
		return nil, err
	}
	return &session, nil
}

// FreeKeyCallback 广告跳转回调。重复点击旧链接幂等跳转到下一步，不报错。
// 返回前端应跳转的地址
func FreeKeyCallback(token string) (string, error) {
	session, err := findSession(token)
	if err != nil {
		return "", err
	}

	now := time.Now()
	if lazyExpireSession(session, now) {
		return "", NewError(KindSessionExpired, "会话已超时，请重新发起领取")
	}

	claimURL := fmt.Sprintf("%s/freekey/claim?token=%s", cfg.FreeKeyBaseURL, session.Token)
	switch session.Status {
	case model.SessionStatusCompleted, model.SessionStatusClaimed:
		// 已完成或已领取，幂等跳转
		return claimURL, nil
	}

	res := database.DB.Model(&model.FreeKeySession{}).
		Where("id = ? AND status = ?", session.ID, model.SessionStatusPending).
		Updates(map[string]interface{}{
			"status":       model.SessionStatusCompleted,
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return "", res.Error
	}
	// 并发回调时条件更新只生效一次，结果一致
	return claimURL, nil
}

// ClaimFreeKey 领取密钥。密钥创建和会话状态翻转在同一事务，
// 崩溃不会留下孤儿密钥或没有密钥的 CLAIMED 会话。
// 重复领取幂等返回同一把密钥
func ClaimFreeKey(token string) (*ClaimResult, error) {
	session, err := findSession(token)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if lazyExpireSession(session, now) {
		return nil, NewError(KindSessionExpired, "会话已超时，请重新发起领取")
	}

	switch session.Status {
	case model.SessionStatusPending:
		return nil, NewError(KindAdBypassNotCompleted, "请先完成广告跳转")
	case model.SessionStatusClaimed:
		return claimedResult(session)
	}

	product, err := GetProduct(session.ProductID)
	if err != nil {
		return nil, err
	}
	if product.FreeKeyPlanID == nil {
		return nil, NewError(KindBusinessError, "该产品未开放免费密钥")
	}
	plan, err := GetPlan(*product.FreeKeyPlanID)
	if err != nil {
		return nil, err
	}

	var issued *model.LicenseKey
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		key, err := IssueKeyTx(tx, plan, model.CreatedBySystemFreeKey, IssueOptions{
			UserID: session.UserID,
		})
		if err != nil {
			return err
		}

		res := tx.Model(&model.FreeKeySession{}).
			Where("id = ? AND status = ?", session.ID, model.SessionStatusCompleted).
			Updates(map[string]interface{}{
				"status":         model.SessionStatusClaimed,
				"claimed_at":     now,
				"license_key_id": key.ID,
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 并发领取，对方已赢。回滚本次签发的密钥
			return NewError(KindBusinessError, "会话状态已变化")
		}
		issued = key
		return nil
	})
	if err != nil {
		if IsKind(err, KindBusinessError) {
			// 重读后按已领取幂等返回
			if reread, ferr := findSession(token); ferr == nil && reread.Status == model.SessionStatusClaimed {
				return claimedResult(reread)
			}
		}
		return nil, err
	}

	notifyAsync("freekey.claimed", map[string]interface{}{
		"token":      session.Token,
		"product_id": session.ProductID,
		"key":        issued.Key,
	})
	syncKeyAsync(issued)

	return &ClaimResult{
		Key:             issued.Key,
		Status:          issued.Status,
		ExpiresAt:       issued.ExpiresAt,
		ActivateToStart: issued.ExpiresAt == nil,
	}, nil
}

// claimedResult 已领取会话幂等返回之前签发的密钥
func claimedResult(session *model.FreeKeySession) (*ClaimResult, error) {
	if session.LicenseKeyID == nil {
		return nil, NewError(KindBusinessError, "会话数据异常")
	}
	var key model.LicenseKey
	if err := database.DB.First(&key, *session.LicenseKeyID).Error; err != nil {
		return nil, err
	}
	return &ClaimResult{
		Key:             key.Key,
		Status:          key.Status,
		ExpiresAt:       key.ExpiresAt,
		ActivateToStart: key.ExpiresAt == nil,
	}, nil
}
