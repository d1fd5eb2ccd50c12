package service

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-key-engine/internal/database"
	"license-key-engine/internal/model"
)

// seedFreeKeyProduct 写入一个开放免费密钥的产品和对应套餐
func seedFreeKeyProduct(t *testing.T) *model.Product {
	t.Helper()
	plan := seedPlan(t, model.DurationDay, 3, 1, 0)
	product := &model.Product{
		Name:          "测试产品",
		FreeKeyPlanID: &plan.ID,
	}
	require.NoError(t, database.DB.Create(product).Error)
	return product
}

func TestFreeKeyLifecycle(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	product := seedFreeKeyProduct(t)

	// 1. 创建会话
	gen, err := GenerateFreeKeySession(product.ID, nil, "10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, gen.SessionToken)
	assert.Contains(t, gen.ShortURL, gen.SessionToken)

	// 未完成跳转不能领取
	_, err = ClaimFreeKey(gen.SessionToken)
	assert.Equal(t, KindAdBypassNotCompleted, ErrorKind(err))

	// 2. 广告回调
	claimURL, err := FreeKeyCallback(gen.SessionToken)
	require.NoError(t, err)
	assert.True(t, strings.Contains(claimURL, gen.SessionToken))

	// 重复回调幂等
	again, err := FreeKeyCallback(gen.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, claimURL, again)

	// 3. 领取
	claim, err := ClaimFreeKey(gen.SessionToken)
	require.NoError(t, err)
	assert.NotEmpty(t, claim.Key)
	assert.Equal(t, model.KeyStatusInactive, claim.Status)
	assert.True(t, claim.ActivateToStart, "免费密钥应在激活时才开始计时")

	// 重复领取返回同一把密钥
	second, err := ClaimFreeKey(gen.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, claim.Key, second.Key)

	// 领取后回调仍然幂等跳转
	_, err = FreeKeyCallback(gen.SessionToken)
	require.NoError(t, err)

	// 只签发了一把密钥
	var keys int64
	database.DB.Model(&model.LicenseKey{}).
		Where("created_by = ?", model.CreatedBySystemFreeKey).Count(&keys)
	assert.Equal(t, int64(1), keys)
}

func TestFreeKeySessionExpiry(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	product := seedFreeKeyProduct(t)

	gen, err := GenerateFreeKeySession(product.ID, nil, "10.0.0.2")
	require.NoError(t, err)

	// 手动把会话推到超时
	require.NoError(t, database.DB.Model(&model.FreeKeySession{}).
		Where("token = ?", gen.SessionToken).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	_, err = FreeKeyCallback(gen.SessionToken)
	assert.Equal(t, KindSessionExpired, ErrorKind(err))

	_, err = ClaimFreeKey(gen.SessionToken)
	assert.Equal(t, KindSessionExpired, ErrorKind(err))

	var session model.FreeKeySession
	require.NoError(t, database.DB.Where("token = ?", gen.SessionToken).First(&session).Error)
	assert.Equal(t, model.SessionStatusExpired, session.Status)
}

func TestFreeKeyRateLimit(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	product := seedFreeKeyProduct(t)
	ip := "10.0.0.3"

	// PENDING 会话不占额度
	for i := 0; i < 5; i++ {
		_, err := GenerateFreeKeySession(product.ID, nil, ip)
		require.NoError(t, err)
	}

	// 完成并领取到当日上限
	for i := 0; i < cfg.FreeKeyDailyPerIP; i++ {
		gen, err := GenerateFreeKeySession(product.ID, nil, ip)
		require.NoError(t, err)
		_, err = FreeKeyCallback(gen.SessionToken)
		require.NoError(t, err)
		_, err = ClaimFreeKey(gen.SessionToken)
		require.NoError(t, err)
	}

	_, err := GenerateFreeKeySession(product.ID, nil, ip)
	assert.Equal(t, KindRateLimitExceeded, ErrorKind(err))

	// 其他 IP 不受影响
	_, err = GenerateFreeKeySession(product.ID, nil, "10.0.0.4")
	require.NoError(t, err)
}

func TestFreeKeyUserRateLimit(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	product := seedFreeKeyProduct(t)
	userID := uint(42)

	for i := 0; i < cfg.FreeKeyDailyPerUser; i++ {
		// 每次换 IP，命中的是用户维度限额
		ip := "10.1.0." + string(rune('1'+i))
		gen, err := GenerateFreeKeySession(product.ID, &userID, ip)
		require.NoError(t, err)
		_, err = FreeKeyCallback(gen.SessionToken)
		require.NoError(t, err)
		_, err = ClaimFreeKey(gen.SessionToken)
		require.NoError(t, err)
	}

	_, err := GenerateFreeKeySession(product.ID, &userID, "10.1.0.99")
	assert.Equal(t, KindRateLimitExceeded, ErrorKind(err))
}

func TestFreeKeyProductNotEligible(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	product := &model.Product{Name: "无免费密钥的产品"}
	require.NoError(t, database.DB.Create(product).Error)

	_, err := GenerateFreeKeySession(product.ID, nil, "10.0.0.5")
	assert.Equal(t, KindBusinessError, ErrorKind(err))
}

// 并发领取同一会话：恰好一把密钥，所有成功响应拿到同一个值
func TestClaimFreeKeyConcurrent(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	product := seedFreeKeyProduct(t)
	gen, err := GenerateFreeKeySession(product.ID, nil, "10.0.0.6")
	require.NoError(t, err)
	_, err = FreeKeyCallback(gen.SessionToken)
	require.NoError(t, err)

	const attempts = 5
	var wg sync.WaitGroup
	var mu sync.Mutex
	keys := make(map[string]bool)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ClaimFreeKey(gen.SessionToken)
			if err != nil {
				t.Errorf("领取失败: %v", err)
				return
			}
			mu.Lock()
			keys[res.Key] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, keys, 1, "并发领取应收敛到同一把密钥")

	var issued int64
	database.DB.Model(&model.LicenseKey{}).
		Where("created_by = ?", model.CreatedBySystemFreeKey).Count(&issued)
	assert.Equal(t, int64(1), issued)
}
