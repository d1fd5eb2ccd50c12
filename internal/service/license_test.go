package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-key-engine/internal/database"
	"license-key-engine/internal/model"
)

// seedPlan 写入一个测试套餐
func seedPlan(t *testing.T, durationType string, durationValue, maxDevices int, price float64) *model.Plan {
	t.Helper()
	plan := &model.Plan{
		Name:          "测试套餐",
		DurationType:  durationType,
		DurationValue: durationValue,
		MaxDevices:    maxDevices,
		Price:         price,
	}
	require.NoError(t, database.DB.Create(plan).Error)
	return plan
}

func TestIssueKey(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	plan := seedPlan(t, model.DurationMonth, 1, 3, 29.9)

	key, err := IssueKey(plan.ID, model.CreatedBySystemOrder, IssueOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.KeyStatusInactive, key.Status)
	assert.Equal(t, 3, key.MaxDevices)
	assert.Nil(t, key.ActivatedAt, "未激活的密钥不应有激活时间")
	assert.Nil(t, key.ExpiresAt, "到期时间应在首次激活时才确定")

	// 直接签发 ACTIVE 时立刻起算到期时间
	active, err := IssueKey(plan.ID, "ADMIN_1", IssueOptions{Status: model.KeyStatusActive})
	require.NoError(t, err)
	assert.Equal(t, model.KeyStatusActive, active.Status)
	require.NotNil(t, active.ExpiresAt)
	assert.True(t, active.ExpiresAt.After(time.Now()))
}

func TestActivateKey(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	plan := seedPlan(t, model.DurationMonth, 1, 2, 0)
	key, err := IssueKey(plan.ID, model.CreatedBySystemFreeKey, IssueOptions{})
	require.NoError(t, err)

	res, err := ActivateKey(ActivateInput{Key: key.Key, Hwid: "HW-001", DeviceName: "工作机"})
	require.NoError(t, err)
	assert.Equal(t, model.KeyStatusActive, res.Status)
	assert.Equal(t, 1, res.CurrentDevices)
	assert.False(t, res.AlreadyActivated)
	require.NotNil(t, res.ExpiresAt, "首次激活应确定到期时间")

	// 同指纹重复激活幂等，不消耗槽位，到期时间不变
	again, err := ActivateKey(ActivateInput{Key: key.Key, Hwid: "HW-001"})
	require.NoError(t, err)
	assert.True(t, again.AlreadyActivated)
	assert.Equal(t, 1, again.CurrentDevices)
	assert.True(t, res.ExpiresAt.Equal(*again.ExpiresAt))

	// 第二台设备占用最后一个槽位
	res2, err := ActivateKey(ActivateInput{Key: key.Key, Hwid: "HW-002"})
	require.NoError(t, err)
	assert.Equal(t, 2, res2.CurrentDevices)

	// 第三台被拒
	_, err = ActivateKey(ActivateInput{Key: key.Key, Hwid: "HW-003"})
	assert.Equal(t, KindDeviceLimitReached, ErrorKind(err))
}

func TestActivateKeyErrors(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	plan := seedPlan(t, model.DurationDay, 7, 1, 0)

	t.Run("invalid_format", func(t *testing.T) {
		_, err := ActivateKey(ActivateInput{Key: "not-a-key", Hwid: "HW"})
		assert.Equal(t, KindValidationError, ErrorKind(err))
	})

	t.Run("unknown_key", func(t *testing.T) {
		_, err := ActivateKey(ActivateInput{Key: "AAAAA-BBBBB-CCCCC-DDDDD", Hwid: "HW"})
		assert.Equal(t, KindInvalidKey, ErrorKind(err))
	})

	t.Run("expired_key", func(t *testing.T) {
		key, err := IssueKey(plan.ID, model.CreatedBySystemOrder, IssueOptions{})
		require.NoError(t, err)
		past := time.Now().Add(-time.Hour)
		require.NoError(t, database.DB.Model(key).Updates(map[string]interface{}{
			"status": model.KeyStatusActive, "expires_at": past,
		}).Error)

		_, err = ActivateKey(ActivateInput{Key: key.Key, Hwid: "HW"})
		assert.Equal(t, KindKeyExpired, ErrorKind(err))

		var stored model.LicenseKey
		require.NoError(t, database.DB.First(&stored, key.ID).Error)
		assert.Equal(t, model.KeyStatusExpired, stored.Status, "触碰过期密钥应翻转状态")
	})

	t.Run("disabled_key", func(t *testing.T) {
		key, err := IssueKey(plan.ID, model.CreatedBySystemOrder, IssueOptions{})
		require.NoError(t, err)
		require.NoError(t, database.DB.Model(key).Update("status", model.KeyStatusDisabled).Error)

		_, err = ActivateKey(ActivateInput{Key: key.Key, Hwid: "HW"})
		assert.Equal(t, KindKeySuspended, ErrorKind(err))
	})
}

// 并发激活竞争：N 台设备抢 k 个槽位，恰好 k 个成功
func TestActivateKeyConcurrent(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	const maxDevices = 3
	const attempts = 10

	plan := seedPlan(t, model.DurationMonth, 1, maxDevices, 0)
	key, err := IssueKey(plan.ID, model.CreatedBySystemOrder, IssueOptions{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	success, limited := 0, 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := ActivateKey(ActivateInput{Key: key.Key, Hwid: string(rune('A' + n))})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case IsKind(err, KindDeviceLimitReached):
				limited++
			default:
				t.Errorf("预期之外的错误: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, maxDevices, success)
	assert.Equal(t, attempts-maxDevices, limited)

	var stored model.LicenseKey
	require.NoError(t, database.DB.First(&stored, key.ID).Error)
	assert.Equal(t, maxDevices, stored.CurrentDevices)

	var bindings int64
	database.DB.Model(&model.DeviceActivation{}).
		Where("key_id = ? AND status = ?", key.ID, model.DeviceStatusActive).
		Count(&bindings)
	assert.Equal(t, int64(maxDevices), bindings)
}

func TestDeactivateDevice(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	plan := seedPlan(t, model.DurationMonth, 1, 1, 0)
	key, err := IssueKey(plan.ID, model.CreatedBySystemOrder, IssueOptions{})
	require.NoError(t, err)

	_, err = ActivateKey(ActivateInput{Key: key.Key, Hwid: "HW-001"})
	require.NoError(t, err)

	// 槽位已满
	_, err = ActivateKey(ActivateInput{Key: key.Key, Hwid: "HW-002"})
	assert.Equal(t, KindDeviceLimitReached, ErrorKind(err))

	// 解绑后槽位释放，密钥保持 ACTIVE
	require.NoError(t, DeactivateDevice(key.Key, "HW-001", "", ""))
	var stored model.LicenseKey
	require.NoError(t, database.DB.First(&stored, key.ID).Error)
	assert.Equal(t, 0, stored.CurrentDevices)
	assert.Equal(t, model.KeyStatusActive, stored.Status)

	// 重复解绑报设备不存在
	err = DeactivateDevice(key.Key, "HW-001", "", "")
	assert.Equal(t, KindDeviceNotFound, ErrorKind(err))

	// 新设备可以接着用释放出来的槽位，且复用同一套到期时间
	res, err := ActivateKey(ActivateInput{Key: key.Key, Hwid: "HW-002"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CurrentDevices)

	// 原设备重新绑定翻转旧行而不是新建
	require.NoError(t, DeactivateDevice(key.Key, "HW-002", "", ""))
	_, err = ActivateKey(ActivateInput{Key: key.Key, Hwid: "HW-001"})
	require.NoError(t, err)
	var rows int64
	database.DB.Model(&model.DeviceActivation{}).Where("key_id = ?", key.ID).Count(&rows)
	assert.Equal(t, int64(2), rows, "同一指纹不应产生重复绑定行")
}

func TestValidateKey(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	plan := seedPlan(t, model.DurationMonth, 1, 2, 0)
	key, err := IssueKey(plan.ID, model.CreatedBySystemOrder, IssueOptions{})
	require.NoError(t, err)

	_, err = ActivateKey(ActivateInput{Key: key.Key, Hwid: "HW-001"})
	require.NoError(t, err)

	// 不带指纹只校验密钥本身
	res, err := ValidateKey(key.Key, "", "", "")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 1, res.CurrentDevices)
	assert.Equal(t, 1, res.RemainingDevices)

	// 带已绑定指纹
	res, err = ValidateKey(key.Key, "HW-001", "", "")
	require.NoError(t, err)
	assert.True(t, res.Valid)

	// 未绑定指纹
	_, err = ValidateKey(key.Key, "HW-999", "", "")
	assert.Equal(t, KindDeviceNotFound, ErrorKind(err))

	// 校验是只读的，不占槽位
	var stored model.LicenseKey
	require.NoError(t, database.DB.First(&stored, key.ID).Error)
	assert.Equal(t, 1, stored.CurrentDevices)

	// 到期后的校验除了翻转状态不做其他修改
	past := time.Now().Add(-time.Minute)
	require.NoError(t, database.DB.Model(&stored).Update("expires_at", past).Error)
	_, err = ValidateKey(key.Key, "", "", "")
	assert.Equal(t, KindKeyExpired, ErrorKind(err))
	require.NoError(t, database.DB.First(&stored, key.ID).Error)
	assert.Equal(t, model.KeyStatusExpired, stored.Status)
}

func TestSetKeyDisabled(t *testing.T) {
	database.InitTestDB()
	defer database.CleanTestDB()

	plan := seedPlan(t, model.DurationMonth, 1, 2, 0)
	key, err := IssueKey(plan.ID, model.CreatedBySystemOrder, IssueOptions{})
	require.NoError(t, err)

	_, err = ActivateKey(ActivateInput{Key: key.Key, Hwid: "HW-001"})
	require.NoError(t, err)

	disabled, err := SetKeyDisabled(key.Key, true)
	require.NoError(t, err)
	assert.Equal(t, model.KeyStatusDisabled, disabled.Status)

	_, err = ValidateKey(key.Key, "", "", "")
	assert.Equal(t, KindKeySuspended, ErrorKind(err))

	// 恢复：有设备绑定回 ACTIVE
	restored, err := SetKeyDisabled(key.Key, false)
	require.NoError(t, err)
	assert.Equal(t, model.KeyStatusActive, restored.Status)
}
