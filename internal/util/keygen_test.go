package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKeyString(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := GenerateKeyString()
		assert.Len(t, key, 23) // 4组5字符加3个分隔符
		assert.True(t, IsValidKeyFormat(key), "生成的密钥应通过格式校验: %s", key)
		assert.False(t, seen[key], "密钥不应重复: %s", key)
		seen[key] = true

		// 不含易混淆字符
		for _, c := range "0O1I" {
			assert.NotContains(t, key, string(c))
		}
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase_with_dashes", "abcde-fghjk-lmnpq-rstuv", "ABCDEFGHJKLMNPQRSTUV"},
		{"spaces_and_whitespace", "  ABCDE FGHJK LMNPQ RSTUV  ", "ABCDEFGHJKLMNPQRSTUV"},
		{"already_normalized", "ABCDEFGHJKLMNPQRSTUV", "ABCDEFGHJKLMNPQRSTUV"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.input))
		})
	}
}

func TestIsValidKeyFormat(t *testing.T) {
	assert.True(t, IsValidKeyFormat("ABCDE-FGHJK-LMNPQ-RSTUV"))
	assert.True(t, IsValidKeyFormat("abcde-fghjk-lmnpq-rstuv"))
	assert.False(t, IsValidKeyFormat(""))
	assert.False(t, IsValidKeyFormat("ABCDE-FGHJK"))
	assert.False(t, IsValidKeyFormat("ABCD0-FGHJK-LMNPQ-RSTUV")) // 0 不在字符表
	assert.False(t, IsValidKeyFormat("ABCDE-FGHJK-LMNPQ-RSTUVW"))
}

func TestFormatKey(t *testing.T) {
	assert.Equal(t, "ABCDE-FGHJK-LMNPQ-RSTUV", FormatKey("abcdefghjklmnpqrstuv"))
	// 长度不对时原样返回归一化结果
	assert.Equal(t, "ABC", FormatKey("abc"))
}

func TestGenerateResellerApiKey(t *testing.T) {
	key := GenerateResellerApiKey()
	assert.True(t, strings.HasPrefix(key, "rsk_"))
	assert.Len(t, key, 44)
	assert.NotEqual(t, key, GenerateResellerApiKey())
}
