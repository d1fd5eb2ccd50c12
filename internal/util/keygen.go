package util

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// 密钥字符表，去掉容易混淆的 0/O/1/I
const keyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	keyBlockLen   = 5
	keyBlockCount = 4
	keyRawLen     = keyBlockLen * keyBlockCount
)

// GenerateKeyString 生成 XXXXX-XXXXX-XXXXX-XXXXX 格式的许可证密钥。
// 只负责产生随机串，唯一性由调用方查库重试保证
func GenerateKeyString() string {
	buf := make([]byte, keyRawLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand 失败说明系统熵源不可用，无法继续
		panic("密钥随机源不可用: " + err.Error())
	}

	chars := make([]byte, keyRawLen)
	for i, b := range buf {
		chars[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}

	return FormatKey(string(chars))
}

// NormalizeKey 归一化密钥用于比较：去空白、转大写、去分隔符
func NormalizeKey(input string) string {
	s := strings.ToUpper(strings.TrimSpace(input))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// IsValidKeyFormat 检查归一化后的密钥格式
func IsValidKeyFormat(s string) bool {
	norm := NormalizeKey(s)
	if len(norm) != keyRawLen {
		return false
	}
	for _, c := range norm {
		if !strings.ContainsRune(keyAlphabet, c) {
			return false
		}
	}
	return true
}

// FormatKey 把归一化密钥还原成带分隔符的展示格式
func FormatKey(normalized string) string {
	norm := NormalizeKey(normalized)
	if len(norm) != keyRawLen {
		return norm
	}
	blocks := make([]string, 0, keyBlockCount)
	for i := 0; i < keyRawLen; i += keyBlockLen {
		blocks = append(blocks, norm[i:i+keyBlockLen])
	}
	return strings.Join(blocks, "-")
}

// GenerateSessionToken 生成免费密钥会话令牌
func GenerateSessionToken() string {
	return uuid.NewString()
}

// GenerateOrderCode 生成订单号
func GenerateOrderCode() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

// GenerateResellerApiKey 生成 rsk_ 前缀的经销商 API 凭证
func GenerateResellerApiKey() string {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		panic("密钥随机源不可用: " + err.Error())
	}
	return "rsk_" + hex.EncodeToString(buf)
}
