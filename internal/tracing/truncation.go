package tracing

import (
	"strings"
)

// span 属性长度上限，超出部分保留首尾
const (
	MaxAttributeLength = 120
	MaxErrorLength     = 300
	MaxSQLLength       = 500
	MaxPromptLength    = 120 // 提示词里带着简历原文
)

// piiKeywords 属性名包含这些词时整体掩码
var piiKeywords = []string{
	"name", "姓名",
	"email", "邮箱",
	"phone", "电话", "手机",
	"address", "地址",
	"id_card", "身份证",
	"password", "secret", "token", "api_key",
}

func isPIIAttribute(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range piiKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SafeAttributeValue 敏感属性掩码，其余超长截断
func SafeAttributeValue(name string, value string, maxLength int) string {
	if isPIIAttribute(name) {
		return MaskPII(value)
	}
	return TruncateString(value, maxLength)
}

// MaskPII 只保留首尾字符。
// 两个字保留首字（张三 -> 张*），不超过四个字保留首尾各一，更长的保留首尾各二。
func MaskPII(value string) string {
	runes := []rune(value)
	n := len(runes)
	keep := 2
	switch {
	case n == 0:
		return ""
	case n == 1:
		return "*"
	case n == 2:
		return string(runes[0]) + "*"
	case n <= 4:
		keep = 1
	}
	return string(runes[:keep]) + strings.Repeat("*", n-2*keep) + string(runes[n-keep:])
}

// TruncateString 按 rune 截断，中间用 ... 连接首尾
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}
	half := max((maxLength-3)/2, 1)
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

// SafeSQL 截断 SQL
func SafeSQL(sql string) string {
	return TruncateString(sql, MaxSQLLength)
}

// SafePrompt 截断提示词
func SafePrompt(prompt string) string {
	return TruncateString(prompt, MaxPromptLength)
}
