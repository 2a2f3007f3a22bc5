package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// 币安客户端订单ID限制：最长36字符，字符集 [a-zA-Z0-9-_.:]
const maxClientOrderIDLen = 36

// GenerateClientOrderID 生成客户端订单ID
// 格式: tp-<策略缩写>-<uuid前缀>，用于在交易所侧关联本地订单记录
func GenerateClientOrderID(strategy string) string {
	abbr := strategyAbbr(strategy)
	id := fmt.Sprintf("tp-%s-%s", abbr, uuid.NewString())
	if len(id) > maxClientOrderIDLen {
		id = id[:maxClientOrderIDLen]
	}
	return id
}

// ParseClientOrderID 解析客户端订单ID中的策略缩写
// 返回 (策略缩写, 是否为本系统生成的ID)
func ParseClientOrderID(clientOID string) (string, bool) {
	if !strings.HasPrefix(clientOID, "tp-") {
		return "", false
	}
	parts := strings.SplitN(clientOID, "-", 3)
	if len(parts) < 3 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// strategyAbbr 策略名缩写（取各单词首字母，限制4字符）
func strategyAbbr(strategy string) string {
	strategy = strings.TrimSpace(strategy)
	if strategy == "" {
		return "x"
	}
	words := strings.FieldsFunc(strategy, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	})
	var b strings.Builder
	for _, w := range words {
		b.WriteByte(w[0])
	}
	abbr := strings.ToLower(b.String())
	if len(abbr) > 4 {
		abbr = abbr[:4]
	}
	return abbr
}
