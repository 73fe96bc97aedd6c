package signature

import (
	"net/url"
	"sort"
	"strings"

	"github.com/carwash-next/internal/constants"
)

// Canonicalize 生成待签名串：忽略空值与排除字段，键按字典序，k=v 以 & 连接
// escape 为 true 时对值做 UTF-8 百分号编码。
func Canonicalize(params map[string]string, escape bool, excluded ...string) string {
	if len(params) == 0 {
		return ""
	}
	skip := make(map[string]struct{}, len(excluded))
	for _, key := range excluded {
		skip[key] = struct{}{}
	}
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if _, ok := skip[key]; ok {
			continue
		}
		if value == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for i, key := range keys {
		if i > 0 {
			builder.WriteByte('&')
		}
		value := params[key]
		if escape {
			value = url.QueryEscape(value)
		}
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(value)
	}
	return builder.String()
}

// WechatContent 微信待签名串（含 &key=API_KEY）
func WechatContent(params map[string]string, apiKey string) string {
	return Canonicalize(params, false, constants.CallbackFieldSign) + "&key=" + apiKey
}

// AlipayContent 支付宝待签名串
func AlipayContent(params map[string]string) string {
	return Canonicalize(params, true, constants.CallbackFieldSign, constants.CallbackFieldSignType)
}
