package signature

import (
	"crypto/rsa"
	"strings"

	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/logger"
	"github.com/carwash-next/internal/payment"
)

// Config 回调验签配置
type Config struct {
	WechatAPIKey    string
	AlipayPublicKey string
	AlipaySignType  string
	// VirtualEnabled 为 false 时不注册虚拟回调策略
	VirtualEnabled bool
}

// Strategy 单一协议的验签函数
type Strategy func(params map[string]string) bool

// Verifier 按支付方式选择验签策略，无状态且无副作用
type Verifier struct {
	strategies map[payment.Method]Strategy
}

// NewVerifier 创建验签器
// 公钥无法解析时支付宝策略恒为失败。
func NewVerifier(cfg Config) *Verifier {
	var alipayKey *rsa.PublicKey
	if strings.TrimSpace(cfg.AlipayPublicKey) != "" {
		key, err := payment.ParsePublicKey(cfg.AlipayPublicKey)
		if err != nil {
			logger.Warnw("signature_alipay_public_key_invalid", "error", err)
		} else {
			alipayKey = key
		}
	}
	strategies := map[payment.Method]Strategy{
		payment.MethodWechat: wechatStrategy(cfg.WechatAPIKey),
		payment.MethodAlipay: alipayStrategy(alipayKey, cfg.AlipaySignType),
	}
	if cfg.VirtualEnabled {
		strategies[payment.MethodVirtual] = func(map[string]string) bool { return true }
	}
	return &Verifier{strategies: strategies}
}

// Verify 校验回调参数签名，未知支付方式一律失败
func (v *Verifier) Verify(method string, params map[string]string) bool {
	if v == nil {
		return false
	}
	parsed, ok := payment.ParseMethod(method)
	if !ok {
		return false
	}
	strategy, ok := v.strategies[parsed]
	if !ok {
		return false
	}
	return strategy(params)
}

func wechatStrategy(apiKey string) Strategy {
	return func(params map[string]string) bool {
		provided := strings.TrimSpace(params[constants.CallbackFieldSign])
		if provided == "" || apiKey == "" {
			return false
		}
		return strings.EqualFold(SignWechat(params, apiKey), provided)
	}
}

func alipayStrategy(publicKey *rsa.PublicKey, defaultSignType string) Strategy {
	return func(params map[string]string) bool {
		provided := strings.TrimSpace(params[constants.CallbackFieldSign])
		if provided == "" || publicKey == nil {
			return false
		}
		hash, digest, err := alipayDigest(AlipayContent(params), NormalizeSignType(params[constants.CallbackFieldSignType], defaultSignType))
		if err != nil {
			return false
		}
		for _, signed := range decodeSignature(provided) {
			if rsa.VerifyPKCS1v15(publicKey, hash, digest, signed) == nil {
				return true
			}
		}
		return false
	}
}
