package signature

import (
	"crypto"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/carwash-next/internal/constants"
)

// ErrSignTypeUnsupported 不支持的签名类型
var ErrSignTypeUnsupported = errors.New("sign type unsupported")

// SignWechat 计算微信 MD5 签名（大写十六进制）
func SignWechat(params map[string]string, apiKey string) string {
	sum := md5.Sum([]byte(WechatContent(params, apiKey)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// SignAlipay 计算支付宝 RSA/RSA2 签名（base64）
func SignAlipay(params map[string]string, privateKey *rsa.PrivateKey, signType string) (string, error) {
	if privateKey == nil {
		return "", errors.New("alipay private key is nil")
	}
	hash, digest, err := alipayDigest(AlipayContent(params), signType)
	if err != nil {
		return "", err
	}
	signed, err := rsa.SignPKCS1v15(rand.Reader, privateKey, hash, digest)
	if err != nil {
		return "", fmt.Errorf("alipay sign failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(signed), nil
}

// NormalizeSignType 规范化签名类型，空值回退默认
func NormalizeSignType(raw string, fallback string) string {
	signType := strings.ToUpper(strings.TrimSpace(raw))
	if signType == "" {
		signType = strings.ToUpper(strings.TrimSpace(fallback))
	}
	if signType == "" {
		signType = constants.SignTypeRSA2
	}
	return signType
}

func alipayDigest(content string, signType string) (crypto.Hash, []byte, error) {
	switch NormalizeSignType(signType, constants.SignTypeRSA2) {
	case constants.SignTypeRSA2:
		sum := sha256.Sum256([]byte(content))
		return crypto.SHA256, sum[:], nil
	case constants.SignTypeRSA:
		sum := sha1.Sum([]byte(content))
		return crypto.SHA1, sum[:], nil
	default:
		return 0, nil, fmt.Errorf("%w: %s", ErrSignTypeUnsupported, signType)
	}
}

// decodeSignature 优先按 base64 解码，十六进制作为兜底候选
func decodeSignature(raw string) [][]byte {
	raw = strings.TrimSpace(raw)
	candidates := make([][]byte, 0, 2)
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		candidates = append(candidates, decoded)
	}
	if decoded, err := hex.DecodeString(raw); err == nil {
		candidates = append(candidates, decoded)
	}
	return candidates
}
