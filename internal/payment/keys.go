package payment

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/wechatpay-apiv3/wechatpay-go/utils"
)

var (
	ErrPrivateKeyInvalid = errors.New("rsa private key invalid")
	ErrPublicKeyInvalid  = errors.New("rsa public key invalid")
)

// ParsePrivateKey 解析 PEM 或裸 base64 的 RSA 私钥，支持 PKCS8 与 PKCS1
func ParsePrivateKey(raw string) (*rsa.PrivateKey, error) {
	normalized := normalizePEM(raw, "PRIVATE KEY")
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty", ErrPrivateKeyInvalid)
	}
	if key, err := utils.LoadPrivateKey(normalized); err == nil {
		return key, nil
	}
	block, _ := pem.Decode([]byte(normalized))
	if block == nil {
		return nil, fmt.Errorf("%w: pem decode failed", ErrPrivateKeyInvalid)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrivateKeyInvalid, err)
	}
	return key, nil
}

// ParsePublicKey 解析 PEM 或裸 base64 的 RSA 公钥，支持 PKIX 与 PKCS1
func ParsePublicKey(raw string) (*rsa.PublicKey, error) {
	normalized := normalizePEM(raw, "PUBLIC KEY")
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty", ErrPublicKeyInvalid)
	}
	if key, err := utils.LoadPublicKey(normalized); err == nil {
		return key, nil
	}
	block, _ := pem.Decode([]byte(normalized))
	if block == nil {
		return nil, fmt.Errorf("%w: pem decode failed", ErrPublicKeyInvalid)
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPublicKeyInvalid, err)
	}
	return key, nil
}

func normalizePEM(raw string, blockType string) string {
	normalized := strings.TrimSpace(strings.ReplaceAll(raw, "\\n", "\n"))
	if normalized == "" {
		return ""
	}
	if !strings.Contains(normalized, "BEGIN") {
		normalized = "-----BEGIN " + blockType + "-----\n" + normalized + "\n-----END " + blockType + "-----"
	}
	return normalized
}
