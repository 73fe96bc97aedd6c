package creditcard

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/logger"
	"github.com/carwash-next/internal/payment"
)

var (
	ErrPayloadMissing   = errors.New("secure payload missing")
	ErrPayloadDecrypt   = errors.New("secure payload decrypt failed")
	ErrPrivateKeyAbsent = errors.New("card private key not configured")
)

var (
	expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)
	cvvPattern    = regexp.MustCompile(`^[0-9]{3,4}$`)
)

const (
	chargeURL      = "card://charge"
	refundNoPrefix = "RF"
)

// Config 卡支付配置，PrivateKey 用于解密客户端载荷
type Config struct {
	PrivateKey string
}

// CardData 客户端加密提交的卡信息，只在内存中存在
type CardData struct {
	CardNumber string `json:"cardNumber"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
	CardHolder string `json:"cardHolder"`
}

// charge 模拟扣款结果，只保留流水号与状态
type charge struct {
	status        string
	transactionID string
}

// Gateway 信用卡网关（模拟扣款），不落库任何卡数据
// 只有校验通过的流水在查单时返回 paid。
type Gateway struct {
	privateKey *rsa.PrivateKey
	now        func() time.Time

	mu      sync.Mutex
	charges map[string]charge
}

// New 创建信用卡网关
func New(cfg Config) *Gateway {
	gateway := &Gateway{now: time.Now, charges: make(map[string]charge)}
	if strings.TrimSpace(cfg.PrivateKey) != "" {
		key, err := payment.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			logger.Warnw("creditcard_private_key_invalid", "error", err)
		} else {
			gateway.privateKey = key
		}
	}
	return gateway
}

// Method 实现 payment.Gateway
func (g *Gateway) Method() payment.Method {
	return payment.MethodCreditCard
}

// CreatePayment 解密并校验卡信息，校验失败返回 failed 状态
func (g *Gateway) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	card, err := g.Decrypt(req.SecurePayload)
	if err != nil {
		logger.SW("payment_no", req.PaymentNo, "error", err).Warnw("creditcard_payload_rejected")
		g.decline(req.PaymentNo)
		return failed(payloadMessage(err)), nil
	}
	if message := Validate(card); message != "" {
		logger.SW("payment_no", req.PaymentNo, "card", MaskPAN(card.CardNumber), "reason", message).Warnw("creditcard_validation_failed")
		g.decline(req.PaymentNo)
		return failed(message), nil
	}
	logger.SW("payment_no", req.PaymentNo, "card", MaskPAN(card.CardNumber)).Infow("creditcard_validated")
	g.accept(req.PaymentNo)
	return &payment.CreateResult{
		Status:  constants.PaymentStatusPending,
		PayURL:  chargeURL,
		Message: "卡信息验证通过，等待扣款",
	}, nil
}

// QueryPayment 模拟查单：校验通过的流水视为已扣款，被拒的返回 failed，未提交过卡信息的返回 pending
func (g *Gateway) QueryPayment(ctx context.Context, paymentNo string) (*payment.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	record, ok := g.charges[paymentNo]
	g.mu.Unlock()
	if !ok {
		return &payment.QueryResult{Status: constants.PaymentStatusPending, Message: "未提交卡信息"}, nil
	}
	if record.status != constants.PaymentStatusPaid {
		return &payment.QueryResult{Status: record.status, Message: "卡信息校验未通过"}, nil
	}
	return &payment.QueryResult{
		Status:        constants.PaymentStatusPaid,
		TransactionID: record.transactionID,
		Message:       "支付成功",
	}, nil
}

func (g *Gateway) accept(paymentNo string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if record, ok := g.charges[paymentNo]; ok && record.status == constants.PaymentStatusPaid {
		return
	}
	g.charges[paymentNo] = charge{
		status:        constants.PaymentStatusPaid,
		transactionID: payment.MillisID("CARD", g.now()),
	}
}

// decline 已扣款的流水不会被后续失败的提交覆盖
func (g *Gateway) decline(paymentNo string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if record, ok := g.charges[paymentNo]; ok && record.status == constants.PaymentStatusPaid {
		return
	}
	g.charges[paymentNo] = charge{status: constants.PaymentStatusFailed}
}

// Refund 模拟退款：总是受理成功
func (g *Gateway) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &payment.RefundResult{
		Success:  true,
		RefundNo: payment.GatewayRefundNo(refundNoPrefix, g.now()),
		Status:   constants.RefundStatusSuccess,
		Message:  "信用卡退款受理成功",
	}, nil
}

// Decrypt 以 RSA-OAEP(SHA-256) 解密 base64 载荷
func (g *Gateway) Decrypt(securePayload string) (*CardData, error) {
	securePayload = strings.TrimSpace(securePayload)
	if securePayload == "" {
		return nil, ErrPayloadMissing
	}
	if g.privateKey == nil {
		return nil, ErrPrivateKeyAbsent
	}
	cipherText, err := base64.StdEncoding.DecodeString(securePayload)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode", ErrPayloadDecrypt)
	}
	plain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, g.privateKey, cipherText, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: oaep", ErrPayloadDecrypt)
	}
	var card CardData
	if err := json.Unmarshal(plain, &card); err != nil {
		return nil, fmt.Errorf("%w: json", ErrPayloadDecrypt)
	}
	return &card, nil
}

// Validate 返回首个校验失败原因，全部通过返回空串
// 有效期只校验格式，不与当前日期比较。
func Validate(card *CardData) string {
	if card == nil {
		return "卡信息为空"
	}
	if !LuhnValid(card.CardNumber) {
		return "信用卡号校验失败"
	}
	if !expiryPattern.MatchString(strings.TrimSpace(card.Expiry)) {
		return "有效期格式错误"
	}
	if !cvvPattern.MatchString(strings.TrimSpace(card.CVV)) {
		return "CVV格式错误"
	}
	if strings.TrimSpace(card.CardHolder) == "" {
		return "持卡人姓名不能为空"
	}
	return ""
}

// LuhnValid 校验 12-19 位卡号的 Luhn 校验和，非数字字符忽略
func LuhnValid(pan string) bool {
	digits := onlyDigits(pan)
	if len(digits) < 12 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		n := int(digits[i] - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}

// MaskPAN 卡号脱敏，仅保留后四位
func MaskPAN(pan string) string {
	digits := onlyDigits(pan)
	if len(digits) < 4 {
		return "****"
	}
	return "**** **** **** " + digits[len(digits)-4:]
}

func onlyDigits(raw string) string {
	var builder strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

func failed(message string) *payment.CreateResult {
	return &payment.CreateResult{
		Status:  constants.PaymentStatusFailed,
		Message: message,
	}
}

func payloadMessage(err error) string {
	switch {
	case errors.Is(err, ErrPayloadMissing):
		return "缺少安全支付载荷"
	case errors.Is(err, ErrPrivateKeyAbsent):
		return "卡支付密钥未配置"
	default:
		return "安全支付载荷解密失败"
	}
}
