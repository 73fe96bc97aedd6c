package alipay

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/url"
	"strings"
	"testing"

	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/payment"
	"github.com/carwash-next/internal/payment/signature"

	"github.com/shopspring/decimal"
)

func generateKeyPair(t *testing.T) (string, string) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key failed: %v", err)
	}
	privateDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		t.Fatalf("marshal private key failed: %v", err)
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key failed: %v", err)
	}
	privatePEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateDER}))
	publicPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER}))
	return privatePEM, publicPEM
}

func flatten(values url.Values) map[string]string {
	params := make(map[string]string, len(values))
	for key := range values {
		params[key] = values.Get(key)
	}
	return params
}

func TestCreatePaymentSignsPrecreateRequest(t *testing.T) {
	privatePEM, publicPEM := generateKeyPair(t)
	gateway := New(Config{
		AppID:      "2026000000000000",
		PrivateKey: privatePEM,
		SignType:   "rsa2",
		GatewayURL: "https://openapi.alipay.com/gateway.do",
		NotifyURL:  "https://example.com/api/v1/payments/callback/alipay",
	})

	result, err := gateway.CreatePayment(context.Background(), payment.CreateRequest{
		PaymentNo: "PAY1700000000000ABCDEF12",
		OrderNo:   "CW123",
		Amount:    decimal.RequireFromString("25"),
		Channel:   constants.PaymentChannelQR,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if result.Status != constants.PaymentStatusPending {
		t.Fatalf("expected pending, got %s", result.Status)
	}
	if !strings.HasPrefix(result.QRCode, "https://qr.alipay.com/") {
		t.Fatalf("unexpected qr code: %s", result.QRCode)
	}
	parsed, err := url.Parse(result.PayURL)
	if err != nil {
		t.Fatalf("parse pay url failed: %v", err)
	}
	if parsed.Host != "openapi.alipay.com" {
		t.Fatalf("unexpected gateway host: %s", parsed.Host)
	}
	params := flatten(parsed.Query())
	if params["method"] != "alipay.trade.precreate" || params["sign_type"] != "RSA2" {
		t.Fatalf("unexpected request params: %+v", params)
	}

	var biz map[string]string
	if err := json.Unmarshal([]byte(params["biz_content"]), &biz); err != nil {
		t.Fatalf("decode biz_content failed: %v", err)
	}
	if biz["total_amount"] != "25.00" || biz["subject"] != "洗车服务-CW123" || biz["timeout_express"] != "30m" {
		t.Fatalf("unexpected biz_content: %+v", biz)
	}

	verifier := signature.NewVerifier(signature.Config{AlipayPublicKey: publicPEM})
	if !verifier.Verify("alipay", params) {
		t.Fatalf("expected outbound request signature to verify")
	}
}

func TestCreatePaymentWithoutPrivateKeySkipsSign(t *testing.T) {
	gateway := New(Config{AppID: "2026000000000000"})
	result, err := gateway.CreatePayment(context.Background(), payment.CreateRequest{
		PaymentNo: "PAY1",
		OrderNo:   "CW1",
		Amount:    decimal.RequireFromString("9.90"),
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	parsed, err := url.Parse(result.PayURL)
	if err != nil {
		t.Fatalf("parse pay url failed: %v", err)
	}
	if parsed.Query().Get("sign") != "" {
		t.Fatalf("expected unsigned request")
	}
	if !strings.HasPrefix(result.PayURL, defaultGatewayURL) {
		t.Fatalf("expected default gateway url, got %s", result.PayURL)
	}
}

func TestRefundReturnsGatewayRefundNo(t *testing.T) {
	refund, err := New(Config{}).Refund(context.Background(), payment.RefundRequest{
		PaymentNo: "PAY1",
		Amount:    decimal.RequireFromString("1.00"),
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if !refund.Success || !strings.HasPrefix(refund.RefundNo, "RF") {
		t.Fatalf("unexpected refund: %+v", refund)
	}
}
