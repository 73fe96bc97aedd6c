package public

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/carwash-next/internal/audit"
	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/http/response"
	"github.com/carwash-next/internal/models"
	"github.com/carwash-next/internal/payment"
	"github.com/carwash-next/internal/payment/signature"
	"github.com/carwash-next/internal/payment/virtual"
	"github.com/carwash-next/internal/payment/wechat"
	"github.com/carwash-next/internal/provider"
	"github.com/carwash-next/internal/repository"
	"github.com/carwash-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	testUserID       uint = 11
	testWechatAPIKey      = "wechat-handler-key"
)

type apiResponse struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

func setupPublicHandlerTest(t *testing.T) (*Handler, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:public_payment_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := models.MigrateAll(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	auditRepo := repository.NewPaymentAuditRepository(db)
	paymentService := service.NewPaymentService(service.PaymentServiceOptions{
		PaymentRepo: repository.NewPaymentRepository(db),
		RefundRepo:  repository.NewRefundRepository(db),
		AuditRepo:   auditRepo,
		BookingRepo: repository.NewBookingRepository(db),
		Registry:    payment.NewRegistry(virtual.New(), wechat.New(wechat.Config{APIKey: testWechatAPIKey})),
		Verifier:    signature.NewVerifier(signature.Config{WechatAPIKey: testWechatAPIKey, VirtualEnabled: true}),
		Audit:       audit.NewRepositoryWriter(auditRepo),
	})
	return &Handler{Container: &provider.Container{PaymentService: paymentService}}, db
}

func seedConfirmedBooking(t *testing.T, db *gorm.DB, orderNo string, paymentStatus string) {
	t.Helper()
	booking := &models.Booking{
		OrderNo:       orderNo,
		UserID:        testUserID,
		ServiceName:   "标准洗车",
		CarNumber:     "沪A88888",
		TotalPrice:    models.MustMoney("25.00"),
		Status:        constants.BookingStatusConfirmed,
		PaymentStatus: paymentStatus,
	}
	if err := db.Create(booking).Error; err != nil {
		t.Fatalf("seed booking failed: %v", err)
	}
}

func newUserEngine(h *Handler, userID uint) *gin.Engine {
	r := gin.New()
	authed := r.Group("/api/v1")
	authed.Use(func(c *gin.Context) {
		if userID != 0 {
			c.Set("user_id", userID)
		}
		c.Next()
	})
	authed.POST("/payments", h.CreatePayment)
	authed.GET("/payments/:paymentNo/status", h.GetPaymentStatus)
	authed.GET("/payments/order/:orderNo", h.GetPaymentByOrder)
	authed.GET("/payments/mine", h.ListMyPayments)
	r.GET("/api/v1/payments/security/public-key", h.GetSecurityPublicKey)
	r.POST("/api/v1/payments/callback/wechat", h.WechatCallback)
	r.POST("/api/v1/payments/callback/alipay", h.AlipayCallback)
	r.POST("/api/v1/payments/callback/virtual", h.VirtualCallback)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) apiResponse {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected http status %d", w.Code)
	}
	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response failed: %v body=%s", err, w.Body.String())
	}
	return resp
}

func createVirtualPayment(t *testing.T, r *gin.Engine, orderNo string) service.PaymentResponse {
	t.Helper()
	return createPayment(t, r, orderNo, constants.PaymentMethodVirtual, constants.PaymentChannelH5)
}

func createPayment(t *testing.T, r *gin.Engine, orderNo, method, channel string) service.PaymentResponse {
	t.Helper()
	resp := doJSON(t, r, http.MethodPost, "/api/v1/payments", gin.H{
		"order_no":       orderNo,
		"amount":         "25.00",
		"payment_method": method,
		"channel":        channel,
	})
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("create payment failed: code=%d msg=%s", resp.StatusCode, resp.Msg)
	}
	var created service.PaymentResponse
	if err := json.Unmarshal(resp.Data, &created); err != nil {
		t.Fatalf("decode payment failed: %v", err)
	}
	return created
}

func TestCreatePaymentThenQueryStatus(t *testing.T) {
	h, db := setupPublicHandlerTest(t)
	seedConfirmedBooking(t, db, "CW123", constants.BookingPaymentStatusUnpaid)
	r := newUserEngine(h, testUserID)

	created := createVirtualPayment(t, r, "CW123")
	if created.Status != constants.PaymentStatusPending || created.PayURL == "" || created.QRCode != "" {
		t.Fatalf("unexpected created payment: %+v", created)
	}
	if !created.Amount.Decimal.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("unexpected amount: %s", created.Amount.String())
	}

	resp := doJSON(t, r, http.MethodGet, "/api/v1/payments/"+created.PaymentNo+"/status", nil)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("query status failed: code=%d msg=%s", resp.StatusCode, resp.Msg)
	}
	var queried service.PaymentResponse
	if err := json.Unmarshal(resp.Data, &queried); err != nil {
		t.Fatalf("decode query failed: %v", err)
	}
	if queried.Status != constants.PaymentStatusPaid || queried.TransactionID == "" {
		t.Fatalf("expected paid with transaction id, got %+v", queried)
	}

	resp = doJSON(t, r, http.MethodGet, "/api/v1/payments/order/CW123", nil)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("get by order failed: code=%d", resp.StatusCode)
	}
	resp = doJSON(t, r, http.MethodGet, "/api/v1/payments/mine?page=1&page_size=10", nil)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("list mine failed: code=%d", resp.StatusCode)
	}
}

func TestCreatePaymentMapsBusinessErrors(t *testing.T) {
	h, db := setupPublicHandlerTest(t)
	seedConfirmedBooking(t, db, "CW-PAID", constants.BookingPaymentStatusPaid)
	r := newUserEngine(h, testUserID)

	cases := []struct {
		name string
		body gin.H
		code int
	}{
		{
			name: "missing order",
			body: gin.H{"order_no": "CW-NONE", "amount": "10", "payment_method": "virtual"},
			code: response.CodeOrderNotFound,
		},
		{
			name: "already paid",
			body: gin.H{"order_no": "CW-PAID", "amount": "10", "payment_method": "virtual"},
			code: response.CodeOrderAlreadyPaid,
		},
		{
			name: "amount too small",
			body: gin.H{"order_no": "CW-PAID", "amount": "0.001", "payment_method": "virtual"},
			code: response.CodeBadRequest,
		},
		{
			name: "unknown method",
			body: gin.H{"order_no": "CW-PAID", "amount": "10", "payment_method": "paypal"},
			code: response.CodeBadRequest,
		},
		{
			name: "card without payload",
			body: gin.H{"order_no": "CW-PAID", "amount": "10", "payment_method": "credit_card"},
			code: response.CodeBadRequest,
		},
	}
	for _, tc := range cases {
		resp := doJSON(t, r, http.MethodPost, "/api/v1/payments", tc.body)
		if resp.StatusCode != tc.code {
			t.Fatalf("%s: want code %d, got %d (%s)", tc.name, tc.code, resp.StatusCode, resp.Msg)
		}
	}
}

func TestPaymentEndpointsRequireOwner(t *testing.T) {
	h, db := setupPublicHandlerTest(t)
	seedConfirmedBooking(t, db, "CW200", constants.BookingPaymentStatusUnpaid)
	created := createVirtualPayment(t, newUserEngine(h, testUserID), "CW200")

	other := newUserEngine(h, testUserID+1)
	resp := doJSON(t, other, http.MethodGet, "/api/v1/payments/"+created.PaymentNo+"/status", nil)
	if resp.StatusCode != response.CodePermissionDenied {
		t.Fatalf("expected permission denied, got %d", resp.StatusCode)
	}
	resp = doJSON(t, other, http.MethodGet, "/api/v1/payments/order/CW200", nil)
	if resp.StatusCode != response.CodePermissionDenied {
		t.Fatalf("expected permission denied by order, got %d", resp.StatusCode)
	}

	anonymous := newUserEngine(h, 0)
	resp = doJSON(t, anonymous, http.MethodGet, "/api/v1/payments/mine", nil)
	if resp.StatusCode != response.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %d", resp.StatusCode)
	}
}

func TestSecurityPublicKeyUnavailable(t *testing.T) {
	h, _ := setupPublicHandlerTest(t)
	resp := doJSON(t, newUserEngine(h, 0), http.MethodGet, "/api/v1/payments/security/public-key", nil)
	if resp.StatusCode != response.CodeInternal {
		t.Fatalf("expected internal error without key, got %d", resp.StatusCode)
	}
}

func wechatNotifyXML(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var builder strings.Builder
	builder.WriteString("<xml>")
	for _, key := range keys {
		builder.WriteString("<" + key + "><![CDATA[" + params[key] + "]]></" + key + ">")
	}
	builder.WriteString("</xml>")
	return builder.String()
}

func TestWechatCallbackMarksPaid(t *testing.T) {
	h, db := setupPublicHandlerTest(t)
	seedConfirmedBooking(t, db, "CW300", constants.BookingPaymentStatusUnpaid)
	r := newUserEngine(h, testUserID)
	created := createPayment(t, r, "CW300", constants.PaymentMethodWechat, constants.PaymentChannelQR)
	if created.QRCode == "" {
		t.Fatalf("expected wechat qr code, got %+v", created)
	}

	params := map[string]string{
		"return_code":    "SUCCESS",
		"result_code":    "SUCCESS",
		"out_trade_no":   created.PaymentNo,
		"transaction_id": "4200000001202610160001",
		"total_fee":      "2500",
		"nonce_str":      "n0nce",
	}
	params["sign"] = signature.SignWechat(params, testWechatAPIKey)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback/wechat", strings.NewReader(wechatNotifyXML(params)))
	req.Header.Set("Content-Type", "text/xml")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := strings.TrimSpace(w.Body.String()); got != constants.WechatCallbackSuccess {
		t.Fatalf("expected success ack, got %q", got)
	}

	paid, err := h.PaymentService.GetPayment(created.PaymentNo)
	if err != nil {
		t.Fatalf("load payment failed: %v", err)
	}
	if paid.Status != constants.PaymentStatusPaid || paid.TransactionID != "4200000001202610160001" {
		t.Fatalf("unexpected payment after callback: status=%s tx=%s", paid.Status, paid.TransactionID)
	}

	params["total_fee"] = "1"
	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback/wechat", strings.NewReader(wechatNotifyXML(params)))
	req.Header.Set("Content-Type", "text/xml")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := strings.TrimSpace(w.Body.String()); got != constants.WechatCallbackFail {
		t.Fatalf("expected tampered callback to fail, got %q", got)
	}
}

func TestPlainCallbacksAck(t *testing.T) {
	h, db := setupPublicHandlerTest(t)
	seedConfirmedBooking(t, db, "CW400", constants.BookingPaymentStatusUnpaid)
	r := newUserEngine(h, testUserID)
	created := createVirtualPayment(t, r, "CW400")

	postForm := func(path string, form url.Values) string {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return strings.TrimSpace(w.Body.String())
	}

	unsigned := url.Values{"out_trade_no": {created.PaymentNo}, "trade_no": {"2026101622001"}}
	if got := postForm("/api/v1/payments/callback/alipay", unsigned); got != constants.AlipayCallbackFail {
		t.Fatalf("expected unsigned alipay callback to fail, got %q", got)
	}
	if got := postForm("/api/v1/payments/callback/virtual", url.Values{"out_trade_no": {"PAY-MISSING"}}); got != constants.VirtualCallbackFail {
		t.Fatalf("expected unknown payment to fail, got %q", got)
	}
	virtualForm := url.Values{"out_trade_no": {created.PaymentNo}, "transaction_id": {"VTX-1"}}
	if got := postForm("/api/v1/payments/callback/virtual", virtualForm); got != constants.VirtualCallbackSuccess {
		t.Fatalf("expected virtual callback ok, got %q", got)
	}
	if got := postForm("/api/v1/payments/callback/virtual", virtualForm); got != constants.VirtualCallbackSuccess {
		t.Fatalf("expected duplicate virtual callback ok, got %q", got)
	}

	p, err := h.PaymentService.GetPayment(created.PaymentNo)
	if err != nil {
		t.Fatalf("load payment failed: %v", err)
	}
	if p.Status != constants.PaymentStatusPaid || p.NotifyCount != 2 {
		t.Fatalf("unexpected payment: status=%s notify=%d", p.Status, p.NotifyCount)
	}
	if _, err := h.PaymentService.QueryPaymentStatus(context.Background(), created.PaymentNo); err != nil {
		t.Fatalf("query after callback failed: %v", err)
	}
}

func TestParseCallbackFormMergesQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := strings.NewReader("out_trade_no=PAY-POST&trade_status=TRADE_SUCCESS&sign=abc")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback/alipay?source=query&out_trade_no=PAY-QUERY", body)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.Request = req

	form, err := parseCallbackForm(c)
	if err != nil {
		t.Fatalf("parse callback form failed: %v", err)
	}
	params := flattenCallbackForm(form)
	if params["out_trade_no"] != "PAY-POST" {
		t.Fatalf("form body should win over query, got %s", params["out_trade_no"])
	}
	if params["source"] != "query" || params["trade_status"] != "TRADE_SUCCESS" {
		t.Fatalf("expected form and query merged, got %+v", params)
	}
}

func TestVirtualCallbackWithQueryParams(t *testing.T) {
	h, db := setupPublicHandlerTest(t)
	seedConfirmedBooking(t, db, "CW410", constants.BookingPaymentStatusUnpaid)
	r := newUserEngine(h, testUserID)
	created := createVirtualPayment(t, r, "CW410")

	path := "/api/v1/payments/callback/virtual?out_trade_no=" + url.QueryEscape(created.PaymentNo)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("transaction_id=VTX-Q"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := strings.TrimSpace(w.Body.String()); got != constants.VirtualCallbackSuccess {
		t.Fatalf("expected virtual callback ok, got %q", got)
	}
	p, err := h.PaymentService.GetPayment(created.PaymentNo)
	if err != nil {
		t.Fatalf("load payment failed: %v", err)
	}
	if p.Status != constants.PaymentStatusPaid || p.TransactionID != "VTX-Q" {
		t.Fatalf("unexpected payment: status=%s tx=%s", p.Status, p.TransactionID)
	}
}
