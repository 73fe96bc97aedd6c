package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/carwash-next/internal/audit"
	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/models"
	"github.com/carwash-next/internal/monitor"
	"github.com/carwash-next/internal/payment"
	"github.com/carwash-next/internal/payment/creditcard"
	"github.com/carwash-next/internal/payment/signature"
	"github.com/carwash-next/internal/payment/virtual"
	"github.com/carwash-next/internal/payment/wechat"
	"github.com/carwash-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const testUserID uint = 7

type paymentTestEnv struct {
	svc     *PaymentService
	db      *gorm.DB
	counter *monitor.Counter
}

func setupPaymentServiceTest(t *testing.T, gateways ...payment.Gateway) *paymentTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	if len(gateways) == 0 {
		gateways = []payment.Gateway{virtual.New()}
	}
	counter := monitor.NewCounter()
	auditRepo := repository.NewPaymentAuditRepository(db)
	svc := NewPaymentService(PaymentServiceOptions{
		PaymentRepo: repository.NewPaymentRepository(db),
		RefundRepo:  repository.NewRefundRepository(db),
		AuditRepo:   auditRepo,
		BookingRepo: repository.NewBookingRepository(db),
		Registry:    payment.NewRegistry(gateways...),
		Verifier:    signature.NewVerifier(signature.Config{WechatAPIKey: "wechat-test-key", VirtualEnabled: true}),
		Audit:       audit.NewRepositoryWriter(auditRepo),
		Monitor:     counter,
	})
	return &paymentTestEnv{svc: svc, db: db, counter: counter}
}

func (e *paymentTestEnv) seedBooking(t *testing.T, orderNo, status, paymentStatus string) {
	t.Helper()
	booking := &models.Booking{
		OrderNo:       orderNo,
		UserID:        testUserID,
		ServiceName:   "精洗",
		CarNumber:     "粤B12345",
		TotalPrice:    models.MustMoney("25.00"),
		Status:        status,
		PaymentStatus: paymentStatus,
	}
	if err := e.db.Create(booking).Error; err != nil {
		t.Fatalf("seed booking failed: %v", err)
	}
}

func (e *paymentTestEnv) booking(t *testing.T, orderNo string) *models.Booking {
	t.Helper()
	var booking models.Booking
	if err := e.db.Where("order_no = ?", orderNo).First(&booking).Error; err != nil {
		t.Fatalf("load booking failed: %v", err)
	}
	return &booking
}

func (e *paymentTestEnv) payment(t *testing.T, paymentNo string) *models.Payment {
	t.Helper()
	var p models.Payment
	if err := e.db.Where("payment_no = ?", paymentNo).First(&p).Error; err != nil {
		t.Fatalf("load payment failed: %v", err)
	}
	return &p
}

func (e *paymentTestEnv) auditEvents(t *testing.T, paymentNo string) []string {
	t.Helper()
	var audits []models.PaymentAudit
	if err := e.db.Where("payment_no = ?", paymentNo).Order("id asc").Find(&audits).Error; err != nil {
		t.Fatalf("load audits failed: %v", err)
	}
	events := make([]string, 0, len(audits))
	for _, item := range audits {
		events = append(events, item.EventType)
	}
	return events
}

func virtualInput(orderNo, amount string) CreatePaymentInput {
	return CreatePaymentInput{
		OrderNo:       orderNo,
		Amount:        decimal.RequireFromString(amount),
		PaymentMethod: constants.PaymentMethodVirtual,
		Channel:       constants.PaymentChannelH5,
		UserID:        testUserID,
	}
}

func (e *paymentTestEnv) paidPayment(t *testing.T, orderNo string) string {
	t.Helper()
	e.seedBooking(t, orderNo, constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)
	resp, err := e.svc.CreatePayment(context.Background(), virtualInput(orderNo, "25.00"))
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	ok := e.svc.HandleCallback(context.Background(), "virtual", map[string]string{
		constants.CallbackFieldOutTradeNo:    resp.PaymentNo,
		constants.CallbackFieldTransactionID: "TX-" + orderNo,
	})
	if !ok {
		t.Fatalf("expected callback to succeed")
	}
	return resp.PaymentNo
}

func TestVirtualPaymentEndToEnd(t *testing.T) {
	env := setupPaymentServiceTest(t)
	env.seedBooking(t, "CW123", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)

	resp, err := env.svc.CreatePayment(context.Background(), virtualInput("CW123", "25.00"))
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	if resp.Status != constants.PaymentStatusPending {
		t.Fatalf("expected pending, got %s", resp.Status)
	}
	if resp.PayURL == "" || resp.QRCode != "" {
		t.Fatalf("expected h5 pay url only, got %+v", resp)
	}
	if !resp.Amount.Decimal.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("unexpected amount: %s", resp.Amount.String())
	}
	if resp.ExpireAt.Sub(time.Now()) < 29*time.Minute {
		t.Fatalf("expected expire at about 30 minutes later, got %v", resp.ExpireAt)
	}

	queried, err := env.svc.QueryPaymentStatus(context.Background(), resp.PaymentNo)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if queried.Status != constants.PaymentStatusPaid || queried.TransactionID == "" || queried.PaidAt == nil {
		t.Fatalf("expected paid with transaction id, got %+v", queried)
	}

	booking := env.booking(t, "CW123")
	if booking.PaymentStatus != constants.BookingPaymentStatusPaid || booking.PaymentMethod != constants.PaymentMethodVirtual || booking.PaidAt == nil {
		t.Fatalf("expected booking paid, got %+v", booking)
	}

	events := env.auditEvents(t, resp.PaymentNo)
	want := []string{
		constants.AuditEventCreate,
		constants.AuditEventCallGateway,
		constants.AuditEventQueryStatus,
		constants.AuditEventStatusChange,
	}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Fatalf("unexpected audit trail: %v", events)
	}

	snapshot := env.counter.Snapshot()
	if snapshot.Creates != 1 || snapshot.Queries != 1 || snapshot.Failures != 0 {
		t.Fatalf("unexpected counters: %+v", snapshot)
	}
}

func TestCreatePaymentReusesPendingIntent(t *testing.T) {
	env := setupPaymentServiceTest(t)
	env.seedBooking(t, "CW200", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)

	first, err := env.svc.CreatePayment(context.Background(), virtualInput("CW200", "25.00"))
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	second, err := env.svc.CreatePayment(context.Background(), virtualInput("CW200", "25.00"))
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if first.PaymentNo != second.PaymentNo {
		t.Fatalf("expected same payment, got %s and %s", first.PaymentNo, second.PaymentNo)
	}
	if second.PayURL != first.PayURL {
		t.Fatalf("expected reused pay url, got %q", second.PayURL)
	}

	var count int64
	if err := env.db.Model(&models.Payment{}).Where("order_no = ?", "CW200").Count(&count).Error; err != nil {
		t.Fatalf("count payments failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single intent, got %d", count)
	}
}

func TestCreatePaymentOrderChecks(t *testing.T) {
	env := setupPaymentServiceTest(t)
	env.seedBooking(t, "CW301", constants.BookingStatusPending, constants.BookingPaymentStatusUnpaid)
	env.seedBooking(t, "CW302", constants.BookingStatusConfirmed, constants.BookingPaymentStatusPaid)
	env.seedBooking(t, "CW303", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)

	cases := []struct {
		name  string
		input CreatePaymentInput
		want  error
	}{
		{name: "missing order", input: virtualInput("CW999", "25.00"), want: ErrOrderNotFound},
		{name: "not confirmed", input: virtualInput("CW301", "25.00"), want: ErrOrderStatusInvalid},
		{name: "already paid", input: virtualInput("CW302", "25.00"), want: ErrOrderAlreadyPaid},
	}
	for _, tc := range cases {
		if _, err := env.svc.CreatePayment(context.Background(), tc.input); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	other := virtualInput("CW303", "25.00")
	other.UserID = 99
	if _, err := env.svc.CreatePayment(context.Background(), other); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestCreatePaymentValidation(t *testing.T) {
	env := setupPaymentServiceTest(t)

	zero := virtualInput("CW400", "0")
	if _, err := env.svc.CreatePayment(context.Background(), zero); !errors.Is(err, ErrAmountInvalid) {
		t.Fatalf("expected amount error, got %v", err)
	}
	badChannel := virtualInput("CW400", "1.00")
	badChannel.Channel = "web"
	if _, err := env.svc.CreatePayment(context.Background(), badChannel); !errors.Is(err, ErrPaymentChannelInvalid) {
		t.Fatalf("expected channel error, got %v", err)
	}
	card := virtualInput("CW400", "1.00")
	card.PaymentMethod = "CREDIT_CARD"
	if _, err := env.svc.CreatePayment(context.Background(), card); !errors.Is(err, ErrSecurePayloadRequired) {
		t.Fatalf("expected secure payload error, got %v", err)
	}
	unknown := virtualInput("CW400", "1.00")
	unknown.PaymentMethod = "paypal"
	if _, err := env.svc.CreatePayment(context.Background(), unknown); !errors.Is(err, ErrPaymentMethodInvalid) {
		t.Fatalf("expected method error, got %v", err)
	}

	input := virtualInput("CW400", "1.00")
	input.Channel = ""
	if err := ValidateCreatePaymentInput(&input); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if input.Channel != constants.PaymentChannelQR {
		t.Fatalf("expected default qr channel, got %s", input.Channel)
	}
}

func TestCreatePaymentUnregisteredGateway(t *testing.T) {
	env := setupPaymentServiceTest(t)
	env.seedBooking(t, "CW500", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)

	input := virtualInput("CW500", "25.00")
	input.PaymentMethod = constants.PaymentMethodWechat
	_, err := env.svc.CreatePayment(context.Background(), input)
	if !errors.Is(err, payment.ErrGatewayNotRegistered) {
		t.Fatalf("expected gateway not registered, got %v", err)
	}
	if errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("configuration error must stay distinct from payment failure")
	}
}

type failingGateway struct{}

func (failingGateway) Method() payment.Method { return payment.MethodVirtual }

func (failingGateway) CreatePayment(context.Context, payment.CreateRequest) (*payment.CreateResult, error) {
	return nil, errors.New("gateway unavailable")
}

func (failingGateway) QueryPayment(context.Context, string) (*payment.QueryResult, error) {
	return nil, errors.New("gateway unavailable")
}

func (failingGateway) Refund(context.Context, payment.RefundRequest) (*payment.RefundResult, error) {
	return nil, errors.New("gateway unavailable")
}

func TestCreatePaymentGatewayFailureKeepsPendingIntent(t *testing.T) {
	env := setupPaymentServiceTest(t, failingGateway{})
	env.seedBooking(t, "CW600", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)

	if _, err := env.svc.CreatePayment(context.Background(), virtualInput("CW600", "25.00")); !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected payment failed, got %v", err)
	}
	var intent models.Payment
	if err := env.db.Where("order_no = ?", "CW600").First(&intent).Error; err != nil {
		t.Fatalf("expected intent to be kept: %v", err)
	}
	if intent.Status != constants.PaymentStatusPending {
		t.Fatalf("expected pending intent, got %s", intent.Status)
	}
	if env.counter.Snapshot().Failures != 1 {
		t.Fatalf("expected failure counter 1, got %+v", env.counter.Snapshot())
	}

	resp, err := env.svc.QueryPaymentStatus(context.Background(), intent.PaymentNo)
	if err != nil {
		t.Fatalf("query should swallow gateway errors: %v", err)
	}
	if resp.Status != constants.PaymentStatusPending {
		t.Fatalf("expected pending after failed query, got %s", resp.Status)
	}
	if env.counter.Snapshot().Failures != 2 {
		t.Fatalf("expected failure counter 2, got %+v", env.counter.Snapshot())
	}
}

func TestCreateCardPaymentRejectedByGateway(t *testing.T) {
	env := setupPaymentServiceTest(t, creditcard.New(creditcard.Config{}))
	env.seedBooking(t, "CW700", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)

	input := virtualInput("CW700", "25.00")
	input.PaymentMethod = constants.PaymentMethodCreditCard
	input.SecurePayload = "Zm9v"
	resp, err := env.svc.CreatePayment(context.Background(), input)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if resp.Status != constants.PaymentStatusFailed || resp.ErrorMessage == "" {
		t.Fatalf("expected failed response with message, got %+v", resp)
	}
	if resp.Channel != "" {
		t.Fatalf("card payment should not carry a channel, got %s", resp.Channel)
	}
	if stored := env.payment(t, resp.PaymentNo); stored.Status != constants.PaymentStatusPending {
		t.Fatalf("expected stored intent to stay pending, got %s", stored.Status)
	}
	if env.counter.Snapshot().Failures != 1 {
		t.Fatalf("expected failure counted, got %+v", env.counter.Snapshot())
	}
}

func newCardGateway(t *testing.T) (*creditcard.Gateway, *rsa.PublicKey) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key failed: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		t.Fatalf("marshal key failed: %v", err)
	}
	privatePEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	return creditcard.New(creditcard.Config{PrivateKey: privatePEM}), &privateKey.PublicKey
}

func encryptCard(t *testing.T, publicKey *rsa.PublicKey, card creditcard.CardData) string {
	t.Helper()
	plain, err := json.Marshal(card)
	if err != nil {
		t.Fatalf("marshal card failed: %v", err)
	}
	cipherText, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, plain, nil)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	return base64.StdEncoding.EncodeToString(cipherText)
}

func TestDeclinedCardIsNotSettledByQuery(t *testing.T) {
	env := setupPaymentServiceTest(t, creditcard.New(creditcard.Config{}))
	env.seedBooking(t, "CW710", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)

	input := virtualInput("CW710", "25.00")
	input.PaymentMethod = constants.PaymentMethodCreditCard
	input.SecurePayload = "Zm9v"
	created, err := env.svc.CreatePayment(context.Background(), input)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Status != constants.PaymentStatusFailed {
		t.Fatalf("expected declined card, got %+v", created)
	}

	queried, err := env.svc.QueryPaymentStatus(context.Background(), created.PaymentNo)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if queried.Status == constants.PaymentStatusPaid {
		t.Fatalf("declined card must not become paid: %+v", queried)
	}
	stored := env.payment(t, created.PaymentNo)
	if stored.Status != constants.PaymentStatusPending || stored.TransactionID != "" || stored.PaidAt != nil {
		t.Fatalf("declined intent must stay unpaid, got %+v", stored)
	}
	if booking := env.booking(t, "CW710"); booking.PaymentStatus != constants.BookingPaymentStatusUnpaid {
		t.Fatalf("booking must stay unpaid, got %s", booking.PaymentStatus)
	}
}

func TestCardRetryRevalidatesPendingIntent(t *testing.T) {
	gateway, publicKey := newCardGateway(t)
	env := setupPaymentServiceTest(t, gateway)
	env.seedBooking(t, "CW720", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)

	input := virtualInput("CW720", "25.00")
	input.PaymentMethod = constants.PaymentMethodCreditCard
	input.SecurePayload = encryptCard(t, publicKey, creditcard.CardData{CardNumber: "4111111111111112", Expiry: "08/29", CVV: "321", CardHolder: "ZHANG SAN"})
	declined, err := env.svc.CreatePayment(context.Background(), input)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if declined.Status != constants.PaymentStatusFailed || declined.ErrorMessage != "信用卡号校验失败" {
		t.Fatalf("expected luhn decline, got %+v", declined)
	}
	if queried, err := env.svc.QueryPaymentStatus(context.Background(), declined.PaymentNo); err != nil || queried.Status != constants.PaymentStatusPending {
		t.Fatalf("declined card should stay pending, got %+v err=%v", queried, err)
	}

	input.SecurePayload = encryptCard(t, publicKey, creditcard.CardData{CardNumber: "4111111111111111", Expiry: "08/29", CVV: "321", CardHolder: "ZHANG SAN"})
	retried, err := env.svc.CreatePayment(context.Background(), input)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if retried.PaymentNo != declined.PaymentNo || retried.Status != constants.PaymentStatusPending || retried.ErrorMessage != "" {
		t.Fatalf("retry should revalidate the same intent, got %+v", retried)
	}

	queried, err := env.svc.QueryPaymentStatus(context.Background(), retried.PaymentNo)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if queried.Status != constants.PaymentStatusPaid || queried.TransactionID == "" {
		t.Fatalf("accepted card should settle on query, got %+v", queried)
	}
	if booking := env.booking(t, "CW720"); booking.PaymentStatus != constants.BookingPaymentStatusPaid {
		t.Fatalf("expected booking paid, got %s", booking.PaymentStatus)
	}
	creates := 0
	for _, event := range env.auditEvents(t, retried.PaymentNo) {
		if event == constants.AuditEventCreate {
			creates++
		}
	}
	if creates != 1 {
		t.Fatalf("retry must not add a create audit, got %d", creates)
	}
}

func TestHandleCallbackIsIdempotent(t *testing.T) {
	env := setupPaymentServiceTest(t)
	paymentNo := env.paidPayment(t, "CW800")

	first := env.payment(t, paymentNo)
	if first.Status != constants.PaymentStatusPaid || first.TransactionID != "TX-CW800" || first.PaidAt == nil {
		t.Fatalf("expected paid intent, got %+v", first)
	}
	if first.RawData == "" {
		t.Fatalf("expected raw callback data to be stored")
	}

	ok := env.svc.HandleCallback(context.Background(), "VIRTUAL", map[string]string{
		constants.CallbackFieldOutTradeNo:    paymentNo,
		constants.CallbackFieldTransactionID: "TX-OTHER",
	})
	if !ok {
		t.Fatalf("expected duplicate callback to be acknowledged")
	}
	second := env.payment(t, paymentNo)
	if second.TransactionID != "TX-CW800" || !second.PaidAt.Equal(*first.PaidAt) || second.Status != constants.PaymentStatusPaid {
		t.Fatalf("duplicate callback must not change payment: %+v", second)
	}
	if second.NotifyCount != 2 {
		t.Fatalf("expected notify count 2, got %d", second.NotifyCount)
	}

	events := env.auditEvents(t, paymentNo)
	updates := 0
	for _, event := range events {
		if event == constants.AuditEventCallbackUpdate {
			updates++
		}
	}
	if updates != 1 {
		t.Fatalf("expected single callback update audit, got %v", events)
	}
	if booking := env.booking(t, "CW800"); booking.PaymentStatus != constants.BookingPaymentStatusPaid {
		t.Fatalf("expected booking paid, got %s", booking.PaymentStatus)
	}
}

func TestHandleCallbackKeepsTerminalStatus(t *testing.T) {
	env := setupPaymentServiceTest(t)

	env.seedBooking(t, "CW810", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)
	pending, err := env.svc.CreatePayment(context.Background(), virtualInput("CW810", "25.00"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	env.svc.now = func() time.Time { return pending.ExpireAt.Add(time.Minute) }
	if cancelled, err := env.svc.CancelExpiredPayments(context.Background(), 0); err != nil || cancelled != 1 {
		t.Fatalf("expected intent cancelled, cancelled=%d err=%v", cancelled, err)
	}
	env.svc.now = time.Now

	ok := env.svc.HandleCallback(context.Background(), "virtual", map[string]string{
		constants.CallbackFieldOutTradeNo:    pending.PaymentNo,
		constants.CallbackFieldTransactionID: "TX-LATE",
	})
	if !ok {
		t.Fatalf("expected late callback on cancelled intent to be acknowledged")
	}
	cancelled := env.payment(t, pending.PaymentNo)
	if cancelled.Status != constants.PaymentStatusCancelled || cancelled.TransactionID != "" || cancelled.PaidAt != nil {
		t.Fatalf("cancelled intent must stay cancelled, got %+v", cancelled)
	}
	if booking := env.booking(t, "CW810"); booking.Status != constants.BookingStatusCancelled || booking.PaymentStatus != constants.BookingPaymentStatusUnpaid {
		t.Fatalf("booking must not change after late callback, got %+v", booking)
	}

	refundedNo := env.paidPayment(t, "CW811")
	if _, err := env.svc.ProcessRefund(context.Background(), RefundInput{
		PaymentNo: refundedNo,
		Amount:    decimal.RequireFromString("25.00"),
		Reason:    "全额退款",
	}); err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	before := env.payment(t, refundedNo)
	ok = env.svc.HandleCallback(context.Background(), "virtual", map[string]string{
		constants.CallbackFieldOutTradeNo:    refundedNo,
		constants.CallbackFieldTransactionID: "TX-REPLAY",
	})
	if !ok {
		t.Fatalf("expected callback on refunded intent to be acknowledged")
	}
	after := env.payment(t, refundedNo)
	if after.Status != constants.PaymentStatusRefunded || after.TransactionID != before.TransactionID {
		t.Fatalf("refunded intent must stay refunded, got %+v", after)
	}
	if booking := env.booking(t, "CW811"); booking.PaymentStatus != constants.BookingPaymentStatusRefunded {
		t.Fatalf("booking must stay refunded, got %s", booking.PaymentStatus)
	}
}

func TestHandleCallbackRejectsMethodMismatch(t *testing.T) {
	env := setupPaymentServiceTest(t, virtual.New(), wechat.New(wechat.Config{APIKey: "wechat-test-key"}))
	env.seedBooking(t, "CW820", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)
	input := virtualInput("CW820", "25.00")
	input.PaymentMethod = constants.PaymentMethodWechat
	input.Channel = constants.PaymentChannelQR
	created, err := env.svc.CreatePayment(context.Background(), input)
	if err != nil {
		t.Fatalf("create wechat payment failed: %v", err)
	}

	ok := env.svc.HandleCallback(context.Background(), "virtual", map[string]string{
		constants.CallbackFieldOutTradeNo:    created.PaymentNo,
		constants.CallbackFieldTransactionID: "FORGED",
	})
	if ok {
		t.Fatalf("expected virtual callback on wechat intent to be rejected")
	}
	stored := env.payment(t, created.PaymentNo)
	if stored.Status != constants.PaymentStatusPending || stored.TransactionID == "FORGED" || stored.NotifyCount != 0 {
		t.Fatalf("mismatched callback must not change payment: %+v", stored)
	}
	if booking := env.booking(t, "CW820"); booking.PaymentStatus != constants.BookingPaymentStatusUnpaid {
		t.Fatalf("booking must stay unpaid, got %s", booking.PaymentStatus)
	}
}

func TestHandleCallbackVirtualDisabled(t *testing.T) {
	env := setupPaymentServiceTest(t, virtual.New(), wechat.New(wechat.Config{APIKey: "wechat-test-key"}))
	env.svc.verifier = signature.NewVerifier(signature.Config{WechatAPIKey: "wechat-test-key"})
	env.seedBooking(t, "CW830", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)
	created, err := env.svc.CreatePayment(context.Background(), virtualInput("CW830", "25.00"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if env.svc.HandleCallback(context.Background(), "virtual", map[string]string{
		constants.CallbackFieldOutTradeNo:    created.PaymentNo,
		constants.CallbackFieldTransactionID: "VTX-1",
	}) {
		t.Fatalf("expected virtual callback to be rejected when virtual gateway disabled")
	}
	if stored := env.payment(t, created.PaymentNo); stored.Status != constants.PaymentStatusPending || stored.NotifyCount != 0 {
		t.Fatalf("rejected callback must not change payment: %+v", stored)
	}
}

func TestHandleCallbackRejectsInvalidInput(t *testing.T) {
	env := setupPaymentServiceTest(t)
	env.seedBooking(t, "CW900", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)
	resp, err := env.svc.CreatePayment(context.Background(), virtualInput("CW900", "25.00"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	unsigned := map[string]string{
		constants.CallbackFieldOutTradeNo:    resp.PaymentNo,
		constants.CallbackFieldTransactionID: "WX1",
		constants.CallbackFieldSign:          "BAD",
	}
	if env.svc.HandleCallback(context.Background(), "wechat", unsigned) {
		t.Fatalf("expected tampered wechat callback to be rejected")
	}
	if env.svc.HandleCallback(context.Background(), "paypal", unsigned) {
		t.Fatalf("expected unknown method to be rejected")
	}
	if env.svc.HandleCallback(context.Background(), "virtual", map[string]string{constants.CallbackFieldOutTradeNo: "PAY-MISSING"}) {
		t.Fatalf("expected unknown payment to be rejected")
	}
	if stored := env.payment(t, resp.PaymentNo); stored.Status != constants.PaymentStatusPending || stored.NotifyCount != 0 {
		t.Fatalf("rejected callbacks must not change payment: %+v", stored)
	}

	signed := map[string]string{
		constants.CallbackFieldOutTradeNo:    resp.PaymentNo,
		constants.CallbackFieldTransactionID: "WX1",
		"result_code":                        "SUCCESS",
	}
	signed[constants.CallbackFieldSign] = signature.SignWechat(signed, "wechat-test-key")
	if !env.svc.HandleCallback(context.Background(), "wechat", signed) {
		t.Fatalf("expected signed wechat callback to be accepted")
	}
	if stored := env.payment(t, resp.PaymentNo); stored.Status != constants.PaymentStatusPaid || stored.TransactionID != "WX1" {
		t.Fatalf("expected paid by signed callback: %+v", stored)
	}
}

func TestProcessRefundRespectsRefundableAmount(t *testing.T) {
	env := setupPaymentServiceTest(t)
	paymentNo := env.paidPayment(t, "CW1000")

	partial, err := env.svc.ProcessRefund(context.Background(), RefundInput{
		PaymentNo:  paymentNo,
		Amount:     decimal.RequireFromString("10.00"),
		Reason:     "服务未完成",
		OperatorID: 1,
	})
	if err != nil {
		t.Fatalf("partial refund failed: %v", err)
	}
	if partial.Status != constants.RefundStatusSuccess || partial.PaymentStatus != constants.PaymentStatusPaid {
		t.Fatalf("unexpected partial refund: %+v", partial)
	}

	_, err = env.svc.ProcessRefund(context.Background(), RefundInput{
		PaymentNo: paymentNo,
		Amount:    decimal.RequireFromString("20.00"),
		Reason:    "超额退款",
	})
	if !errors.Is(err, ErrRefundAmountInvalid) {
		t.Fatalf("expected refund amount error, got %v", err)
	}

	full, err := env.svc.ProcessRefund(context.Background(), RefundInput{
		PaymentNo: paymentNo,
		Amount:    decimal.RequireFromString("15.00"),
		Reason:    "剩余退款",
	})
	if err != nil {
		t.Fatalf("remaining refund failed: %v", err)
	}
	if full.PaymentStatus != constants.PaymentStatusRefunded {
		t.Fatalf("expected payment refunded, got %s", full.PaymentStatus)
	}
	if booking := env.booking(t, "CW1000"); booking.PaymentStatus != constants.BookingPaymentStatusRefunded {
		t.Fatalf("expected booking refunded, got %s", booking.PaymentStatus)
	}

	refunds, err := env.svc.ListRefunds(paymentNo)
	if err != nil {
		t.Fatalf("list refunds failed: %v", err)
	}
	if len(refunds) != 2 {
		t.Fatalf("expected 2 refund records, got %d", len(refunds))
	}
	if snapshot := env.counter.Snapshot(); snapshot.Refunds != 2 {
		t.Fatalf("expected 2 refunds counted, got %+v", snapshot)
	}
}

func TestProcessRefundRequiresPaidPayment(t *testing.T) {
	env := setupPaymentServiceTest(t)
	env.seedBooking(t, "CW1100", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)
	resp, err := env.svc.CreatePayment(context.Background(), virtualInput("CW1100", "25.00"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, err = env.svc.ProcessRefund(context.Background(), RefundInput{
		PaymentNo: resp.PaymentNo,
		Amount:    decimal.RequireFromString("1.00"),
		Reason:    "测试",
	})
	if !errors.Is(err, ErrPaymentStatusInvalid) {
		t.Fatalf("expected payment status error, got %v", err)
	}
	var count int64
	if err := env.db.Model(&models.Refund{}).Count(&count).Error; err != nil {
		t.Fatalf("count refunds failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no refund record, got %d", count)
	}

	if _, err := env.svc.ProcessRefund(context.Background(), RefundInput{PaymentNo: "PAY-MISSING", Amount: decimal.NewFromInt(1), Reason: "x"}); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected payment not found, got %v", err)
	}
}

func TestProcessRefundGatewayFailure(t *testing.T) {
	env := setupPaymentServiceTest(t, failingGateway{})
	env.seedBooking(t, "CW1200", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)
	paid := &models.Payment{
		PaymentNo:     "PAY-FAIL-REFUND",
		OrderNo:       "CW1200",
		UserID:        testUserID,
		Amount:        models.MustMoney("25.00"),
		PaymentMethod: constants.PaymentMethodVirtual,
		Status:        constants.PaymentStatusPaid,
		ExpireAt:      time.Now().Add(time.Hour),
	}
	if err := env.db.Create(paid).Error; err != nil {
		t.Fatalf("seed payment failed: %v", err)
	}

	resp, err := env.svc.ProcessRefund(context.Background(), RefundInput{
		PaymentNo: paid.PaymentNo,
		Amount:    decimal.RequireFromString("5.00"),
		Reason:    "网关异常",
	})
	if err != nil {
		t.Fatalf("refund should resolve to failed record: %v", err)
	}
	if resp.Status != constants.RefundStatusFailed {
		t.Fatalf("expected failed refund, got %s", resp.Status)
	}
	events := env.auditEvents(t, paid.PaymentNo)
	if fmt.Sprint(events) != fmt.Sprint([]string{constants.AuditEventRefundRequest, constants.AuditEventRefundFailed}) {
		t.Fatalf("unexpected audit trail: %v", events)
	}
	if snapshot := env.counter.Snapshot(); snapshot.Refunds != 1 || snapshot.Failures != 1 {
		t.Fatalf("unexpected counters: %+v", snapshot)
	}
}

func TestCancelExpiredPayments(t *testing.T) {
	env := setupPaymentServiceTest(t)
	env.seedBooking(t, "CW1300", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)
	resp, err := env.svc.CreatePayment(context.Background(), virtualInput("CW1300", "25.00"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	paidNo := env.paidPayment(t, "CW1301")

	if cancelled, err := env.svc.CancelExpiredPayments(context.Background(), 0); err != nil || cancelled != 0 {
		t.Fatalf("nothing should expire yet, cancelled=%d err=%v", cancelled, err)
	}

	later := time.Now().Add(31 * time.Minute)
	env.svc.now = func() time.Time { return later }
	cancelled, err := env.svc.CancelExpiredPayments(context.Background(), 0)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 cancelled, got %d", cancelled)
	}

	stored := env.payment(t, resp.PaymentNo)
	if stored.Status != constants.PaymentStatusCancelled || stored.PendingGuard != nil {
		t.Fatalf("expected cancelled intent, got %+v", stored)
	}
	booking := env.booking(t, "CW1300")
	if booking.Status != constants.BookingStatusCancelled || booking.CancelReason != constants.BookingCancelReasonPaymentTimeout || booking.CancelledAt == nil {
		t.Fatalf("expected booking cancelled by timeout, got %+v", booking)
	}
	if paid := env.payment(t, paidNo); paid.Status != constants.PaymentStatusPaid {
		t.Fatalf("paid intent must not be swept, got %s", paid.Status)
	}
	events := env.auditEvents(t, resp.PaymentNo)
	if events[len(events)-1] != constants.AuditEventCancelExpired {
		t.Fatalf("expected cancel audit, got %v", events)
	}

	if again, err := env.svc.CancelExpiredPayments(context.Background(), 0); err != nil || again != 0 {
		t.Fatalf("second sweep should be a no-op, cancelled=%d err=%v", again, err)
	}

	env.seedBooking(t, "CW1302", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)
	if _, err := env.svc.CreatePayment(context.Background(), virtualInput("CW1302", "25.00")); err != nil {
		t.Fatalf("new intent after cancel failed: %v", err)
	}
}

func TestCancelExpiredPaymentsDrainsAllBatches(t *testing.T) {
	env := setupPaymentServiceTest(t)
	paymentNos := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		orderNo := fmt.Sprintf("CW135%d", i)
		env.seedBooking(t, orderNo, constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)
		resp, err := env.svc.CreatePayment(context.Background(), virtualInput(orderNo, "25.00"))
		if err != nil {
			t.Fatalf("create %s failed: %v", orderNo, err)
		}
		paymentNos = append(paymentNos, resp.PaymentNo)
	}

	later := time.Now().Add(31 * time.Minute)
	env.svc.now = func() time.Time { return later }
	cancelled, err := env.svc.CancelExpiredPayments(context.Background(), 2)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if cancelled != 5 {
		t.Fatalf("expected all 5 expired intents cancelled, got %d", cancelled)
	}
	for _, paymentNo := range paymentNos {
		if stored := env.payment(t, paymentNo); stored.Status != constants.PaymentStatusCancelled {
			t.Fatalf("expected %s cancelled, got %s", paymentNo, stored.Status)
		}
	}
}

func TestExpirePaymentSkipsUnexpired(t *testing.T) {
	env := setupPaymentServiceTest(t)
	env.seedBooking(t, "CW1400", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)
	resp, err := env.svc.CreatePayment(context.Background(), virtualInput("CW1400", "25.00"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	ok, err := env.svc.ExpirePayment(context.Background(), resp.PaymentNo)
	if err != nil || ok {
		t.Fatalf("unexpired payment must be kept, ok=%v err=%v", ok, err)
	}
	env.svc.now = func() time.Time { return resp.ExpireAt.Add(time.Second) }
	ok, err = env.svc.ExpirePayment(context.Background(), resp.PaymentNo)
	if err != nil || !ok {
		t.Fatalf("expected expired payment to be cancelled, ok=%v err=%v", ok, err)
	}
	ok, err = env.svc.ExpirePayment(context.Background(), resp.PaymentNo)
	if err != nil || ok {
		t.Fatalf("second expire should be a no-op, ok=%v err=%v", ok, err)
	}
}

type brokenAuditRepo struct{}

func (brokenAuditRepo) Create(*models.PaymentAudit) error {
	return errors.New("audit table unavailable")
}

func (brokenAuditRepo) List(repository.PaymentAuditListFilter) ([]models.PaymentAudit, int64, error) {
	return nil, 0, errors.New("audit table unavailable")
}

func TestAuditFailureDoesNotBreakPayment(t *testing.T) {
	env := setupPaymentServiceTest(t)
	env.svc.audit = audit.NewRepositoryWriter(brokenAuditRepo{})
	env.seedBooking(t, "CW1500", constants.BookingStatusConfirmed, constants.BookingPaymentStatusUnpaid)

	resp, err := env.svc.CreatePayment(context.Background(), virtualInput("CW1500", "25.00"))
	if err != nil {
		t.Fatalf("create should succeed without audit: %v", err)
	}
	queried, err := env.svc.QueryPaymentStatus(context.Background(), resp.PaymentNo)
	if err != nil || queried.Status != constants.PaymentStatusPaid {
		t.Fatalf("query should succeed without audit: %+v err=%v", queried, err)
	}
}

func TestPaymentReadOperations(t *testing.T) {
	env := setupPaymentServiceTest(t)
	paymentNo := env.paidPayment(t, "CW1600")

	latest, err := env.svc.GetPaymentByOrderNo("CW1600", testUserID)
	if err != nil || latest.PaymentNo != paymentNo {
		t.Fatalf("unexpected latest payment: %+v err=%v", latest, err)
	}
	if _, err := env.svc.GetPaymentByOrderNo("CW1600", 99); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if err := env.svc.EnsurePaymentOwner(paymentNo, 99); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected owner check to fail, got %v", err)
	}

	items, total, err := env.svc.ListUserPayments(testUserID, 1, 10)
	if err != nil || total != 1 || len(items) != 1 {
		t.Fatalf("unexpected user payments: %d %d err=%v", len(items), total, err)
	}
	audits, total, err := env.svc.ListAudits(repository.PaymentAuditListFilter{PaymentNo: paymentNo, Page: 1, PageSize: 20})
	if err != nil || total == 0 || len(audits) == 0 {
		t.Fatalf("unexpected audits: %d %d err=%v", len(audits), total, err)
	}
	if _, err := env.svc.SecurityPublicKey(); !errors.Is(err, ErrSecurityKeyUnavailable) {
		t.Fatalf("expected missing key error, got %v", err)
	}
}
