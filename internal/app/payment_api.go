package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

const (
	paymentAPIName              = "payment-api"
	paymentAPIReadHeaderTimeout = 10 * time.Second
	paymentAPIIdleTimeout       = 60 * time.Second
)

// PaymentAPIService 支付 HTTP 接口：下单、查单、网关回调与管理端
type PaymentAPIService struct {
	server *http.Server
}

// NewPaymentAPIService 创建支付 HTTP 服务
func NewPaymentAPIService(host, port string, handler http.Handler) *PaymentAPIService {
	return &PaymentAPIService{
		server: &http.Server{
			Addr:              net.JoinHostPort(host, port),
			Handler:           handler,
			ReadHeaderTimeout: paymentAPIReadHeaderTimeout,
			IdleTimeout:       paymentAPIIdleTimeout,
		},
	}
}

// Name 实现 Service
func (s *PaymentAPIService) Name() string {
	return paymentAPIName
}

// Addr 监听地址
func (s *PaymentAPIService) Addr() string {
	if s == nil || s.server == nil {
		return ""
	}
	return s.server.Addr
}

// Start 阻塞监听，Stop 触发的关闭不视为错误
func (s *PaymentAPIService) Start(ctx context.Context) error {
	if s == nil || s.server == nil {
		return errors.New("payment api server not initialized")
	}
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 优雅关闭，等待进行中的回调与下单请求完成
func (s *PaymentAPIService) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
