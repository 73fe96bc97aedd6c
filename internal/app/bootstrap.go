package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/carwash-next/internal/config"
	"github.com/carwash-next/internal/logger"
	"github.com/carwash-next/internal/provider"
	"github.com/carwash-next/internal/router"
	"github.com/carwash-next/internal/worker"

	"go.uber.org/zap"
)

// 进程运行模式
const (
	ModeAll    = "all"    // 接口与过期处理同进程
	ModeAPI    = "api"    // 只提供支付接口
	ModeWorker = "worker" // 只处理支付过期
)

// Options 应用启动选项
type Options struct {
	Config          *config.Config
	Logger          *zap.SugaredLogger
	Signals         []os.Signal
	ShutdownTimeout time.Duration
	Mode            string
}

func normalizeOptions(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = logger.S()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if opts.Mode == "" {
		opts.Mode = ModeAll
	}
	return opts
}

func validMode(mode string) bool {
	switch mode {
	case ModeAll, ModeAPI, ModeWorker:
		return true
	}
	return false
}

// BuildRunner 按模式装配支付接口与过期处理组件
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if !validMode(mode) {
		return nil, fmt.Errorf("unknown run mode %q", mode)
	}

	container := provider.NewContainer(cfg)

	var services []Service
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewPaymentAPIService(cfg.Server.Host, cfg.Server.Port, engine))
	}

	expiry, err := buildExpiryService(cfg, mode, container)
	if err != nil {
		return nil, err
	}
	if expiry != nil {
		services = append(services, expiry)
	}

	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}
	return NewRunner(services...), nil
}

// buildExpiryService 队列开启时由 asynq worker 负责过期处理，否则在进程内定时清扫
func buildExpiryService(cfg *config.Config, mode string, container *provider.Container) (Service, error) {
	if mode != ModeAll && mode != ModeWorker {
		return nil, nil
	}
	if cfg.Queue.Enabled {
		consumer := worker.NewConsumer(container)
		return worker.NewService(&cfg.Queue, cfg.Payment, consumer)
	}
	logger.Infow("app_payment_sweeper_fallback",
		"interval", cfg.Payment.SweepInterval().String(),
		"batch_size", cfg.Payment.SweepBatchSize,
	)
	return worker.NewSweeper(container.PaymentService, cfg.Payment.SweepInterval(), cfg.Payment.SweepBatchSize), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	opts.Logger.Infow("app_start",
		"mode", opts.Mode,
		"services", runner.Names(),
		"queue_enabled", opts.Config.Queue.Enabled,
		"virtual_enabled", opts.Config.Payment.VirtualEnabled,
	)
	return runWithSignals(runner, opts)
}
