package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 10 * time.Second

// Service 支付进程内的长驻组件：对外 API、过期清扫、队列消费
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runner 并发运行全部组件，任一组件退出即整体关停
type Runner struct {
	services []Service
}

// NewRunner 创建运行器，nil 组件会被忽略
func NewRunner(services ...Service) *Runner {
	runner := &Runner{}
	for _, svc := range services {
		if svc != nil {
			runner.services = append(runner.services, svc)
		}
	}
	return runner
}

// Names 组件名，用于启动日志
func (r *Runner) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.services))
	for _, svc := range r.services {
		names = append(names, svc.Name())
	}
	return names
}

// Run 启动全部组件并阻塞到 ctx 结束或某个组件退出
// ctx 取消属于正常关停，返回 nil；组件启动失败时返回带组件名的错误。
func (r *Runner) Run(ctx context.Context, stopTimeout time.Duration, log *zap.SugaredLogger) error {
	if r == nil || len(r.services) == 0 {
		return errors.New("no services to run")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(runCtx)
	for _, svc := range r.services {
		group.Go(func() error {
			defer cancel()
			log.Infow("service_start", "service", svc.Name())
			err := svc.Start(groupCtx)
			log.Infow("service_exit", "service", svc.Name(), "error", err)
			if err != nil {
				return fmt.Errorf("%s: %w", svc.Name(), err)
			}
			return nil
		})
	}

	<-groupCtx.Done()
	if stopTimeout <= 0 {
		stopTimeout = defaultShutdownTimeout
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if err := r.stopAll(stopCtx); err != nil {
		log.Errorw("service_stop_failed", "error", err)
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// stopAll 按启动的逆序关停，汇总全部关停错误
func (r *Runner) stopAll(ctx context.Context) error {
	var err error
	for i := len(r.services) - 1; i >= 0; i-- {
		svc := r.services[i]
		if stopErr := svc.Stop(ctx); stopErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", svc.Name(), stopErr))
		}
	}
	return err
}

// runWithSignals 监听退出信号后运行
func runWithSignals(runner *Runner, opts Options) error {
	if runner == nil {
		return errors.New("runner is nil")
	}
	ctx := context.Background()
	if len(opts.Signals) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, opts.Signals...)
		defer stop()
	}
	return runner.Run(ctx, opts.ShutdownTimeout, opts.Logger)
}
