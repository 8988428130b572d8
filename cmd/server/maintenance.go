package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type maintenanceTask func(ctx context.Context) error

type maintenanceTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) maintenanceTicker

func startMaintenanceWorker(ctx context.Context, logger *slog.Logger, name string, task maintenanceTask, interval time.Duration) func() {
	return startMaintenanceWorkerWithTicker(ctx, logger, name, task, interval, func(d time.Duration) maintenanceTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startMaintenanceWorkerWithTicker(
	ctx context.Context,
	logger *slog.Logger,
	name string,
	task maintenanceTask,
	interval time.Duration,
	newTicker tickerFactory,
) func() {
	if task == nil || interval <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				if err := task(workerCtx); err != nil && logger != nil {
					logger.Error("maintenance task failed", "task", name, "error", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
