package chunk

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Run drives the drain and flush tasks until ctx is cancelled. The two
// tasks run independently; room locks keep them off each other's chunks.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.drainLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		e.flushLoop(ctx)
	}()
	wg.Wait()
}

func (e *Engine) drainLoop(ctx context.Context) {
	ticker := time.NewTicker(e.opts.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := e.DrainAll(ctx); err != nil {
				e.log.Error("drain pending rooms", zap.Error(err))
			} else if n > 0 {
				e.log.Debug("drained pending messages", zap.Int("messages", n))
			}
		case roomID := <-e.kick:
			if _, err := e.DrainRoom(ctx, roomID); err != nil {
				e.log.Error("drain room", zap.String("room", roomID), zap.Error(err))
			}
		}
	}
}

func (e *Engine) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := e.Flush(ctx, false); err != nil {
				e.log.Error("flush dirty chunks", zap.Error(err))
			} else if n > 0 {
				e.log.Info("flushed dirty chunks", zap.Int("chunks", n))
			}
		}
	}
}

// Stop drains every pending room and force-flushes all dirty chunks. Call
// it after Run has returned, with a context bounding the shutdown.
func (e *Engine) Stop(ctx context.Context) error {
	n, err := e.DrainAll(ctx)
	if err != nil {
		e.log.Error("final drain", zap.Error(err))
	}
	flushed, ferr := e.Flush(ctx, true)
	e.log.Info("engine stopped", zap.Int("drained", n), zap.Int("flushed", flushed))
	if ferr != nil {
		return ferr
	}
	return err
}
