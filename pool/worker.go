package pool

import (
	"context"
	"math"
	"time"

	"github.com/forbearing/polydb/adapter"
	"github.com/forbearing/polydb/config"
	"github.com/forbearing/polydb/dberrors"
	"github.com/forbearing/polydb/logger"
	"github.com/forbearing/polydb/metrics"
)

// sqliteWorker implements spec §4.F's SQLite worker: one goroutine per alias, a single
// adapter, strictly sequential dispatch over a mailbox buffered to 4096 requests; dispatch
// blocks while the mailbox is full, until there is room or the caller's context is done. State
// machine per
// operation: Dequeued -> (HealthCheckIfDue) -> Execute -> (Retry, exponential backoff capped
// at 30s) -> Reply. The worker never exits on an operation error; exhausted retries produce an
// error reply and the loop continues.
type sqliteWorker struct {
	mailbox chan opRequest
	cfg     config.PoolConfig
	reopen  func(ctx context.Context) (adapter.Adapter, error)
	log     logger.Logger

	alias   string
	metrics *metrics.Collectors

	adapter         adapter.Adapter
	isHealthy       bool
	lastHealthCheck time.Time
}

// newSQLiteWorker starts the worker goroutine and returns it as a dispatcher. reopen is the
// same connection path used at startup (spec §4.F "reconnection ... using the same path used
// at startup"). m may be nil, in which case mailbox-depth observation is skipped.
func newSQLiteWorker(ctx context.Context, alias string, initial adapter.Adapter, cfg config.PoolConfig, reopen func(ctx context.Context) (adapter.Adapter, error), log logger.Logger, m *metrics.Collectors) *sqliteWorker {
	w := &sqliteWorker{
		mailbox:   make(chan opRequest, 4096),
		cfg:       cfg,
		reopen:    reopen,
		log:       log,
		alias:     alias,
		metrics:   m,
		adapter:   initial,
		isHealthy: true,
	}
	go w.run(ctx)
	return w
}

func (w *sqliteWorker) dispatch(ctx context.Context, fn func(adapter.Adapter) (any, error)) (val any, err error) {
	// A send on the mailbox after close panics; report it as a closed pool instead.
	defer func() {
		if recover() != nil {
			val, err = nil, dberrors.NewConnectionError("pool closed")
		}
	}()
	reply := make(chan opReply, 1)
	select {
	case w.mailbox <- opRequest{ctx: ctx, fn: fn, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r, ok := <-reply:
		if !ok {
			return nil, dberrors.NewConnectionError("pool closed")
		}
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *sqliteWorker) close() error {
	close(w.mailbox)
	if w.adapter != nil {
		return w.adapter.Close()
	}
	return nil
}

func (w *sqliteWorker) run(ctx context.Context) {
	healthCheckInterval := w.cfg.HealthCheckTimeout
	if healthCheckInterval <= 0 {
		healthCheckInterval = 3 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-w.mailbox:
			if !ok {
				return
			}
			w.metrics.SetMailboxDepth(w.alias, len(w.mailbox))
			w.healthCheckIfDue(req.ctx, healthCheckInterval)
			val, err := w.executeWithRetry(req.ctx, req.fn)
			req.reply <- opReply{val: val, err: err}
			close(req.reply)
		}
	}
}

func (w *sqliteWorker) healthCheckIfDue(ctx context.Context, interval time.Duration) {
	if time.Since(w.lastHealthCheck) < interval {
		return
	}
	w.lastHealthCheck = time.Now()
	if _, err := w.adapter.ServerVersion(ctx); err != nil {
		w.isHealthy = false
		w.log.Warnw("sqlite worker health check failed, reconnecting", "error", err)
		if fresh, rerr := w.reopen(ctx); rerr == nil {
			_ = w.adapter.Close()
			w.adapter = fresh
			w.isHealthy = true
		} else {
			w.log.Errorw("sqlite worker reconnect failed", "error", rerr)
		}
		return
	}
	w.isHealthy = true
}

func (w *sqliteWorker) executeWithRetry(ctx context.Context, fn func(adapter.Adapter) (any, error)) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		val, err := fn(w.adapter)
		if err == nil {
			return val, nil
		}
		lastErr = err
		if !dberrors.IsTransient(err) {
			return nil, err
		}
		if attempt == w.cfg.MaxRetries {
			break
		}
		backoff := w.cfg.RetryInterval * time.Duration(math.Pow(2, float64(attempt)))
		if backoff > 30*time.Second || backoff <= 0 {
			backoff = 30 * time.Second
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
