package pool

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sony/gobreaker"

	"github.com/forbearing/polydb/adapter"
	"github.com/forbearing/polydb/config"
	"github.com/forbearing/polydb/dberrors"
	"github.com/forbearing/polydb/logger"
	"github.com/forbearing/polydb/metrics"
)

// slot is one connection in the multi-connection manager's vector of worker slots (spec
// §4.F). Its gobreaker.CircuitBreaker gates rebuild-on-failure: repeated failures trip the
// breaker open, so a caller sees an immediate ConnectionError instead of the manager hammering
// a dead endpoint with rebuild attempts on every operation.
type slot struct {
	mu      sync.Mutex
	adapter adapter.Adapter
	retries int
	breaker *gobreaker.CircuitBreaker
}

// multiManager implements spec §4.F's multi-connection manager for MySQL/PostgreSQL/MongoDB:
// a vector of slots plus a free-slot queue, back-pressure instead of blocking when no slot is
// free, per-slot retry-then-rebuild, and a keepalive task probing idle slots.
type multiManager struct {
	cfg     config.PoolConfig
	open    func(ctx context.Context) (adapter.Adapter, error)
	log     logger.Logger
	alias   string
	metrics *metrics.Collectors
	slots   []*slot
	free    chan int
	probes  *ants.Pool

	closeOnce sync.Once
	done      chan struct{}
}

// newMultiManager eagerly opens min(cfg.MaxConnections, max(1, cfg.MinConnections)) slots and
// never grows the slot vector afterwards; dispatch only ever pops one of these pre-opened slots
// and fails fast with ConnectionError when none is free, rather than opening a new one on
// demand. mtr may be nil, in which case slot-count observation is skipped.
func newMultiManager(ctx context.Context, alias string, cfg config.PoolConfig, open func(ctx context.Context) (adapter.Adapter, error), log logger.Logger, mtr *metrics.Collectors) (*multiManager, error) {
	eager := cfg.MinConnections
	if eager < 1 {
		eager = 1
	}
	if cfg.MaxConnections < eager {
		eager = cfg.MaxConnections
	}

	probes, err := ants.NewPool(maxInt(eager, 1))
	if err != nil {
		return nil, dberrors.Wrap(err, "pool: ants probe pool init")
	}

	m := &multiManager{
		cfg:     cfg,
		open:    open,
		log:     log,
		alias:   alias,
		metrics: mtr,
		free:    make(chan int, cfg.MaxConnections),
		probes:  probes,
		done:    make(chan struct{}),
	}
	for i := 0; i < eager; i++ {
		a, err := open(ctx)
		if err != nil {
			return nil, dberrors.NewConnectionError("pool: opening initial slot %d: %v", i, err)
		}
		m.slots = append(m.slots, newSlot(a))
		m.free <- i
	}
	m.metrics.SetSlots(m.alias, 0, len(m.slots))

	if cfg.KeepaliveInterval > 0 {
		go m.keepalive(ctx)
	}
	return m, nil
}

func newSlot(a adapter.Adapter) *slot {
	return &slot{
		adapter: a,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "pool-slot",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
		}),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// dispatch pops a free slot, runs fn against its adapter (through the slot's circuit breaker),
// and pushes the slot back. An empty free queue fails fast rather than blocking (spec §4.F
// "back-pressure is the caller's responsibility").
func (m *multiManager) dispatch(ctx context.Context, fn func(adapter.Adapter) (any, error)) (any, error) {
	select {
	case <-m.done:
		return nil, dberrors.NewConnectionError("pool closed")
	default:
	}

	var idx int
	select {
	case idx = <-m.free:
	default:
		return nil, dberrors.NewConnectionError("all connections in use")
	}
	s := m.slots[idx]
	m.metrics.SetSlots(m.alias, len(m.slots)-len(m.free), len(m.free))
	defer func() {
		m.free <- idx
		m.metrics.SetSlots(m.alias, len(m.slots)-len(m.free), len(m.free))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.breaker.Execute(func() (any, error) {
		return fn(s.adapter)
	})
	if err == nil {
		s.retries = 0
		return result, nil
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, dberrors.NewConnectionError("pool slot circuit breaker open: %v", err)
	}
	if !dberrors.IsTransient(err) {
		return nil, err
	}

	s.retries++
	if s.retries > m.cfg.MaxRetries {
		m.log.Warnw("pool slot exceeded max_retries, rebuilding", "retries", s.retries)
		fresh, rerr := m.open(ctx)
		if rerr == nil {
			_ = s.adapter.Close()
			s.adapter = fresh
			s.retries = 0
		} else {
			m.log.Errorw("pool slot rebuild failed", "error", rerr)
		}
	}
	return nil, err
}

// keepalive ticks at cfg.KeepaliveInterval, probing every currently idle slot's liveness
// concurrently (bounded by the ants pool sized to the slot count) for as long as the manager
// is open (spec §4.F).
func (m *multiManager) keepalive(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.probeIdleSlots(ctx)
		}
	}
}

func (m *multiManager) probeIdleSlots(ctx context.Context) {
	n := len(m.slots)
	idle := make([]int, 0, n)
	for i := 0; i < n; i++ {
		select {
		case idx := <-m.free:
			idle = append(idle, idx)
		default:
		}
	}
	defer func() {
		for _, idx := range idle {
			m.free <- idx
		}
	}()

	var wg sync.WaitGroup
	for _, idx := range idle {
		s := m.slots[idx]
		wg.Add(1)
		_ = m.probes.Submit(func() {
			defer wg.Done()
			if _, err := s.adapter.ServerVersion(ctx); err != nil {
				m.log.Warnw("pool keepalive probe failed", "error", err)
			}
		})
	}
	wg.Wait()
}

func (m *multiManager) close() error {
	m.closeOnce.Do(func() { close(m.done) })
	m.probes.Release()
	var firstErr error
	for _, s := range m.slots {
		if err := s.adapter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
