package pool_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/forbearing/polydb/adapter"
	"github.com/forbearing/polydb/config"
	"github.com/forbearing/polydb/dberrors"
	"github.com/forbearing/polydb/logger"
	"github.com/forbearing/polydb/metrics"
	"github.com/forbearing/polydb/model"
	"github.com/forbearing/polydb/pool"
	"github.com/forbearing/polydb/query"
	"github.com/forbearing/polydb/value"
)

// fakeAdapter is a minimal adapter.Adapter whose ServerVersion/Count behavior can be scripted,
// used to drive the worker/manager state machines without a live backend.
type fakeAdapter struct {
	versionCalls  int32
	countCalls    int32
	failCountN    int32 // Count fails for the first N calls, then succeeds
	failVersionOn int32 // when > 0, ServerVersion fails while versionCalls <= this value
	failValidate  bool  // when true, Count always fails with a non-transient ValidationError
	closed        int32
}

func (f *fakeAdapter) Create(ctx context.Context, table string, meta *model.ModelMeta, rec adapter.Record) (value.Value, error) {
	return value.Int(1), nil
}
func (f *fakeAdapter) FindByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value) (adapter.Record, bool, error) {
	return nil, false, nil
}
func (f *fakeAdapter) Find(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, opts query.Options) ([]adapter.Record, error) {
	return nil, nil
}
func (f *fakeAdapter) Update(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, set adapter.Record) (int64, error) {
	return 0, nil
}
func (f *fakeAdapter) UpdateByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value, set adapter.Record) (bool, error) {
	return false, nil
}
func (f *fakeAdapter) UpdateWithOperations(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, ops []query.UpdateOperation) (int64, error) {
	return 0, nil
}
func (f *fakeAdapter) Delete(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (int64, error) {
	return 0, nil
}
func (f *fakeAdapter) DeleteByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value) (bool, error) {
	return false, nil
}
func (f *fakeAdapter) Count(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (int64, error) {
	n := atomic.AddInt32(&f.countCalls, 1)
	if f.failValidate {
		return 0, dberrors.NewValidationError("where", "unsafe identifier")
	}
	if n <= f.failCountN {
		return 0, errTransient
	}
	return 1, nil
}
func (f *fakeAdapter) Exists(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (bool, error) {
	return false, nil
}
func (f *fakeAdapter) CreateTable(ctx context.Context, table string, meta *model.ModelMeta) error {
	return nil
}
func (f *fakeAdapter) CreateIndex(ctx context.Context, table string, idx model.IndexDefinition) error {
	return nil
}
func (f *fakeAdapter) TableExists(ctx context.Context, table string) (bool, error) { return true, nil }
func (f *fakeAdapter) DropTable(ctx context.Context, table string) error           { return nil }
func (f *fakeAdapter) ServerVersion(ctx context.Context) (string, error) {
	n := atomic.AddInt32(&f.versionCalls, 1)
	if n <= f.failVersionOn {
		return "", errTransient
	}
	return "fake-1.0", nil
}
func (f *fakeAdapter) Close() error {
	atomic.AddInt32(&f.closed, 1)
	return nil
}

type transientError struct{ msg string }

func (e *transientError) Error() string { return e.msg }

var errTransient = &transientError{"transient failure"}

func testPoolConfig() config.PoolConfig {
	return config.PoolConfig{
		MinConnections:     1,
		MaxConnections:     3,
		MaxRetries:         2,
		RetryInterval:      time.Millisecond,
		KeepaliveInterval:  0,
		HealthCheckTimeout: time.Hour, // effectively disabled unless a test wants it
	}
}

func TestPool_SQLiteWorker_DispatchSucceeds(t *testing.T) {
	fa := &fakeAdapter{}
	p, err := pool.Open(context.Background(), "test", config.SQLite, testPoolConfig(), func(ctx context.Context) (adapter.Adapter, error) {
		return fa, nil
	}, logger.Pool, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	n, err := p.Count(context.Background(), "users", nil, query.ConditionGroup{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected count 1, got %d", n)
	}
}

func TestPool_SQLiteWorker_RetriesTransientFailure(t *testing.T) {
	fa := &fakeAdapter{failCountN: 2} // fails twice, succeeds on 3rd (within MaxRetries=2 => attempts 0,1,2)
	p, err := pool.Open(context.Background(), "test", config.SQLite, testPoolConfig(), func(ctx context.Context) (adapter.Adapter, error) {
		return fa, nil
	}, logger.Pool, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	n, err := p.Count(context.Background(), "users", nil, query.ConditionGroup{})
	if err != nil {
		t.Fatalf("Count should eventually succeed after retries: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected count 1, got %d", n)
	}
	if atomic.LoadInt32(&fa.countCalls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", fa.countCalls)
	}
}

func TestPool_SQLiteWorker_ExhaustsRetriesAndFails(t *testing.T) {
	fa := &fakeAdapter{failCountN: 10}
	p, err := pool.Open(context.Background(), "test", config.SQLite, testPoolConfig(), func(ctx context.Context) (adapter.Adapter, error) {
		return fa, nil
	}, logger.Pool, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	_, err = p.Count(context.Background(), "users", nil, query.ConditionGroup{})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestPool_SQLiteWorker_DoesNotRetryValidationError(t *testing.T) {
	fa := &fakeAdapter{failValidate: true}
	p, err := pool.Open(context.Background(), "test", config.SQLite, testPoolConfig(), func(ctx context.Context) (adapter.Adapter, error) {
		return fa, nil
	}, logger.Pool, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	_, err = p.Count(context.Background(), "users", nil, query.ConditionGroup{})
	var ve *dberrors.ValidationError
	if !dberrors.As(err, &ve) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
	if atomic.LoadInt32(&fa.countCalls) != 1 {
		t.Fatalf("expected exactly 1 attempt (no retries) for a ValidationError, got %d", fa.countCalls)
	}
}

func TestPool_MultiManager_DoesNotRetryValidationError(t *testing.T) {
	fa := &fakeAdapter{failValidate: true}
	p, err := pool.Open(context.Background(), "test", config.PostgreSQL, testPoolConfig(), func(ctx context.Context) (adapter.Adapter, error) {
		return fa, nil
	}, logger.Pool, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	_, err = p.Count(context.Background(), "users", nil, query.ConditionGroup{})
	var ve *dberrors.ValidationError
	if !dberrors.As(err, &ve) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
	if atomic.LoadInt32(&fa.countCalls) != 1 {
		t.Fatalf("expected exactly 1 attempt (no retry/rebuild) for a ValidationError, got %d", fa.countCalls)
	}
}

func TestPool_SQLiteWorker_CloseStopsDispatch(t *testing.T) {
	fa := &fakeAdapter{}
	p, err := pool.Open(context.Background(), "test", config.SQLite, testPoolConfig(), func(ctx context.Context) (adapter.Adapter, error) {
		return fa, nil
	}, logger.Pool, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if atomic.LoadInt32(&fa.closed) != 1 {
		t.Fatalf("expected underlying adapter closed once, got %d", fa.closed)
	}
	if _, err := p.Count(context.Background(), "users", nil, query.ConditionGroup{}); err == nil {
		t.Fatal("expected an error from an operation dispatched after Close")
	}
}

func TestPool_ObservesOperationLatency(t *testing.T) {
	m := metrics.New()
	fa := &fakeAdapter{}
	p, err := pool.Open(context.Background(), "test", config.SQLite, testPoolConfig(), func(ctx context.Context) (adapter.Adapter, error) {
		return fa, nil
	}, logger.Pool, m)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	if _, err := p.Count(context.Background(), "users", nil, query.ConditionGroup{}); err != nil {
		t.Fatalf("Count: %v", err)
	}
	if got := testutil.CollectAndCount(m.OperationLatency); got != 1 {
		t.Fatalf("expected 1 operation-latency series, got %d", got)
	}
}

func TestPool_MultiManager_DispatchSucceeds(t *testing.T) {
	fa := &fakeAdapter{}
	p, err := pool.Open(context.Background(), "test", config.PostgreSQL, testPoolConfig(), func(ctx context.Context) (adapter.Adapter, error) {
		return fa, nil
	}, logger.Pool, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	n, err := p.Count(context.Background(), "users", nil, query.ConditionGroup{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected count 1, got %d", n)
	}
}

// blockingAdapter holds its one in-flight call open until release is closed, so a test can
// deterministically pin the multi-connection manager's single slot.
type blockingAdapter struct {
	fakeAdapter
	started chan struct{}
	release chan struct{}
}

func (b *blockingAdapter) Find(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, opts query.Options) ([]adapter.Record, error) {
	close(b.started)
	<-b.release
	return nil, nil
}

func TestPool_MultiManager_AllConnectionsInUse(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MinConnections = 1
	cfg.MaxConnections = 1

	ba := &blockingAdapter{started: make(chan struct{}), release: make(chan struct{})}
	p, err := pool.Open(context.Background(), "test", config.MySQL, cfg, func(ctx context.Context) (adapter.Adapter, error) {
		return ba, nil
	}, logger.Pool, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() {
		select {
		case <-ba.release:
		default:
			close(ba.release)
		}
		p.Close()
	}()

	go func() {
		_, _ = p.Find(context.Background(), "users", nil, query.ConditionGroup{}, query.Options{})
	}()

	select {
	case <-ba.started:
	case <-time.After(2 * time.Second):
		t.Fatal("blocking Find never started")
	}

	_, err = p.Count(context.Background(), "users", nil, query.ConditionGroup{})
	if err == nil {
		t.Fatal("expected 'all connections in use' error while the only slot is busy")
	}

	close(ba.release)
}
