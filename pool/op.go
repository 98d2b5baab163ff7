// Package pool implements spec §4.F/§4.G/§5: the SQLite single-threaded worker, the
// MySQL/PostgreSQL/MongoDB multi-connection manager, and the pool facade unifying both behind
// the adapter.Adapter interface so registry/odm never touch a native driver or a worker
// mailbox directly. Grounded on original_source/src/pool/{sqlite_worker,
// multi_connection_manager,pool}.rs's task/mailbox/slot vocabulary, translated from Rust's
// async-task-plus-oneshot-channel idiom to Go's goroutine-plus-channel idiom: a "task" becomes
// a goroutine, a "mailbox" a channel of opRequest buffered to 4096 requests (a send waits while
// it is full), and a "oneshot reply" a single-use result channel.
package pool

import (
	"context"

	"github.com/forbearing/polydb/adapter"
)

// opRequest is one operation message: a closure over the concrete Adapter call plus a
// single-shot reply channel, exactly as spec §4.G describes the facade's message shape.
type opRequest struct {
	ctx   context.Context
	fn    func(adapter.Adapter) (any, error)
	reply chan opReply
}

type opReply struct {
	val any
	err error
}

// dispatcher is what the facade (Pool) pushes operations through; sqliteWorker and
// multiManager are the two implementations spec §4.F names.
type dispatcher interface {
	dispatch(ctx context.Context, fn func(adapter.Adapter) (any, error)) (any, error)
	close() error
}
