package rtm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"

	"github.com/rtmkit/rtm/internal/timers"
)

type opResult struct {
	body json.RawMessage
	err  error
}

type pendingOp struct {
	op     string
	issued time.Time
	result chan opResult
}

// correlator maps outbound operations to pending result channels. Every
// request gets a locally unique id; a matching server reply resolves the
// entry, session teardown fails all of them at once so no operation is
// ever left dangling.
type correlator struct {
	mu  sync.Mutex
	ops map[string]*pendingOp
}

func newCorrelator() *correlator {
	return &correlator{
		ops: make(map[string]*pendingOp),
	}
}

// register creates a pending entry and returns its correlation id.
func (r *correlator) register(op string) (string, chan opResult) {
	id := uuid.NewString()
	pending := &pendingOp{
		op:     op,
		issued: time.Now(),
		result: make(chan opResult, 1),
	}
	r.mu.Lock()
	r.ops[id] = pending
	r.mu.Unlock()
	return id, pending.result
}

// resolve completes the pending entry for id. Returns false when no
// entry exists, which happens for replies arriving after a timeout or
// teardown.
func (r *correlator) resolve(id string, body json.RawMessage, err error) bool {
	r.mu.Lock()
	pending, ok := r.ops[id]
	if ok {
		delete(r.ops, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	pending.result <- opResult{body: body, err: err}
	return true
}

// discard removes a pending entry without completing it. Used by the
// waiter itself on timeout or context cancellation.
func (r *correlator) discard(id string) {
	r.mu.Lock()
	delete(r.ops, id)
	r.mu.Unlock()
}

// failAll fails every pending entry with err. Called on any drop of the
// session connection.
func (r *correlator) failAll(err error) {
	r.mu.Lock()
	ops := r.ops
	r.ops = make(map[string]*pendingOp)
	r.mu.Unlock()
	for _, pending := range ops {
		pending.result <- opResult{err: err}
	}
}

func (r *correlator) pendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

// await blocks until the pending operation resolves, times out or the
// context is cancelled.
func (r *correlator) await(ctx context.Context, id string, result chan opResult, timeout time.Duration) (json.RawMessage, error) {
	tm := timers.AcquireTimer(timeout)
	defer timers.ReleaseTimer(tm)
	select {
	case res := <-result:
		return res.body, res.err
	case <-tm.C:
		r.discard(id)
		return nil, ErrorTimeout
	case <-ctx.Done():
		r.discard(id)
		return nil, ctx.Err()
	}
}
