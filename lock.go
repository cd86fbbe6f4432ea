package rtm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rtmkit/rtm/internal/timers"
)

const (
	minLockTTL     = 10 * time.Second
	maxLockTTL     = 300 * time.Second
	defaultLockTTL = 10 * time.Second
)

// lockTTL clamps a requested TTL into the allowed window and returns it
// in whole seconds. Zero means the default.
func lockTTL(d time.Duration) int64 {
	if d == 0 {
		d = defaultLockTTL
	}
	if d < minLockTTL {
		d = minLockTTL
	}
	if d > maxLockTTL {
		d = maxLockTTL
	}
	return int64(d / time.Second)
}

type lockKey struct {
	channelName string
	channelType ChannelType
	lockName    string
}

// lockWaiter is one retrying acquire attempt blocked on a busy lock.
// wake nudges it when the lock may have become free, cancel aborts it
// when the channel subscription goes away.
type lockWaiter struct {
	key        lockKey
	wake       chan struct{}
	cancel     chan struct{}
	cancelOnce sync.Once
}

func (w *lockWaiter) nudge() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *lockWaiter) abort() {
	w.cancelOnce.Do(func() { close(w.cancel) })
}

// Lock is the distributed lock API of a Client. Locks are declared per
// channel with SetLock, acquired with AcquireLock and guarded by a TTL
// grace period: a holder that goes offline keeps the lock for the TTL,
// reclaiming it on reconnect, after which the server releases it.
type Lock struct {
	client *Client

	mu      sync.Mutex
	held    map[lockKey]struct{}
	waiters []*lockWaiter
}

func newLock(c *Client) *Lock {
	return &Lock{
		client: c,
		held:   make(map[lockKey]struct{}),
	}
}

// SetLock declares a lock in a channel with the given TTL. The TTL is
// clamped to the 10s..300s window; zero means 10s.
func (l *Lock) SetLock(ctx context.Context, channelName string, channelType ChannelType, lockName string, ttl time.Duration) (*SetLockResponse, error) {
	if !validName(channelName) || !validName(lockName) {
		return nil, ErrorInvalidArgument
	}
	req := lockRequest{
		ChannelName: channelName,
		ChannelType: channelType,
		LockName:    lockName,
		TTL:         lockTTL(ttl),
	}
	return l.doLock(ctx, opSetLock, channelName, channelType, lockName, req)
}

// RemoveLock deletes a lock declaration from a channel.
func (l *Lock) RemoveLock(ctx context.Context, channelName string, channelType ChannelType, lockName string) (*RemoveLockResponse, error) {
	if !validName(channelName) || !validName(lockName) {
		return nil, ErrorInvalidArgument
	}
	req := lockRequest{
		ChannelName: channelName,
		ChannelType: channelType,
		LockName:    lockName,
	}
	resp, err := l.doLock(ctx, opRemoveLock, channelName, channelType, lockName, req)
	if err != nil {
		return nil, err
	}
	l.forget(lockKey{channelName, channelType, lockName})
	return resp, nil
}

// AcquireLockOptions customize an AcquireLock call.
type AcquireLockOptions struct {
	// Retry keeps the attempt pending while the lock is owned by
	// someone else, retrying until acquired, cancelled by an
	// unsubscribe or leave of the channel, or the context ends.
	Retry bool
}

// AcquireLock takes ownership of a lock. Without Retry a busy lock
// fails immediately with ErrorLockAlreadyOwned; with Retry the call
// blocks, re-attempting when the lock is observed free and surviving
// session reconnects in between.
func (l *Lock) AcquireLock(ctx context.Context, channelName string, channelType ChannelType, lockName string, opts *AcquireLockOptions) (*AcquireLockResponse, error) {
	if !validName(channelName) || !validName(lockName) {
		return nil, ErrorInvalidArgument
	}
	key := lockKey{channelName, channelType, lockName}
	req := lockRequest{
		ChannelName: channelName,
		ChannelType: channelType,
		LockName:    lockName,
	}
	retry := opts != nil && opts.Retry
	if !retry {
		resp, err := l.doLock(ctx, opAcquireLock, channelName, channelType, lockName, req)
		if err != nil {
			return nil, err
		}
		l.record(key)
		return resp, nil
	}

	waiter := &lockWaiter{
		key:    key,
		wake:   make(chan struct{}, 1),
		cancel: make(chan struct{}),
	}
	l.addWaiter(waiter)
	defer l.removeWaiter(waiter)

	limiter := rate.NewLimiter(rate.Every(l.client.config.LockRetryInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			// The limiter reports early when the next token would land
			// past the context deadline; surface the context error.
			<-ctx.Done()
			return nil, ctx.Err()
		}
		select {
		case <-waiter.cancel:
			return nil, ErrorLockOperationCancelled
		default:
		}
		resp, err := l.doLock(ctx, opAcquireLock, channelName, channelType, lockName, req)
		if err == nil {
			l.record(key)
			return resp, nil
		}
		if !retryableLockErr(err) {
			return nil, err
		}
		// Block until the lock is possibly free again, with a periodic
		// re-attempt as a safety net against missed events.
		tm := timers.AcquireTimer(l.client.config.LockRetryInterval)
		select {
		case <-waiter.wake:
		case <-tm.C:
		case <-waiter.cancel:
			timers.ReleaseTimer(tm)
			return nil, ErrorLockOperationCancelled
		case <-ctx.Done():
			timers.ReleaseTimer(tm)
			return nil, ctx.Err()
		}
		timers.ReleaseTimer(tm)
	}
}

// retryableLockErr reports whether a failed acquire attempt should be
// retried: the lock being busy, plus transient session conditions a
// reconnect will clear.
func retryableLockErr(err error) bool {
	switch err {
	case ErrorLockAlreadyOwned, ErrorConnectionClosed, ErrorTimeout, ErrorNotLoggedIn:
		return true
	}
	return false
}

// ReleaseLock gives up ownership of a lock held by the calling user.
func (l *Lock) ReleaseLock(ctx context.Context, channelName string, channelType ChannelType, lockName string) (*ReleaseLockResponse, error) {
	if !validName(channelName) || !validName(lockName) {
		return nil, ErrorInvalidArgument
	}
	req := lockRequest{
		ChannelName: channelName,
		ChannelType: channelType,
		LockName:    lockName,
	}
	resp, err := l.doLock(ctx, opReleaseLock, channelName, channelType, lockName, req)
	if err != nil {
		return nil, err
	}
	l.forget(lockKey{channelName, channelType, lockName})
	return resp, nil
}

// RevokeLock forcibly releases a lock held by another user.
func (l *Lock) RevokeLock(ctx context.Context, channelName string, channelType ChannelType, lockName, owner string) (*RevokeLockResponse, error) {
	if !validName(channelName) || !validName(lockName) || !validName(owner) {
		return nil, ErrorInvalidArgument
	}
	req := lockRequest{
		ChannelName: channelName,
		ChannelType: channelType,
		LockName:    lockName,
		Owner:       owner,
	}
	resp, err := l.doLock(ctx, opRevokeLock, channelName, channelType, lockName, req)
	if err != nil {
		return nil, err
	}
	if owner == l.client.userID {
		l.forget(lockKey{channelName, channelType, lockName})
	}
	return resp, nil
}

// GetLock lists all locks declared in a channel with their owners.
func (l *Lock) GetLock(ctx context.Context, channelName string, channelType ChannelType) (*GetLockResponse, error) {
	if !validName(channelName) {
		return nil, ErrorInvalidArgument
	}
	req := lockRequest{ChannelName: channelName, ChannelType: channelType}
	var resp GetLockResponse
	if err := l.client.doInto(ctx, opGetLock, req, &resp); err != nil {
		return nil, err
	}
	resp.ChannelName = channelName
	resp.ChannelType = channelType
	return &resp, nil
}

func (l *Lock) doLock(ctx context.Context, op, channelName string, channelType ChannelType, lockName string, req lockRequest) (*LockOperationResponse, error) {
	var resp LockOperationResponse
	if err := l.client.doInto(ctx, op, req, &resp); err != nil {
		return nil, err
	}
	resp.ChannelName = channelName
	resp.ChannelType = channelType
	resp.LockName = lockName
	return &resp, nil
}

// Held reports whether the calling user currently believes it owns the
// lock.
func (l *Lock) Held(channelName string, channelType ChannelType, lockName string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[lockKey{channelName, channelType, lockName}]
	return ok
}

func (l *Lock) record(key lockKey) {
	l.mu.Lock()
	l.held[key] = struct{}{}
	l.mu.Unlock()
}

func (l *Lock) forget(key lockKey) {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
}

func (l *Lock) addWaiter(w *lockWaiter) {
	l.mu.Lock()
	l.waiters = append(l.waiters, w)
	l.mu.Unlock()
}

func (l *Lock) removeWaiter(w *lockWaiter) {
	l.mu.Lock()
	for i, candidate := range l.waiters {
		if candidate == w {
			l.waiters = append(l.waiters[:i:i], l.waiters[i+1:]...)
			break
		}
	}
	l.mu.Unlock()
}

// processEvent reacts to lock pushes: waiters blocked on a lock get
// nudged when it may have become free, and holds disproved by a
// snapshot are dropped. Runs on the dispatcher goroutine.
func (l *Lock) processEvent(e *LockEvent) {
	switch e.EventType {
	case LockEventReleased, LockEventExpired, LockEventRemoved:
		key := lockKey{e.ChannelName, e.ChannelType, e.LockName}
		if e.EventType != LockEventReleased || e.Publisher != l.client.userID {
			l.forget(key)
		}
		l.nudgeWaiters(key)
	case LockEventSnapshot:
		l.reconcileSnapshot(e)
	}
}

func (l *Lock) nudgeWaiters(key lockKey) {
	l.mu.Lock()
	for _, w := range l.waiters {
		if w.key == key {
			w.nudge()
		}
	}
	l.mu.Unlock()
}

// reconcileSnapshot aligns local state with the server's full lock
// table: holds the snapshot attributes to someone else are dropped,
// waiters on locks shown free are nudged.
func (l *Lock) reconcileSnapshot(e *LockEvent) {
	owners := make(map[lockKey]string, len(e.Snapshot))
	for _, detail := range e.Snapshot {
		owners[lockKey{e.ChannelName, e.ChannelType, detail.LockName}] = detail.Owner
	}
	l.mu.Lock()
	for key := range l.held {
		if key.channelName != e.ChannelName || key.channelType != e.ChannelType {
			continue
		}
		if owner, ok := owners[key]; !ok || owner != l.client.userID {
			delete(l.held, key)
		}
	}
	for _, w := range l.waiters {
		if owner, ok := owners[w.key]; ok && owner == "" {
			w.nudge()
		}
	}
	l.mu.Unlock()
}

// cancelChannel aborts all retrying acquire attempts waiting on locks
// of one channel. Called on unsubscribe and leave.
func (l *Lock) cancelChannel(channelName string, channelType ChannelType) {
	l.mu.Lock()
	for _, w := range l.waiters {
		if w.key.channelName == channelName && w.key.channelType == channelType {
			w.abort()
		}
	}
	l.mu.Unlock()
}

// heldSnapshot returns the currently held lock keys for replay.
func (l *Lock) heldSnapshot() []lockKey {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]lockKey, 0, len(l.held))
	for key := range l.held {
		out = append(out, key)
	}
	return out
}

// replay re-acquires held locks after a reconnect, inside the server's
// TTL grace window. A hold that can not be re-acquired is dropped.
func (l *Lock) replay() {
	for _, key := range l.heldSnapshot() {
		req := lockRequest{
			ChannelName: key.channelName,
			ChannelType: key.channelType,
			LockName:    key.lockName,
		}
		if _, err := l.doLock(context.Background(), opAcquireLock, key.channelName, key.channelType, key.lockName, req); err != nil {
			l.forget(key)
			l.client.log(LogLevelError, "lock re-acquire failed", map[string]any{
				"channel": key.channelName, "lock": key.lockName, "error": err.Error(),
			})
		}
	}
}

// reset drops all holds and aborts all waiters on session teardown.
func (l *Lock) reset() {
	l.mu.Lock()
	l.held = make(map[lockKey]struct{})
	waiters := l.waiters
	l.mu.Unlock()
	for _, w := range waiters {
		w.abort()
	}
}
