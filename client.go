package rtm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"
	"golang.org/x/sync/errgroup"

	"github.com/rtmkit/rtm/internal/queue"
)

// replayConcurrency caps parallel re-subscribe requests after reconnect.
const replayConcurrency = 8

// Client is a stateful RTM session: it logs a user into the messaging
// backbone, maintains channel and topic subscriptions, exchanges ordered
// messages and layers presence, metadata storage and distributed locks
// over the session. All public operations are safe for concurrent use;
// each issues an independent correlated request.
type Client struct {
	mu sync.RWMutex
	// transitionMu serializes state transitions together with their
	// status event emission so listeners observe transitions in order.
	transitionMu sync.Mutex

	appID  string
	userID string
	config Config
	token  string

	logger  *logger
	metrics *metrics

	state ConnState
	// syncState lags state until the post-reconnect subscription replay
	// has completed, gating consumers that need a fully synced view.
	syncState ConnState

	conn      Conn
	connEpoch uint64
	dispatch  *queue.Queue
	// pendingDisconnect carries a server-pushed disconnect reason to the
	// read loop teardown path for the current epoch.
	pendingDisconnect *Disconnect

	corr     *correlator
	registry *subscriptionRegistry
	hub      *eventHub

	loginWaiters  []chan error
	loginInFlight bool
	logoutFlag    bool

	// firstSubscribeChannel and firstSubscribeUser track which metadata
	// scopes have already delivered their initial snapshot, so later
	// partial pushes are distinguishable from the first full view.
	firstSubscribeChannel map[string]struct{}
	firstSubscribeUser    map[string]struct{}

	streamChannels map[string]*StreamChannel

	// Presence exposes presence queries and user state operations.
	Presence *Presence
	// Storage exposes channel and user metadata operations.
	Storage *Storage
	// Lock exposes distributed lock operations.
	Lock *Lock
}

// New creates a Client session for appID and userID. The returned
// client is DISCONNECTED until Login.
func New(appID, userID string, cfg Config) (*Client, error) {
	if !validName(appID) || !validName(userID) {
		return nil, ErrorInvalidArgument
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	var lg *logger
	if cfg.LogHandler != nil {
		lg = newLogger(cfg.LogLevel, cfg.LogHandler)
	}
	c := &Client{
		appID:                 appID,
		userID:                userID,
		config:                cfg,
		token:                 cfg.Token,
		logger:                lg,
		metrics:               newMetrics(cfg.MetricsNamespace),
		state:                 StateDisconnected,
		syncState:             StateDisconnected,
		corr:                  newCorrelator(),
		registry:              newSubscriptionRegistry(cfg.ChannelLimit),
		hub:                   newEventHub(),
		firstSubscribeChannel: make(map[string]struct{}),
		firstSubscribeUser:    make(map[string]struct{}),
		streamChannels:        make(map[string]*StreamChannel),
	}
	if cfg.MetricsRegisterer != nil {
		if err := c.metrics.register(cfg.MetricsRegisterer); err != nil {
			return nil, err
		}
	}
	presence, err := newPresence(c)
	if err != nil {
		return nil, err
	}
	c.Presence = presence
	c.Storage = newStorage(c)
	c.Lock = newLock(c)
	return c, nil
}

// AppID returns the application ID of the session.
func (c *Client) AppID() string { return c.appID }

// UserID returns the user ID the session was created with.
func (c *Client) UserID() string { return c.userID }

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SyncState returns the secondary connection state that only reaches
// CONNECTED once the post-reconnect subscription replay has completed.
func (c *Client) SyncState() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.syncState
}

// OnStatus registers a listener for connection state transitions.
func (c *Client) OnStatus(fn func(StatusEvent)) ListenerHandle {
	return c.hub.add(eventStatus, fn)
}

// OnMessage registers a listener for inbound channel and topic messages.
func (c *Client) OnMessage(fn func(MessageEvent)) ListenerHandle {
	return c.hub.add(eventMessage, fn)
}

// OnPresence registers a listener for presence pushes.
func (c *Client) OnPresence(fn func(PresenceEvent)) ListenerHandle {
	return c.hub.add(eventPresence, fn)
}

// OnStorage registers a listener for metadata pushes.
func (c *Client) OnStorage(fn func(StorageEvent)) ListenerHandle {
	return c.hub.add(eventStorage, fn)
}

// OnLock registers a listener for lock pushes.
func (c *Client) OnLock(fn func(LockEvent)) ListenerHandle {
	return c.hub.add(eventLock, fn)
}

// OnTopic registers a listener for topic membership pushes.
func (c *Client) OnTopic(fn func(TopicEvent)) ListenerHandle {
	return c.hub.add(eventTopic, fn)
}

// OnTokenWillExpire registers a listener for the token expiry warning.
func (c *Client) OnTokenWillExpire(fn func(TokenWillExpireEvent)) ListenerHandle {
	return c.hub.add(eventTokenWillExpire, fn)
}

// Off removes a previously registered listener by handle identity.
func (c *Client) Off(handle ListenerHandle) {
	c.hub.remove(handle)
}

// setState performs a state machine transition and emits the status
// event, holding transitionMu so events are observed in transition
// order. Invalid transitions are dropped with an error log.
func (c *Client) setState(to ConnState, reason ConnectionChangeReason) bool {
	c.transitionMu.Lock()
	defer c.transitionMu.Unlock()
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return false
	}
	if !validTransition(from, to) {
		c.mu.Unlock()
		c.log(LogLevelError, "invalid state transition", map[string]any{
			"from": from.String(), "to": to.String(), "reason": string(reason),
		})
		return false
	}
	c.state = to
	if to != StateConnected {
		c.syncState = to
	}
	c.mu.Unlock()
	c.metrics.setState(to)
	c.log(LogLevelDebug, "connection state changed", map[string]any{
		"state": to.String(), "reason": string(reason),
	})
	c.hub.emitStatus(StatusEvent{State: to, Reason: reason})
	return true
}

func (c *Client) log(level LogLevel, message string, fields ...map[string]any) {
	c.logger.log(level, message, fields...)
}

// Login logs the session into the RTM backbone. It is idempotent:
// calling Login while CONNECTED resolves immediately, while a handshake
// is in flight the call attaches to the in-flight attempt.
func (c *Client) Login(ctx context.Context) (*LoginResponse, error) {
	c.mu.Lock()
	switch {
	case c.state == StateConnected:
		c.mu.Unlock()
		return &LoginResponse{}, nil
	case c.state == StateFailed:
		c.mu.Unlock()
		return nil, ErrorLoginRejected
	case c.state == StateConnecting || c.state == StateReconnecting || c.loginInFlight:
		waiter := make(chan error, 1)
		c.loginWaiters = append(c.loginWaiters, waiter)
		c.mu.Unlock()
		select {
		case err := <-waiter:
			if err != nil {
				return nil, err
			}
			return &LoginResponse{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.loginInFlight = true
	c.logoutFlag = false
	c.mu.Unlock()

	c.setState(StateConnecting, ReasonConnecting)
	resp, _, err := c.connect(ctx, false)
	if err != nil {
		reason := ReasonRejectedByServer
		switch {
		case errors.Is(err, ErrorTimeout), errors.Is(err, context.DeadlineExceeded):
			reason = ReasonLost
			err = ErrorTimeout
		case errors.Is(err, ErrorConnectionClosed):
			reason = ReasonLost
		}
		c.teardownConn()
		c.setState(StateDisconnected, reason)
		c.resolveLoginWaiters(err)
		return nil, toClientErr(err)
	}
	c.setState(StateConnected, ReasonLoginSuccess)
	c.mu.Lock()
	c.syncState = StateConnected
	c.mu.Unlock()
	c.resolveLoginWaiters(nil)
	return resp, nil
}

// connect dials the transport and performs the login handshake. On
// success the read and dispatch loops for the new connection are
// running and c.conn is set. The returned epoch names the connection
// so callers can tear down exactly the one they created; zero means no
// connection was established.
func (c *Client) connect(ctx context.Context, reconnect bool) (*LoginResponse, uint64, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.config.LoginTimeout)
	defer cancel()
	conn, err := c.config.Transport.Connect(dialCtx, c.config.Endpoint)
	if err != nil {
		if dialCtx.Err() != nil {
			return nil, 0, ErrorTimeout
		}
		return nil, 0, ErrorLoginRejected
	}

	c.mu.Lock()
	c.connEpoch++
	epoch := c.connEpoch
	c.conn = conn
	c.pendingDisconnect = nil
	dispatch := queue.New(16)
	c.dispatch = dispatch
	token := c.token
	c.mu.Unlock()

	go c.readLoop(conn, epoch)
	go c.dispatchLoop(dispatch)

	req := loginRequest{
		AppID:           c.appID,
		UserID:          c.userID,
		Token:           token,
		EncryptionMode:  string(c.config.EncryptionMode),
		PresenceTimeout: int64(c.config.PresenceTimeout / time.Second),
		UseStringUserID: c.config.UseStringUserID,
		CloudProxy:      c.config.CloudProxy,
		Reconnect:       reconnect,
	}
	id, result := c.corr.register(opLogin)
	data, err := encodeCommand(id, opLogin, req)
	if err != nil {
		c.corr.discard(id)
		return nil, epoch, toClientErr(err)
	}
	if err := conn.Send(data); err != nil {
		c.corr.discard(id)
		return nil, epoch, ErrorConnectionClosed
	}
	body, err := c.corr.await(ctx, id, result, c.config.LoginTimeout)
	if err != nil {
		return nil, epoch, err
	}
	var resp LoginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, epoch, toClientErr(err)
	}
	return &resp, epoch, nil
}

func (c *Client) resolveLoginWaiters(err error) {
	c.mu.Lock()
	c.loginInFlight = false
	waiters := c.loginWaiters
	c.loginWaiters = nil
	c.mu.Unlock()
	for _, waiter := range waiters {
		waiter <- err
	}
}

// Logout terminates the session. It is idempotent: Logout while already
// DISCONNECTED resolves immediately. Every pending operation fails with
// a connection-closed error, the registry and lock holds are cleared.
func (c *Client) Logout(ctx context.Context) (*LogoutResponse, error) {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return &LogoutResponse{}, nil
	}
	c.logoutFlag = true
	state := c.state
	conn := c.conn
	c.mu.Unlock()

	resp := &LogoutResponse{}
	if state == StateConnected && conn != nil {
		// Best effort: tell the server we are leaving, but local
		// teardown proceeds regardless of the outcome.
		id, result := c.corr.register(opLogout)
		if data, err := encodeCommand(id, opLogout, nil); err == nil {
			if err := conn.Send(data); err == nil {
				if body, err := c.corr.await(ctx, id, result, c.config.OperationTimeout); err == nil {
					_ = json.Unmarshal(body, resp)
				}
			} else {
				c.corr.discard(id)
			}
		} else {
			c.corr.discard(id)
		}
	}
	c.teardownSession()
	c.setState(StateDisconnected, ReasonLogout)
	c.resolveLoginWaiters(ErrorConnectionClosed)
	return resp, nil
}

// teardownConn closes the current connection and dispatch queue without
// touching session bookkeeping.
func (c *Client) teardownConn() {
	c.mu.Lock()
	conn := c.conn
	dispatch := c.dispatch
	c.conn = nil
	c.dispatch = nil
	c.connEpoch++
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if dispatch != nil {
		dispatch.Close()
	}
	c.corr.failAll(ErrorConnectionClosed)
}

// teardownConnIf tears down the connection of the given epoch, if it is
// still the current one. A newer connection established by a concurrent
// Login is left untouched.
func (c *Client) teardownConnIf(epoch uint64) {
	c.mu.Lock()
	if epoch == 0 || epoch != c.connEpoch {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	dispatch := c.dispatch
	c.conn = nil
	c.dispatch = nil
	c.connEpoch++
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if dispatch != nil {
		dispatch.Close()
	}
	c.corr.failAll(ErrorConnectionClosed)
}

// teardownSession tears the connection down and clears all session
// scoped bookkeeping: registry, lock holds and waiters, presence cache,
// snapshot tracking.
func (c *Client) teardownSession() {
	c.teardownConn()
	c.Lock.reset()
	c.Presence.reset()
	c.mu.Lock()
	c.firstSubscribeChannel = make(map[string]struct{})
	c.firstSubscribeUser = make(map[string]struct{})
	c.mu.Unlock()
	c.registry.clear()
	for _, sc := range c.snapshotStreamChannels() {
		sc.markLeft()
	}
}

func (c *Client) snapshotStreamChannels() []*StreamChannel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*StreamChannel, 0, len(c.streamChannels))
	for _, sc := range c.streamChannels {
		out = append(out, sc)
	}
	return out
}

// readLoop reads frames from one connection until it breaks. Replies go
// straight to the correlator; pushes are queued for the dispatcher so a
// slow listener never blocks the transport.
func (c *Client) readLoop(conn Conn, epoch uint64) {
	for {
		data, err := conn.Read()
		if err != nil {
			c.handleConnError(epoch)
			return
		}
		frame, err := decodeServerFrame(data)
		if err != nil {
			c.log(LogLevelError, "can not decode frame", map[string]any{"error": err.Error()})
			continue
		}
		if frame.ID != "" {
			var opErr error
			if frame.Code != 0 {
				opErr = errorFromCode(frame.Code, frame.Message, frame.Temporary)
			}
			c.corr.resolve(frame.ID, frame.Body, opErr)
			continue
		}
		if frame.Push == pushDisconnect {
			var d Disconnect
			if err := json.Unmarshal(frame.Body, &d); err == nil {
				c.mu.Lock()
				if epoch == c.connEpoch {
					c.pendingDisconnect = &d
				}
				c.mu.Unlock()
			}
			// The server closes the transport after a disconnect push;
			// teardown happens when Read fails.
			continue
		}
		c.metrics.incPush(frame.Push)
		c.mu.RLock()
		dispatch := c.dispatch
		stale := epoch != c.connEpoch
		c.mu.RUnlock()
		if stale || dispatch == nil {
			return
		}
		dispatch.Add(queue.Item{Type: frame.Push, Data: frame.Body})
	}
}

// handleConnError handles a broken connection for the given epoch:
// depending on the server-provided reason the session reconnects, fails
// or finishes a logout already in progress.
func (c *Client) handleConnError(epoch uint64) {
	c.mu.Lock()
	if epoch != c.connEpoch {
		// A newer connection exists, nothing to do for this one.
		c.mu.Unlock()
		return
	}
	if c.logoutFlag {
		c.mu.Unlock()
		return
	}
	d := c.pendingDisconnect
	c.mu.Unlock()
	if d == nil {
		d = DisconnectInterrupted
	}

	if d.Reconnect {
		if c.setState(StateReconnecting, d.Reason) {
			c.teardownConn()
			go c.reconnectLoop()
		} else {
			// A handshake was in flight; fail it fast instead of letting
			// it run into the login timeout.
			c.corr.failAll(ErrorConnectionClosed)
		}
		return
	}
	c.teardownSession()
	switch d.Reason {
	case ReasonTokenExpired, ReasonUIDBanned, ReasonSameUIDLogin, ReasonRejectedByServer:
		c.setState(StateFailed, d.Reason)
	default:
		c.setState(StateDisconnected, d.Reason)
	}
	c.resolveLoginWaiters(disconnectError(d))
}

// disconnectError maps a fatal disconnect to the operation error
// returned to callers waiting on the session.
func disconnectError(d *Disconnect) *Error {
	switch d.Reason {
	case ReasonTokenExpired:
		return ErrorTokenExpired
	case ReasonUIDBanned:
		return ErrorUserBanned
	case ReasonSameUIDLogin:
		return ErrorSameUIDLogin
	default:
		return ErrorConnectionClosed
	}
}

// reconnectLoop re-establishes an interrupted session, then replays the
// subscription registry and re-enters held locks.
func (c *Client) reconnectLoop() {
	for {
		time.Sleep(c.config.ReconnectDelay)
		c.mu.RLock()
		state := c.state
		c.mu.RUnlock()
		if state != StateReconnecting {
			return
		}
		_, epoch, err := c.connect(context.Background(), true)
		if err != nil {
			c.teardownConnIf(epoch)
			if fatal, reason := fatalLoginError(err); fatal {
				c.teardownSession()
				c.setState(StateFailed, reason)
				c.resolveLoginWaiters(err)
				return
			}
			c.log(LogLevelInfo, "reconnect attempt failed", map[string]any{"error": err.Error()})
			continue
		}
		if !c.setState(StateConnected, ReasonLoginSuccess) {
			// Logout landed while the handshake was in flight; drop the
			// fresh connection instead of resurrecting the session.
			c.teardownConnIf(epoch)
			return
		}
		c.metrics.reconnectCount.Inc()
		c.resolveLoginWaiters(nil)
		c.replay()
		return
	}
}

// fatalLoginError classifies re-login failures that must stop the
// reconnect loop and fail the session.
func fatalLoginError(err error) (bool, ConnectionChangeReason) {
	var clientErr *Error
	if !errors.As(err, &clientErr) {
		return false, ""
	}
	switch clientErr {
	case ErrorTokenExpired:
		return true, ReasonTokenExpired
	case ErrorUserBanned:
		return true, ReasonUIDBanned
	case ErrorSameUIDLogin:
		return true, ReasonSameUIDLogin
	case ErrorLoginRejected:
		return true, ReasonRejectedByServer
	}
	return false, ""
}

// replay re-subscribes every registry entry, re-joins stream channels
// with their topics and re-enters held locks after a reconnect. Partial
// failures are counted and logged, never aborting the rest of the
// replay. syncState reaches CONNECTED only when replay is done.
func (c *Client) replay() {
	var failures int64
	var failuresMu sync.Mutex
	addFailure := func(channel string, err error) {
		failuresMu.Lock()
		failures++
		failuresMu.Unlock()
		c.log(LogLevelError, "subscription replay failed", map[string]any{
			"channel": channel, "error": err.Error(),
		})
	}

	var g errgroup.Group
	g.SetLimit(replayConcurrency)
	for _, entry := range c.registry.channelSnapshot() {
		entry := entry
		g.Go(func() error {
			req := subscribeRequest{ChannelName: entry.channelName, Add: entry.features.names()}
			if _, err := c.do(context.Background(), opSubscribe, req); err != nil {
				addFailure(entry.channelName, err)
			}
			return nil
		})
	}
	for _, userID := range c.registry.userMetaSnapshot() {
		userID := userID
		g.Go(func() error {
			req := userMetadataSubRequest{UserID: userID}
			if _, err := c.do(context.Background(), opSubscribeUserMeta, req); err != nil {
				addFailure("user:"+userID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, sc := range c.snapshotStreamChannels() {
		if err := sc.replay(); err != nil {
			addFailure(sc.ChannelName(), err)
		}
	}
	c.Lock.replay()

	if failures > 0 {
		c.metrics.replayFailureCount.Add(float64(failures))
		c.log(LogLevelError, "subscription replay finished with failures", map[string]any{
			"failures": failures,
		})
	}
	c.mu.Lock()
	if c.state == StateConnected {
		c.syncState = StateConnected
	}
	c.mu.Unlock()
}

// dispatchLoop drains the push queue of one connection, updating local
// caches and invoking listeners on a single goroutine so per-channel
// event order is preserved.
func (c *Client) dispatchLoop(q *queue.Queue) {
	for {
		if ok := q.Wait(); !ok {
			return
		}
		item, ok := q.Remove()
		if !ok {
			if q.Closed() {
				return
			}
			continue
		}
		c.handlePush(item.Type, item.Data)
	}
}

func (c *Client) handlePush(pushType string, body []byte) {
	switch pushType {
	case pushMessage:
		var e MessageEvent
		if err := json.Unmarshal(body, &e); err != nil {
			c.log(LogLevelError, "can not decode message push", map[string]any{"error": err.Error()})
			return
		}
		c.hub.emitMessage(e)
	case pushPresence:
		var e PresenceEvent
		if err := json.Unmarshal(body, &e); err != nil {
			c.log(LogLevelError, "can not decode presence push", map[string]any{"error": err.Error()})
			return
		}
		c.Presence.processEvent(&e)
		c.hub.emitPresence(e)
	case pushStorage:
		var e StorageEvent
		if err := json.Unmarshal(body, &e); err != nil {
			c.log(LogLevelError, "can not decode storage push", map[string]any{"error": err.Error()})
			return
		}
		c.Storage.processEvent(&e)
		c.hub.emitStorage(e)
	case pushLock:
		var e LockEvent
		if err := json.Unmarshal(body, &e); err != nil {
			c.log(LogLevelError, "can not decode lock push", map[string]any{"error": err.Error()})
			return
		}
		c.Lock.processEvent(&e)
		c.hub.emitLock(e)
	case pushTopic:
		var e TopicEvent
		if err := json.Unmarshal(body, &e); err != nil {
			c.log(LogLevelError, "can not decode topic push", map[string]any{"error": err.Error()})
			return
		}
		c.handleTopicEvent(&e)
		c.hub.emitTopic(e)
	case pushTokenWillExpire:
		var e TokenWillExpireEvent
		_ = json.Unmarshal(body, &e)
		c.hub.emitTokenWillExpire(e)
	default:
		c.log(LogLevelDebug, "unknown push type", map[string]any{"type": pushType})
	}
}

func (c *Client) handleTopicEvent(e *TopicEvent) {
	c.mu.RLock()
	sc, ok := c.streamChannels[e.ChannelName]
	c.mu.RUnlock()
	if ok {
		sc.processTopicEvent(e)
	}
}

// do issues one correlated request and waits for the typed reply body.
// Operations issued while the session is not CONNECTED fail
// synchronously without contacting the transport.
func (c *Client) do(ctx context.Context, op string, body any) (json.RawMessage, error) {
	c.mu.RLock()
	state := c.state
	conn := c.conn
	c.mu.RUnlock()
	if state != StateConnected || conn == nil {
		return nil, ErrorNotLoggedIn
	}
	c.metrics.incOperation(op)
	id, result := c.corr.register(op)
	data, err := encodeCommand(id, op, body)
	if err != nil {
		c.corr.discard(id)
		c.metrics.incOperationError(op)
		return nil, toClientErr(err)
	}
	if err := conn.Send(data); err != nil {
		c.corr.discard(id)
		c.metrics.incOperationError(op)
		return nil, ErrorConnectionClosed
	}
	respBody, err := c.corr.await(ctx, id, result, c.config.OperationTimeout)
	if err != nil {
		c.metrics.incOperationError(op)
		return nil, err
	}
	return respBody, nil
}

// doInto issues a correlated request and decodes the reply body into out.
func (c *Client) doInto(ctx context.Context, op string, body, out any) error {
	respBody, err := c.do(ctx, op, body)
	if err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return toClientErr(err)
	}
	return nil
}

// PublishOptions customize a Publish call.
type PublishOptions struct {
	// Kind tells receivers how to interpret the payload. Defaults to
	// MessageString.
	Kind MessageKind
	// CustomType is an application defined payload tag.
	CustomType string
}

// Publish sends a message into a message channel. Publishing does not
// require a subscription to that channel.
func (c *Client) Publish(ctx context.Context, channelName string, message []byte, opts *PublishOptions) (*PublishResponse, error) {
	if !validName(channelName) {
		return nil, ErrorInvalidArgument
	}
	if opts == nil {
		opts = &PublishOptions{}
	}
	kind := opts.Kind
	if kind == "" {
		kind = MessageString
	}
	req := publishRequest{
		ChannelName: channelName,
		Message:     message,
		Kind:        kind,
		CustomType:  opts.CustomType,
	}
	var resp PublishResponse
	if err := c.doInto(ctx, opPublish, req, &resp); err != nil {
		return nil, err
	}
	resp.ChannelName = channelName
	return &resp, nil
}

// Subscribe subscribes to a message channel. Subscribing to an already
// subscribed channel replaces the recorded options and issues only the
// incremental sub-feed requests needed for the difference.
func (c *Client) Subscribe(ctx context.Context, channelName string, opts *SubscribeOptions) (*SubscribeResponse, error) {
	if !validName(channelName) {
		return nil, ErrorInvalidArgument
	}
	desired := featuresFromOptions(opts)
	add, remove, err := c.registry.prepare(channelName, ChannelTypeMessage, desired)
	if err != nil {
		return nil, err
	}
	if add == 0 && remove == 0 {
		// Options unchanged, nothing to ask the server for.
		if err := c.registry.commit(channelName, ChannelTypeMessage, desired); err != nil {
			return nil, err
		}
		return &SubscribeResponse{ChannelName: channelName}, nil
	}
	req := subscribeRequest{
		ChannelName: channelName,
		Add:         add.names(),
		Remove:      remove.names(),
	}
	var resp SubscribeResponse
	if err := c.doInto(ctx, opSubscribe, req, &resp); err != nil {
		return nil, err
	}
	if err := c.registry.commit(channelName, ChannelTypeMessage, desired); err != nil {
		// Lost the race for the last slot; roll the server back.
		_ = c.doInto(ctx, opUnsubscribe, unsubscribeRequest{ChannelName: channelName}, nil)
		return nil, err
	}
	resp.ChannelName = channelName
	return &resp, nil
}

// Unsubscribe removes all sub-feeds of a channel subscription, cancels
// lock acquire attempts waiting on that channel and drops local caches.
func (c *Client) Unsubscribe(ctx context.Context, channelName string) (*UnsubscribeResponse, error) {
	if !validName(channelName) {
		return nil, ErrorInvalidArgument
	}
	if _, ok := c.registry.get(channelName, ChannelTypeMessage); !ok {
		return nil, ErrorNotSubscribed
	}
	req := unsubscribeRequest{ChannelName: channelName}
	var resp UnsubscribeResponse
	if err := c.doInto(ctx, opUnsubscribe, req, &resp); err != nil {
		return nil, err
	}
	c.registry.remove(channelName, ChannelTypeMessage)
	c.Lock.cancelChannel(channelName, ChannelTypeMessage)
	c.Presence.dropChannel(channelName, ChannelTypeMessage)
	c.Storage.dropChannel(channelName)
	c.mu.Lock()
	delete(c.firstSubscribeChannel, channelName)
	c.mu.Unlock()
	resp.ChannelName = channelName
	return &resp, nil
}

// CreateStreamChannel returns the StreamChannel instance for a name,
// creating it on first use. The client exclusively owns its stream
// channel instances; they never outlive the client.
func (c *Client) CreateStreamChannel(channelName string) (*StreamChannel, error) {
	if !validName(channelName) {
		return nil, ErrorInvalidArgument
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if sc, ok := c.streamChannels[channelName]; ok {
		return sc, nil
	}
	sc := newStreamChannel(c, channelName)
	c.streamChannels[channelName] = sc
	return sc, nil
}

// RenewTokenOptions customize a RenewToken call.
type RenewTokenOptions struct {
	// ChannelName scopes the renewal to one stream channel token.
	ChannelName string
}

// RenewToken passes a fresh token to the server before the current one
// expires. Call it when the tokenPrivilegeWillExpire event fires.
func (c *Client) RenewToken(ctx context.Context, token string, opts *RenewTokenOptions) (*RenewTokenResponse, error) {
	if token == "" {
		return nil, ErrorInvalidArgument
	}
	req := renewTokenRequest{Token: token}
	if opts != nil {
		req.ChannelName = opts.ChannelName
	}
	var resp RenewTokenResponse
	if err := c.doInto(ctx, opRenewToken, req, &resp); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if req.ChannelName == "" {
		c.token = token
	}
	c.mu.Unlock()
	return &resp, nil
}

// UpdateConfigOptions carries the runtime adjustable configuration
// knobs. Nil fields keep the current values.
type UpdateConfigOptions struct {
	LogLevel   *LogLevel
	CloudProxy *bool
}

// UpdateConfig modifies the client configuration. Changes take effect
// immediately; CloudProxy applies from the next (re)connection.
func (c *Client) UpdateConfig(opts UpdateConfigOptions) (*UpdateConfigResponse, error) {
	c.mu.Lock()
	if opts.LogLevel != nil {
		c.config.LogLevel = *opts.LogLevel
		c.logger.setLevel(*opts.LogLevel)
	}
	if opts.CloudProxy != nil {
		c.config.CloudProxy = *opts.CloudProxy
	}
	c.mu.Unlock()
	return &UpdateConfigResponse{BaseResponse: BaseResponse{TimeToken: time.Now().UnixMilli()}}, nil
}
