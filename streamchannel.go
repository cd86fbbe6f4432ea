package rtm

import (
	"context"
	"sort"
	"sync"
)

// JoinChannelOptions customize a StreamChannel Join.
type JoinChannelOptions struct {
	// Token is the channel-scoped token, when the application uses
	// per-channel authorization.
	Token string
	// WithoutPresence disables the presence feed, which is on by
	// default.
	WithoutPresence bool
	// WithMetadata enables channel metadata events.
	WithMetadata bool
	// WithLock enables lock events.
	WithLock bool
}

// JoinTopicOptions customize a JoinTopic call.
type JoinTopicOptions struct {
	// Meta is an opaque string attached to this publisher, visible to
	// subscribers in topic events.
	Meta string
	// QoS enables ordered delivery for messages published to the topic.
	QoS bool
}

// TopicMessageOptions customize a PublishTopicMessage call.
type TopicMessageOptions struct {
	Kind       MessageKind
	CustomType string
}

// SubscribeTopicOptions customize a SubscribeTopic call.
type SubscribeTopicOptions struct {
	// Users lists the publishers to subscribe to. Empty means all
	// currently known publishers of the topic.
	Users []string
}

type topicJoin struct {
	meta string
	qos  bool
}

// StreamChannel is a joinable channel with topics. Instances are
// created through Client.CreateStreamChannel and stay owned by the
// client: one instance per channel name, reused across join cycles.
//
// A topic must be joined before publishing into it; receiving requires
// subscribing to specific publishers, capped per topic.
type StreamChannel struct {
	client      *Client
	channelName string

	mu         sync.Mutex
	joined     bool
	joinOpts   JoinChannelOptions
	topics     map[string]topicJoin
	subscribed map[string]map[string]struct{}
	publishers map[string][]PublisherInfo
}

func newStreamChannel(c *Client, channelName string) *StreamChannel {
	return &StreamChannel{
		client:      c,
		channelName: channelName,
		topics:      make(map[string]topicJoin),
		subscribed:  make(map[string]map[string]struct{}),
		publishers:  make(map[string][]PublisherInfo),
	}
}

// ChannelName returns the name the stream channel was created with.
func (sc *StreamChannel) ChannelName() string { return sc.channelName }

// Join enters the stream channel. Joining an already joined channel
// resolves immediately.
func (sc *StreamChannel) Join(ctx context.Context, opts *JoinChannelOptions) (*JoinChannelResponse, error) {
	if opts == nil {
		opts = &JoinChannelOptions{}
	}
	sc.mu.Lock()
	if sc.joined {
		sc.mu.Unlock()
		return &JoinChannelResponse{}, nil
	}
	sc.mu.Unlock()

	desired := sc.features(opts)
	if _, _, err := sc.client.registry.prepare(sc.channelName, ChannelTypeStream, desired); err != nil {
		return nil, err
	}
	req := joinChannelRequest{
		ChannelName:  sc.channelName,
		Token:        opts.Token,
		WithPresence: !opts.WithoutPresence,
		WithMetadata: opts.WithMetadata,
		WithLock:     opts.WithLock,
	}
	var resp JoinChannelResponse
	if err := sc.client.doInto(ctx, opJoinChannel, req, &resp); err != nil {
		return nil, err
	}
	if err := sc.client.registry.commit(sc.channelName, ChannelTypeStream, desired); err != nil {
		// Lost the race for the last slot; roll the server back.
		_ = sc.client.doInto(ctx, opLeaveChannel, leaveChannelRequest{ChannelName: sc.channelName}, nil)
		return nil, err
	}
	sc.mu.Lock()
	sc.joined = true
	sc.joinOpts = *opts
	sc.mu.Unlock()
	return &resp, nil
}

func (sc *StreamChannel) features(opts *JoinChannelOptions) featureSet {
	f := featureMessage
	if !opts.WithoutPresence {
		f |= featurePresence
	}
	if opts.WithMetadata {
		f |= featureMetadata
	}
	if opts.WithLock {
		f |= featureLock
	}
	return f
}

// Leave exits the stream channel, dropping all topic joins and
// subscriptions and cancelling lock acquire attempts waiting on the
// channel. Leaving a channel that was not joined resolves immediately.
func (sc *StreamChannel) Leave(ctx context.Context) (*LeaveChannelResponse, error) {
	sc.mu.Lock()
	joined := sc.joined
	sc.mu.Unlock()
	if !joined {
		return &LeaveChannelResponse{}, nil
	}
	req := leaveChannelRequest{ChannelName: sc.channelName}
	var resp LeaveChannelResponse
	if err := sc.client.doInto(ctx, opLeaveChannel, req, &resp); err != nil {
		return nil, err
	}
	sc.client.registry.remove(sc.channelName, ChannelTypeStream)
	sc.client.Lock.cancelChannel(sc.channelName, ChannelTypeStream)
	sc.client.Presence.dropChannel(sc.channelName, ChannelTypeStream)
	sc.markLeft()
	return &resp, nil
}

// markLeft clears all local join state without a network call, on leave
// and on session teardown.
func (sc *StreamChannel) markLeft() {
	sc.mu.Lock()
	sc.joined = false
	sc.topics = make(map[string]topicJoin)
	sc.subscribed = make(map[string]map[string]struct{})
	sc.publishers = make(map[string][]PublisherInfo)
	sc.mu.Unlock()
}

// JoinTopic registers the user as a publisher of a topic. Required
// before PublishTopicMessage.
func (sc *StreamChannel) JoinTopic(ctx context.Context, topicName string, opts *JoinTopicOptions) (*JoinTopicResponse, error) {
	if !validName(topicName) {
		return nil, ErrorInvalidArgument
	}
	if err := sc.requireJoined(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &JoinTopicOptions{}
	}
	req := topicRequest{
		ChannelName: sc.channelName,
		TopicName:   topicName,
		Meta:        opts.Meta,
		QoS:         opts.QoS,
	}
	var resp JoinTopicResponse
	if err := sc.client.doInto(ctx, opJoinTopic, req, &resp); err != nil {
		return nil, err
	}
	sc.mu.Lock()
	sc.topics[topicName] = topicJoin{meta: opts.Meta, qos: opts.QoS}
	sc.mu.Unlock()
	resp.TopicName = topicName
	return &resp, nil
}

// LeaveTopic removes the user from the publishers of a topic.
func (sc *StreamChannel) LeaveTopic(ctx context.Context, topicName string) (*LeaveTopicResponse, error) {
	if !validName(topicName) {
		return nil, ErrorInvalidArgument
	}
	if err := sc.requireJoined(); err != nil {
		return nil, err
	}
	req := topicRequest{ChannelName: sc.channelName, TopicName: topicName}
	var resp LeaveTopicResponse
	if err := sc.client.doInto(ctx, opLeaveTopic, req, &resp); err != nil {
		return nil, err
	}
	sc.mu.Lock()
	delete(sc.topics, topicName)
	sc.mu.Unlock()
	resp.TopicName = topicName
	return &resp, nil
}

// PublishTopicMessage sends a message into a topic the user joined.
func (sc *StreamChannel) PublishTopicMessage(ctx context.Context, topicName string, message []byte, opts *TopicMessageOptions) (*PublishTopicMessageResponse, error) {
	if !validName(topicName) {
		return nil, ErrorInvalidArgument
	}
	if err := sc.requireJoined(); err != nil {
		return nil, err
	}
	sc.mu.Lock()
	_, joinedTopic := sc.topics[topicName]
	sc.mu.Unlock()
	if !joinedTopic {
		return nil, ErrorTopicNotJoined
	}
	if opts == nil {
		opts = &TopicMessageOptions{}
	}
	kind := opts.Kind
	if kind == "" {
		kind = MessageString
	}
	req := topicRequest{
		ChannelName: sc.channelName,
		TopicName:   topicName,
		Message:     message,
		Kind:        kind,
		CustomType:  opts.CustomType,
	}
	var resp PublishTopicMessageResponse
	if err := sc.client.doInto(ctx, opPublishTopicMessage, req, &resp); err != nil {
		return nil, err
	}
	resp.TopicName = topicName
	return &resp, nil
}

// SubscribeTopic starts receiving messages from specific publishers of
// a topic. With no users listed every currently known publisher is
// requested. The effective set is capped per topic at
// Config.TopicUserLimit; users beyond the cap come back in the failure
// lists rather than failing the call.
func (sc *StreamChannel) SubscribeTopic(ctx context.Context, topicName string, opts *SubscribeTopicOptions) (*SubscribeTopicResponse, error) {
	if !validName(topicName) {
		return nil, ErrorInvalidArgument
	}
	if err := sc.requireJoined(); err != nil {
		return nil, err
	}
	var users []string
	if opts != nil {
		users = opts.Users
	}
	if len(users) == 0 {
		users = sc.knownPublishers(topicName)
	}

	// Users that would push the effective set past the cap are failed
	// locally, without bothering the server. Already subscribed users
	// never consume a new slot.
	limit := sc.client.config.TopicUserLimit
	sc.mu.Lock()
	set := sc.subscribed[topicName]
	room := limit - len(set)
	var send, overflow []string
	for _, userID := range users {
		if _, ok := set[userID]; ok {
			send = append(send, userID)
			continue
		}
		if room > 0 {
			send = append(send, userID)
			room--
			continue
		}
		overflow = append(overflow, userID)
	}
	sc.mu.Unlock()

	var resp SubscribeTopicResponse
	if len(send) > 0 {
		req := topicRequest{
			ChannelName: sc.channelName,
			TopicName:   topicName,
			Users:       send,
		}
		if err := sc.client.doInto(ctx, opSubscribeTopic, req, &resp); err != nil {
			return nil, err
		}
	}
	for _, userID := range overflow {
		resp.FailedUsers = append(resp.FailedUsers, userID)
		resp.FailedDetails = append(resp.FailedDetails, SubscribeTopicFailure{
			User:      userID,
			ErrorCode: SubscribeTopicUserExceedLimit,
			Reason:    "subscribed user limit exceeded",
		})
	}
	sc.mu.Lock()
	set = sc.subscribed[topicName]
	if set == nil {
		set = make(map[string]struct{})
		sc.subscribed[topicName] = set
	}
	for _, userID := range resp.SucceedUsers {
		set[userID] = struct{}{}
	}
	sc.mu.Unlock()
	resp.TopicName = topicName
	return &resp, nil
}

// UnsubscribeTopic stops receiving messages from specific publishers of
// a topic, or from all of them when users is empty.
func (sc *StreamChannel) UnsubscribeTopic(ctx context.Context, topicName string, users []string) (*UnsubscribeTopicResponse, error) {
	if !validName(topicName) {
		return nil, ErrorInvalidArgument
	}
	if err := sc.requireJoined(); err != nil {
		return nil, err
	}
	req := topicRequest{
		ChannelName: sc.channelName,
		TopicName:   topicName,
		Users:       users,
	}
	var resp UnsubscribeTopicResponse
	if err := sc.client.doInto(ctx, opUnsubscribeTopic, req, &resp); err != nil {
		return nil, err
	}
	sc.mu.Lock()
	if len(users) == 0 {
		delete(sc.subscribed, topicName)
	} else if set, ok := sc.subscribed[topicName]; ok {
		for _, userID := range users {
			delete(set, userID)
		}
	}
	sc.mu.Unlock()
	return &resp, nil
}

// GetSubscribedUserList returns the publishers the user is effectively
// subscribed to in a topic. Purely local: the effective set can differ
// from past requests because of the per-topic cap, so callers consult
// this instead of assuming their request applied verbatim.
func (sc *StreamChannel) GetSubscribedUserList(topicName string) (*GetSubscribedUserListResponse, error) {
	if !validName(topicName) {
		return nil, ErrorInvalidArgument
	}
	sc.mu.Lock()
	set := sc.subscribed[topicName]
	out := make([]string, 0, len(set))
	for userID := range set {
		out = append(out, userID)
	}
	sc.mu.Unlock()
	sort.Strings(out)
	return &GetSubscribedUserListResponse{TopicName: topicName, Subscribed: out}, nil
}

func (sc *StreamChannel) requireJoined() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.joined {
		return ErrorNotJoined
	}
	return nil
}

func (sc *StreamChannel) knownPublishers(topicName string) []string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	infos := sc.publishers[topicName]
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.PublisherUserID)
	}
	return out
}

// processTopicEvent folds a topic push into the local publisher view.
// Runs on the dispatcher goroutine.
func (sc *StreamChannel) processTopicEvent(e *TopicEvent) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	switch e.EventType {
	case TopicEventSnapshot:
		sc.publishers = make(map[string][]PublisherInfo, len(e.TopicInfos))
		for _, info := range e.TopicInfos {
			sc.publishers[info.TopicName] = info.Publishers
		}
	case TopicEventRemoteJoin:
		for _, info := range e.TopicInfos {
			sc.publishers[info.TopicName] = info.Publishers
		}
	case TopicEventRemoteLeave:
		for _, info := range e.TopicInfos {
			if len(info.Publishers) == 0 {
				delete(sc.publishers, info.TopicName)
				continue
			}
			sc.publishers[info.TopicName] = info.Publishers
		}
	}
}

// replay re-enters the channel with the recorded join options, then
// re-joins topics and re-subscribes publishers, after a reconnect.
func (sc *StreamChannel) replay() error {
	sc.mu.Lock()
	joined := sc.joined
	opts := sc.joinOpts
	topics := make(map[string]topicJoin, len(sc.topics))
	for name, tj := range sc.topics {
		topics[name] = tj
	}
	subscribed := make(map[string][]string, len(sc.subscribed))
	for name, set := range sc.subscribed {
		users := make([]string, 0, len(set))
		for userID := range set {
			users = append(users, userID)
		}
		subscribed[name] = users
	}
	sc.mu.Unlock()
	if !joined {
		return nil
	}

	ctx := context.Background()
	req := joinChannelRequest{
		ChannelName:  sc.channelName,
		Token:        opts.Token,
		WithPresence: !opts.WithoutPresence,
		WithMetadata: opts.WithMetadata,
		WithLock:     opts.WithLock,
	}
	if err := sc.client.doInto(ctx, opJoinChannel, req, nil); err != nil {
		return err
	}
	for topicName, tj := range topics {
		treq := topicRequest{
			ChannelName: sc.channelName,
			TopicName:   topicName,
			Meta:        tj.meta,
			QoS:         tj.qos,
		}
		if err := sc.client.doInto(ctx, opJoinTopic, treq, nil); err != nil {
			return err
		}
	}
	for topicName, users := range subscribed {
		if len(users) == 0 {
			continue
		}
		treq := topicRequest{
			ChannelName: sc.channelName,
			TopicName:   topicName,
			Users:       users,
		}
		if err := sc.client.doInto(ctx, opSubscribeTopic, treq, nil); err != nil {
			return err
		}
	}
	return nil
}
