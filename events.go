package rtm

import (
	"sync"
)

// PresenceEventType describes what a presence push carries.
type PresenceEventType string

const (
	PresenceSnapshot          PresenceEventType = "SNAPSHOT"
	PresenceInterval          PresenceEventType = "INTERVAL"
	PresenceRemoteJoin        PresenceEventType = "REMOTE_JOIN"
	PresenceRemoteLeave       PresenceEventType = "REMOTE_LEAVE"
	PresenceRemoteTimeout     PresenceEventType = "REMOTE_TIMEOUT"
	PresenceRemoteStateChange PresenceEventType = "REMOTE_STATE_CHANGED"
	PresenceOutOfService      PresenceEventType = "ERROR_OUT_OF_SERVICE"
)

// StorageEventType describes what a storage push carries.
type StorageEventType string

const (
	StorageEventSet      StorageEventType = "SET"
	StorageEventSnapshot StorageEventType = "SNAPSHOT"
	StorageEventRemove   StorageEventType = "REMOVE"
	StorageEventUpdate   StorageEventType = "UPDATE"
)

// LockEventType describes what a lock push carries.
type LockEventType string

const (
	LockEventSet      LockEventType = "SET"
	LockEventRemoved  LockEventType = "REMOVED"
	LockEventAcquired LockEventType = "ACQUIRED"
	LockEventReleased LockEventType = "RELEASED"
	LockEventSnapshot LockEventType = "SNAPSHOT"
	LockEventExpired  LockEventType = "EXPIRED"
)

// TopicEventType describes what a topic push carries.
type TopicEventType string

const (
	TopicEventRemoteJoin  TopicEventType = "REMOTE_JOIN"
	TopicEventRemoteLeave TopicEventType = "REMOTE_LEAVE"
	TopicEventSnapshot    TopicEventType = "SNAPSHOT"
)

// StatusEvent notifies about a session state transition.
type StatusEvent struct {
	State  ConnState
	Reason ConnectionChangeReason
}

// MessageEvent is an inbound channel or topic message.
type MessageEvent struct {
	ChannelType ChannelType `json:"channelType"`
	ChannelName string      `json:"channelName"`
	TopicName   string      `json:"topicName,omitempty"`
	Kind        MessageKind `json:"messageType"`
	CustomType  string      `json:"customType,omitempty"`
	Message     []byte      `json:"message"`
	Publisher   string      `json:"publisher"`
	PublishTime int64       `json:"publishTime,omitempty"`
}

// PresenceEvent is an inbound presence push. Snapshot is set for
// SNAPSHOT events, Interval for INTERVAL events, StateChanged for
// per-user state changes; the remaining fields are always set.
type PresenceEvent struct {
	EventType    PresenceEventType `json:"eventType"`
	ChannelType  ChannelType       `json:"channelType"`
	ChannelName  string            `json:"channelName"`
	Publisher    string            `json:"publisher,omitempty"`
	StateChanged StateDetail       `json:"stateChanged,omitempty"`
	Interval     *IntervalDetail   `json:"interval,omitempty"`
	Snapshot     []UserState       `json:"snapshot,omitempty"`
}

// StorageEvent is an inbound metadata push carrying the full changed
// item set plus updated revisions.
type StorageEvent struct {
	ChannelType ChannelType      `json:"channelType,omitempty"`
	ChannelName string           `json:"channelName,omitempty"`
	UserID      string           `json:"userId,omitempty"`
	Publisher   string           `json:"publisher"`
	StorageType StorageType      `json:"storageType"`
	EventType   StorageEventType `json:"eventType"`
	Data        StorageData      `json:"data"`
}

// LockEvent is an inbound lock push. Snapshot always carries the full
// current lock table of the channel so a late subscriber reconstructs
// state without polling GetLock.
type LockEvent struct {
	ChannelType ChannelType   `json:"channelType"`
	ChannelName string        `json:"channelName"`
	EventType   LockEventType `json:"eventType"`
	LockName    string        `json:"lockName,omitempty"`
	TTL         int64         `json:"ttl,omitempty"`
	Publisher   string        `json:"publisher,omitempty"`
	Snapshot    []LockDetail  `json:"snapshot"`
}

// TopicEvent is an inbound topic membership push for a stream channel.
type TopicEvent struct {
	EventType   TopicEventType `json:"eventType"`
	ChannelName string         `json:"channelName"`
	Publisher   string         `json:"publisher"`
	TopicInfos  []TopicDetail  `json:"topicInfos"`
	TotalTopics int            `json:"totalTopics"`
}

// TokenWillExpireEvent warns that the session token expires in about 30
// seconds and must be renewed with RenewToken.
type TokenWillExpireEvent struct {
	ChannelName string `json:"channelName"`
}

type eventKind int

const (
	eventStatus eventKind = iota
	eventMessage
	eventPresence
	eventStorage
	eventLock
	eventTopic
	eventTokenWillExpire
)

// ListenerHandle identifies one registered listener. Removal works by
// handle identity, never by comparing functions.
type ListenerHandle struct {
	kind eventKind
	id   uint64
}

type listenerEntry struct {
	id uint64
	fn any
}

// eventHub routes inbound pushes to registered listeners. Listeners for
// one kind are invoked in registration order, on the dispatcher
// goroutine.
type eventHub struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[eventKind][]listenerEntry
}

func newEventHub() *eventHub {
	return &eventHub{
		listeners: make(map[eventKind][]listenerEntry),
	}
}

func (h *eventHub) add(kind eventKind, fn any) ListenerHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.listeners[kind] = append(h.listeners[kind], listenerEntry{id: h.nextID, fn: fn})
	return ListenerHandle{kind: kind, id: h.nextID}
}

func (h *eventHub) remove(handle ListenerHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.listeners[handle.kind]
	for i, entry := range entries {
		if entry.id == handle.id {
			h.listeners[handle.kind] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// snapshot returns the current listener list for a kind. Emission
// iterates the snapshot so a listener removing itself mid-dispatch does
// not skip its neighbors.
func (h *eventHub) snapshot(kind eventKind) []listenerEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.listeners[kind]
}

func (h *eventHub) emitStatus(e StatusEvent) {
	for _, entry := range h.snapshot(eventStatus) {
		entry.fn.(func(StatusEvent))(e)
	}
}

func (h *eventHub) emitMessage(e MessageEvent) {
	for _, entry := range h.snapshot(eventMessage) {
		entry.fn.(func(MessageEvent))(e)
	}
}

func (h *eventHub) emitPresence(e PresenceEvent) {
	for _, entry := range h.snapshot(eventPresence) {
		entry.fn.(func(PresenceEvent))(e)
	}
}

func (h *eventHub) emitStorage(e StorageEvent) {
	for _, entry := range h.snapshot(eventStorage) {
		entry.fn.(func(StorageEvent))(e)
	}
}

func (h *eventHub) emitLock(e LockEvent) {
	for _, entry := range h.snapshot(eventLock) {
		entry.fn.(func(LockEvent))(e)
	}
}

func (h *eventHub) emitTopic(e TopicEvent) {
	for _, entry := range h.snapshot(eventTopic) {
		entry.fn.(func(TopicEvent))(e)
	}
}

func (h *eventHub) emitTokenWillExpire(e TokenWillExpireEvent) {
	for _, entry := range h.snapshot(eventTokenWillExpire) {
		entry.fn.(func(TokenWillExpireEvent))(e)
	}
}
