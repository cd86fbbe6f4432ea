package rtm

import (
	"sort"
	"sync"
)

// SubscribeOptions toggle the sub-feeds of a channel subscription.
// Message and presence feeds are on by default, metadata and lock feeds
// are off, so the zero value matches the defaults.
type SubscribeOptions struct {
	// WithoutMessage disables the message feed.
	WithoutMessage bool
	// WithoutPresence disables the presence feed.
	WithoutPresence bool
	// WithMetadata enables channel metadata events.
	WithMetadata bool
	// WithLock enables lock events.
	WithLock bool
}

// featureSet is the set of sub-feeds enabled for one subscription.
type featureSet uint8

const (
	featureMessage featureSet = 1 << iota
	featurePresence
	featureMetadata
	featureLock
)

var featureNames = []struct {
	flag featureSet
	name string
}{
	{featureMessage, "message"},
	{featurePresence, "presence"},
	{featureMetadata, "metadata"},
	{featureLock, "lock"},
}

func (f featureSet) names() []string {
	var out []string
	for _, fn := range featureNames {
		if f&fn.flag != 0 {
			out = append(out, fn.name)
		}
	}
	return out
}

func (f featureSet) has(flag featureSet) bool {
	return f&flag != 0
}

func featuresFromOptions(opts *SubscribeOptions) featureSet {
	if opts == nil {
		opts = &SubscribeOptions{}
	}
	var f featureSet
	if !opts.WithoutMessage {
		f |= featureMessage
	}
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

type subKey struct {
	channel     string
	channelType ChannelType
}

type subscriptionEntry struct {
	channelName string
	channelType ChannelType
	features    featureSet
}

// subscriptionRegistry tracks channel and user-metadata subscriptions
// together with the options each was created with, so the effective set
// can be replayed verbatim after a reconnect. At most one record exists
// per (channelName, channelType); re-subscribing replaces the options.
type subscriptionRegistry struct {
	mu       sync.Mutex
	limit    int
	entries  map[subKey]*subscriptionEntry
	order    []subKey
	userMeta map[string]int
	userSeq  int
}

func newSubscriptionRegistry(limit int) *subscriptionRegistry {
	return &subscriptionRegistry{
		limit:    limit,
		entries:  make(map[subKey]*subscriptionEntry),
		userMeta: make(map[string]int),
	}
}

// prepare computes the incremental sub-feed delta for subscribing to a
// channel with the desired features without committing the change. Only
// the returned add/remove feeds need to be requested from the server,
// never a full re-subscribe of an already subscribed channel.
func (r *subscriptionRegistry) prepare(channel string, channelType ChannelType, desired featureSet) (add, remove featureSet, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := subKey{channel: channel, channelType: channelType}
	entry, ok := r.entries[key]
	if !ok {
		if len(r.entries) >= r.limit {
			return 0, 0, ErrorChannelLimitExceeded
		}
		return desired, 0, nil
	}
	return desired &^ entry.features, entry.features &^ desired, nil
}

// commit records the subscription after the server confirmed it. The
// channel limit is re-checked for new entries: two concurrent first-time
// subscribes can both pass prepare, only one may take the last slot.
func (r *subscriptionRegistry) commit(channel string, channelType ChannelType, features featureSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := subKey{channel: channel, channelType: channelType}
	if entry, ok := r.entries[key]; ok {
		entry.features = features
		return nil
	}
	if len(r.entries) >= r.limit {
		return ErrorChannelLimitExceeded
	}
	r.entries[key] = &subscriptionEntry{
		channelName: channel,
		channelType: channelType,
		features:    features,
	}
	r.order = append(r.order, key)
	return nil
}

// remove drops the registry entry with all its sub-feeds.
func (r *subscriptionRegistry) remove(channel string, channelType ChannelType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := subKey{channel: channel, channelType: channelType}
	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *subscriptionRegistry) get(channel string, channelType ChannelType) (featureSet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[subKey{channel: channel, channelType: channelType}]
	if !ok {
		return 0, false
	}
	return entry.features, true
}

// clear drops all channel and user-metadata entries. Used on session
// teardown; a later login starts with an empty registry.
func (r *subscriptionRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[subKey]*subscriptionEntry)
	r.order = nil
	r.userMeta = make(map[string]int)
}

func (r *subscriptionRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// addUserMeta records a user-metadata subscription.
func (r *subscriptionRegistry) addUserMeta(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.userMeta[userID]; !ok {
		r.userSeq++
		r.userMeta[userID] = r.userSeq
	}
}

func (r *subscriptionRegistry) removeUserMeta(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.userMeta, userID)
}

func (r *subscriptionRegistry) hasUserMeta(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.userMeta[userID]
	return ok
}

// channelSnapshot returns the channel entries in registration order.
func (r *subscriptionRegistry) channelSnapshot() []subscriptionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]subscriptionEntry, 0, len(r.order))
	for _, key := range r.order {
		if entry, ok := r.entries[key]; ok {
			out = append(out, *entry)
		}
	}
	return out
}

// userMetaSnapshot returns the subscribed user IDs in registration order.
func (r *subscriptionRegistry) userMetaSnapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.userMeta))
	for userID := range r.userMeta {
		out = append(out, userID)
	}
	// Map iteration order is random; sort by registration sequence.
	sort.Slice(out, func(i, j int) bool {
		return r.userMeta[out[i]] < r.userMeta[out[j]]
	})
	return out
}
