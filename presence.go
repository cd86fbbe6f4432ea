package rtm

import (
	"context"
	"sort"

	"github.com/maypok86/otter"
)

type presenceKey struct {
	channelName string
	channelType ChannelType
	userID      string
}

// Presence is the presence API of a Client: occupancy queries, user
// state and a local occupancy cache fed by presence pushes.
//
// The cache entries expire after the configured presence timeout, so a
// user whose events stopped flowing ages out of the local view the same
// way the server times it out.
type Presence struct {
	client *Client
	cache  otter.Cache[presenceKey, StateDetail]
}

func newPresence(c *Client) (*Presence, error) {
	cache, err := otter.MustBuilder[presenceKey, StateDetail](c.config.PresenceCacheSize).
		WithTTL(c.config.PresenceTimeout).
		Build()
	if err != nil {
		return nil, err
	}
	return &Presence{client: c, cache: cache}, nil
}

// WhoNowOptions customize a WhoNow call.
type WhoNowOptions struct {
	// IncludeUserID asks for occupant user IDs. On by default when the
	// options are omitted entirely.
	IncludeUserID bool
	// IncludeState asks for the presence states of each occupant.
	IncludeState bool
	// Page is the opaque continuation token from a previous response.
	Page string
}

// WhoNow lists the users currently present in a channel. Large channels
// are paged: pass the NextPage token of the previous response to
// continue the listing.
func (p *Presence) WhoNow(ctx context.Context, channelName string, channelType ChannelType, opts *WhoNowOptions) (*WhoNowResponse, error) {
	if !validName(channelName) {
		return nil, ErrorInvalidArgument
	}
	if opts == nil {
		opts = &WhoNowOptions{IncludeUserID: true}
	}
	req := whoNowRequest{
		ChannelName:   channelName,
		ChannelType:   channelType,
		IncludeUserID: opts.IncludeUserID,
		IncludeState:  opts.IncludeState,
		Page:          opts.Page,
	}
	var resp WhoNowResponse
	if err := p.client.doInto(ctx, opWhoNow, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetOnlineUsers is the newer name of WhoNow.
func (p *Presence) GetOnlineUsers(ctx context.Context, channelName string, channelType ChannelType, opts *WhoNowOptions) (*GetOnlineUsersResponse, error) {
	return p.WhoNow(ctx, channelName, channelType, opts)
}

// WhereNow lists the channels a user is currently present in. An empty
// userID queries the calling user.
func (p *Presence) WhereNow(ctx context.Context, userID string) (*WhereNowResponse, error) {
	if userID == "" {
		userID = p.client.userID
	} else if !validName(userID) {
		return nil, ErrorInvalidArgument
	}
	req := whereNowRequest{UserID: userID}
	var resp WhereNowResponse
	if err := p.client.doInto(ctx, opWhereNow, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetUserChannels is the newer name of WhereNow.
func (p *Presence) GetUserChannels(ctx context.Context, userID string) (*GetUserChannelsResponse, error) {
	return p.WhereNow(ctx, userID)
}

// SetState merges key/value pairs into the calling user's presence
// state in a channel. Writes are last-write-wins; setting state before
// joining the channel stores it for delivery on the next join.
func (p *Presence) SetState(ctx context.Context, channelName string, channelType ChannelType, state StateDetail) (*SetStateResponse, error) {
	if !validName(channelName) || len(state) == 0 {
		return nil, ErrorInvalidArgument
	}
	req := setStateRequest{
		ChannelName: channelName,
		ChannelType: channelType,
		State:       state,
	}
	var resp SetStateResponse
	if err := p.client.doInto(ctx, opSetState, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetState reads a user's presence state in a channel. An empty userID
// queries the calling user.
func (p *Presence) GetState(ctx context.Context, userID, channelName string, channelType ChannelType) (*GetStateResponse, error) {
	if userID == "" {
		userID = p.client.userID
	} else if !validName(userID) {
		return nil, ErrorInvalidArgument
	}
	if !validName(channelName) {
		return nil, ErrorInvalidArgument
	}
	req := getStateRequest{
		UserID:      userID,
		ChannelName: channelName,
		ChannelType: channelType,
	}
	var resp GetStateResponse
	if err := p.client.doInto(ctx, opGetState, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveState clears the listed state keys of the calling user in a
// channel; an empty list clears everything.
func (p *Presence) RemoveState(ctx context.Context, channelName string, channelType ChannelType, states []string) (*RemoveStateResponse, error) {
	if !validName(channelName) {
		return nil, ErrorInvalidArgument
	}
	req := removeStateRequest{
		ChannelName: channelName,
		ChannelType: channelType,
		States:      states,
	}
	var resp RemoveStateResponse
	if err := p.client.doInto(ctx, opRemoveState, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Snapshot returns the locally cached occupancy of a channel, sorted by
// user ID. The cache is maintained from presence pushes, so it reflects
// channels subscribed with the presence feed enabled.
func (p *Presence) Snapshot(channelName string, channelType ChannelType) []UserState {
	var out []UserState
	p.cache.Range(func(key presenceKey, states StateDetail) bool {
		if key.channelName == channelName && key.channelType == channelType {
			out = append(out, UserState{
				UserID:      key.userID,
				States:      states,
				StatesCount: len(states),
			})
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// processEvent folds one presence push into the local occupancy cache.
// Runs on the dispatcher goroutine before listeners see the event.
func (p *Presence) processEvent(e *PresenceEvent) {
	switch e.EventType {
	case PresenceSnapshot:
		// The snapshot replaces whatever was cached for the channel.
		p.clearChannel(e.ChannelName, e.ChannelType)
		for _, user := range e.Snapshot {
			p.put(e, user.UserID, user.States)
		}
	case PresenceInterval:
		if e.Interval == nil {
			return
		}
		for _, userID := range e.Interval.Join.Users {
			p.put(e, userID, nil)
		}
		for _, userID := range e.Interval.Leave.Users {
			p.drop(e, userID)
		}
		for _, userID := range e.Interval.Timeout.Users {
			p.drop(e, userID)
		}
		for _, user := range e.Interval.UserStateList {
			p.put(e, user.UserID, user.States)
		}
	case PresenceRemoteJoin:
		p.put(e, e.Publisher, nil)
	case PresenceRemoteLeave, PresenceRemoteTimeout:
		p.drop(e, e.Publisher)
	case PresenceRemoteStateChange:
		p.put(e, e.Publisher, e.StateChanged)
	}
}

func (p *Presence) put(e *PresenceEvent, userID string, states StateDetail) {
	if userID == "" {
		return
	}
	p.cache.Set(presenceKey{
		channelName: e.ChannelName,
		channelType: e.ChannelType,
		userID:      userID,
	}, states)
}

func (p *Presence) drop(e *PresenceEvent, userID string) {
	if userID == "" {
		return
	}
	p.cache.Delete(presenceKey{
		channelName: e.ChannelName,
		channelType: e.ChannelType,
		userID:      userID,
	})
}

func (p *Presence) clearChannel(channelName string, channelType ChannelType) {
	var stale []presenceKey
	p.cache.Range(func(key presenceKey, _ StateDetail) bool {
		if key.channelName == channelName && key.channelType == channelType {
			stale = append(stale, key)
		}
		return true
	})
	for _, key := range stale {
		p.cache.Delete(key)
	}
}

// dropChannel removes all cached occupants of a channel, called on
// unsubscribe and leave.
func (p *Presence) dropChannel(channelName string, channelType ChannelType) {
	p.clearChannel(channelName, channelType)
}

// reset clears the whole cache on session teardown.
func (p *Presence) reset() {
	p.cache.Clear()
}
