package rtm

import (
	"context"
	"strconv"
	"sync"
)

type revisionKind int

const (
	// revisionAny is the zero value so an unset policy means an
	// unconditional write.
	revisionAny revisionKind = iota
	revisionCreateOnly
	revisionMatch
)

// RevisionPolicy gates a metadata write against the current revision of
// the target. The zero value is RevisionAny, the unconditional write.
// Use RevisionCreateOnly to write only when the target does not exist
// yet, or RevisionMatch to require an exact compare-and-set match.
type RevisionPolicy struct {
	kind revisionKind
	rev  int64
}

// RevisionAny accepts the write regardless of the current revision.
var RevisionAny = RevisionPolicy{kind: revisionAny}

// RevisionCreateOnly accepts the write only when the target does not
// exist yet.
var RevisionCreateOnly = RevisionPolicy{kind: revisionCreateOnly}

// RevisionMatch accepts the write only when the target's current
// revision equals rev exactly.
func RevisionMatch(rev int64) RevisionPolicy {
	return RevisionPolicy{kind: revisionMatch, rev: rev}
}

// check evaluates the policy against the current state of the target.
func (p RevisionPolicy) check(current int64, exists bool) *Error {
	switch p.kind {
	case revisionAny:
		return nil
	case revisionCreateOnly:
		if exists {
			return ErrorMetadataRevisionConflict
		}
		return nil
	case revisionMatch:
		if !exists || current != p.rev {
			return ErrorMetadataRevisionConflict
		}
		return nil
	}
	return ErrorInvalidArgument
}

// MarshalJSON encodes the policy in the compact wire form: -1 for any,
// 0 for create-only, the exact revision otherwise.
func (p RevisionPolicy) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case revisionCreateOnly:
		return []byte("0"), nil
	case revisionMatch:
		return strconv.AppendInt(nil, p.rev, 10), nil
	default:
		return []byte("-1"), nil
	}
}

// UnmarshalJSON decodes the compact wire form.
func (p *RevisionPolicy) UnmarshalJSON(data []byte) error {
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	switch {
	case n < 0:
		*p = RevisionAny
	case n == 0:
		*p = RevisionCreateOnly
	default:
		*p = RevisionMatch(n)
	}
	return nil
}

// MetadataOptions customize a metadata write.
type MetadataOptions struct {
	// MajorRevision gates the write against the whole set's major
	// revision. The zero value accepts any.
	MajorRevision RevisionPolicy
	// LockName makes the write conditional on currently holding the
	// named lock in the same channel.
	LockName string
	// AddTimestamp asks the server to record the modification time on
	// each written item.
	AddTimestamp bool
	// AddUserID asks the server to record the writing user on each
	// written item.
	AddUserID bool
}

// Storage is the metadata API of a Client: compare-and-set key/value
// sets attached to channels and users, with per-item and per-set
// revision gating.
type Storage struct {
	client *Client

	// mu guards the local views below, maintained from storage pushes
	// and used by tests and callers that want the last seen set without
	// a network round trip.
	mu           sync.RWMutex
	channelViews map[string]StorageData
	userViews    map[string]StorageData
}

func newStorage(c *Client) *Storage {
	return &Storage{
		client:       c,
		channelViews: make(map[string]StorageData),
		userViews:    make(map[string]StorageData),
	}
}

func metadataWriteBody(data []MetadataItem, opts *MetadataOptions) ([]MetadataItem, MetadataOptions) {
	if opts == nil {
		opts = &MetadataOptions{}
	}
	return data, *opts
}

// SetChannelMetadata writes items into a channel metadata set,
// overwriting existing keys that pass their revision gate.
func (s *Storage) SetChannelMetadata(ctx context.Context, channelName string, channelType ChannelType, data []MetadataItem, opts *MetadataOptions) (*SetChannelMetadataResponse, error) {
	return s.channelWrite(ctx, opSetChannelMetadata, channelName, channelType, data, opts)
}

// UpdateChannelMetadata modifies existing keys only; writing an absent
// key fails the whole batch.
func (s *Storage) UpdateChannelMetadata(ctx context.Context, channelName string, channelType ChannelType, data []MetadataItem, opts *MetadataOptions) (*UpdateChannelMetadataResponse, error) {
	return s.channelWrite(ctx, opUpdateChannelMetadata, channelName, channelType, data, opts)
}

// RemoveChannelMetadata deletes the listed keys, or the whole set when
// data is empty. Item values are ignored, revisions still gate.
func (s *Storage) RemoveChannelMetadata(ctx context.Context, channelName string, channelType ChannelType, data []MetadataItem, opts *MetadataOptions) (*RemoveChannelMetadataResponse, error) {
	return s.channelWrite(ctx, opRemoveChannelMetadata, channelName, channelType, data, opts)
}

func (s *Storage) channelWrite(ctx context.Context, op, channelName string, channelType ChannelType, data []MetadataItem, opts *MetadataOptions) (*SetChannelMetadataResponse, error) {
	if !validName(channelName) {
		return nil, ErrorInvalidArgument
	}
	items, o := metadataWriteBody(data, opts)
	req := channelMetadataRequest{
		ChannelName:   channelName,
		ChannelType:   channelType,
		Data:          items,
		MajorRevision: o.MajorRevision,
		LockName:      o.LockName,
		AddTimestamp:  o.AddTimestamp,
		AddUserID:     o.AddUserID,
	}
	var resp SetChannelMetadataResponse
	if err := s.client.doInto(ctx, op, req, &resp); err != nil {
		return nil, err
	}
	resp.ChannelName = channelName
	resp.ChannelType = channelType
	return &resp, nil
}

// GetChannelMetadata reads the full metadata set of a channel.
func (s *Storage) GetChannelMetadata(ctx context.Context, channelName string, channelType ChannelType) (*GetChannelMetadataResponse, error) {
	if !validName(channelName) {
		return nil, ErrorInvalidArgument
	}
	req := channelMetadataRequest{ChannelName: channelName, ChannelType: channelType}
	var resp GetChannelMetadataResponse
	if err := s.client.doInto(ctx, opGetChannelMetadata, req, &resp); err != nil {
		return nil, err
	}
	resp.ChannelName = channelName
	resp.ChannelType = channelType
	s.storeChannelView(channelName, resp.StorageData)
	return &resp, nil
}

// SetUserMetadata writes items into a user metadata set. An empty
// userID addresses the calling user's own set.
func (s *Storage) SetUserMetadata(ctx context.Context, userID string, data []MetadataItem, opts *MetadataOptions) (*SetUserMetadataResponse, error) {
	return s.userWrite(ctx, opSetUserMetadata, userID, data, opts)
}

// UpdateUserMetadata modifies existing keys of a user metadata set.
func (s *Storage) UpdateUserMetadata(ctx context.Context, userID string, data []MetadataItem, opts *MetadataOptions) (*UpdateUserMetadataResponse, error) {
	return s.userWrite(ctx, opUpdateUserMetadata, userID, data, opts)
}

// RemoveUserMetadata deletes keys from a user metadata set, or the
// whole set when data is empty.
func (s *Storage) RemoveUserMetadata(ctx context.Context, userID string, data []MetadataItem, opts *MetadataOptions) (*RemoveUserMetadataResponse, error) {
	return s.userWrite(ctx, opRemoveUserMetadata, userID, data, opts)
}

func (s *Storage) userWrite(ctx context.Context, op, userID string, data []MetadataItem, opts *MetadataOptions) (*SetUserMetadataResponse, error) {
	userID, err := s.resolveUserID(userID)
	if err != nil {
		return nil, err
	}
	items, o := metadataWriteBody(data, opts)
	req := userMetadataRequest{
		UserID:        userID,
		Data:          items,
		MajorRevision: o.MajorRevision,
		LockName:      o.LockName,
		AddTimestamp:  o.AddTimestamp,
		AddUserID:     o.AddUserID,
	}
	var resp SetUserMetadataResponse
	if err := s.client.doInto(ctx, op, req, &resp); err != nil {
		return nil, err
	}
	resp.UserID = userID
	return &resp, nil
}

// GetUserMetadata reads the full metadata set of a user. An empty
// userID addresses the calling user's own set.
func (s *Storage) GetUserMetadata(ctx context.Context, userID string) (*GetUserMetadataResponse, error) {
	userID, err := s.resolveUserID(userID)
	if err != nil {
		return nil, err
	}
	req := userMetadataRequest{UserID: userID}
	var resp GetUserMetadataResponse
	if err := s.client.doInto(ctx, opGetUserMetadata, req, &resp); err != nil {
		return nil, err
	}
	resp.UserID = userID
	s.storeUserView(userID, resp.StorageData)
	return &resp, nil
}

// SubscribeUserMetadata starts receiving storage events for another
// user's metadata set. The subscription is replayed after reconnect.
func (s *Storage) SubscribeUserMetadata(ctx context.Context, userID string) (*SubscribeUserMetadataResponse, error) {
	if !validName(userID) {
		return nil, ErrorInvalidArgument
	}
	req := userMetadataSubRequest{UserID: userID}
	var resp SubscribeUserMetadataResponse
	if err := s.client.doInto(ctx, opSubscribeUserMeta, req, &resp); err != nil {
		return nil, err
	}
	s.client.registry.addUserMeta(userID)
	resp.UserID = userID
	return &resp, nil
}

// UnsubscribeUserMetadata stops receiving storage events for a user.
func (s *Storage) UnsubscribeUserMetadata(ctx context.Context, userID string) (*UnsubscribeUserMetadataResponse, error) {
	if !validName(userID) {
		return nil, ErrorInvalidArgument
	}
	if !s.client.registry.hasUserMeta(userID) {
		return nil, ErrorNotSubscribed
	}
	req := userMetadataSubRequest{UserID: userID}
	var resp UnsubscribeUserMetadataResponse
	if err := s.client.doInto(ctx, opUnsubscribeUserMeta, req, &resp); err != nil {
		return nil, err
	}
	s.client.registry.removeUserMeta(userID)
	s.dropUserView(userID)
	s.client.mu.Lock()
	delete(s.client.firstSubscribeUser, userID)
	s.client.mu.Unlock()
	resp.UserID = userID
	return &resp, nil
}

func (s *Storage) resolveUserID(userID string) (string, error) {
	if userID == "" {
		return s.client.userID, nil
	}
	if !validName(userID) {
		return "", ErrorInvalidArgument
	}
	return userID, nil
}

// ChannelView returns the last locally observed metadata set of a
// channel, maintained from reads and storage pushes.
func (s *Storage) ChannelView(channelName string) (StorageData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view, ok := s.channelViews[channelName]
	return view, ok
}

// UserView returns the last locally observed metadata set of a user.
func (s *Storage) UserView(userID string) (StorageData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view, ok := s.userViews[userID]
	return view, ok
}

func (s *Storage) storeChannelView(channelName string, data StorageData) {
	s.mu.Lock()
	s.channelViews[channelName] = data
	s.mu.Unlock()
}

func (s *Storage) storeUserView(userID string, data StorageData) {
	s.mu.Lock()
	s.userViews[userID] = data
	s.mu.Unlock()
}

func (s *Storage) dropUserView(userID string) {
	s.mu.Lock()
	delete(s.userViews, userID)
	s.mu.Unlock()
}

// dropChannel drops the local view of a channel, on unsubscribe.
func (s *Storage) dropChannel(channelName string) {
	s.mu.Lock()
	delete(s.channelViews, channelName)
	s.mu.Unlock()
}

// processEvent folds a storage push into the local views and upgrades
// the very first push per scope to a SNAPSHOT so listeners can seed
// their state without a separate read.
func (s *Storage) processEvent(e *StorageEvent) {
	switch e.StorageType {
	case StorageTypeChannel:
		s.storeChannelView(e.ChannelName, e.Data)
		s.client.mu.Lock()
		if _, seen := s.client.firstSubscribeChannel[e.ChannelName]; !seen {
			s.client.firstSubscribeChannel[e.ChannelName] = struct{}{}
			e.EventType = StorageEventSnapshot
		}
		s.client.mu.Unlock()
	case StorageTypeUser:
		s.storeUserView(e.UserID, e.Data)
		s.client.mu.Lock()
		if _, seen := s.client.firstSubscribeUser[e.UserID]; !seen {
			s.client.firstSubscribeUser[e.UserID] = struct{}{}
			e.EventType = StorageEventSnapshot
		}
		s.client.mu.Unlock()
	}
}
