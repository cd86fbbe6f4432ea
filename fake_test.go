package rtm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"
)

var errConnClosed = errors.New("connection closed")

type fakeConn struct {
	server    *fakeServer
	userID    string
	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *fakeConn) Send(data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.server.handle(c, buf)
	return nil
}

func (c *fakeConn) Read() ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) deliver(data []byte) {
	select {
	case c.inbox <- data:
	case <-c.closed:
	}
}

type metaEntry struct {
	detail MetadataDetail
}

type metaSet struct {
	majorRevision int64
	revisionSeq   int64
	items         map[string]*metaEntry
}

func newMetaSet() *metaSet {
	return &metaSet{items: make(map[string]*metaEntry)}
}

type serverLock struct {
	owner string
	ttl   int64
}

// fakeServer is an in-memory RTM backbone good enough for driving the
// client through login, pub/sub, presence, storage, lock and topic
// flows, including reconnects.
type fakeServer struct {
	mu sync.Mutex

	conns []*fakeConn

	rejectLogin  *Error
	dialErr      error
	connectGate  func()
	failOps      map[string]*Error
	timeToken    int64
	topicLimit   int
	lastLockTTL  int64
	subscribeLog []subscribeRequest
	joinLog      []joinChannelRequest
	opLog        []string

	channelMeta map[string]*metaSet
	userMeta    map[string]*metaSet
	locks       map[lockKey]*serverLock
	presence    map[string]map[string]StateDetail
	publishers  map[string]map[string][]PublisherInfo
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		failOps:     make(map[string]*Error),
		topicLimit:  64,
		channelMeta: make(map[string]*metaSet),
		userMeta:    make(map[string]*metaSet),
		locks:       make(map[lockKey]*serverLock),
		presence:    make(map[string]map[string]StateDetail),
		publishers:  make(map[string]map[string][]PublisherInfo),
	}
}

func (s *fakeServer) Connect(ctx context.Context, endpoint string) (Conn, error) {
	s.mu.Lock()
	gate := s.connectGate
	s.mu.Unlock()
	if gate != nil {
		// Lets tests hold a dial attempt open at a chosen moment.
		gate()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dialErr != nil {
		return nil, s.dialErr
	}
	conn := &fakeConn{
		server: s,
		inbox:  make(chan []byte, 256),
		closed: make(chan struct{}),
	}
	s.conns = append(s.conns, conn)
	return conn, nil
}

func (s *fakeServer) nextToken() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeToken++
	return s.timeToken
}

func (s *fakeServer) reply(conn *fakeConn, id string, body any) {
	raw, _ := json.Marshal(body)
	frame, _ := json.Marshal(serverFrame{ID: id, Body: raw})
	conn.deliver(frame)
}

func (s *fakeServer) replyErr(conn *fakeConn, id string, opErr *Error) {
	frame, _ := json.Marshal(serverFrame{
		ID:        id,
		Code:      opErr.Code,
		Message:   opErr.Message,
		Temporary: opErr.Temporary,
	})
	conn.deliver(frame)
}

// push broadcasts an unsolicited frame to every live connection.
func (s *fakeServer) push(pushType string, body any) {
	raw, _ := json.Marshal(body)
	frame, _ := json.Marshal(serverFrame{Push: pushType, Body: raw})
	s.mu.Lock()
	conns := make([]*fakeConn, len(s.conns))
	copy(conns, s.conns)
	s.mu.Unlock()
	for _, conn := range conns {
		conn.deliver(frame)
	}
}

// disconnectAll pushes a disconnect frame and drops every connection,
// simulating a server-side session termination.
func (s *fakeServer) disconnectAll(d *Disconnect) {
	s.push(pushDisconnect, d)
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	// Give the client a moment to read the disconnect frame before the
	// transport error surfaces.
	time.Sleep(20 * time.Millisecond)
	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (s *fakeServer) subscribeCalls() []subscribeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]subscribeRequest, len(s.subscribeLog))
	copy(out, s.subscribeLog)
	return out
}

func (s *fakeServer) joinCalls() []joinChannelRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]joinChannelRequest, len(s.joinLog))
	copy(out, s.joinLog)
	return out
}

func (s *fakeServer) handle(conn *fakeConn, data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return
	}
	s.mu.Lock()
	s.opLog = append(s.opLog, cmd.Op)
	if opErr, ok := s.failOps[cmd.Op]; ok {
		s.mu.Unlock()
		s.replyErr(conn, cmd.ID, opErr)
		return
	}
	s.mu.Unlock()

	switch cmd.Op {
	case opLogin:
		s.handleLogin(conn, cmd)
	case opLogout:
		s.reply(conn, cmd.ID, LogoutResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
	case opPublish:
		s.reply(conn, cmd.ID, PublishResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
	case opSubscribe:
		var req subscribeRequest
		_ = json.Unmarshal(cmd.Body, &req)
		s.mu.Lock()
		s.subscribeLog = append(s.subscribeLog, req)
		s.mu.Unlock()
		s.reply(conn, cmd.ID, SubscribeResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
	case opUnsubscribe:
		s.reply(conn, cmd.ID, UnsubscribeResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
	case opWhoNow:
		s.handleWhoNow(conn, cmd)
	case opWhereNow:
		s.reply(conn, cmd.ID, WhereNowResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
	case opSetState:
		s.handleSetState(conn, cmd)
	case opGetState:
		s.handleGetState(conn, cmd)
	case opRemoveState:
		s.handleRemoveState(conn, cmd)
	case opSetChannelMetadata, opUpdateChannelMetadata, opRemoveChannelMetadata:
		s.handleChannelMetaWrite(conn, cmd)
	case opGetChannelMetadata:
		s.handleChannelMetaRead(conn, cmd)
	case opSetUserMetadata, opUpdateUserMetadata, opRemoveUserMetadata:
		s.handleUserMetaWrite(conn, cmd)
	case opGetUserMetadata:
		s.handleUserMetaRead(conn, cmd)
	case opSubscribeUserMeta, opUnsubscribeUserMeta:
		var req userMetadataSubRequest
		_ = json.Unmarshal(cmd.Body, &req)
		s.reply(conn, cmd.ID, SubscribeUserMetadataResponse{
			BaseResponse: BaseResponse{TimeToken: s.nextToken()},
			UserID:       req.UserID,
		})
	case opSetLock:
		s.handleSetLock(conn, cmd)
	case opRemoveLock:
		s.handleRemoveLock(conn, cmd)
	case opAcquireLock:
		s.handleAcquireLock(conn, cmd)
	case opReleaseLock:
		s.handleReleaseLock(conn, cmd)
	case opRevokeLock:
		s.handleRevokeLock(conn, cmd)
	case opGetLock:
		s.handleGetLock(conn, cmd)
	case opRenewToken:
		s.reply(conn, cmd.ID, RenewTokenResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
	case opJoinChannel:
		var req joinChannelRequest
		_ = json.Unmarshal(cmd.Body, &req)
		s.mu.Lock()
		s.joinLog = append(s.joinLog, req)
		s.mu.Unlock()
		s.reply(conn, cmd.ID, JoinChannelResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
	case opLeaveChannel:
		s.reply(conn, cmd.ID, LeaveChannelResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
	case opJoinTopic:
		s.handleJoinTopic(conn, cmd)
	case opLeaveTopic:
		s.handleLeaveTopic(conn, cmd)
	case opPublishTopicMessage:
		s.reply(conn, cmd.ID, PublishTopicMessageResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
	case opSubscribeTopic:
		s.handleSubscribeTopic(conn, cmd)
	case opUnsubscribeTopic:
		s.reply(conn, cmd.ID, UnsubscribeTopicResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
	default:
		s.replyErr(conn, cmd.ID, ErrorBadRequest)
	}
}

func (s *fakeServer) handleLogin(conn *fakeConn, cmd command) {
	s.mu.Lock()
	rejection := s.rejectLogin
	s.mu.Unlock()
	if rejection != nil {
		s.replyErr(conn, cmd.ID, rejection)
		return
	}
	var req loginRequest
	_ = json.Unmarshal(cmd.Body, &req)
	conn.userID = req.UserID
	s.reply(conn, cmd.ID, LoginResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
}

func (s *fakeServer) handleWhoNow(conn *fakeConn, cmd command) {
	var req whoNowRequest
	_ = json.Unmarshal(cmd.Body, &req)
	s.mu.Lock()
	occupants := make([]OccupancyDetail, 0)
	for userID, states := range s.presence[req.ChannelName] {
		detail := OccupancyDetail{}
		if req.IncludeUserID {
			detail.UserID = userID
		}
		if req.IncludeState {
			detail.States = states
			detail.StatesCount = len(states)
		}
		occupants = append(occupants, detail)
	}
	s.mu.Unlock()
	s.reply(conn, cmd.ID, WhoNowResponse{
		BaseResponse:   BaseResponse{TimeToken: s.nextToken()},
		TotalOccupancy: len(occupants),
		Occupants:      occupants,
	})
}

func (s *fakeServer) handleSetState(conn *fakeConn, cmd command) {
	var req setStateRequest
	_ = json.Unmarshal(cmd.Body, &req)
	s.mu.Lock()
	channel := s.presence[req.ChannelName]
	if channel == nil {
		channel = make(map[string]StateDetail)
		s.presence[req.ChannelName] = channel
	}
	states := channel[conn.userID]
	if states == nil {
		states = make(StateDetail)
		channel[conn.userID] = states
	}
	for k, v := range req.State {
		states[k] = v
	}
	s.mu.Unlock()
	s.reply(conn, cmd.ID, SetStateResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
}

func (s *fakeServer) handleGetState(conn *fakeConn, cmd command) {
	var req getStateRequest
	_ = json.Unmarshal(cmd.Body, &req)
	s.mu.Lock()
	states := s.presence[req.ChannelName][req.UserID]
	s.mu.Unlock()
	s.reply(conn, cmd.ID, GetStateResponse{
		BaseResponse: BaseResponse{TimeToken: s.nextToken()},
		OccupancyDetail: OccupancyDetail{
			UserID:      req.UserID,
			States:      states,
			StatesCount: len(states),
		},
	})
}

func (s *fakeServer) handleRemoveState(conn *fakeConn, cmd command) {
	var req removeStateRequest
	_ = json.Unmarshal(cmd.Body, &req)
	s.mu.Lock()
	if channel := s.presence[req.ChannelName]; channel != nil {
		if len(req.States) == 0 {
			delete(channel, conn.userID)
		} else if states := channel[conn.userID]; states != nil {
			for _, key := range req.States {
				delete(states, key)
			}
		}
	}
	s.mu.Unlock()
	s.reply(conn, cmd.ID, RemoveStateResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
}

// applyMetaWrite implements the revision-gated write semantics shared by
// channel and user metadata: validate the whole batch first, then apply
// atomically and bump the major revision.
func (s *fakeServer) applyMetaWrite(set *metaSet, op string, items []MetadataItem, major RevisionPolicy, author string, addTimestamp, addUserID bool) *Error {
	if err := major.check(set.majorRevision, set.majorRevision > 0); err != nil {
		return err
	}
	for _, item := range items {
		entry, exists := set.items[item.Key]
		var current int64
		if exists {
			current = entry.detail.Revision
		}
		switch op {
		case opUpdateChannelMetadata, opUpdateUserMetadata:
			if !exists {
				return ErrorMetadataRevisionConflict
			}
			if err := item.Revision.check(current, exists); err != nil {
				return err
			}
		default:
			if err := item.Revision.check(current, exists); err != nil {
				return err
			}
		}
	}
	remove := op == opRemoveChannelMetadata || op == opRemoveUserMetadata
	if remove && len(items) == 0 {
		set.items = make(map[string]*metaEntry)
		set.majorRevision++
		return nil
	}
	for _, item := range items {
		if remove {
			delete(set.items, item.Key)
			continue
		}
		s.revisionSeqBump(set)
		detail := MetadataDetail{Value: item.Value, Revision: set.revisionSeq}
		if addTimestamp {
			detail.Updated = time.Now().UnixMilli()
		}
		if addUserID {
			detail.AuthorUID = author
		}
		set.items[item.Key] = &metaEntry{detail: detail}
	}
	set.majorRevision++
	return nil
}

func (s *fakeServer) revisionSeqBump(set *metaSet) {
	set.revisionSeq++
}

func (s *fakeServer) storageData(set *metaSet) StorageData {
	metadata := make(map[string]MetadataDetail, len(set.items))
	for key, entry := range set.items {
		metadata[key] = entry.detail
	}
	return StorageData{
		TotalCount:    len(set.items),
		MajorRevision: set.majorRevision,
		Metadata:      metadata,
	}
}

func (s *fakeServer) handleChannelMetaWrite(conn *fakeConn, cmd command) {
	var req channelMetadataRequest
	_ = json.Unmarshal(cmd.Body, &req)
	s.mu.Lock()
	set := s.channelMeta[req.ChannelName]
	if set == nil {
		set = newMetaSet()
		s.channelMeta[req.ChannelName] = set
	}
	if req.LockName != "" {
		lock := s.locks[lockKey{req.ChannelName, req.ChannelType, req.LockName}]
		if lock == nil || lock.owner != conn.userID {
			s.mu.Unlock()
			s.replyErr(conn, cmd.ID, ErrorMetadataLockNotHeld)
			return
		}
	}
	writeErr := s.applyMetaWrite(set, cmd.Op, req.Data, req.MajorRevision, conn.userID, req.AddTimestamp, req.AddUserID)
	data := s.storageData(set)
	s.mu.Unlock()
	if writeErr != nil {
		s.replyErr(conn, cmd.ID, writeErr)
		return
	}
	s.reply(conn, cmd.ID, SetChannelMetadataResponse{
		BaseResponse: BaseResponse{TimeToken: s.nextToken()},
		TotalCount:   data.TotalCount,
	})
	eventType := StorageEventSet
	switch cmd.Op {
	case opUpdateChannelMetadata:
		eventType = StorageEventUpdate
	case opRemoveChannelMetadata:
		eventType = StorageEventRemove
	}
	s.push(pushStorage, StorageEvent{
		ChannelType: req.ChannelType,
		ChannelName: req.ChannelName,
		Publisher:   conn.userID,
		StorageType: StorageTypeChannel,
		EventType:   eventType,
		Data:        data,
	})
}

func (s *fakeServer) handleChannelMetaRead(conn *fakeConn, cmd command) {
	var req channelMetadataRequest
	_ = json.Unmarshal(cmd.Body, &req)
	s.mu.Lock()
	set := s.channelMeta[req.ChannelName]
	if set == nil {
		set = newMetaSet()
	}
	data := s.storageData(set)
	s.mu.Unlock()
	s.reply(conn, cmd.ID, GetChannelMetadataResponse{
		BaseResponse: BaseResponse{TimeToken: s.nextToken()},
		StorageData:  data,
	})
}

func (s *fakeServer) handleUserMetaWrite(conn *fakeConn, cmd command) {
	var req userMetadataRequest
	_ = json.Unmarshal(cmd.Body, &req)
	s.mu.Lock()
	set := s.userMeta[req.UserID]
	if set == nil {
		set = newMetaSet()
		s.userMeta[req.UserID] = set
	}
	writeErr := s.applyMetaWrite(set, cmd.Op, req.Data, req.MajorRevision, conn.userID, req.AddTimestamp, req.AddUserID)
	data := s.storageData(set)
	s.mu.Unlock()
	if writeErr != nil {
		s.replyErr(conn, cmd.ID, writeErr)
		return
	}
	s.reply(conn, cmd.ID, SetUserMetadataResponse{
		BaseResponse: BaseResponse{TimeToken: s.nextToken()},
		TotalCount:   data.TotalCount,
	})
	s.push(pushStorage, StorageEvent{
		UserID:      req.UserID,
		Publisher:   conn.userID,
		StorageType: StorageTypeUser,
		EventType:   StorageEventSet,
		Data:        data,
	})
}

func (s *fakeServer) handleUserMetaRead(conn *fakeConn, cmd command) {
	var req userMetadataRequest
	_ = json.Unmarshal(cmd.Body, &req)
	s.mu.Lock()
	set := s.userMeta[req.UserID]
	if set == nil {
		set = newMetaSet()
	}
	data := s.storageData(set)
	s.mu.Unlock()
	s.reply(conn, cmd.ID, GetUserMetadataResponse{
		BaseResponse: BaseResponse{TimeToken: s.nextToken()},
		StorageData:  data,
	})
}

func (s *fakeServer) handleSetLock(conn *fakeConn, cmd command) {
	var req lockRequest
	_ = json.Unmarshal(cmd.Body, &req)
	s.mu.Lock()
	key := lockKey{req.ChannelName, req.ChannelType, req.LockName}
	if _, ok := s.locks[key]; !ok {
		s.locks[key] = &serverLock{ttl: req.TTL}
	}
	s.lastLockTTL = req.TTL
	s.mu.Unlock()
	s.reply(conn, cmd.ID, LockOperationResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
	s.push(pushLock, LockEvent{
		ChannelType: req.ChannelType,
		ChannelName: req.ChannelName,
		EventType:   LockEventSet,
		LockName:    req.LockName,
		TTL:         req.TTL,
		Publisher:   conn.userID,
	})
}

func (s *fakeServer) handleRemoveLock(conn *fakeConn, cmd command) {
	var req lockRequest
	_ = json.Unmarshal(cmd.Body, &req)
	key := lockKey{req.ChannelName, req.ChannelType, req.LockName}
	s.mu.Lock()
	_, ok := s.locks[key]
	delete(s.locks, key)
	s.mu.Unlock()
	if !ok {
		s.replyErr(conn, cmd.ID, ErrorLockNotFound)
		return
	}
	s.reply(conn, cmd.ID, LockOperationResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
	s.push(pushLock, LockEvent{
		ChannelType: req.ChannelType,
		ChannelName: req.ChannelName,
		EventType:   LockEventRemoved,
		LockName:    req.LockName,
		Publisher:   conn.userID,
	})
}

func (s *fakeServer) handleAcquireLock(conn *fakeConn, cmd command) {
	var req lockRequest
	_ = json.Unmarshal(cmd.Body, &req)
	key := lockKey{req.ChannelName, req.ChannelType, req.LockName}
	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		s.mu.Unlock()
		s.replyErr(conn, cmd.ID, ErrorLockNotFound)
		return
	}
	if lock.owner != "" && lock.owner != conn.userID {
		s.mu.Unlock()
		s.replyErr(conn, cmd.ID, ErrorLockAlreadyOwned)
		return
	}
	lock.owner = conn.userID
	s.mu.Unlock()
	s.reply(conn, cmd.ID, LockOperationResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
	s.push(pushLock, LockEvent{
		ChannelType: req.ChannelType,
		ChannelName: req.ChannelName,
		EventType:   LockEventAcquired,
		LockName:    req.LockName,
		Publisher:   conn.userID,
	})
}

func (s *fakeServer) handleReleaseLock(conn *fakeConn, cmd command) {
	var req lockRequest
	_ = json.Unmarshal(cmd.Body, &req)
	key := lockKey{req.ChannelName, req.ChannelType, req.LockName}
	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok || lock.owner != conn.userID {
		s.mu.Unlock()
		s.replyErr(conn, cmd.ID, ErrorLockNotOwned)
		return
	}
	lock.owner = ""
	s.mu.Unlock()
	s.reply(conn, cmd.ID, LockOperationResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
	s.push(pushLock, LockEvent{
		ChannelType: req.ChannelType,
		ChannelName: req.ChannelName,
		EventType:   LockEventReleased,
		LockName:    req.LockName,
		Publisher:   conn.userID,
	})
}

func (s *fakeServer) handleRevokeLock(conn *fakeConn, cmd command) {
	var req lockRequest
	_ = json.Unmarshal(cmd.Body, &req)
	key := lockKey{req.ChannelName, req.ChannelType, req.LockName}
	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok || lock.owner != req.Owner {
		s.mu.Unlock()
		s.replyErr(conn, cmd.ID, ErrorLockNotOwned)
		return
	}
	lock.owner = ""
	s.mu.Unlock()
	s.reply(conn, cmd.ID, LockOperationResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
	s.push(pushLock, LockEvent{
		ChannelType: req.ChannelType,
		ChannelName: req.ChannelName,
		EventType:   LockEventReleased,
		LockName:    req.LockName,
		Publisher:   conn.userID,
	})
}

func (s *fakeServer) handleGetLock(conn *fakeConn, cmd command) {
	var req lockRequest
	_ = json.Unmarshal(cmd.Body, &req)
	s.mu.Lock()
	var details []LockDetail
	for key, lock := range s.locks {
		if key.channelName == req.ChannelName && key.channelType == req.ChannelType {
			details = append(details, LockDetail{
				LockName: key.lockName,
				Owner:    lock.owner,
				TTL:      lock.ttl,
			})
		}
	}
	s.mu.Unlock()
	s.reply(conn, cmd.ID, GetLockResponse{
		BaseResponse: BaseResponse{TimeToken: s.nextToken()},
		TotalLocks:   len(details),
		LockDetails:  details,
	})
}

func (s *fakeServer) handleJoinTopic(conn *fakeConn, cmd command) {
	var req topicRequest
	_ = json.Unmarshal(cmd.Body, &req)
	s.mu.Lock()
	topics := s.publishers[req.ChannelName]
	if topics == nil {
		topics = make(map[string][]PublisherInfo)
		s.publishers[req.ChannelName] = topics
	}
	topics[req.TopicName] = append(topics[req.TopicName], PublisherInfo{
		PublisherUserID: conn.userID,
		PublisherMeta:   req.Meta,
	})
	s.mu.Unlock()
	s.reply(conn, cmd.ID, JoinTopicResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
}

func (s *fakeServer) handleLeaveTopic(conn *fakeConn, cmd command) {
	var req topicRequest
	_ = json.Unmarshal(cmd.Body, &req)
	s.mu.Lock()
	if topics := s.publishers[req.ChannelName]; topics != nil {
		infos := topics[req.TopicName]
		for i, info := range infos {
			if info.PublisherUserID == conn.userID {
				topics[req.TopicName] = append(infos[:i:i], infos[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	s.reply(conn, cmd.ID, LeaveTopicResponse{BaseResponse: BaseResponse{TimeToken: s.nextToken()}})
}

// handleSubscribeTopic applies the per-topic subscription cap: users
// beyond the limit come back in the failure lists.
func (s *fakeServer) handleSubscribeTopic(conn *fakeConn, cmd command) {
	var req topicRequest
	_ = json.Unmarshal(cmd.Body, &req)
	s.mu.Lock()
	limit := s.topicLimit
	s.mu.Unlock()
	resp := SubscribeTopicResponse{
		BaseResponse: BaseResponse{TimeToken: s.nextToken()},
		TopicName:    req.TopicName,
	}
	for i, userID := range req.Users {
		if i < limit {
			resp.SucceedUsers = append(resp.SucceedUsers, userID)
			continue
		}
		resp.FailedUsers = append(resp.FailedUsers, userID)
		resp.FailedDetails = append(resp.FailedDetails, SubscribeTopicFailure{
			User:      userID,
			ErrorCode: SubscribeTopicUserExceedLimit,
			Reason:    "subscribed user limit exceeded",
		})
	}
	s.reply(conn, cmd.ID, resp)
}
