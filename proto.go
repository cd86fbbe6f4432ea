package rtm

import (
	"github.com/segmentio/encoding/json"
)

// Operation names carried in the command envelope. The server replies to
// each command with a frame echoing the command id; unsolicited frames
// carry a push type instead.
const (
	opLogin                 = "login"
	opLogout                = "logout"
	opPublish               = "publish"
	opSubscribe             = "subscribe"
	opUnsubscribe           = "unsubscribe"
	opWhoNow                = "whoNow"
	opWhereNow              = "whereNow"
	opSetState              = "setState"
	opGetState              = "getState"
	opRemoveState           = "removeState"
	opSetChannelMetadata    = "setChannelMetadata"
	opGetChannelMetadata    = "getChannelMetadata"
	opUpdateChannelMetadata = "updateChannelMetadata"
	opRemoveChannelMetadata = "removeChannelMetadata"
	opSetUserMetadata       = "setUserMetadata"
	opGetUserMetadata       = "getUserMetadata"
	opUpdateUserMetadata    = "updateUserMetadata"
	opRemoveUserMetadata    = "removeUserMetadata"
	opSubscribeUserMeta     = "subscribeUserMetadata"
	opUnsubscribeUserMeta   = "unsubscribeUserMetadata"
	opSetLock               = "setLock"
	opRemoveLock            = "removeLock"
	opAcquireLock           = "acquireLock"
	opReleaseLock           = "releaseLock"
	opRevokeLock            = "revokeLock"
	opGetLock               = "getLock"
	opRenewToken            = "renewToken"
	opJoinChannel           = "joinChannel"
	opLeaveChannel          = "leaveChannel"
	opJoinTopic             = "joinTopic"
	opLeaveTopic            = "leaveTopic"
	opPublishTopicMessage   = "publishTopicMessage"
	opSubscribeTopic        = "subscribeTopic"
	opUnsubscribeTopic      = "unsubscribeTopic"
)

// Push types for unsolicited server frames.
const (
	pushMessage         = "message"
	pushPresence        = "presence"
	pushStorage         = "storage"
	pushLock            = "lock"
	pushTopic           = "topic"
	pushTokenWillExpire = "tokenPrivilegeWillExpire"
	pushDisconnect      = "disconnect"
)

// command is the outbound envelope.
type command struct {
	ID   string          `json:"id"`
	Op   string          `json:"op"`
	Body json.RawMessage `json:"body,omitempty"`
}

// serverFrame is the inbound envelope. A non-empty ID marks a reply to a
// pending command, a non-empty Push marks an unsolicited event.
type serverFrame struct {
	ID        string          `json:"id,omitempty"`
	Code      uint32          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Temporary bool            `json:"temporary,omitempty"`
	Push      string          `json:"push,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
}

func encodeCommand(id, op string, body any) ([]byte, error) {
	var raw json.RawMessage
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(command{ID: id, Op: op, Body: raw})
}

func decodeServerFrame(data []byte) (*serverFrame, error) {
	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// Wire request bodies. Response bodies reuse the public response types
// directly since their JSON shapes match the protocol.

type loginRequest struct {
	AppID           string `json:"appId"`
	UserID          string `json:"userId"`
	Token           string `json:"token,omitempty"`
	EncryptionMode  string `json:"encryptionMode,omitempty"`
	PresenceTimeout int64  `json:"presenceTimeout,omitempty"`
	UseStringUserID bool   `json:"useStringUserId,omitempty"`
	CloudProxy      bool   `json:"cloudProxy,omitempty"`
	// Reconnect marks a re-login of an interrupted session so the server
	// can resume instead of starting fresh.
	Reconnect bool `json:"reconnect,omitempty"`
}

type publishRequest struct {
	ChannelName string      `json:"channelName"`
	Message     []byte      `json:"message"`
	Kind        MessageKind `json:"messageType"`
	CustomType  string      `json:"customType,omitempty"`
}

// subscribeRequest carries only the sub-feed delta: feeds to add and
// feeds to drop relative to the server's current view. A fresh
// subscription lists everything under Add.
type subscribeRequest struct {
	ChannelName string   `json:"channelName"`
	Add         []string `json:"add,omitempty"`
	Remove      []string `json:"remove,omitempty"`
}

type unsubscribeRequest struct {
	ChannelName string `json:"channelName"`
}

type whoNowRequest struct {
	ChannelName   string      `json:"channelName"`
	ChannelType   ChannelType `json:"channelType"`
	IncludeUserID bool        `json:"includedUserId,omitempty"`
	IncludeState  bool        `json:"includedState,omitempty"`
	Page          string      `json:"page,omitempty"`
}

type whereNowRequest struct {
	UserID string `json:"userId"`
}

type setStateRequest struct {
	ChannelName string      `json:"channelName"`
	ChannelType ChannelType `json:"channelType"`
	State       StateDetail `json:"state"`
}

type getStateRequest struct {
	UserID      string      `json:"userId"`
	ChannelName string      `json:"channelName"`
	ChannelType ChannelType `json:"channelType"`
}

type removeStateRequest struct {
	ChannelName string      `json:"channelName"`
	ChannelType ChannelType `json:"channelType"`
	// States lists keys to clear; empty clears everything.
	States []string `json:"states,omitempty"`
}

type channelMetadataRequest struct {
	ChannelName   string         `json:"channelName"`
	ChannelType   ChannelType    `json:"channelType"`
	Data          []MetadataItem `json:"data,omitempty"`
	MajorRevision RevisionPolicy `json:"majorRevision"`
	LockName      string         `json:"lockName,omitempty"`
	AddTimestamp  bool           `json:"addTimeStamp,omitempty"`
	AddUserID     bool           `json:"addUserId,omitempty"`
}

type userMetadataRequest struct {
	UserID        string         `json:"userId"`
	Data          []MetadataItem `json:"data,omitempty"`
	MajorRevision RevisionPolicy `json:"majorRevision"`
	LockName      string         `json:"lockName,omitempty"`
	AddTimestamp  bool           `json:"addTimeStamp,omitempty"`
	AddUserID     bool           `json:"addUserId,omitempty"`
}

type userMetadataSubRequest struct {
	UserID string `json:"userId"`
}

type lockRequest struct {
	ChannelName string      `json:"channelName"`
	ChannelType ChannelType `json:"channelType"`
	LockName    string      `json:"lockName,omitempty"`
	TTL         int64       `json:"ttl,omitempty"`
	// Owner is only set by revokeLock.
	Owner string `json:"owner,omitempty"`
}

type renewTokenRequest struct {
	Token       string `json:"token"`
	ChannelName string `json:"channelName,omitempty"`
}

type joinChannelRequest struct {
	ChannelName  string `json:"channelName"`
	Token        string `json:"token,omitempty"`
	WithPresence bool   `json:"withPresence"`
	WithMetadata bool   `json:"withMetadata"`
	WithLock     bool   `json:"withLock"`
}

type leaveChannelRequest struct {
	ChannelName string `json:"channelName"`
}

type topicRequest struct {
	ChannelName string      `json:"channelName"`
	TopicName   string      `json:"topicName"`
	Meta        string      `json:"meta,omitempty"`
	QoS         bool        `json:"qos,omitempty"`
	Users       []string    `json:"users,omitempty"`
	Message     []byte      `json:"message,omitempty"`
	Kind        MessageKind `json:"messageType,omitempty"`
	CustomType  string      `json:"customType,omitempty"`
}
