package rtm

// ChannelType scopes an operation to one of the two channel families.
type ChannelType string

const (
	// ChannelTypeMessage is a plain pub/sub channel addressed by
	// Subscribe/Publish on the client.
	ChannelTypeMessage ChannelType = "MESSAGE"
	// ChannelTypeStream is a joinable channel with topics, addressed
	// through a StreamChannel instance.
	ChannelTypeStream ChannelType = "STREAM"
)

// MessageKind tells receivers how to interpret a message payload.
type MessageKind string

const (
	// MessageString marks a UTF-8 text payload.
	MessageString MessageKind = "STRING"
	// MessageBinary marks an opaque binary payload.
	MessageBinary MessageKind = "BINARY"
)

// StorageType tells which metadata family a storage event belongs to.
type StorageType string

const (
	StorageTypeChannel StorageType = "CHANNEL"
	StorageTypeUser    StorageType = "USER"
)

// BaseResponse carries the server timestamp token present in every
// operation response, usable by callers for causal ordering.
type BaseResponse struct {
	// TimeToken is a server-assigned timestamp token.
	TimeToken int64 `json:"timeToken"`
}

// LoginResponse is a result of Login operation.
type LoginResponse struct {
	BaseResponse
}

// LogoutResponse is a result of Logout operation.
type LogoutResponse struct {
	BaseResponse
}

// PublishResponse is a result of Publish operation.
type PublishResponse struct {
	BaseResponse
	ChannelName string `json:"channelName"`
}

// SubscribeResponse is a result of Subscribe operation.
type SubscribeResponse struct {
	BaseResponse
	ChannelName string `json:"channelName"`
}

// UnsubscribeResponse is a result of Unsubscribe operation.
type UnsubscribeResponse struct {
	BaseResponse
	ChannelName string `json:"channelName"`
}

// RenewTokenResponse is a result of RenewToken operation.
type RenewTokenResponse struct {
	BaseResponse
}

// UpdateConfigResponse is a result of UpdateConfig operation.
type UpdateConfigResponse struct {
	BaseResponse
}

// StateDetail is a free-form key/value mapping attached to a user's
// presence in a channel. Writes are last-write-wins, no revision check.
type StateDetail map[string]string

// OccupancyDetail describes one present user.
type OccupancyDetail struct {
	UserID      string      `json:"userId"`
	States      StateDetail `json:"states"`
	StatesCount int         `json:"statesCount"`
}

// ChannelDetail names a channel a user was found in.
type ChannelDetail struct {
	ChannelName string      `json:"channelName"`
	ChannelType ChannelType `json:"channelType"`
}

// WhoNowResponse is a result of WhoNow operation.
type WhoNowResponse struct {
	BaseResponse
	TotalOccupancy int               `json:"totalOccupancy"`
	Occupants      []OccupancyDetail `json:"occupants"`
	// NextPage is an opaque token for the next result page, empty when
	// the listing is exhausted.
	NextPage string `json:"nextPage"`
}

// GetOnlineUsersResponse is a result of GetOnlineUsers operation.
type GetOnlineUsersResponse = WhoNowResponse

// WhereNowResponse is a result of WhereNow operation.
type WhereNowResponse struct {
	BaseResponse
	Channels     []ChannelDetail `json:"channels"`
	TotalChannel int             `json:"totalChannel"`
}

// GetUserChannelsResponse is a result of GetUserChannels operation.
type GetUserChannelsResponse = WhereNowResponse

// SetStateResponse is a result of SetState operation.
type SetStateResponse struct {
	BaseResponse
}

// GetStateResponse is a result of GetState operation.
type GetStateResponse struct {
	BaseResponse
	OccupancyDetail
}

// RemoveStateResponse is a result of RemoveState operation.
type RemoveStateResponse struct {
	BaseResponse
}

// MetadataItem is a single key/value pair submitted to a metadata write.
type MetadataItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	// Revision gates the write for this item: RevisionAny overwrites
	// unconditionally, RevisionCreateOnly succeeds only when the key does
	// not exist yet, a positive value must match the key's current
	// revision.
	Revision RevisionPolicy `json:"revision"`
}

// MetadataDetail is a stored metadata item as returned on read, with
// server-assigned bookkeeping fields.
type MetadataDetail struct {
	Value    string `json:"value"`
	Revision int64  `json:"revision"`
	// Updated is the server timestamp of the last modification, zero
	// unless the write carried the AddTimestamp option.
	Updated int64 `json:"updated"`
	// AuthorUID is the user who last modified the item, empty unless the
	// write carried the AddUserID option.
	AuthorUID string `json:"authorUid"`
}

// StorageData is a full metadata set view.
type StorageData struct {
	TotalCount    int                       `json:"totalCount"`
	MajorRevision int64                     `json:"majorRevision"`
	Metadata      map[string]MetadataDetail `json:"metadata"`
}

// SetChannelMetadataResponse is a result of SetChannelMetadata operation.
type SetChannelMetadataResponse struct {
	BaseResponse
	ChannelName string      `json:"channelName"`
	ChannelType ChannelType `json:"channelType"`
	TotalCount  int         `json:"totalCount"`
}

// UpdateChannelMetadataResponse is a result of UpdateChannelMetadata operation.
type UpdateChannelMetadataResponse = SetChannelMetadataResponse

// RemoveChannelMetadataResponse is a result of RemoveChannelMetadata operation.
type RemoveChannelMetadataResponse = SetChannelMetadataResponse

// GetChannelMetadataResponse is a result of GetChannelMetadata operation.
type GetChannelMetadataResponse struct {
	BaseResponse
	ChannelName string      `json:"channelName"`
	ChannelType ChannelType `json:"channelType"`
	StorageData
}

// SetUserMetadataResponse is a result of SetUserMetadata operation.
type SetUserMetadataResponse struct {
	BaseResponse
	UserID     string `json:"userId"`
	TotalCount int    `json:"totalCount"`
}

// UpdateUserMetadataResponse is a result of UpdateUserMetadata operation.
type UpdateUserMetadataResponse = SetUserMetadataResponse

// RemoveUserMetadataResponse is a result of RemoveUserMetadata operation.
type RemoveUserMetadataResponse = SetUserMetadataResponse

// GetUserMetadataResponse is a result of GetUserMetadata operation.
type GetUserMetadataResponse struct {
	BaseResponse
	UserID string `json:"userId"`
	StorageData
}

// SubscribeUserMetadataResponse is a result of SubscribeUserMetadata operation.
type SubscribeUserMetadataResponse struct {
	BaseResponse
	UserID string `json:"userId"`
}

// UnsubscribeUserMetadataResponse is a result of UnsubscribeUserMetadata operation.
type UnsubscribeUserMetadataResponse = SubscribeUserMetadataResponse

// LockDetail describes one declared lock in a channel.
type LockDetail struct {
	LockName string `json:"lockName"`
	// Owner is the user currently holding the lock, empty when free.
	Owner string `json:"owner"`
	// TTL is the remaining grace period in seconds an offline owner's
	// hold survives before automatic release.
	TTL int64 `json:"ttl"`
}

// LockOperationResponse is a result of a single-lock operation.
type LockOperationResponse struct {
	BaseResponse
	ChannelName string      `json:"channelName"`
	ChannelType ChannelType `json:"channelType"`
	LockName    string      `json:"lockName"`
}

// SetLockResponse is a result of SetLock operation.
type SetLockResponse = LockOperationResponse

// RemoveLockResponse is a result of RemoveLock operation.
type RemoveLockResponse = LockOperationResponse

// AcquireLockResponse is a result of AcquireLock operation.
type AcquireLockResponse = LockOperationResponse

// ReleaseLockResponse is a result of ReleaseLock operation.
type ReleaseLockResponse = LockOperationResponse

// RevokeLockResponse is a result of RevokeLock operation.
type RevokeLockResponse = LockOperationResponse

// GetLockResponse is a result of GetLock operation.
type GetLockResponse struct {
	BaseResponse
	ChannelName string       `json:"channelName"`
	ChannelType ChannelType  `json:"channelType"`
	TotalLocks  int          `json:"totalLocks"`
	LockDetails []LockDetail `json:"lockDetails"`
}

// JoinChannelResponse is a result of StreamChannel Join operation.
type JoinChannelResponse struct {
	BaseResponse
}

// LeaveChannelResponse is a result of StreamChannel Leave operation.
type LeaveChannelResponse = JoinChannelResponse

// JoinTopicResponse is a result of JoinTopic operation.
type JoinTopicResponse struct {
	BaseResponse
	TopicName string `json:"topicName"`
}

// LeaveTopicResponse is a result of LeaveTopic operation.
type LeaveTopicResponse = JoinTopicResponse

// PublishTopicMessageResponse is a result of PublishTopicMessage operation.
type PublishTopicMessageResponse = JoinTopicResponse

// SubscribeTopicErrorCode classifies a per-user topic subscription
// failure inside a partially successful SubscribeTopic response.
type SubscribeTopicErrorCode int

const (
	SubscribeTopicNoError            SubscribeTopicErrorCode = 0
	SubscribeTopicPartiallySucceeded SubscribeTopicErrorCode = 1
	SubscribeTopicAllFailed          SubscribeTopicErrorCode = 2
	SubscribeTopicUnknownError       SubscribeTopicErrorCode = 3
	SubscribeTopicInvalidParams      SubscribeTopicErrorCode = 4
	SubscribeTopicUserNotPublished   SubscribeTopicErrorCode = 5
	SubscribeTopicInvalidRemoteUser  SubscribeTopicErrorCode = 6
	SubscribeTopicTimeout            SubscribeTopicErrorCode = 7
	SubscribeTopicAlreadySubscribed  SubscribeTopicErrorCode = 20001
	SubscribeTopicUserExceedLimit    SubscribeTopicErrorCode = 20003
	SubscribeTopicUserNotSubscribed  SubscribeTopicErrorCode = 20004
)

// SubscribeTopicFailure reports one user a SubscribeTopic call could not
// subscribe, with a typed reason.
type SubscribeTopicFailure struct {
	User      string                  `json:"user"`
	ErrorCode SubscribeTopicErrorCode `json:"errorCode"`
	Reason    string                  `json:"reason"`
}

// SubscribeTopicResponse is a result of SubscribeTopic operation. When
// only some requested users could be subscribed the response carries
// both lists instead of failing outright.
type SubscribeTopicResponse struct {
	BaseResponse
	TopicName     string                  `json:"topicName"`
	SucceedUsers  []string                `json:"succeedUsers"`
	FailedUsers   []string                `json:"failedUsers"`
	FailedDetails []SubscribeTopicFailure `json:"failedDetails"`
}

// UnsubscribeTopicResponse is a result of UnsubscribeTopic operation.
type UnsubscribeTopicResponse struct {
	BaseResponse
}

// GetSubscribedUserListResponse lists the users effectively subscribed
// in a topic. The requested and effective sets can differ because of the
// per-topic subscription cap, so callers must consult this rather than
// assume their request was applied verbatim.
type GetSubscribedUserListResponse struct {
	TopicName  string   `json:"topicName"`
	Subscribed []string `json:"subscribed"`
}

// PublisherInfo describes one topic publisher.
type PublisherInfo struct {
	PublisherUserID string `json:"publisherUserId"`
	PublisherMeta   string `json:"publisherMeta"`
}

// TopicDetail describes one topic inside a topic event.
type TopicDetail struct {
	TopicName      string          `json:"topicName"`
	Publishers     []PublisherInfo `json:"publishers"`
	TotalPublisher int             `json:"totalPublisher"`
}

// UserState pairs a user with its presence states.
type UserState struct {
	UserID      string      `json:"userId"`
	States      StateDetail `json:"states"`
	StatesCount int         `json:"statesCount"`
}

// UserList is a compact set of user IDs inside an interval event.
type UserList struct {
	Users     []string `json:"users"`
	UserCount int      `json:"userCount"`
}

// IntervalDetail aggregates all presence activity observed since the
// previous interval tick.
type IntervalDetail struct {
	Join          UserList    `json:"join"`
	Leave         UserList    `json:"leave"`
	Timeout       UserList    `json:"timeout"`
	UserStateList []UserState `json:"userStateList"`
}
