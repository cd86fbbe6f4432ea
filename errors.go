package rtm

import (
	"fmt"
)

// Error represents a typed failure of a single RTM operation. Errors
// returned from operations do not affect the session state machine (see
// Disconnect for session-level terminations).
type Error struct {
	Code      uint32 `json:"code"`
	Message   string `json:"message"`
	Temporary bool   `json:"temporary,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Predefined errors. Codes below 200 are generic operation failures,
// 200-series are validation errors detected before any network call,
// 300-series are storage protocol errors, 400-series are lock protocol
// errors, 500-series are topic errors.
var (
	// ErrorInternal means an unclassified failure. Should not be returned
	// in normal operation.
	ErrorInternal = &Error{
		Code:      100,
		Message:   "internal error",
		Temporary: true,
	}
	// ErrorTimeout returned when operation was not confirmed by the server
	// within the operation timeout.
	ErrorTimeout = &Error{
		Code:      101,
		Message:   "operation timeout",
		Temporary: true,
	}
	// ErrorConnectionClosed returned for operations that were in flight
	// when the session dropped to DISCONNECTED or FAILED.
	ErrorConnectionClosed = &Error{
		Code:      102,
		Message:   "connection closed",
		Temporary: true,
	}
	// ErrorNotLoggedIn returned synchronously for operations issued while
	// the session is not CONNECTED.
	ErrorNotLoggedIn = &Error{
		Code:    103,
		Message: "not logged in",
	}
	// ErrorLoginRejected returned when the server refuses the login
	// handshake.
	ErrorLoginRejected = &Error{
		Code:    104,
		Message: "login rejected by server",
	}
	// ErrorTokenExpired returned when the session token passed its
	// validity window. Fatal for the session: re-login needs a new token.
	ErrorTokenExpired = &Error{
		Code:    105,
		Message: "token expired",
	}
	// ErrorUserBanned returned when the server banned the user.
	ErrorUserBanned = &Error{
		Code:    106,
		Message: "user banned",
	}
	// ErrorBadRequest means the server can not process the command.
	ErrorBadRequest = &Error{
		Code:    107,
		Message: "bad request",
	}
	// ErrorSameUIDLogin returned when another instance logged in with the
	// same user ID and displaced this session.
	ErrorSameUIDLogin = &Error{
		Code:    108,
		Message: "same user ID logged in elsewhere",
	}

	// ErrorInvalidArgument returned for malformed identifiers and invalid
	// option combinations, before any network call.
	ErrorInvalidArgument = &Error{
		Code:    200,
		Message: "invalid argument",
	}
	// ErrorChannelLimitExceeded returned when subscribing beyond the
	// maximum number of concurrent channel subscriptions.
	ErrorChannelLimitExceeded = &Error{
		Code:    201,
		Message: "channel subscription limit exceeded",
	}
	// ErrorNotSubscribed returned for operations that require an existing
	// channel subscription.
	ErrorNotSubscribed = &Error{
		Code:    202,
		Message: "not subscribed",
	}
	// ErrorNotJoined returned for stream channel operations issued before
	// a successful Join.
	ErrorNotJoined = &Error{
		Code:    203,
		Message: "channel not joined",
	}

	// ErrorMetadataRevisionConflict returned when a revision-gated
	// metadata write does not match the current item or set revision,
	// including create-only writes to an existing key.
	ErrorMetadataRevisionConflict = &Error{
		Code:    301,
		Message: "metadata revision conflict",
	}
	// ErrorMetadataLockNotHeld returned when a metadata write carries a
	// lock name the caller does not currently hold.
	ErrorMetadataLockNotHeld = &Error{
		Code:    302,
		Message: "metadata write requires lock ownership",
	}

	// ErrorLockAlreadyOwned returned by a non-retrying acquire attempt on
	// a lock currently held by another user.
	ErrorLockAlreadyOwned = &Error{
		Code:      401,
		Message:   "lock already owned by another user",
		Temporary: true,
	}
	// ErrorLockNotOwned returned when releasing a lock the caller does not
	// hold.
	ErrorLockNotOwned = &Error{
		Code:    402,
		Message: "lock not owned",
	}
	// ErrorLockNotFound returned for operations on a lock that was never
	// declared with SetLock.
	ErrorLockNotFound = &Error{
		Code:    403,
		Message: "lock not found",
	}
	// ErrorLockOperationCancelled returned to a retrying acquire attempt
	// cancelled by channel unsubscribe or leave.
	ErrorLockOperationCancelled = &Error{
		Code:    404,
		Message: "lock operation cancelled",
	}

	// ErrorTopicNotJoined returned when publishing to a topic before
	// JoinTopic.
	ErrorTopicNotJoined = &Error{
		Code:    501,
		Message: "topic not joined",
	}
)

// toClientErr converts an arbitrary error to a *Error. Protocol errors
// pass through unchanged, everything else becomes ErrorInternal so that
// callers always observe the typed taxonomy.
func toClientErr(err error) *Error {
	if clientErr, ok := err.(*Error); ok {
		return clientErr
	}
	return ErrorInternal
}

// errorFromCode reconstructs a predefined error from a server-reported
// code so that callers can compare against the package-level values.
func errorFromCode(code uint32, message string, temporary bool) *Error {
	for _, known := range []*Error{
		ErrorInternal, ErrorTimeout, ErrorConnectionClosed, ErrorNotLoggedIn,
		ErrorLoginRejected, ErrorTokenExpired, ErrorUserBanned,
		ErrorBadRequest, ErrorSameUIDLogin, ErrorInvalidArgument,
		ErrorChannelLimitExceeded, ErrorNotSubscribed, ErrorNotJoined,
		ErrorMetadataRevisionConflict, ErrorMetadataLockNotHeld,
		ErrorLockAlreadyOwned, ErrorLockNotOwned, ErrorLockNotFound,
		ErrorLockOperationCancelled, ErrorTopicNotJoined,
	} {
		if known.Code == code {
			return known
		}
	}
	return &Error{Code: code, Message: message, Temporary: temporary}
}
