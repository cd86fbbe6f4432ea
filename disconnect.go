package rtm

// Disconnect describes a session-level termination pushed by the server
// or detected locally. Unlike Error it always drives a state machine
// transition: to RECONNECTING when Reconnect is true, otherwise to
// FAILED (server rejections) or DISCONNECTED (local teardown).
type Disconnect struct {
	Reason    ConnectionChangeReason `json:"reason"`
	Reconnect bool                   `json:"reconnect"`
}

// Some predefined disconnect structures. Though it's always possible to
// create Disconnect with any field values on the fly.
var (
	// DisconnectNormal is a clean logout initiated by the user.
	DisconnectNormal = &Disconnect{
		Reason:    ReasonLogout,
		Reconnect: false,
	}
	// DisconnectInterrupted is a transport-level interruption: the
	// session keeps its registry and tries to re-establish.
	DisconnectInterrupted = &Disconnect{
		Reason:    ReasonInterrupted,
		Reconnect: true,
	}
	// DisconnectLost means the login handshake timed out.
	DisconnectLost = &Disconnect{
		Reason:    ReasonLost,
		Reconnect: false,
	}
	// DisconnectRejected means the server refused login or re-login.
	DisconnectRejected = &Disconnect{
		Reason:    ReasonRejectedByServer,
		Reconnect: false,
	}
	// DisconnectSameUIDLogin means another instance logged in with the
	// same user ID and this session was displaced.
	DisconnectSameUIDLogin = &Disconnect{
		Reason:    ReasonSameUIDLogin,
		Reconnect: false,
	}
	// DisconnectTokenExpired means the login token passed its validity
	// window and the server dropped the session.
	DisconnectTokenExpired = &Disconnect{
		Reason:    ReasonTokenExpired,
		Reconnect: false,
	}
	// DisconnectUIDBanned means the user is banned from the system.
	DisconnectUIDBanned = &Disconnect{
		Reason:    ReasonUIDBanned,
		Reconnect: false,
	}
	// DisconnectServerError is an internal server problem, safe to retry.
	DisconnectServerError = &Disconnect{
		Reason:    ReasonInterrupted,
		Reconnect: true,
	}
)
