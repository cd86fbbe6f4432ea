package rtm

// ConnState describes the state of the connection between the client and
// the RTM backbone.
type ConnState int

const (
	// StateDisconnected is the initial state and the terminal state after
	// Logout.
	StateDisconnected ConnState = iota
	// StateConnecting means a login handshake is in flight.
	StateConnecting
	// StateConnected means the session is established and operations may
	// be issued.
	StateConnected
	// StateReconnecting means the transport dropped and the client is
	// re-establishing the session.
	StateReconnecting
	// StateFailed means the server rejected re-login (ban, duplicate
	// login, expired token). Logout then Login is required to recover.
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// ConnectionChangeReason explains a connection state transition inside a
// StatusEvent.
type ConnectionChangeReason string

const (
	// ReasonConnecting accompanies the DISCONNECTED to CONNECTING
	// transition on Login.
	ReasonConnecting ConnectionChangeReason = "CONNECTING"
	// ReasonLoginSuccess accompanies a successful handshake, both the
	// initial one and the one completing a reconnect.
	ReasonLoginSuccess ConnectionChangeReason = "LOGIN_SUCCESS"
	// ReasonRejectedByServer means the server refused login.
	ReasonRejectedByServer ConnectionChangeReason = "REJECTED_BY_SERVER"
	// ReasonLost means the login handshake timed out (~6s) and the client
	// gave up.
	ReasonLost ConnectionChangeReason = "LOST"
	// ReasonInterrupted means the established transport dropped.
	ReasonInterrupted ConnectionChangeReason = "INTERRUPTED"
	// ReasonLogout accompanies an explicit Logout.
	ReasonLogout ConnectionChangeReason = "LOGOUT"
	// ReasonSameUIDLogin means another instance logged in with the same
	// user ID.
	ReasonSameUIDLogin ConnectionChangeReason = "SAME_UID_LOGIN"
	// ReasonTokenExpired means the session token passed its validity
	// window.
	ReasonTokenExpired ConnectionChangeReason = "TOKEN_EXPIRED"
	// ReasonUIDBanned means the user is banned.
	ReasonUIDBanned ConnectionChangeReason = "UID_BANNED"
)

// stateTransitions is the closed transition graph of the session state
// machine. Transitions not listed here are programming errors and are
// dropped with an error-level log instead of corrupting the session.
var stateTransitions = map[ConnState][]ConnState{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateDisconnected, StateFailed},
	StateConnected:    {StateReconnecting, StateDisconnected, StateFailed},
	StateReconnecting: {StateConnected, StateDisconnected, StateFailed},
	StateFailed:       {StateDisconnected},
}

func validTransition(from, to ConnState) bool {
	for _, allowed := range stateTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
