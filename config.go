package rtm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EncryptionMode selects the payload encryption applied by the
// transport adapter. The core passes it through at login and never
// touches payload bytes itself.
type EncryptionMode string

const (
	EncryptionNone   EncryptionMode = "NONE"
	EncryptionAES128 EncryptionMode = "AES_128_GCM"
	EncryptionAES256 EncryptionMode = "AES_256_GCM"
)

// Config contains Client configuration options.
type Config struct {
	// Transport dials the messaging backbone. Required.
	Transport Transport
	// Endpoint passed to Transport.Connect. Interpretation is up to the
	// transport.
	Endpoint string
	// Token is an optional renewable credential presented at login.
	Token string
	// EncryptionMode enables payload encryption in the transport. When
	// not EncryptionNone both Salt and CipherKey must be set.
	EncryptionMode EncryptionMode
	// Salt is the 32-byte salt required when encryption is enabled.
	Salt []byte
	// CipherKey is the key required when encryption is enabled.
	CipherKey string
	// PresenceTimeout is both the server-side heartbeat window after
	// which a silent user is reported in the timeout set and the length
	// of one presence interval tick.
	PresenceTimeout time.Duration
	// CloudProxy routes the connection through a cloud proxy.
	CloudProxy bool
	// UseStringUserID keeps user IDs as strings on the wire. When false
	// the backbone translates them to numbers.
	UseStringUserID bool
	// OperationTimeout bounds every correlated request.
	OperationTimeout time.Duration
	// LoginTimeout bounds the login handshake. A timed out handshake is
	// reported as LOST.
	LoginTimeout time.Duration
	// ReconnectDelay is the pause between reconnection attempts.
	ReconnectDelay time.Duration
	// LockRetryInterval paces the acquire retry loop of a blocking
	// AcquireLock call.
	LockRetryInterval time.Duration
	// ChannelLimit caps concurrent channel subscriptions.
	ChannelLimit int
	// TopicUserLimit caps the number of publishers one SubscribeTopic
	// call effectively subscribes to.
	TopicUserLimit int
	// PresenceCacheSize caps the local presence occupant cache.
	PresenceCacheSize int
	// LogLevel is a log level to use. By default nothing will be logged.
	LogLevel LogLevel
	// LogHandler is a handler func client will send logs to.
	LogHandler LogHandler
	// MetricsRegisterer optionally receives the client's prometheus
	// collectors. Nil disables metrics registration.
	MetricsRegisterer prometheus.Registerer
	// MetricsNamespace overrides the default "rtm" metrics namespace.
	MetricsNamespace string
}

// DefaultConfig is Config initialized with default values for all fields.
var DefaultConfig = Config{
	EncryptionMode:    EncryptionNone,
	PresenceTimeout:   10 * time.Second,
	UseStringUserID:   true,
	OperationTimeout:  5 * time.Second,
	LoginTimeout:      6 * time.Second,
	ReconnectDelay:    time.Second,
	LockRetryInterval: 500 * time.Millisecond,
	ChannelLimit:      100,
	TopicUserLimit:    64,
	PresenceCacheSize: 16384,
}

// Validate validates config and returns error if problems found.
func (c *Config) Validate() error {
	if c.Transport == nil {
		return ErrorInvalidArgument
	}
	if c.EncryptionMode != "" && c.EncryptionMode != EncryptionNone {
		if len(c.Salt) != 32 || c.CipherKey == "" {
			return ErrorInvalidArgument
		}
	}
	return nil
}

// applyDefaults fills zero fields from DefaultConfig and clamps bounded
// values.
func (c *Config) applyDefaults() {
	if c.EncryptionMode == "" {
		c.EncryptionMode = DefaultConfig.EncryptionMode
	}
	if c.PresenceTimeout <= 0 {
		c.PresenceTimeout = DefaultConfig.PresenceTimeout
	}
	if c.PresenceTimeout > 300*time.Second {
		c.PresenceTimeout = 300 * time.Second
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = DefaultConfig.OperationTimeout
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = DefaultConfig.LoginTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultConfig.ReconnectDelay
	}
	if c.LockRetryInterval <= 0 {
		c.LockRetryInterval = DefaultConfig.LockRetryInterval
	}
	if c.ChannelLimit <= 0 {
		c.ChannelLimit = DefaultConfig.ChannelLimit
	}
	if c.TopicUserLimit <= 0 {
		c.TopicUserLimit = DefaultConfig.TopicUserLimit
	}
	if c.PresenceCacheSize <= 0 {
		c.PresenceCacheSize = DefaultConfig.PresenceCacheSize
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = defaultMetricsNamespace
	}
}

// maxNameLength bounds appId, userId, channel, topic and lock names.
const maxNameLength = 64

// validName reports whether an identifier satisfies the allowed charset:
// letters, digits, space and common punctuation.
func validName(name string) bool {
	if name == "" || name == "null" || len(name) >= maxNameLength {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			if !validNamePunct(r) {
				return false
			}
		}
	}
	return true
}

func validNamePunct(r rune) bool {
	switch r {
	case ' ', '!', '#', '$', '%', '&', '(', ')', '+', '-', ':', ';', '<',
		'=', '.', '>', '?', '@', '[', ']', '^', '_', '{', '}', '|', '~', ',':
		return true
	}
	return false
}
