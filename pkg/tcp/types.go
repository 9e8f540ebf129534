package tcp

import "time"

// Protocol identifies the transport protocol of a connection.
type Protocol int

const (
	ProtocolTCP Protocol = iota
)

func (p Protocol) String() string {
	if p == ProtocolTCP {
		return "tcp"
	}
	return "unknown"
}

// ConnectionState is the lifecycle state of a Connection. Transitions are
// monotone within a session: Disconnected -> Connecting -> Connected ->
// Disconnecting -> Disconnected (or Error).
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// terminal reports whether the state ends a session.
func (s ConnectionState) terminal() bool {
	return s == StateDisconnected || s == StateError
}

// Stats carries byte and packet counters for one endpoint.
type Stats struct {
	BytesSent       uint64
	BytesReceived   uint64
	PacketsSent     uint64
	PacketsReceived uint64
	Errors          uint64
	StartTime       time.Time
}

// Uptime returns the time elapsed since the stats were started or reset.
func (s Stats) Uptime() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	return time.Since(s.StartTime)
}

// ConnectionInfo is a snapshot of a connection's addressing and state.
type ConnectionInfo struct {
	LocalAddress  string
	LocalPort     int
	RemoteAddress string
	RemotePort    int
	Protocol      Protocol
	State         ConnectionState
}

// Connection callbacks. They are invoked from Update (data, host tick) or from
// the goroutine performing the state transition, never with an internal lock
// held.
type (
	OnConnectedFunc    func(c *Connection)
	OnDisconnectedFunc func(c *Connection)
	OnDataReceivedFunc func(c *Connection, data []byte)
	OnMessageFunc      func(c *Connection, msg Message)
	OnErrorFunc        func(c *Connection, kind ErrorKind, msg string)
)
