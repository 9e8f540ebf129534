package tcp

import (
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/girderio/girder/pkg/logging"
)

// Connection is one TCP endpoint in either client or server role. It owns the
// socket and a single receive goroutine; inbound chunks are queued and only
// delivered to callbacks from Update, which the host tick must call.
type Connection struct {
	config *Config
	log    logging.Logger

	clientID uint64 // server-assigned; 0 for client-role connections

	state   int32 // ConnectionState, accessed atomically
	running int32 // receive loop liveness flag

	connMu        sync.Mutex
	conn          net.Conn
	done          chan struct{}
	sessionClosed bool

	infoMu sync.Mutex
	info   ConnectionInfo

	statsMu sync.Mutex
	stats   Stats

	recvMu    sync.Mutex
	recvQueue [][]byte

	cbMu           sync.Mutex
	onConnected    OnConnectedFunc
	onDisconnected OnDisconnectedFunc
	onData         OnDataReceivedFunc
	onMessage      OnMessageFunc
	onError        OnErrorFunc

	// decoder is only touched from Update.
	decoder *FrameDecoder
}

// NewConnection creates a client-role connection in the Disconnected state.
func NewConnection(cfg *Config) *Connection {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.normalize()
	c := &Connection{
		config:        cfg,
		log:           connLogger(cfg),
		state:         int32(StateDisconnected),
		sessionClosed: true,
	}
	c.info.Protocol = ProtocolTCP
	c.stats.StartTime = time.Now()
	return c
}

// newServerConnection wraps an accepted socket; the session is already live.
func newServerConnection(conn net.Conn, cfg *Config, id uint64) *Connection {
	c := &Connection{
		config:   cfg,
		log:      connLogger(cfg),
		clientID: id,
		state:    int32(StateConnected),
	}
	c.info.Protocol = ProtocolTCP
	c.stats.StartTime = time.Now()
	c.captureAddrs(conn)
	c.conn = conn
	c.applySocketOptions(conn)
	c.startReceive(conn)
	return c
}

func connLogger(cfg *Config) logging.Logger {
	if !cfg.EnableLogging {
		return logging.Nop()
	}
	return logging.New(cfg.LogPrefix)
}

// ClientID returns the server-assigned id, or 0 for client-role connections.
func (c *Connection) ClientID() uint64 { return c.clientID }

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(atomic.LoadInt32(&c.state))
}

// IsConnected reports whether the session is live.
func (c *Connection) IsConnected() bool { return c.State() == StateConnected }

func (c *Connection) setState(s ConnectionState) {
	atomic.StoreInt32(&c.state, int32(s))
}

func (c *Connection) casState(from, to ConnectionState) bool {
	return atomic.CompareAndSwapInt32(&c.state, int32(from), int32(to))
}

// Connect dials address:port and brings the session up. Permitted only from
// the Disconnected or Error state. address must be an IPv4 dotted quad.
func (c *Connection) Connect(address string, port int) error {
	if !c.casState(StateDisconnected, StateConnecting) &&
		!c.casState(StateError, StateConnecting) {
		return ErrAlreadyConnected
	}

	ip := net.ParseIP(address)
	if ip == nil || ip.To4() == nil {
		return c.connectFailed(ErrAddressResolutionFailed, "invalid IPv4 address "+address, nil)
	}

	target := net.JoinHostPort(address, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", target, c.config.ConnectTimeout)
	if err != nil {
		kind := ErrConnectionFailed
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			kind = ErrConnectionTimeout
		}
		return c.connectFailed(kind, "connect to "+target+" failed", err)
	}

	c.applySocketOptions(conn)
	c.captureAddrs(conn)

	c.connMu.Lock()
	c.conn = conn
	c.sessionClosed = false
	c.connMu.Unlock()

	// State must read Connected before the receive goroutine's first loop
	// check, or the receiver can exit before its first Read. Same order as
	// newServerConnection.
	c.setState(StateConnected)
	c.startReceive(conn)

	c.statsMu.Lock()
	c.stats.StartTime = time.Now()
	c.statsMu.Unlock()

	c.log.Infof("connected to %s", target)

	c.cbMu.Lock()
	cb := c.onConnected
	c.cbMu.Unlock()
	if cb != nil {
		cb(c)
	}
	return nil
}

func (c *Connection) connectFailed(kind ErrorKind, msg string, err error) error {
	c.setState(StateError)
	c.handleError(kind, msg, err)
	return netErr(kind, msg, err)
}

// Disconnect tears the session down. It is idempotent: the receive goroutine
// is joined, the socket closed, and onDisconnected fired at most once per
// session.
func (c *Connection) Disconnect() {
	c.connMu.Lock()
	if c.sessionClosed {
		c.connMu.Unlock()
		return
	}
	c.sessionClosed = true
	c.setState(StateDisconnecting)
	atomic.StoreInt32(&c.running, 0)
	conn := c.conn
	done := c.done
	c.conn = nil
	c.done = nil
	c.connMu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}

	c.setState(StateDisconnected)

	c.cbMu.Lock()
	cb := c.onDisconnected
	c.cbMu.Unlock()
	if cb != nil {
		cb(c)
	}
	c.log.Debugf("disconnected")
}

// Send writes the whole buffer to the peer, blocking until the kernel accepts
// all bytes or the configured send timeout elapses.
func (c *Connection) Send(data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	if len(data) == 0 {
		return nil
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if c.config.SendTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.config.SendTimeout))
	}
	if _, err := conn.Write(data); err != nil {
		c.handleError(ErrSendFailed, "send failed", err)
		return netErr(ErrSendFailed, "send failed", err)
	}

	c.statsMu.Lock()
	c.stats.BytesSent += uint64(len(data))
	c.stats.PacketsSent++
	c.statsMu.Unlock()
	return nil
}

// SendString is a convenience form of Send.
func (c *Connection) SendString(s string) error { return c.Send([]byte(s)) }

// SendMessage serializes and sends one framed message.
func (c *Connection) SendMessage(m Message) error { return c.Send(m.Marshal()) }

// Update drains the inbound queue and invokes the data and message callbacks,
// in arrival order, with no internal lock held. It is the only place inbound
// callbacks fire; the host tick must call it.
func (c *Connection) Update() {
	c.recvMu.Lock()
	if len(c.recvQueue) == 0 {
		c.recvMu.Unlock()
		return
	}
	pending := c.recvQueue
	c.recvQueue = nil
	c.recvMu.Unlock()

	c.cbMu.Lock()
	onData := c.onData
	onMessage := c.onMessage
	c.cbMu.Unlock()

	for _, chunk := range pending {
		if onData != nil {
			onData(c, chunk)
		}
		if onMessage != nil {
			c.decodeChunk(chunk, onMessage)
		}
	}
}

func (c *Connection) decodeChunk(chunk []byte, onMessage OnMessageFunc) {
	if c.decoder == nil {
		c.decoder = NewFrameDecoder(0)
	}
	c.decoder.Feed(chunk)
	for {
		msg, ok, err := c.decoder.Next()
		if err != nil {
			c.decoder.Reset()
			c.handleError(ErrReceiveFailed, "frame decode failed", err)
			return
		}
		if !ok {
			return
		}
		onMessage(c, msg)
	}
}

func (c *Connection) startReceive(conn net.Conn) {
	done := make(chan struct{})
	c.connMu.Lock()
	c.done = done
	c.sessionClosed = false
	c.connMu.Unlock()
	atomic.StoreInt32(&c.running, 1)
	go c.receiveLoop(conn, done)
}

func (c *Connection) receiveLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	buf := make([]byte, c.config.ReceiveBufferSize)

	for atomic.LoadInt32(&c.running) == 1 && c.State() == StateConnected {
		n, err := conn.Read(buf)
		if n > 0 {
			c.statsMu.Lock()
			c.stats.BytesReceived += uint64(n)
			c.stats.PacketsReceived++
			c.statsMu.Unlock()

			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.recvMu.Lock()
			c.recvQueue = append(c.recvQueue, chunk)
			c.recvMu.Unlock()

			if c.config.LogRawData {
				c.log.Debugf("recv %d bytes", n)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break // orderly close by peer
			}
			if atomic.LoadInt32(&c.running) == 0 || errors.Is(err, net.ErrClosed) {
				return // local Disconnect closed the socket
			}
			c.handleError(ErrReceiveFailed, "receive failed", err)
			break
		}
	}

	// Peer closed or the stream failed while we were still running: mark the
	// session terminal so the owner's Update sweep reaps it.
	if atomic.LoadInt32(&c.running) == 1 {
		c.setState(StateDisconnected)
	}
}

func (c *Connection) applySocketOptions(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tc.SetNoDelay(!c.config.EnableNagle); err != nil {
		c.optionError("TCP_NODELAY", err)
	}
	if c.config.EnableKeepalive {
		if err := tc.SetKeepAlive(true); err != nil {
			c.optionError("SO_KEEPALIVE", err)
		} else if err := tc.SetKeepAlivePeriod(c.config.KeepaliveInterval); err != nil {
			c.optionError("keepalive period", err)
		}
	}
	if err := tc.SetReadBuffer(c.config.ReceiveBufferSize); err != nil {
		c.optionError("SO_RCVBUF", err)
	}
	if err := tc.SetWriteBuffer(c.config.SendBufferSize); err != nil {
		c.optionError("SO_SNDBUF", err)
	}
}

// optionError reports a setsockopt failure; these are non-fatal.
func (c *Connection) optionError(opt string, err error) {
	c.log.Warnf("failed to set %s: %v", opt, err)
	c.cbMu.Lock()
	cb := c.onError
	c.cbMu.Unlock()
	if cb != nil {
		cb(c, ErrUnknown, "failed to set "+opt+": "+err.Error())
	}
}

func (c *Connection) handleError(kind ErrorKind, msg string, err error) {
	c.statsMu.Lock()
	c.stats.Errors++
	c.statsMu.Unlock()

	full := msg
	if err != nil {
		full = msg + ": " + err.Error()
	}
	if c.clientID != 0 {
		c.log.Errorf("client %d: %s", c.clientID, full)
	} else {
		c.log.Errorf("%s", full)
	}

	c.cbMu.Lock()
	cb := c.onError
	c.cbMu.Unlock()
	if cb != nil {
		cb(c, kind, full)
	}
}

func (c *Connection) captureAddrs(conn net.Conn) {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	if a := conn.LocalAddr(); a != nil {
		c.info.LocalAddress, c.info.LocalPort = splitAddr(a)
	}
	if a := conn.RemoteAddr(); a != nil {
		c.info.RemoteAddress, c.info.RemotePort = splitAddr(a)
	}
}

func splitAddr(a net.Addr) (string, int) {
	host, portStr, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String(), 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// Info returns an addressing snapshot with the current state filled in.
func (c *Connection) Info() ConnectionInfo {
	c.infoMu.Lock()
	info := c.info
	c.infoMu.Unlock()
	info.State = c.State()
	return info
}

// Stats returns a snapshot of the connection counters.
func (c *Connection) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// ResetStats zeroes the counters and restarts the uptime clock.
func (c *Connection) ResetStats() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats = Stats{StartTime: time.Now()}
}

// SetOnConnected installs the session-up callback.
func (c *Connection) SetOnConnected(cb OnConnectedFunc) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onConnected = cb
}

// SetOnDisconnected installs the session-down callback.
func (c *Connection) SetOnDisconnected(cb OnDisconnectedFunc) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onDisconnected = cb
}

// SetOnDataReceived installs the raw-chunk callback, invoked from Update.
func (c *Connection) SetOnDataReceived(cb OnDataReceivedFunc) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onData = cb
}

// SetOnMessage installs the framed-message callback. Chunks are reassembled
// across recv boundaries before delivery.
func (c *Connection) SetOnMessage(cb OnMessageFunc) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onMessage = cb
}

// SetOnError installs the error callback.
func (c *Connection) SetOnError(cb OnErrorFunc) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onError = cb
}
