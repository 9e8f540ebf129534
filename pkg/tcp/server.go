package tcp

import (
	"errors"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/girderio/girder/pkg/logging"
)

// nextClientID assigns process-monotonic client ids, starting at 1.
var nextClientID uint64

// Server owns a listen socket, an accept goroutine and a registry of accepted
// connections keyed by monotonic client id. Inbound data is delivered from
// Update, which the host tick must call.
type Server struct {
	config *Config
	log    logging.Logger

	mu       sync.Mutex
	listener net.Listener
	bindAddr string
	port     int

	running  int32
	stopping int32
	acceptWG sync.WaitGroup

	clientsMu sync.Mutex
	clients   map[uint64]*Connection

	statsMu sync.Mutex
	stats   Stats

	cbMu                 sync.Mutex
	onClientConnected    OnConnectedFunc
	onClientDisconnected OnDisconnectedFunc
	onClientData         OnDataReceivedFunc
	onClientMessage      OnMessageFunc
	onError              OnErrorFunc
}

// NewServer creates a stopped server.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.normalize()
	return &Server{
		config:  cfg,
		log:     connLogger(cfg),
		clients: make(map[uint64]*Connection),
		stats:   Stats{StartTime: time.Now()},
	}
}

// Start binds and listens on the configured address and spawns the accept
// goroutine.
func (s *Server) Start() error {
	return s.StartOn(s.config.ServerBindAddress, s.config.ServerPort)
}

// StartOn binds and listens on address:port. Port 0 selects an ephemeral
// port; see ListenAddr.
func (s *Server) StartOn(address string, port int) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrAlreadyRunning
	}
	atomic.StoreInt32(&s.stopping, 0)

	if address == "" {
		address = "0.0.0.0"
	}
	target := net.JoinHostPort(address, strconv.Itoa(port))

	ln, err := net.Listen("tcp4", target)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		kind := classifyListenError(err)
		s.handleError(kind, "failed to listen on "+target, err)
		return netErr(kind, "failed to listen on "+target, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.bindAddr = address
	s.port = port
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = addr.Port
	}
	s.mu.Unlock()

	s.acceptWG.Add(1)
	go s.acceptLoop(ln)

	s.log.Infof("server started on %s", ln.Addr())
	return nil
}

// Stop closes the listener, joins the accept goroutine and disconnects every
// registered client. Idempotent.
func (s *Server) Stop() {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return
	}
	atomic.StoreInt32(&s.stopping, 1)

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close() // unblocks Accept
	}
	s.acceptWG.Wait()

	for _, c := range s.snapshot() {
		c.Disconnect()
	}
	s.clientsMu.Lock()
	s.clients = make(map[uint64]*Connection)
	s.clientsMu.Unlock()

	s.log.Infof("server stopped")
}

// IsRunning reports whether the accept loop is live.
func (s *Server) IsRunning() bool { return atomic.LoadInt32(&s.running) == 1 }

// ListenAddr returns the actual listening address, or "" when stopped.
// Useful when the configured port is 0.
func (s *Server) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BindAddress returns the configured bind address.
func (s *Server) BindAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindAddr
}

// Port returns the bound port (resolved when the configured port was 0).
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.acceptWG.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.stopping) == 1 || errors.Is(err, net.ErrClosed) {
				return
			}
			s.handleError(ErrAcceptFailed, "accept failed", err)
			continue
		}

		if s.ClientCount() >= s.config.MaxConnections {
			_ = conn.Close()
			s.log.Warnf("max connections (%d) reached, rejected %s", s.config.MaxConnections, conn.RemoteAddr())
			continue
		}

		id := atomic.AddUint64(&nextClientID, 1)
		client := newServerConnection(conn, s.config, id)
		s.wireClient(client)

		// Registry insertion happens before the connected callback.
		s.clientsMu.Lock()
		s.clients[id] = client
		s.clientsMu.Unlock()

		s.cbMu.Lock()
		cb := s.onClientConnected
		s.cbMu.Unlock()
		if cb != nil {
			cb(client)
		}

		info := client.Info()
		s.log.Infof("client connected: %s:%d [id %d]", info.RemoteAddress, info.RemotePort, id)
	}
}

func (s *Server) wireClient(client *Connection) {
	client.SetOnDisconnected(func(c *Connection) {
		s.cbMu.Lock()
		cb := s.onClientDisconnected
		s.cbMu.Unlock()
		if cb != nil {
			cb(c)
		}
	})
	client.SetOnDataReceived(func(c *Connection, data []byte) {
		s.statsMu.Lock()
		s.stats.BytesReceived += uint64(len(data))
		s.stats.PacketsReceived++
		s.statsMu.Unlock()

		s.cbMu.Lock()
		cb := s.onClientData
		s.cbMu.Unlock()
		if cb != nil {
			cb(c, data)
		}
	})
	client.SetOnError(func(c *Connection, kind ErrorKind, msg string) {
		s.statsMu.Lock()
		s.stats.Errors++
		s.statsMu.Unlock()

		s.cbMu.Lock()
		cb := s.onError
		s.cbMu.Unlock()
		if cb != nil {
			cb(c, kind, msg)
		}
	})

	s.cbMu.Lock()
	onMsg := s.onClientMessage
	s.cbMu.Unlock()
	if onMsg != nil {
		client.SetOnMessage(func(c *Connection, m Message) { onMsg(c, m) })
	}
}

// Update delivers pending inbound data for every client and reaps sessions
// observed in a terminal state, firing the disconnected callback exactly once
// per session after its remaining frames were delivered.
func (s *Server) Update() {
	for _, client := range s.snapshot() {
		if client.State().terminal() {
			client.Update() // flush frames that arrived before the close
			client.Disconnect()
			s.clientsMu.Lock()
			delete(s.clients, client.ClientID())
			s.clientsMu.Unlock()
			continue
		}
		client.Update()
	}
}

// snapshot copies the registry under lock, ordered by client id.
func (s *Server) snapshot() []*Connection {
	s.clientsMu.Lock()
	out := make([]*Connection, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	s.clientsMu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID() < out[j].ClientID() })
	return out
}

// ClientCount returns the number of registered clients.
func (s *Server) ClientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

// Clients returns a registry snapshot ordered by client id.
func (s *Server) Clients() []*Connection { return s.snapshot() }

// Client looks up a connection by id.
func (s *Server) Client(id uint64) (*Connection, bool) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	c, ok := s.clients[id]
	return c, ok
}

// DisconnectClient tears down one client session by id.
func (s *Server) DisconnectClient(id uint64) {
	s.clientsMu.Lock()
	c := s.clients[id]
	delete(s.clients, id)
	s.clientsMu.Unlock()
	if c != nil {
		c.Disconnect()
	}
}

// Broadcast sends data to every connected client. Per-client send failures
// surface through the error callback, not as a server-level failure.
func (s *Server) Broadcast(data []byte) {
	for _, c := range s.snapshot() {
		if c.IsConnected() {
			if err := c.Send(data); err == nil {
				s.statsMu.Lock()
				s.stats.BytesSent += uint64(len(data))
				s.stats.PacketsSent++
				s.statsMu.Unlock()
			}
		}
	}
}

// BroadcastString is a convenience form of Broadcast.
func (s *Server) BroadcastString(msg string) { s.Broadcast([]byte(msg)) }

// BroadcastMessage serializes and broadcasts one framed message.
func (s *Server) BroadcastMessage(m Message) { s.Broadcast(m.Marshal()) }

// Stats returns a snapshot of the aggregate server counters.
func (s *Server) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Server) handleError(kind ErrorKind, msg string, err error) {
	s.statsMu.Lock()
	s.stats.Errors++
	s.statsMu.Unlock()

	full := msg
	if err != nil {
		full = msg + ": " + err.Error()
	}
	s.log.Errorf("server: %s", full)

	s.cbMu.Lock()
	cb := s.onError
	s.cbMu.Unlock()
	if cb != nil {
		cb(nil, kind, full)
	}
}

// classifyListenError maps a net.Listen failure onto the closed error set.
func classifyListenError(err error) ErrorKind {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "listen":
			return ErrListenFailed
		case "bind":
			return ErrBindFailed
		}
	}
	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return ErrAddressResolutionFailed
	}
	return ErrListenFailed
}

// SetOnClientConnected installs the accept callback. Fired from the accept
// goroutine after registry insertion.
func (s *Server) SetOnClientConnected(cb OnConnectedFunc) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onClientConnected = cb
}

// SetOnClientDisconnected installs the per-session teardown callback.
func (s *Server) SetOnClientDisconnected(cb OnDisconnectedFunc) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onClientDisconnected = cb
}

// SetOnClientDataReceived installs the raw-chunk callback, fired from Update.
func (s *Server) SetOnClientDataReceived(cb OnDataReceivedFunc) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onClientData = cb
}

// SetOnClientMessage installs the framed-message callback. Set it before
// Start so newly accepted connections decode frames.
func (s *Server) SetOnClientMessage(cb OnMessageFunc) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onClientMessage = cb
}

// SetOnError installs the error callback. The connection argument is nil for
// server-level failures.
func (s *Server) SetOnError(cb OnErrorFunc) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onError = cb
}
