// Package netmod exposes the TCP transport as a host module: it binds the
// network configuration to a server and/or client, publishes lifecycle events
// on the bus and drives frame delivery from the realtime tick.
package netmod

import (
	"time"

	"github.com/girderio/girder/pkg/bus"
	"github.com/girderio/girder/pkg/logging"
	"github.com/girderio/girder/pkg/module"
	"github.com/girderio/girder/pkg/tcp"
)

// Event topics published by the networking module.
const (
	TopicServerStarted      = "network.server.started"
	TopicServerStopped      = "network.server.stopped"
	TopicClientConnected    = "network.server.client_connected"
	TopicClientDisconnected = "network.server.client_disconnected"
	TopicServerData         = "network.server.data_received"
	TopicClientUpConnected  = "network.client.connected"
	TopicClientUpDisconnect = "network.client.disconnected"
	TopicClientUpData       = "network.client.data_received"
	TopicError              = "network.error"
)

// ServerDescriptor is the payload of server lifecycle events.
type ServerDescriptor struct {
	BindAddress string `json:"bind_address"`
	Port        int    `json:"port"`
}

// ConnectionDescriptor identifies one peer session.
type ConnectionDescriptor struct {
	ClientID      uint64 `json:"client_id,omitempty"`
	RemoteAddress string `json:"remote_address"`
	RemotePort    int    `json:"remote_port"`
}

// DataEvent carries one received chunk.
type DataEvent struct {
	ClientID uint64 `json:"client_id,omitempty"`
	Data     []byte `json:"data"`
}

// ErrorEvent carries one transport failure.
type ErrorEvent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Module owns the configured server and client endpoints.
type Module struct {
	cfg *tcp.Config
	log logging.Logger
	pub bus.Publisher

	server *tcp.Server
	client *tcp.Client

	initialized bool
}

// New creates the module for the given network configuration.
func New(cfg *tcp.Config) *Module {
	if cfg == nil {
		cfg = tcp.DefaultConfig()
	}
	return &Module{
		cfg: cfg,
		log: logging.New("[network]"),
		pub: bus.Nop(),
	}
}

// Name implements module.Module.
func (m *Module) Name() string { return "networking" }

// Priority implements module.Module.
func (m *Module) Priority() int { return 50 }

// Server returns the TCP server, or nil when not enabled.
func (m *Module) Server() *tcp.Server { return m.server }

// Client returns the TCP client, or nil when not enabled.
func (m *Module) Client() *tcp.Client { return m.client }

// IsServerRunning reports whether the server accept loop is live.
func (m *Module) IsServerRunning() bool { return m.server != nil && m.server.IsRunning() }

// IsClientConnected reports whether the client session is up.
func (m *Module) IsClientConnected() bool { return m.client != nil && m.client.IsConnected() }

// Init builds the configured endpoints. A server start failure fails the
// module; a client dial failure does not when auto-reconnect will retry it.
func (m *Module) Init(host *module.Host) error {
	if m.initialized {
		return nil
	}
	if host != nil {
		m.pub = host.Publisher()
	}

	if m.cfg.EnableServer {
		m.server = tcp.NewServer(m.cfg)
		m.wireServer(m.server)
		if err := m.server.Start(); err != nil {
			m.publishError(tcp.ErrListenFailed, "failed to start server: "+err.Error())
			m.server = nil
			return err
		}
		m.pub.Publish(TopicServerStarted, ServerDescriptor{
			BindAddress: m.server.BindAddress(),
			Port:        m.server.Port(),
		})
	}

	if m.cfg.EnableClient {
		m.client = tcp.NewClient(m.cfg)
		m.wireClient(m.client)
		if err := m.client.Connect(); err != nil {
			m.publishError(tcp.ErrConnectionFailed, "failed to connect client: "+err.Error())
			if !m.cfg.AutoReconnect {
				m.teardown()
				return err
			}
			m.log.Warnf("initial connect failed, auto-reconnect will retry: %v", err)
		}
	}

	m.initialized = true
	return nil
}

// Shutdown stops both endpoints.
func (m *Module) Shutdown() {
	if !m.initialized {
		return
	}
	m.teardown()
	m.initialized = false
}

func (m *Module) teardown() {
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	if m.server != nil {
		bindAddr, port := m.server.BindAddress(), m.server.Port()
		m.server.Stop()
		m.server = nil
		m.pub.Publish(TopicServerStopped, ServerDescriptor{BindAddress: bindAddr, Port: port})
	}
}

// OnTick delivers pending frames on both endpoints and advances the client's
// reconnect timer.
func (m *Module) OnTick(delta float64) {
	if m.server != nil {
		m.server.Update()
	}
	if m.client != nil {
		m.client.Update(time.Duration(delta * float64(time.Second)))
	}
}

func (m *Module) wireServer(s *tcp.Server) {
	s.SetOnClientConnected(func(c *tcp.Connection) {
		m.pub.Publish(TopicClientConnected, descriptorFor(c))
	})
	s.SetOnClientDisconnected(func(c *tcp.Connection) {
		m.pub.Publish(TopicClientDisconnected, descriptorFor(c))
	})
	s.SetOnClientDataReceived(func(c *tcp.Connection, data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)
		m.pub.Publish(TopicServerData, DataEvent{ClientID: c.ClientID(), Data: buf})
	})
	s.SetOnError(func(_ *tcp.Connection, kind tcp.ErrorKind, msg string) {
		m.publishError(kind, "server error: "+msg)
	})
}

func (m *Module) wireClient(c *tcp.Client) {
	c.SetOnConnected(func(conn *tcp.Connection) {
		info := conn.Info()
		m.pub.Publish(TopicClientUpConnected, ConnectionDescriptor{
			RemoteAddress: info.RemoteAddress,
			RemotePort:    info.RemotePort,
		})
	})
	c.SetOnDisconnected(func(conn *tcp.Connection) {
		m.pub.Publish(TopicClientUpDisconnect, nil)
	})
	c.SetOnDataReceived(func(conn *tcp.Connection, data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)
		m.pub.Publish(TopicClientUpData, DataEvent{Data: buf})
	})
	c.SetOnError(func(_ *tcp.Connection, kind tcp.ErrorKind, msg string) {
		m.publishError(kind, "client error: "+msg)
	})
}

func descriptorFor(c *tcp.Connection) ConnectionDescriptor {
	info := c.Info()
	return ConnectionDescriptor{
		ClientID:      c.ClientID(),
		RemoteAddress: info.RemoteAddress,
		RemotePort:    info.RemotePort,
	}
}

func (m *Module) publishError(kind tcp.ErrorKind, msg string) {
	m.log.Errorf("%s", msg)
	m.pub.Publish(TopicError, ErrorEvent{Kind: kind.String(), Message: msg})
}
