package tcp

import (
	"sync/atomic"
	"time"
)

// Client is a Connection in client role plus the reconnect policy. Reconnect
// attempts are driven from Update (the host tick), never from a background
// goroutine.
type Client struct {
	*Connection

	config *Config

	closed         int32
	reconnectAccum time.Duration
}

// NewClient creates a disconnected client for the configured target.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{
		Connection: NewConnection(cfg),
		config:     cfg,
	}
}

// Connect dials the configured target address and port.
func (c *Client) Connect() error {
	return c.Connection.Connect(c.config.ClientAddress, c.config.ClientPort)
}

// Update drains inbound frames and, when the session is down with
// AutoReconnect set, schedules a reconnect attempt once ReconnectInterval of
// tick time has accumulated.
func (c *Client) Update(delta time.Duration) {
	c.Connection.Update()

	if atomic.LoadInt32(&c.closed) == 1 || !c.config.AutoReconnect {
		return
	}
	if !c.State().terminal() {
		c.reconnectAccum = 0
		return
	}

	// Reap a session the peer ended: join the receive goroutine, close the
	// socket and fire onDisconnected exactly once. Idempotent.
	c.Disconnect()

	c.reconnectAccum += delta
	if c.reconnectAccum < c.config.ReconnectInterval {
		return
	}
	c.reconnectAccum = 0

	c.log.Infof("reconnecting to %s:%d", c.config.ClientAddress, c.config.ClientPort)
	if err := c.Connect(); err != nil {
		c.log.Warnf("reconnect failed: %v", err)
	}
}

// Close disconnects and disables further reconnect attempts.
func (c *Client) Close() {
	atomic.StoreInt32(&c.closed, 1)
	c.Disconnect()
}
