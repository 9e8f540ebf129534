package tcp

import (
	"fmt"
	"time"
)

// Config configures both server and client roles of the transport.
type Config struct {
	// TCP server settings.
	EnableServer      bool   `yaml:"enableServer" json:"enableServer"`
	ServerBindAddress string `yaml:"serverBindAddress" json:"serverBindAddress"`
	ServerPort        int    `yaml:"serverPort" json:"serverPort"`
	ServerBacklog     int    `yaml:"serverBacklog" json:"serverBacklog"`
	MaxConnections    int    `yaml:"maxConnections" json:"maxConnections"`

	// TCP client settings.
	EnableClient      bool          `yaml:"enableClient" json:"enableClient"`
	ClientAddress     string        `yaml:"clientAddress" json:"clientAddress"`
	ClientPort        int           `yaml:"clientPort" json:"clientPort"`
	AutoReconnect     bool          `yaml:"autoReconnect" json:"autoReconnect"`
	ReconnectInterval time.Duration `yaml:"reconnectInterval" json:"reconnectInterval"`

	// Buffer settings.
	ReceiveBufferSize int `yaml:"receiveBufferSize" json:"receiveBufferSize"`
	SendBufferSize    int `yaml:"sendBufferSize" json:"sendBufferSize"`

	// Timeout settings. ConnectTimeout bounds the dial and SendTimeout is
	// applied as a write deadline per Send; ReceiveTimeout is declared for
	// config-surface compatibility but the receive loop blocks without a
	// deadline (Disconnect unblocks it by closing the socket).
	ConnectTimeout time.Duration `yaml:"connectTimeout" json:"connectTimeout"`
	ReceiveTimeout time.Duration `yaml:"receiveTimeout" json:"receiveTimeout"`
	SendTimeout    time.Duration `yaml:"sendTimeout" json:"sendTimeout"`

	// Performance settings. Nagle is disabled by default for low latency.
	EnableNagle       bool          `yaml:"enableNagle" json:"enableNagle"`
	EnableKeepalive   bool          `yaml:"enableKeepalive" json:"enableKeepalive"`
	KeepaliveInterval time.Duration `yaml:"keepaliveInterval" json:"keepaliveInterval"`
	// KeepaliveProbes is declared for config-surface compatibility; the probe
	// count is not settable through net.TCPConn.
	KeepaliveProbes int `yaml:"keepaliveProbes" json:"keepaliveProbes"`

	// Threading settings. WorkerThreads is declared for config-surface
	// compatibility; delivery runs on the host tick and each connection owns
	// exactly one receive goroutine.
	WorkerThreads int `yaml:"workerThreads" json:"workerThreads"`

	// Logging.
	EnableLogging bool   `yaml:"enableLogging" json:"enableLogging"`
	LogRawData    bool   `yaml:"logRawData" json:"logRawData"`
	LogPrefix     string `yaml:"logPrefix" json:"logPrefix"`
}

// DefaultConfig returns the baseline configuration shared by all presets.
func DefaultConfig() *Config {
	return &Config{
		ServerBindAddress: "0.0.0.0",
		ServerPort:        8080,
		ServerBacklog:     10,
		MaxConnections:    100,
		ClientAddress:     "127.0.0.1",
		ClientPort:        8080,
		AutoReconnect:     true,
		ReconnectInterval: 5 * time.Second,
		ReceiveBufferSize: 8192,
		SendBufferSize:    8192,
		ConnectTimeout:    10 * time.Second,
		ReceiveTimeout:    30 * time.Second,
		SendTimeout:       5 * time.Second,
		EnableNagle:       false,
		EnableKeepalive:   true,
		KeepaliveInterval: 60 * time.Second,
		KeepaliveProbes:   3,
		WorkerThreads:     2,
		EnableLogging:     true,
		LogPrefix:         "[network]",
	}
}

// ServerConfig returns a configuration with only the server role enabled.
func ServerConfig(port, maxConns int) *Config {
	cfg := DefaultConfig()
	cfg.EnableServer = true
	cfg.ServerPort = port
	cfg.MaxConnections = maxConns
	return cfg
}

// ClientConfig returns a configuration with only the client role enabled.
func ClientConfig(address string, port int) *Config {
	cfg := DefaultConfig()
	cfg.EnableClient = true
	cfg.ClientAddress = address
	cfg.ClientPort = port
	return cfg
}

// HybridConfig enables both roles on one process.
func HybridConfig(serverPort int) *Config {
	cfg := DefaultConfig()
	cfg.EnableServer = true
	cfg.EnableClient = true
	cfg.ServerPort = serverPort
	return cfg
}

// LowLatencyConfig trades throughput for latency: small buffers, Nagle off,
// short send timeout, more workers.
func LowLatencyConfig() *Config {
	cfg := DefaultConfig()
	cfg.EnableNagle = false
	cfg.ReceiveBufferSize = 4096
	cfg.SendBufferSize = 4096
	cfg.SendTimeout = time.Second
	cfg.WorkerThreads = 4
	return cfg
}

// HighThroughputConfig trades latency for throughput: large buffers, Nagle on.
func HighThroughputConfig() *Config {
	cfg := DefaultConfig()
	cfg.ReceiveBufferSize = 65536
	cfg.SendBufferSize = 65536
	cfg.EnableNagle = true
	cfg.WorkerThreads = 8
	return cfg
}

// normalize clamps out-of-range values to usable defaults. Called by the
// Server, Client and Connection constructors so a zero-value Config still
// behaves.
func (c *Config) normalize() {
	if c.ServerBindAddress == "" {
		c.ServerBindAddress = "0.0.0.0"
	}
	if c.ServerBacklog < 1 {
		c.ServerBacklog = 10
	}
	if c.MaxConnections < 1 {
		c.MaxConnections = 100
	}
	if c.ReceiveBufferSize < 1 {
		c.ReceiveBufferSize = 8192
	}
	if c.SendBufferSize < 1 {
		c.SendBufferSize = 8192
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 5 * time.Second
	}
	if c.WorkerThreads < 1 {
		c.WorkerThreads = 1
	}
	if c.LogPrefix == "" {
		c.LogPrefix = "[network]"
	}
}

// Validate rejects configurations that cannot be started.
func (c *Config) Validate() error {
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("tcp: server port %d out of range", c.ServerPort)
	}
	if c.ClientPort < 0 || c.ClientPort > 65535 {
		return fmt.Errorf("tcp: client port %d out of range", c.ClientPort)
	}
	if c.EnableClient && c.ClientAddress == "" {
		return fmt.Errorf("tcp: client enabled without a target address")
	}
	return nil
}
