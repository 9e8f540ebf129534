package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/girderio/girder/pkg/logging"
)

// NATSConfig configures the NATS-backed Publisher.
type NATSConfig struct {
	// URL is the NATS server URL, e.g. "nats://127.0.0.1:4222".
	URL string `yaml:"url" json:"url"`

	// Prefix is prepended to all subjects. Default: "girder".
	Prefix string `yaml:"prefix" json:"prefix"`

	// Name is an optional NATS connection name.
	Name string `yaml:"name" json:"name"`
}

// NATSPublisher forwards events to a NATS subject per topic. Payloads are
// JSON-encoded; []byte payloads pass through untouched.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	log    logging.Logger
}

// ConnectNATS connects to the configured server and returns a Publisher over
// it.
func ConnectNATS(cfg NATSConfig) (*NATSPublisher, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "girder"
	}

	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: nats connect: %w", err)
	}

	return &NATSPublisher{
		nc:     nc,
		prefix: prefix,
		log:    logging.New("[bus]"),
	}, nil
}

// Publish JSON-encodes the payload and publishes it on <prefix>.<topic>.
// Failures are logged, not returned; the Publisher contract is
// fire-and-forget.
func (p *NATSPublisher) Publish(topic string, payload interface{}) {
	data, err := encodePayload(payload)
	if err != nil {
		p.log.Warnf("drop event on %s: %v", topic, err)
		return
	}
	if err := p.nc.Publish(p.prefix+"."+topic, data); err != nil {
		p.log.Warnf("publish on %s failed: %v", topic, err)
	}
}

// Flush waits until the server has processed everything published so far.
func (p *NATSPublisher) Flush(timeout time.Duration) error {
	return p.nc.FlushTimeout(timeout)
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	_ = p.nc.Drain()
	p.nc.Close()
}

func encodePayload(payload interface{}) ([]byte, error) {
	if b, ok := payload.([]byte); ok {
		return b, nil
	}
	return json.Marshal(payload)
}
