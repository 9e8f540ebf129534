package netmod

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/girderio/girder/pkg/bus"
	"github.com/girderio/girder/pkg/module"
	"github.com/girderio/girder/pkg/tcp"
)

func collect(b *bus.Bus, topics ...string) bus.Mailbox {
	mb := make(bus.Mailbox, 64)
	for _, topic := range topics {
		b.Subscribe(topic, "test", mb)
	}
	return mb
}

func waitEvent(t *testing.T, mb bus.Mailbox, topic string) bus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-mb:
			if evt.Topic == topic {
				return evt
			}
		case <-deadline:
			t.Fatalf("no event on %s", topic)
		}
	}
}

func TestServerLifecycleEvents(t *testing.T) {
	b := bus.New()
	mb := collect(b, TopicServerStarted, TopicServerStopped, TopicClientConnected,
		TopicClientDisconnected, TopicServerData)

	cfg := tcp.ServerConfig(0, 100)
	cfg.ServerBindAddress = "127.0.0.1"

	host := module.NewHost(b)
	mod := New(cfg)
	host.Register(mod)
	require.NoError(t, host.Init())
	defer host.Shutdown()

	started := waitEvent(t, mb, TopicServerStarted)
	desc := started.Payload.(ServerDescriptor)
	assert.NotZero(t, desc.Port)

	// Connect a raw peer, send a payload, then close.
	peerCfg := tcp.ClientConfig("127.0.0.1", desc.Port)
	peerCfg.AutoReconnect = false
	peer := tcp.NewClient(peerCfg)
	require.NoError(t, peer.Connect())

	waitEvent(t, mb, TopicClientConnected)

	require.NoError(t, peer.SendString("hello"))
	deadline := time.Now().Add(2 * time.Second)
	var got bus.Event
	for time.Now().Before(deadline) {
		host.Tick(0.01)
		select {
		case evt := <-mb:
			if evt.Topic == TopicServerData {
				got = evt
			}
		default:
		}
		if got.Topic != "" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, TopicServerData, got.Topic)
	assert.Equal(t, []byte("hello"), got.Payload.(DataEvent).Data)

	peer.Close()
	deadline = time.Now().Add(2 * time.Second)
	var sawDisconnect bool
	for time.Now().Before(deadline) && !sawDisconnect {
		host.Tick(0.01)
		select {
		case evt := <-mb:
			if evt.Topic == TopicClientDisconnected {
				sawDisconnect = true
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	assert.True(t, sawDisconnect, "client_disconnected never published")

	host.Shutdown()
	waitEvent(t, mb, TopicServerStopped)
}

func TestClientLifecycleEvents(t *testing.T) {
	srvCfg := tcp.ServerConfig(0, 100)
	srvCfg.ServerBindAddress = "127.0.0.1"
	srv := tcp.NewServer(srvCfg)
	require.NoError(t, srv.Start())
	defer srv.Stop()

	b := bus.New()
	mb := collect(b, TopicClientUpConnected, TopicClientUpDisconnect, TopicClientUpData)

	cfg := tcp.ClientConfig("127.0.0.1", srv.Port())
	cfg.AutoReconnect = false

	host := module.NewHost(b)
	mod := New(cfg)
	host.Register(mod)
	require.NoError(t, host.Init())
	defer host.Shutdown()

	connected := waitEvent(t, mb, TopicClientUpConnected)
	desc := connected.Payload.(ConnectionDescriptor)
	assert.Equal(t, srv.Port(), desc.RemotePort)

	srv.BroadcastString("welcome")
	deadline := time.Now().Add(2 * time.Second)
	var got bus.Event
	for time.Now().Before(deadline) {
		host.Tick(0.01)
		select {
		case evt := <-mb:
			if evt.Topic == TopicClientUpData {
				got = evt
			}
		default:
		}
		if got.Topic != "" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, TopicClientUpData, got.Topic)
	assert.Equal(t, []byte("welcome"), got.Payload.(DataEvent).Data)

	host.Shutdown()
	waitEvent(t, mb, TopicClientUpDisconnect)
}

func TestInitFailsWhenPortTaken(t *testing.T) {
	cfgA := tcp.ServerConfig(0, 100)
	cfgA.ServerBindAddress = "127.0.0.1"
	first := tcp.NewServer(cfgA)
	require.NoError(t, first.Start())
	defer first.Stop()

	cfgB := tcp.ServerConfig(first.Port(), 100)
	cfgB.ServerBindAddress = "127.0.0.1"

	b := bus.New()
	mb := collect(b, TopicError)

	mod := New(cfgB)
	err := mod.Init(module.NewHost(b))
	require.Error(t, err)

	evt := waitEvent(t, mb, TopicError)
	assert.NotEmpty(t, evt.Payload.(ErrorEvent).Message)
}
