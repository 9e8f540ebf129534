package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/girderio/girder/pkg/bus"
	"github.com/girderio/girder/pkg/config"
	"github.com/girderio/girder/pkg/logging"
	"github.com/girderio/girder/pkg/metrics"
	"github.com/girderio/girder/pkg/module"
	"github.com/girderio/girder/pkg/netmod"
	"github.com/girderio/girder/pkg/profiling"
	"github.com/girderio/girder/pkg/tcp"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML/JSON config file")
		mode       = flag.String("mode", "server", "server, client or hybrid")
		addr       = flag.String("addr", "127.0.0.1", "client target address")
		port       = flag.Int("port", 8080, "server listen / client target port")
		hz         = flag.Float64("hz", 60, "tick rate")
		profile    = flag.Bool("profile", false, "enable development profiling")
	)
	flag.Parse()

	log := logging.New("[girder]")

	cfg, err := buildConfig(*configPath, *mode, *addr, *port, *profile)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}

	publisher, cleanup, err := buildPublisher(cfg.Bus)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
	defer cleanup()

	host := module.NewHost(publisher)
	host.Register(profiling.New(cfg.Profiling))
	nm := netmod.New(&cfg.Network)
	host.Register(nm)

	if err := host.Init(); err != nil {
		log.Errorf("startup failed: %v", err)
		os.Exit(1)
	}
	defer host.Shutdown()

	// Echo behavior for the demo: whatever a peer sends comes back to every
	// connected client.
	if srv := nm.Server(); srv != nil {
		srv.SetOnClientDataReceived(func(_ *tcp.Connection, data []byte) {
			srv.Broadcast(data)
		})
	}
	if cli := nm.Client(); cli != nil {
		cli.SetOnDataReceived(func(_ *tcp.Connection, data []byte) {
			log.Infof("received %q", data)
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("running in %s mode, ctrl-c to stop", *mode)
	host.Run(ctx, *hz)
}

func buildConfig(path, mode, addr string, port int, profile bool) (*config.AppConfig, error) {
	if path != "" {
		return config.LoadApp(path)
	}

	cfg := config.DefaultAppConfig()
	switch mode {
	case "server":
		cfg.Network = *tcp.ServerConfig(port, 100)
	case "client":
		cfg.Network = *tcp.ClientConfig(addr, port)
	case "hybrid":
		cfg.Network = *tcp.HybridConfig(port)
		cfg.Network.ClientAddress = addr
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	if profile {
		cfg.Profiling = metrics.DevelopmentProfilingConfig()
	}
	return cfg, cfg.Validate()
}

// buildPublisher selects the event sink from the bus section. The returned
// cleanup is safe to call once.
func buildPublisher(cfg config.BusConfig) (bus.Publisher, func(), error) {
	switch cfg.Backend {
	case "nats":
		pub, err := bus.ConnectNATS(bus.NATSConfig{URL: cfg.NATSURL, Name: "girder"})
		if err != nil {
			return nil, nil, err
		}
		return pub, pub.Close, nil
	default:
		return bus.New(), func() {}, nil
	}
}
