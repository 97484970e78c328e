package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"KoordeDHT/internal/bootstrap"
	"KoordeDHT/internal/config"
	"KoordeDHT/internal/ctxutil"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/imagestore"
	"KoordeDHT/internal/logger"
	zapfactory "KoordeDHT/internal/logger/zap"
	"KoordeDHT/internal/node"
	"KoordeDHT/internal/routingtable"
	"KoordeDHT/internal/telemetry"
)

var defaultConfigPath = "config/node/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	idOverride := flag.String("I", "", "override derived node id with a literal 0..255 (tests only)")
	bootstrapPeer := flag.String("p", "", "bootstrap peer fqdn:port (absent means this node is the ring's first member)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	cfg.ApplyEnvOverrides()
	if *idOverride != "" {
		cfg.Node.ID = *idOverride
	}
	if *bootstrapPeer != "" {
		cfg.Bootstrap.Mode = "static"
		cfg.Bootstrap.Peer = *bootstrapPeer
	}
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewZapAdapter(zapLog)
	} else {
		lgr = &logger.NopLogger{}
	}
	cfg.LogConfig(lgr)

	dhtLn, ipv4, dhtPort, err := config.Listen(cfg.Node.Mode, cfg.Node.Bind, "", cfg.Node.Port)
	if err != nil {
		lgr.Error("failed to open dht listener", logger.F("err", err))
		os.Exit(1)
	}
	defer func() { _ = dhtLn.Close() }()

	imageLn, _, imagePort, err := config.Listen(cfg.Node.Mode, cfg.Node.Bind, "", cfg.Node.ImagePort)
	if err != nil {
		lgr.Error("failed to open image listener", logger.F("err", err))
		os.Exit(1)
	}
	defer func() { _ = imageLn.Close() }()

	id, err := resolveNodeID(cfg.Node.ID, dhtPort, ipv4)
	if err != nil {
		lgr.Error("invalid node id", logger.F("err", err))
		os.Exit(1)
	}

	self := domain.Node{ID: id, Port: dhtPort, IPv4: ipv4}
	lgr = lgr.Named("node").With(logger.FNode("self", self))
	lgr.Info("node starting", logger.F("dht_addr", self.Addr()), logger.F("image_port", imagePort))

	shutdownTracer := telemetry.InitTracer(cfg.Telemetry, "koorde-node", id)
	defer func() { _ = shutdownTracer(context.Background()) }()

	rt := routingtable.New(self, routingtable.WithLogger(lgr.Named("routingtable")))
	store := imagestore.New(cfg.DHT.ManifestPath, cfg.DHT.ImagesDir, imagestore.WithLogger(lgr.Named("imagestore")))

	n := node.New(self, rt, store,
		node.WithLogger(lgr),
		node.WithTTLs(uint16(cfg.DHT.JoinTTL), uint16(cfg.DHT.SearchTTL)),
	)

	var register bootstrap.Bootstrap
	switch cfg.Bootstrap.Mode {
	case "dns":
		register, err = bootstrap.NewRoute53Bootstrap(cfg.Bootstrap.Route53)
		if err != nil {
			lgr.Error("failed to initialize route53 bootstrap", logger.F("err", err))
			os.Exit(1)
		}
	default:
		var peers []string
		if cfg.Bootstrap.Peer != "" {
			peers = []string{cfg.Bootstrap.Peer}
		}
		register = bootstrap.NewStaticBootstrap(peers)
	}

	discoverCtx, cancel := ctxutil.NewContext(ctxutil.WithTimeout(10*time.Second), ctxutil.WithTrace(id), ctxutil.WithHops())
	peers, err := register.Discover(discoverCtx)
	cancel()
	if err != nil {
		lgr.Error("failed to resolve bootstrap peers", logger.F("err", err), logger.F("trace_id", ctxutil.TraceIDFromContext(discoverCtx)))
		os.Exit(1)
	}
	lgr.Debug("bootstrap discover completed", logger.F("trace_id", ctxutil.TraceIDFromContext(discoverCtx)), logger.F("hops", ctxutil.HopsFromContext(discoverCtx)))

	bootstrapAddr := ""
	if len(peers) == 0 {
		rt.Init()
		if err := store.Load(self.ID, self.ID); err != nil {
			lgr.Error("failed to load image store", logger.F("err", err))
			os.Exit(1)
		}
		lgr.Info("no bootstrap peers found, starting as the ring's first member")
	} else {
		bootstrapAddr = peers[0]
		if err := n.SendJoin(bootstrapAddr); err != nil {
			lgr.Error("failed to send join", logger.F("peer", bootstrapAddr), logger.F("err", err))
			os.Exit(1)
		}
		lgr.Info("join sent", logger.F("peer", bootstrapAddr))
	}

	registerCtx, cancel := ctxutil.NewContext(ctxutil.WithTimeout(10*time.Second), ctxutil.WithTrace(id))
	if err := register.Register(registerCtx, &self); err != nil {
		lgr.Warn("failed to register node", logger.F("err", err), logger.F("trace_id", ctxutil.TraceIDFromContext(registerCtx)))
	}
	cancel()
	defer func() {
		deregisterCtx, cancel := ctxutil.NewContext(ctxutil.WithTimeout(10*time.Second), ctxutil.WithTrace(id))
		defer cancel()
		deregisterCtx = ctxutil.EnsureTraceID(deregisterCtx, id)
		if err := register.Deregister(deregisterCtx, &self); err != nil {
			lgr.Warn("failed to deregister node", logger.F("err", err), logger.F("trace_id", ctxutil.TraceIDFromContext(deregisterCtx)))
		}
	}()

	relisten := func() (net.Listener, domain.Node, error) {
		ln, newIPv4, newPort, err := config.Listen(cfg.Node.Mode, cfg.Node.Bind, "", 0)
		if err != nil {
			return nil, domain.Node{}, fmt.Errorf("relisten: %w", err)
		}
		newID := domain.DeriveNodeID(newPort, newIPv4)
		return ln, domain.Node{ID: newID, Port: newPort, IPv4: newIPv4}, nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runShell(n, stop)

	runErr := n.Run(ctx, dhtLn, imageLn, bootstrapAddr, relisten)
	if runErr != nil {
		lgr.Error("event loop stopped on fatal error", logger.F("err", runErr))
		os.Exit(1)
	}
	lgr.Info("shutdown complete")
}

// resolveNodeID honors a literal override (CLI -I or config node.id) or
// else derives the id from the bound dht address, per spec.md §6.
func resolveNodeID(override string, port uint16, ipv4 uint32) (domain.ID, error) {
	if override == "" {
		return domain.DeriveNodeID(port, ipv4), nil
	}
	v, err := strconv.ParseUint(override, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid id override %q: %w", override, err)
	}
	return domain.ID(v), nil
}

// runShell is a small interactive debug console: it reads commands from
// stdin and prints routing-table state on demand. It never touches node
// state directly and holds no protocol state of its own, so it cannot
// violate the event loop's single-mutator invariant — finger-table reads
// are safe because each entry carries its own lock.
func runShell(n *node.Node, stop context.CancelFunc) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Printf("koorde node shell. self=%s\n", n.Self().Addr())
	fmt.Println("Available commands: p (print routing table), q (quit)")

	for {
		input, err := line.Prompt(fmt.Sprintf("node[%s]> ", n.Self().ID.String()))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			stop()
			return
		}
		line.AppendHistory(input)

		switch strings.TrimSpace(input) {
		case "p":
			fmt.Printf("self:        %s\n", n.Self().Addr())
			fmt.Printf("predecessor: %s\n", n.RoutingTable().Predecessor().Addr())
			fmt.Printf("successor:   %s\n", n.RoutingTable().Successor(0).Addr())
			fmt.Printf("store size:  %d\n", n.Store().Len())
			n.RoutingTable().DebugLog()
		case "q", "quit", "exit":
			stop()
			return
		case "":
		default:
			fmt.Println("unknown command")
		}
	}
}
