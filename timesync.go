// NTP time synchronization service

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mmcloughlin/profile"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/base/timebase"
	"example.com/timesync/benchmark"
	"example.com/timesync/core/client"
	"example.com/timesync/core/peer"
	"example.com/timesync/core/server"
	"example.com/timesync/core/sync"
	coretimebase "example.com/timesync/core/timebase"
	"example.com/timesync/driver/clock"
	"example.com/timesync/net/ntp"
	"example.com/timesync/net/udp"
)

const (
	toolTimeout = 5 * time.Second
)

var (
	log *zap.Logger
)

// frequencyClock is a local clock able to report its current frequency
// correction.
type frequencyClock interface {
	timebase.LocalClock
	Frequency() (float64, error)
}

// localSource serves the local clock at a fixed stratum when there are no
// peers to synchronize to.
type localSource struct {
	stratum uint8
}

func (s localSource) System() sync.SystemSnapshot {
	return sync.SystemSnapshot{
		Version:     1,
		Stratum:     s.stratum,
		ReferenceID: ntp.ReferenceIDFromString("LOCL"),
		Poll:        ntptime.DefaultPollIntervalLimits.Min,
		UpdatedAt:   coretimebase.Now(),
	}
}

func initLogger(verbose bool) {
	c := zap.NewDevelopmentConfig()
	c.DisableStacktrace = true
	c.EncoderConfig.EncodeCaller = func(
		caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		p := caller.TrimmedPath()
		if len(p) > 30 {
			p = "..." + p[len(p)-27:]
		}
		enc.AppendString(fmt.Sprintf("%30s", p))
	}
	if !verbose {
		c.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	var err error
	log, err = c.Build()
	if err != nil {
		panic(err)
	}
}

func runMonitor(log *zap.Logger, addr string) {
	http.Handle("/metrics", promhttp.Handler())
	err := http.ListenAndServe(addr, nil)
	log.Fatal("failed to serve metrics", zap.Error(err))
}

func newLocalClock(cfg svcConfig) frequencyClock {
	if cfg.DryRun {
		return clock.NewVirtualClock()
	}
	return &clock.SystemClock{Log: log}
}

func initialFrequency(clk frequencyClock, driftFile string) float64 {
	if driftFile != "" {
		ppm, err := sync.LoadDrift(driftFile)
		if err == nil {
			log.Info("loaded frequency from drift file",
				zap.String("file", driftFile), zap.Float64("ppm", ppm))
			return ppm
		}
		if !errors.Is(err, os.ErrNotExist) {
			log.Error("failed to load drift file", zap.String("file", driftFile), zap.Error(err))
		}
	}
	ppm, err := clk.Frequency()
	if err != nil {
		log.Error("failed to read clock frequency", zap.Error(err))
		return 0
	}
	return ppm
}

func newEngine(ctx context.Context, cfg svcConfig, clk frequencyClock) (*sync.Engine, func(), error) {
	scfg, err := cfg.systemConfig()
	if err != nil {
		return nil, nil, err
	}
	ppm := initialFrequency(clk, cfg.DriftFile)
	if ppm < -scfg.FrequencyTolerance.PPM() || ppm > scfg.FrequencyTolerance.PPM() {
		log.Warn("ignoring out of range initial frequency", zap.Float64("ppm", ppm))
		ppm = 0
	}
	scfg.InitialFrequency = ppm

	ctrl, err := sync.NewDefaultController(log, scfg)
	if err != nil {
		return nil, nil, err
	}
	local, err := cfg.localAddr()
	if err != nil {
		return nil, nil, err
	}
	specs, err := cfg.peerSpecs(ctx)
	if err != nil {
		return nil, nil, err
	}

	var conns []*udp.Conn
	closeAll := func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}
	peers := make([]sync.PeerRunner, 0, len(specs))
	for _, s := range specs {
		conn, err := udp.Dial(log, local, s.remote, cfg.Interface, cfg.dscp())
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		conns = append(conns, conn)
		peers = append(peers, &client.PeerClient{
			Log:       log,
			Clock:     clk,
			Peer:      peer.New(s.cfg),
			Transport: conn,
		})
	}

	interval := sync.DefaultEvalInterval
	if cfg.EvalInterval != 0 {
		interval = time.Duration(cfg.EvalInterval * float64(time.Second))
	}
	e := &sync.Engine{
		Log:             log,
		Clock:           clk,
		Controller:      ctrl,
		Peers:           peers,
		Interval:        interval,
		MinChangedPeers: (len(peers) + 1) / 2,
		DriftFile:       cfg.DriftFile,
		DryRun:          cfg.DryRun,
	}
	return e, closeAll, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runClient(configFile string) {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	if len(cfg.Peers) == 0 {
		log.Fatal("unexpected configuration", zap.Int("number of peers", 0))
	}

	lclk := newLocalClock(cfg)
	coretimebase.RegisterClock(lclk)

	e, closeConns, err := newEngine(ctx, cfg, lclk)
	if err != nil {
		log.Fatal("failed to set up synchronization", zap.Error(err))
	}
	defer closeConns()

	go runMonitor(log, cfg.metricsAddr())

	err = e.Run(ctx)
	if err != nil {
		log.Fatal("synchronization failed", zap.Error(err))
	}
}

func runServer(configFile string) {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	if cfg.ServerAddr == "" {
		log.Fatal("unexpected configuration", zap.String("server_address", cfg.ServerAddr))
	}
	addr, err := netip.ParseAddrPort(cfg.ServerAddr)
	if err != nil {
		log.Fatal("failed to parse server address", zap.Error(err))
	}
	a, err := cfg.serverAuth()
	if err != nil {
		log.Fatal("failed to set up authentication", zap.Error(err))
	}

	lclk := newLocalClock(cfg)
	coretimebase.RegisterClock(lclk)

	s := &server.Server{
		Log:   log,
		Auth:  a,
		DSCP:  cfg.dscp(),
		Iface: cfg.Interface,
	}

	var e *sync.Engine
	if len(cfg.Peers) != 0 {
		var closeConns func()
		e, closeConns, err = newEngine(ctx, cfg, lclk)
		if err != nil {
			log.Fatal("failed to set up synchronization", zap.Error(err))
		}
		defer closeConns()
		s.System = e
	} else {
		if cfg.LocalStratum == 0 || cfg.LocalStratum >= ntp.StratumUnsync {
			log.Fatal("unexpected configuration",
				zap.Int("number of peers", 0), zap.Uint8("local_stratum", cfg.LocalStratum))
		}
		s.System = localSource{stratum: cfg.LocalStratum}
	}

	go runMonitor(log, cfg.metricsAddr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.ListenAndServe(ctx, addr) })
	if e != nil {
		g.Go(func() error { return e.Run(ctx) })
	}
	err = g.Wait()
	if err != nil {
		log.Fatal("time service failed", zap.Error(err))
	}
}

func runTool(localAddr string, remoteAddrs []string, c2sKey, s2cKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), toolTimeout)
	defer cancel()

	cfg := svcConfig{
		LocalAddr: localAddr,
	}
	for _, r := range remoteAddrs {
		cfg.Peers = append(cfg.Peers, peerConfig{
			Address:    r,
			AuthC2SKey: c2sKey,
			AuthS2CKey: s2cKey,
		})
	}
	local, err := cfg.localAddr()
	if err != nil {
		log.Fatal("failed to parse local address", zap.Error(err))
	}
	specs, err := cfg.peerSpecs(ctx)
	if err != nil {
		log.Fatal("failed to parse peers", zap.Error(err))
	}

	lclk := &clock.SystemClock{Log: log}
	var cs []*client.PeerClient
	for _, s := range specs {
		conn, err := udp.Dial(log, local, s.remote, "", cfg.dscp())
		if err != nil {
			log.Fatal("failed to open connection", zap.Error(err))
		}
		defer conn.Close()
		cs = append(cs, &client.PeerClient{
			Log:        log,
			Clock:      lclk,
			Peer:       peer.New(s.cfg),
			Transport:  conn,
			MaxTimeout: toolTimeout,
		})
	}
	for _, r := range client.MeasureOnce(ctx, cs) {
		fmt.Println(r)
	}
}

func runBenchmark(localAddr, remoteAddr string, numClients, numExchanges int, cpuProfile bool) {
	ctx, cancel := signalContext()
	defer cancel()

	if cpuProfile {
		defer profile.Start(profile.CPUProfile).Stop()
	}

	cfg := svcConfig{LocalAddr: localAddr}
	local, err := cfg.localAddr()
	if err != nil {
		log.Fatal("failed to parse local address", zap.Error(err))
	}
	remote, err := parseRemote(remoteAddr)
	if err != nil {
		log.Fatal("failed to parse remote address", zap.Error(err))
	}
	lclk := &clock.SystemClock{Log: log}
	r, err := benchmark.RunIPBenchmark(ctx, log, lclk, benchmark.Config{
		Local:        local,
		Remote:       remote,
		NumClients:   numClients,
		NumExchanges: numExchanges,
		DSCP:         cfg.dscp(),
	})
	if err != nil {
		log.Fatal("benchmark failed", zap.Error(err))
	}
	err = r.Print(os.Stdout)
	if err != nil {
		log.Fatal("failed to print report", zap.Error(err))
	}
}

func exitWithUsage() {
	fmt.Println("<usage>")
	os.Exit(1)
}

func main() {
	var (
		verbose      bool
		configFile   string
		localAddr    string
		remoteAddrs  string
		authC2SKey   string
		authS2CKey   string
		numClients   int
		numExchanges int
		cpuProfile   bool
	)

	serverFlags := flag.NewFlagSet("server", flag.ExitOnError)
	clientFlags := flag.NewFlagSet("client", flag.ExitOnError)
	toolFlags := flag.NewFlagSet("tool", flag.ExitOnError)
	benchmarkFlags := flag.NewFlagSet("benchmark", flag.ExitOnError)

	serverFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	serverFlags.StringVar(&configFile, "config", "", "Config file")

	clientFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	clientFlags.StringVar(&configFile, "config", "", "Config file")

	toolFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	toolFlags.StringVar(&localAddr, "local", "", "Local address")
	toolFlags.StringVar(&remoteAddrs, "remote", "", "Comma separated remote addresses")
	toolFlags.StringVar(&authC2SKey, "auth-c2s-key", "", "Hex encoded client-to-server key")
	toolFlags.StringVar(&authS2CKey, "auth-s2c-key", "", "Hex encoded server-to-client key")

	benchmarkFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	benchmarkFlags.StringVar(&localAddr, "local", "", "Local address")
	benchmarkFlags.StringVar(&remoteAddrs, "remote", "", "Remote address")
	benchmarkFlags.IntVar(&numClients, "clients", 8, "Number of concurrent clients")
	benchmarkFlags.IntVar(&numExchanges, "n", 1000, "Number of exchanges per client")
	benchmarkFlags.BoolVar(&cpuProfile, "profile", false, "Write a CPU profile")

	if len(os.Args) < 2 {
		exitWithUsage()
	}

	switch os.Args[1] {
	case serverFlags.Name():
		err := serverFlags.Parse(os.Args[2:])
		if err != nil || serverFlags.NArg() != 0 {
			exitWithUsage()
		}
		if configFile == "" {
			exitWithUsage()
		}
		initLogger(verbose)
		runServer(configFile)
	case clientFlags.Name():
		err := clientFlags.Parse(os.Args[2:])
		if err != nil || clientFlags.NArg() != 0 {
			exitWithUsage()
		}
		if configFile == "" {
			exitWithUsage()
		}
		initLogger(verbose)
		runClient(configFile)
	case toolFlags.Name():
		err := toolFlags.Parse(os.Args[2:])
		if err != nil || toolFlags.NArg() != 0 {
			exitWithUsage()
		}
		if remoteAddrs == "" {
			exitWithUsage()
		}
		initLogger(verbose)
		runTool(localAddr, strings.Split(remoteAddrs, ","), authC2SKey, authS2CKey)
	case benchmarkFlags.Name():
		err := benchmarkFlags.Parse(os.Args[2:])
		if err != nil || benchmarkFlags.NArg() != 0 {
			exitWithUsage()
		}
		if remoteAddrs == "" || numClients <= 0 || numExchanges <= 0 {
			exitWithUsage()
		}
		initLogger(verbose)
		runBenchmark(localAddr, remoteAddrs, numClients, numExchanges, cpuProfile)
	default:
		exitWithUsage()
	}
}
