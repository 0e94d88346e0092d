package main

import (
	"flag"
	"os"
	"runtime"
	"strings"
	"time"

	"crypto/tls"
	"os/signal"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-pluto/convergent/comm"
	"github.com/go-pluto/convergent/config"
	"github.com/go-pluto/convergent/crypto"
	"github.com/go-pluto/convergent/node"
	uuid "github.com/satori/go.uuid"
)

// Functions

// initLogger initializes a JSON gokit-logger set
// to the according log level supplied via cli flag.
func initLogger(loglevel string) log.Logger {

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger,
		"ts", log.DefaultTimestampUTC,
		"caller", log.DefaultCaller,
	)

	switch strings.ToLower(loglevel) {
	case "info":
		logger = level.NewFilter(logger, level.AllowInfo())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	default:
		logger = level.NewFilter(logger, level.AllowDebug())
	}

	return logger
}

// resolveName determines this process' replica identity:
// command-line flag first, .env file second, and a freshly
// generated UUID for ad-hoc processes last.
func resolveName(logger log.Logger, flagName string) string {

	if flagName != "" {
		return flagName
	}

	env, err := config.LoadEnv()
	if (err == nil) && (env.Replica != "") {
		return env.Replica
	}

	name := uuid.NewV4().String()

	level.Warn(logger).Log(
		"msg", "no replica identity supplied, generated an ad-hoc one",
		"replica", name,
	)

	return name
}

func main() {

	// Set CPUs usable by this process to all available.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Parse command-line flags.
	configFlag := flag.String("config", "config.toml", "Provide path to configuration file in TOML syntax.")
	replicaFlag := flag.String("replica", "", "Name of the replica this process should run as, one of the ones defined in your config file.")
	loglevelFlag := flag.String("loglevel", "debug", "This flag sets the default logging level.")
	flag.Parse()

	logger := initLogger(*loglevelFlag)

	// Read configuration from file.
	conf, err := config.LoadConfig(*configFlag)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to load the config", "err", err,
		)
		os.Exit(1)
	}

	name := resolveName(logger, *replicaFlag)
	logger = log.With(logger, "replica", name)

	replConf, found := conf.Replicas[name]
	if !found {
		level.Error(logger).Log(
			"msg", "replica is not defined in the config file",
		)
		os.Exit(1)
	}

	// Load internal TLS config.
	tlsConfig, err := crypto.NewInternalTLSConfig(replConf.CertLoc, replConf.KeyLoc, conf.RootCertLoc)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to load internal TLS config", "err", err,
		)
		os.Exit(1)
	}

	// Open the event log. Without a configured location
	// the log is kept in memory and lost on exit.
	var store node.Store
	if replConf.LogLoc != "" {

		store, err = node.InitBoltStore(replConf.LogLoc)
		if err != nil {
			level.Error(logger).Log(
				"msg", "failed to open event log", "err", err,
			)
			os.Exit(1)
		}
	} else {

		level.Warn(logger).Log(
			"msg", "no event log location configured, state will not survive a restart",
		)
		store = node.InitMemoryStore()
	}

	// Collect the sync addresses of all other replicas.
	peers := make(map[string]string)
	for peerName, peer := range conf.Replicas {
		if peerName != name {
			peers[peerName] = peer.PublicSyncAddr
		}
	}

	sender := comm.InitSender(logger, name, tlsConfig, peers)

	mets := nodeMetrics(replConf.PrometheusAddr)
	go runPromHTTP(logger, replConf.PrometheusAddr)

	resync := time.Duration(conf.Replication.ResyncTimeoutMS) * time.Millisecond

	repl, err := node.InitReplica(logger, mets, name, store, sender, conf.Replication.BatchLimit, resync)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to initialize replica", "err", err,
		)
		os.Exit(1)
	}

	// Start to listen for incoming sync connections on
	// defined listen address.
	socket, err := tls.Listen("tcp", replConf.ListenSyncAddr, tlsConfig)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to listen for internal sync connections", "err", err,
		)
		os.Exit(1)
	}

	level.Info(logger).Log(
		"msg", "listening for incoming sync requests",
		"addr", socket.Addr(),
	)

	recv := comm.InitReceiver(logger, name, socket, repl)

	// Start anti-entropy against every peer.
	for peerName := range peers {
		repl.Connect(peerName)
	}

	// Run until interrupted.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	level.Info(logger).Log("msg", "shutting down")

	recv.Shutdown()
	sender.Close()

	if err := repl.Shutdown(); err != nil {
		level.Warn(logger).Log(
			"msg", "failed to shut down replica cleanly", "err", err,
		)
	}
}
