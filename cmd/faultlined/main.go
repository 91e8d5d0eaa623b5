// Faultline daemon - main entry point
//
// faultlined aggregates fault reports into deduplicated incidents and keeps
// one operator notification per incident in a Matrix room. Reports arrive
// over the operator HTTP surface; diagnostics are served back on demand.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/faultline/faultline/pkg/aggregate"
	"github.com/faultline/faultline/pkg/config"
	"github.com/faultline/faultline/pkg/eventbus"
	faulthttp "github.com/faultline/faultline/pkg/http"
	"github.com/faultline/faultline/pkg/incident"
	"github.com/faultline/faultline/pkg/logger"
	"github.com/faultline/faultline/pkg/notify"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
)

type cliConfig struct {
	command    string
	configPath string
	dbPath     string
	listenAddr string
	logLevel   string
	version    bool
}

func main() {
	cliCfg := parseFlags()

	if cliCfg.version {
		fmt.Printf("faultlined %s (built %s)\n", version, buildTime)
		return
	}

	switch cliCfg.command {
	case "init":
		runInit(cliCfg)
	case "validate":
		runValidate(cliCfg)
	case "serve", "":
		runServe(cliCfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cliCfg.command)
		printUsage()
		os.Exit(2)
	}
}

func parseFlags() cliConfig {
	var cliCfg cliConfig

	flag.StringVar(&cliCfg.configPath, "config", "", "Path to config file (default: search standard locations)")
	flag.StringVar(&cliCfg.dbPath, "db", "", "Override incident database path")
	flag.StringVar(&cliCfg.listenAddr, "listen", "", "Override HTTP listen address")
	flag.StringVar(&cliCfg.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	flag.BoolVar(&cliCfg.version, "version", false, "Print version and exit")
	flag.Usage = printUsage
	flag.Parse()

	cliCfg.command = flag.Arg(0)
	return cliCfg
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `faultlined - fault aggregation and operator notification daemon

Usage:
  faultlined [flags] [command]

Commands:
  serve      Run the daemon (default)
  init       Write an example config file
  validate   Check the configuration and exit

Flags:
`)
	flag.PrintDefaults()
}

// runInit writes an example configuration file
func runInit(cliCfg cliConfig) {
	path := cliCfg.configPath
	if path == "" {
		path = "faultline.toml"
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "refusing to overwrite existing config: %s\n", path)
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	cfg.Matrix.HomeserverURL = "https://matrix.example.org"
	cfg.Matrix.AccessToken = "CHANGE_ME"
	cfg.Matrix.RoomID = "!operators:example.org"
	if err := config.Save(cfg, path); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote example config to %s\n", path)
	fmt.Println("Fill in the [matrix] section before starting the daemon.")
}

// runValidate checks the configuration
func runValidate(cliCfg cliConfig) {
	cfg, err := loadConfig(cliCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration OK")
	fmt.Printf("  database:   %s\n", cfg.Store.DBPath)
	fmt.Printf("  homeserver: %s\n", cfg.Matrix.HomeserverURL)
	fmt.Printf("  room:       %s\n", cfg.Matrix.RoomID)
	if cfg.HTTP.Enabled {
		fmt.Printf("  http:       %s\n", cfg.HTTP.ListenAddr)
	} else {
		fmt.Println("  http:       disabled")
	}
}

func loadConfig(cliCfg cliConfig) (*config.Config, error) {
	cfg, err := config.Load(cliCfg.configPath)
	if err != nil {
		return nil, err
	}

	if cliCfg.dbPath != "" {
		cfg.Store.DBPath = cliCfg.dbPath
	}
	if cliCfg.listenAddr != "" {
		cfg.HTTP.ListenAddr = cliCfg.listenAddr
	}
	if cliCfg.logLevel != "" {
		cfg.Logging.Level = cliCfg.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cliCfg cliConfig) {
	cfg, err := loadConfig(cliCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	log := logger.Global().WithComponent("main")

	log.Info("starting faultlined", "version", version, "db", cfg.Store.DBPath)

	store, err := incident.NewStore(incident.StoreConfig{
		Path:     cfg.Store.DBPath,
		MaxConns: cfg.Store.MaxConns,
	})
	if err != nil {
		log.Error("failed to open incident store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	sink, err := notify.NewMatrixSink(notify.MatrixConfig{
		HomeserverURL:     cfg.Matrix.HomeserverURL,
		AccessToken:       cfg.Matrix.AccessToken,
		RoomID:            cfg.Matrix.RoomID,
		RequestsPerSecond: cfg.Matrix.RequestsPerSecond,
	})
	if err != nil {
		log.Error("failed to create Matrix sink", "error", err)
		os.Exit(1)
	}

	bus := eventbus.New(64)

	aggregator := aggregate.NewAggregator(aggregate.AggregatorConfig{
		Store: store,
		Sink:  sink,
		Bus:   bus,
	})
	retriever := aggregate.NewRetriever(aggregate.RetrieverConfig{
		Source: store,
		Sink:   sink,
		Bus:    bus,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Enabled {
		server := faulthttp.NewServer(faulthttp.ServerConfig{
			ListenAddr: cfg.HTTP.ListenAddr,
		}, aggregator, retriever, store, bus)

		g.Go(server.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Stop(shutdownCtx)
		})
	} else {
		log.Warn("HTTP surface disabled, no report intake is running")
		g.Go(func() error {
			<-ctx.Done()
			return nil
		})
	}

	log.Info("faultlined is running")

	if err := g.Wait(); err != nil {
		log.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}

	log.Info("faultlined stopped")
}
