// Package main is the entry point for the cometixtab completion service.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/config"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/engine"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	settings, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		return 1
	}

	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(opts.logLevel),
		Output: os.Stderr,
		Prefix: "cometixtab",
	})

	store := config.NewStore(settings)

	// Hot-reload the config file when one was given.
	if opts.configPath != "" {
		watcher, err := config.NewWatcher(opts.configPath, store, log)
		if err != nil {
			log.Warn("config watching disabled: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	eng, err := engine.New(store, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize engine: %v\n", err)
		return 1
	}
	defer eng.Close()

	log.Info("cometixtab %s ready (provider=%s endpoint=%s)",
		version, store.Settings().Provider, store.Settings().Endpoint)

	// Block until asked to stop. The editor integration drives the engine
	// over its API; this process only hosts it.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	log.Info("shutting down")
	return 0
}

type options struct {
	configPath string
	logLevel   string
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "cometixtab - AI code completion engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: cometixtab [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  cometixtab                        Run with defaults\n")
		fmt.Fprintf(os.Stderr, "  cometixtab -c cometixtab.toml     Run with a config file\n")
		fmt.Fprintf(os.Stderr, "  cometixtab -log-level debug       Verbose logging\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("cometixtab %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.logLevel {
	case "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.logLevel)
		os.Exit(1)
	}

	return opts
}
