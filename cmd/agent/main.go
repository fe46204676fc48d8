package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"ledstrip-controller/internal/agent"
	"ledstrip-controller/internal/config"
)

// These variables will be set by the build script
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func setupLogging(cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON or YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	setupLogging(cfg.Log)

	log.Infof("Starting LED strip controller version: %s, commit: %s, built: %s", version, commit, date)

	a, err := agent.NewAgent(cfg, version)
	if err != nil {
		log.Fatalf("Failed to create agent: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- a.Run() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errc:
		if err != nil {
			log.WithError(err).Error("agent stopped")
		}
	}

	log.Info("Shutting down agent...")
	a.Shutdown()
	log.Info("Agent shut down gracefully.")
}
