package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/marcostaira/app-whatsapp/internal/config"
	"github.com/marcostaira/app-whatsapp/internal/logging"
	"github.com/marcostaira/app-whatsapp/internal/relay"
)

func main() {
	configPath := flag.String("config", "wa-console.yaml", "Path to config file")
	host := flag.String("host", "", "Override listen host")
	port := flag.Int("port", 0, "Override listen port")
	token := flag.String("token", "", "Require this token on /ws and the management endpoints")
	origins := flag.String("origins", "", "Comma-separated origins allowed to open /ws")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadOrDefault(*configPath)
	if err == nil {
		err = cfg.ApplyEnv()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Relay.Host = *host
	}
	if *port > 0 {
		cfg.Relay.Port = *port
	}
	if *token != "" {
		cfg.Relay.Token = *token
	}

	logger := logging.Init("wa-relay", cfg.Log.Format, cfg.Log.Level, os.Stderr)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	relay.Register(reg)

	store := relay.NewStore(cfg.Relay.MaxEvents)
	broadcaster := relay.NewBroadcaster(store, logger)
	defer broadcaster.Close()

	var allowed []string
	if *origins != "" {
		allowed = strings.Split(*origins, ",")
	}
	server := relay.NewServer(store, broadcaster, relay.Options{
		Port:           cfg.Relay.Port,
		Token:          cfg.Relay.Token,
		AllowedOrigins: allowed,
		SimulateDelay:  cfg.Relay.SimulateDelay,
		Gatherer:       reg,
		Logger:         logger,
	})

	r := mux.NewRouter()
	server.SetupRoutes(r)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Relay.Token == "" {
		logger.Warn().Msg("no token set; anyone who can reach the relay can read and clear events")
	}
	if err := relay.ListenAndServe(ctx, cfg.Relay.Host, cfg.Relay.Port, r, logger); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("shut down")
}
