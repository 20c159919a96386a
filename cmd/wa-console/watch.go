package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/marcostaira/app-whatsapp/internal/logging"
	"github.com/marcostaira/app-whatsapp/internal/push"
	"github.com/marcostaira/app-whatsapp/internal/qr"
	"github.com/marcostaira/app-whatsapp/internal/reconciler"
	"github.com/marcostaira/app-whatsapp/internal/tenant"
)

type watchFlags struct {
	connect     bool
	phone       string
	metricsAddr string
}

func newWatchCmd(rf *rootFlags) *cobra.Command {
	wf := &watchFlags{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Track the tenant's connection without the dashboard, logging every change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, rf, wf)
		},
	}
	cmd.Flags().BoolVar(&wf.connect, "connect", false, "Start a new connection when none is active")
	cmd.Flags().StringVar(&wf.phone, "phone", "", "Phone number for pairing-code connect (implies --connect)")
	cmd.Flags().StringVar(&wf.metricsAddr, "metrics", "", "Serve API client metrics on this address, e.g. :9101")
	return cmd
}

func runWatch(cmd *cobra.Command, rf *rootFlags, wf *watchFlags) error {
	cfg, err := loadConfig(rf)
	if err != nil {
		return err
	}
	logger := logging.Init("wa-console", cfg.Log.Format, cfg.Log.Level, os.Stderr)

	key := cfg.API.Key
	if key == "" {
		t, err := tenant.NewStore("", logger).Load()
		if err != nil {
			return err
		}
		if t == nil {
			return errors.New("no tenant selected: pass --key or pick one in the dashboard first")
		}
		key = t.APIKey
		logger.Info().Str("tenant", t.Name).Msg("using saved tenant")
	}

	reg := prometheus.NewRegistry()
	client := newAPIClient(cfg, key, reg, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if wf.metricsAddr != "" {
		go serveMetrics(ctx, wf.metricsAddr, reg, logger)
	}

	rec := reconciler.New(client, reconciler.Options{
		Interval: cfg.Poll.Interval,
		Ceiling:  cfg.Poll.Ceiling,
		Logger:   logger,
	})
	defer func() {
		rec.Teardown()
		rec.Wait()
	}()

	qrDir := filepath.Join(tenant.DefaultDir(), "qr")
	var (
		mu     sync.Mutex
		lastQR string
	)
	rec.OnChange(func(s reconciler.Session, c reconciler.Cause) {
		ev := logger.Info().Str("cause", string(c)).Str("session", s.SessionID).Str("status", s.Status.String()).Bool("polling", s.Polling)
		if s.PairingCode != "" {
			ev = ev.Str("pairing_code", s.PairingCode)
		}
		if s.Profile != nil {
			ev = ev.Str("profile", s.Profile.Name)
		}
		ev.Msg("session changed")

		mu.Lock()
		defer mu.Unlock()
		if s.QRCode != "" && s.QRCode != lastQR {
			lastQR = s.QRCode
			printQR(cmd, s.QRCode, qrDir, s.SessionID, logger)
		}
	})
	rec.OnError(func(err error) {
		if errors.Is(err, reconciler.ErrPollCeiling) {
			logger.Warn().Err(err).Msg("stopped polling; restart watch to resume")
			return
		}
		logger.Warn().Err(err).Msg("reconciler")
	})

	s, err := rec.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	if s.SessionID == "" && (wf.connect || wf.phone != "") {
		if _, err := rec.Connect(ctx, wf.phone != "", wf.phone); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
	}

	if cfg.Relay.URL == "" {
		<-ctx.Done()
		return nil
	}

	pc := push.New(cfg.Relay.URL, cfg.Relay.Token, logger)
	defer pc.Close()
	err = pc.Run(ctx, func(msg tea.Msg) {
		switch msg := msg.(type) {
		case push.ConnectedMsg:
			logger.Info().Str("url", cfg.Relay.URL).Msg("relay connected")
		case push.DisconnectedMsg:
			logger.Warn().Err(msg.Err).Msg("relay disconnected")
		case push.EventMsg:
			if msg.Status != nil {
				rec.Apply(ctx, *msg.Status)
			}
		}
	})
	if errors.Is(err, push.ErrUnauthorized) {
		logger.Error().Msg("relay rejected the token; continuing with polling only")
		<-ctx.Done()
		return nil
	}
	return err
}

func printQR(cmd *cobra.Command, payload, dir, sessionID string, logger zerolog.Logger) {
	r, err := qr.Present(payload, dir, sessionID)
	if err != nil {
		logger.Warn().Err(err).Msg("cannot show QR code")
		return
	}
	if r.File != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "QR code saved to %s\n", r.File)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), r.Art)
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server")
	}
}
