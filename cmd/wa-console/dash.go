package main

import (
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marcostaira/app-whatsapp/internal/app"
	"github.com/marcostaira/app-whatsapp/internal/logging"
	"github.com/marcostaira/app-whatsapp/internal/push"
	"github.com/marcostaira/app-whatsapp/internal/tenant"
)

func runDash(f *rootFlags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	// The alt screen owns the terminal, so logs go to a file or nowhere.
	out, err := logging.OpenFile(cfg.Log.File)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer out.Close()
	logger := logging.Init("wa-console", cfg.Log.Format, cfg.Log.Level, out)

	var pc *push.Client
	if cfg.Relay.URL != "" {
		pc = push.New(cfg.Relay.URL, cfg.Relay.Token, logger)
	}
	store := tenant.NewStore("", logger)

	m := app.New(app.Options{
		API:                newAPIClient(cfg, cfg.API.Key, prometheus.NewRegistry(), logger),
		Push:               pc,
		Tenants:            store,
		PollInterval:       cfg.Poll.Interval,
		PollCeiling:        cfg.Poll.Ceiling,
		ConnectionsRefresh: cfg.Poll.ConnectionsRefresh,
		QRDir:              filepath.Join(tenant.DefaultDir(), "qr"),
		Logger:             logger,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
