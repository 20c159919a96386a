package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/marcostaira/app-whatsapp/internal/api"
	"github.com/marcostaira/app-whatsapp/internal/push"
	"github.com/marcostaira/app-whatsapp/internal/reconciler"
	"github.com/marcostaira/app-whatsapp/internal/tenant"
	"github.com/marcostaira/app-whatsapp/internal/theme"
	"github.com/marcostaira/app-whatsapp/internal/views/connection"
	"github.com/marcostaira/app-whatsapp/internal/views/connections"
	"github.com/marcostaira/app-whatsapp/internal/views/contacts"
	"github.com/marcostaira/app-whatsapp/internal/views/debug"
	"github.com/marcostaira/app-whatsapp/internal/views/guide"
	"github.com/marcostaira/app-whatsapp/internal/views/messages"
	"github.com/marcostaira/app-whatsapp/internal/views/status"
	"github.com/marcostaira/app-whatsapp/internal/views/tenants"
	"github.com/marcostaira/app-whatsapp/internal/views/webhooks"
)

const (
	healthInterval = 30 * time.Second
	bridgeBuffer   = 64
)

// Tab identifies the visible page.
type Tab int

const (
	TabTenants Tab = iota
	TabConnection
	TabConnections
	TabMessages
	TabContacts
	TabWebhooks
	TabGuide
	tabCount
)

var tabNames = [...]string{"Tenants", "Connection", "Connections", "Messages", "Contacts", "Webhooks", "Guide"}

func (t Tab) String() string { return tabNames[t] }

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDebug
)

// Options wires the dashboard to its collaborators.
type Options struct {
	API     *api.Client
	Push    *push.Client // nil disables the relay feed
	Tenants *tenant.Store

	PollInterval       time.Duration
	PollCeiling        time.Duration
	ConnectionsRefresh time.Duration
	QRDir              string
	Logger             zerolog.Logger
}

type healthMsg struct{ err error }

type healthTickMsg struct{}

// bridgeMsg wraps a message produced outside the program, by reconciler
// callbacks, so the listener can be re-armed after it is handled. gen is the
// reconciler generation that produced it.
type bridgeMsg struct {
	gen uint64
	msg tea.Msg
}

type discoveredMsg struct{ err error }

// Model is the root Bubble Tea model.
type Model struct {
	opts   Options
	api    *api.Client
	push   *push.Client
	store  *tenant.Store
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	bridge chan bridgeMsg

	keys    KeyMap
	width   int
	height  int
	tab     Tab
	overlay Overlay

	tenant *api.Tenant
	rec    *reconciler.Reconciler
	recGen uint64 // bumped whenever rec is torn down

	statusBar status.Model
	debugLog  debug.Model
	tenantsV  tenants.Model
	connV     connection.Model
	connsV    connections.Model
	messagesV messages.Model
	contactsV contacts.Model
	webhooksV webhooks.Model
	guideV    guide.Model
}

// New creates the root model. A tenant saved by an earlier run is restored.
func New(opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		opts:      opts,
		api:       opts.API,
		push:      opts.Push,
		store:     opts.Tenants,
		log:       opts.Logger.With().Str("component", "app").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		bridge:    make(chan bridgeMsg, bridgeBuffer),
		keys:      DefaultKeyMap(),
		statusBar: status.New(),
		debugLog:  debug.New(),
		guideV:    guide.New(),
	}
	if opts.API != nil {
		m.statusBar.BaseURL = opts.API.BaseURL()
		m.tenantsV = tenants.New(ctx, opts.API)
		m.connsV = connections.New(ctx, opts.API, opts.ConnectionsRefresh)
		m.messagesV = messages.New(ctx, opts.API)
		m.contactsV = contacts.New(ctx, opts.API)
		m.webhooksV = webhooks.New(ctx, opts.API)
	}
	m.connV = connection.New(ctx, nil, opts.QRDir, opts.PollCeiling)

	if m.store != nil {
		t, err := m.store.Load()
		if err != nil {
			m.log.Warn().Err(err).Msg("could not load saved tenant")
		}
		if t != nil {
			m.tenant = t
			m.tenantsV.SetCurrent(t)
			m.statusBar.Tenant = t.Name
			m.tab = TabConnection
		}
	}
	return m
}

// Init checks the API, starts the relay feed and, with a restored tenant,
// starts tracking its connection.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.checkHealth(), healthTick(), m.listenBridge()}
	if m.push != nil {
		cmds = append(cmds, m.push.Listen(m.ctx))
	}
	if m.api != nil {
		cmds = append(cmds, m.tenantsV.Init())
	}
	if m.tenant != nil {
		t := *m.tenant
		cmds = append(cmds, func() tea.Msg { return tenants.SelectedMsg{Tenant: t} })
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.connV.Width = msg.Width
		m.guideV.SetWidth(msg.Width)
		m.guideV.Height = msg.Height - 6
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case healthTickMsg:
		return m, tea.Batch(m.checkHealth(), healthTick())

	case healthMsg:
		if msg.err != nil {
			if m.statusBar.API != status.APIOffline {
				m.debugLog.Addf(debug.KindErr, "API unreachable: %v", msg.err)
			}
			m.statusBar.API = status.APIOffline
		} else {
			m.statusBar.API = status.APIOnline
		}
		return m, nil

	case bridgeMsg:
		// Queued by a reconciler that has since been replaced.
		if msg.gen != m.recGen {
			return m, m.listenBridge()
		}
		next, cmd := m.Update(msg.msg)
		return next, tea.Batch(cmd, next.(Model).listenBridge())

	case connection.ChangedMsg:
		return m.onSessionChanged(msg)

	case connection.ErrorMsg:
		m.debugLog.Add(debug.KindErr, msg.Err.Error())
		var cmd tea.Cmd
		m.connV, cmd = m.connV.Update(msg)
		return m, cmd

	case discoveredMsg:
		if msg.err != nil {
			m.debugLog.Addf(debug.KindErr, "discover: %v", msg.err)
			if api.IsUnauthorized(msg.err) {
				m.connV.Err = "The API rejected this tenant's key. Pick the tenant again."
			}
		}
		return m, nil

	case tenants.SelectedMsg:
		return m.selectTenant(msg.Tenant)

	case tenants.LogoutMsg:
		return m.logout()

	case connections.DeletedMsg:
		m.debugLog.Addf(debug.KindAPI, "connection %s deleted", msg.SessionID)
		var cmds []tea.Cmd
		if m.rec != nil && m.rec.Session().SessionID == msg.SessionID {
			cmds = append(cmds, m.discover())
		}
		return m, tea.Batch(cmds...)

	// Relay feed.
	case push.ConnectedMsg:
		m.statusBar.Feed = status.FeedLive
		m.debugLog.Add(debug.KindPush, "relay connected")
		return m, m.push.ReadLoop(m.ctx)

	case push.DisconnectedMsg:
		if errors.Is(msg.Err, push.ErrUnauthorized) {
			m.statusBar.Feed = status.FeedOff
			m.debugLog.Add(debug.KindErr, "relay rejected the token; feed disabled")
			return m, nil
		}
		m.statusBar.Feed = status.FeedConnecting
		if msg.Err != nil {
			m.debugLog.Addf(debug.KindPush, "relay disconnected: %v", msg.Err)
		}
		return m, m.push.Listen(m.ctx)

	case push.SnapshotMsg:
		m.webhooksV.SetFeed(msg.Events)
		return m, m.push.ReadLoop(m.ctx)

	case push.EventMsg:
		m.webhooksV.AddFeed(msg.Event)
		cmds := []tea.Cmd{m.push.ReadLoop(m.ctx)}
		if msg.Webhook != nil {
			m.debugLog.Addf(debug.KindPush, "%s %s", msg.Webhook.Event, msg.Webhook.SessionID)
		}
		if cmd := m.applyPush(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case push.ClearedMsg:
		m.webhooksV.ClearFeed()
		m.debugLog.Addf(debug.KindPush, "relay cleared %d events", msg.Count)
		return m, m.push.ReadLoop(m.ctx)
	}

	return m.routeToViews(msg)
}

// routeToViews hands view-private messages (load results, ticks, spinner
// frames) to every view; each ignores what it does not own.
func (m Model) routeToViews(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.connV, cmd = m.connV.Update(msg)
	cmds = append(cmds, cmd)
	if m.api != nil {
		m.tenantsV, cmd = m.tenantsV.Update(msg)
		cmds = append(cmds, cmd)
		m.connsV, cmd = m.connsV.Update(msg)
		cmds = append(cmds, cmd)
		m.messagesV, cmd = m.messagesV.Update(msg)
		cmds = append(cmds, cmd)
		m.contactsV, cmd = m.contactsV.Update(msg)
		cmds = append(cmds, cmd)
		m.webhooksV, cmd = m.webhooksV.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}

	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Debug):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.debugLog.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.debugLog.ScrollDown(1)
		case msg.String() == "f":
			m.debugLog.CycleFilter()
		}
		return m, nil
	}

	if m.capturing() {
		return m.keyToView(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil
	case key.Matches(msg, m.keys.Health):
		m.statusBar.API = status.APIChecking
		return m, m.checkHealth()
	case key.Matches(msg, m.keys.NextTab):
		return m.switchTab((m.tab + 1) % tabCount)
	case key.Matches(msg, m.keys.PrevTab):
		return m.switchTab((m.tab - 1 + tabCount) % tabCount)
	}
	for i, b := range []key.Binding{m.keys.Tab1, m.keys.Tab2, m.keys.Tab3, m.keys.Tab4, m.keys.Tab5, m.keys.Tab6, m.keys.Tab7} {
		if key.Matches(msg, b) {
			return m.switchTab(Tab(i))
		}
	}
	return m.keyToView(msg)
}

func (m Model) capturing() bool {
	switch m.tab {
	case TabTenants:
		return m.tenantsV.Capturing()
	case TabConnection:
		return m.connV.Capturing()
	case TabConnections:
		return m.connsV.Capturing()
	case TabMessages:
		return m.messagesV.Capturing()
	case TabContacts:
		return m.contactsV.Capturing()
	case TabWebhooks:
		return m.webhooksV.Capturing()
	}
	return false
}

func (m Model) keyToView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.tab {
	case TabTenants:
		if m.api != nil {
			m.tenantsV, cmd = m.tenantsV.Update(msg)
		}
	case TabConnection:
		m.connV, cmd = m.connV.Update(msg)
	case TabConnections:
		m.connsV, cmd = m.connsV.Update(msg)
	case TabMessages:
		m.messagesV, cmd = m.messagesV.Update(msg)
	case TabContacts:
		m.contactsV, cmd = m.contactsV.Update(msg)
	case TabWebhooks:
		m.webhooksV, cmd = m.webhooksV.Update(msg)
	case TabGuide:
		m.guideV, cmd = m.guideV.Update(msg)
	}
	return m, cmd
}

func (m Model) switchTab(t Tab) (tea.Model, tea.Cmd) {
	if m.tenant == nil && t != TabTenants && t != TabGuide {
		m.debugLog.Add(debug.KindNav, "select a tenant first")
		t = TabTenants
	}
	m.tab = t
	if t == TabContacts && m.api != nil {
		cmd := m.contactsV.Load()
		return m, cmd
	}
	return m, nil
}

func (m Model) selectTenant(t api.Tenant) (tea.Model, tea.Cmd) {
	if m.api == nil {
		return m, nil
	}
	m.stopReconciler()

	m.api.SetAPIKey(t.APIKey)
	if m.store != nil {
		if err := m.store.Save(t); err != nil {
			m.debugLog.Addf(debug.KindErr, "saving tenant: %v", err)
		}
	}
	tc := t
	m.tenant = &tc
	m.tenantsV.SetCurrent(&tc)
	m.statusBar.Tenant = t.Name
	m.statusBar.Connection = reconciler.Disconnected.String()
	m.statusBar.SessionID = ""
	m.debugLog.Addf(debug.KindNav, "tenant %s selected", t.Name)

	m.rec = reconciler.New(m.api, reconciler.Options{
		Interval: m.opts.PollInterval,
		Ceiling:  m.opts.PollCeiling,
		Logger:   m.opts.Logger,
	})
	bridge, gen := m.bridge, m.recGen
	m.rec.OnChange(func(s reconciler.Session, c reconciler.Cause) {
		forward(bridge, bridgeMsg{gen: gen, msg: connection.ChangedMsg{Session: s, Cause: c}})
	})
	m.rec.OnError(func(err error) {
		forward(bridge, bridgeMsg{gen: gen, msg: connection.ErrorMsg{Err: err}})
	})
	m.connV = connection.New(m.ctx, m.rec, m.opts.QRDir, m.opts.PollCeiling)
	m.connV.Width = m.width
	m.contactsV.Reset()
	m.messagesV.SetSession("")

	cmds := []tea.Cmd{
		m.connV.Init(),
		m.discover(),
		m.connsV.Restart(),
		m.webhooksV.SetTenant(t.ID),
	}
	m.tab = TabConnection
	return m, tea.Batch(cmds...)
}

func (m Model) logout() (tea.Model, tea.Cmd) {
	m.stopReconciler()
	if m.store != nil {
		if err := m.store.Clear(); err != nil {
			m.debugLog.Addf(debug.KindErr, "clearing tenant: %v", err)
		}
	}
	if m.api != nil {
		m.api.SetAPIKey("")
	}
	m.debugLog.Add(debug.KindNav, "logged out")
	m.tenant = nil
	m.tenantsV.SetCurrent(nil)
	m.statusBar.Tenant = ""
	m.statusBar.Connection = reconciler.Disconnected.String()
	m.statusBar.SessionID = ""
	m.connV = connection.New(m.ctx, nil, m.opts.QRDir, m.opts.PollCeiling)
	m.contactsV.Reset()
	m.messagesV.SetSession("")
	m.webhooksV.SetTenant("")
	m.tab = TabTenants
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.stopReconciler()
	if m.push != nil {
		m.push.Close()
	}
	m.cancel()
	return m, tea.Quit
}

func (m *Model) stopReconciler() {
	if m.rec == nil {
		return
	}
	m.rec.Teardown()
	m.rec = nil
	m.recGen++
}

func (m Model) onSessionChanged(msg connection.ChangedMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.connV, cmd = m.connV.Update(msg)
	cmds = append(cmds, cmd)

	s := m.connV.Session()
	if m.statusBar.Connection != s.Status.String() {
		m.debugLog.Addf(debug.KindPoll, "%s -> %s (%s)", m.statusBar.Connection, s.Status, msg.Cause)
	}
	m.statusBar.Connection = s.Status.String()
	m.statusBar.SessionID = s.SessionID
	cmds = append(cmds, m.messagesV.SetSession(s.SessionID))
	return m, tea.Batch(cmds...)
}

// applyPush feeds a relay event for the current tenant into the reconciler.
func (m Model) applyPush(msg push.EventMsg) tea.Cmd {
	if m.rec == nil || msg.Status == nil {
		return nil
	}
	if msg.Webhook != nil && msg.Webhook.TenantID != "" && m.tenant != nil && msg.Webhook.TenantID != m.tenant.ID {
		return nil
	}
	rec, ctx, ev := m.rec, m.ctx, *msg.Status
	return func() tea.Msg {
		rec.Apply(ctx, ev)
		return nil
	}
}

func (m Model) discover() tea.Cmd {
	rec, ctx := m.rec, m.ctx
	if rec == nil {
		return nil
	}
	return func() tea.Msg {
		_, err := rec.Discover(ctx)
		return discoveredMsg{err: err}
	}
}

func (m Model) checkHealth() tea.Cmd {
	c, ctx := m.api, m.ctx
	if c == nil {
		return nil
	}
	return func() tea.Msg {
		h, err := c.Health(ctx)
		if err == nil && !h.Success {
			err = fmt.Errorf("health reported status %q", h.Status)
		}
		return healthMsg{err: err}
	}
}

func healthTick() tea.Cmd {
	return tea.Tick(healthInterval, func(time.Time) tea.Msg { return healthTickMsg{} })
}

func (m Model) listenBridge() tea.Cmd {
	ch, ctx := m.bridge, m.ctx
	return func() tea.Msg {
		select {
		case msg := <-ch:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

// forward hands msg to the program without blocking the reconciler. When the
// buffer is full the message is dropped; views re-read the latest session
// on the next change, so nothing is lost but intermediate frames.
func forward(ch chan<- bridgeMsg, msg bridgeMsg) {
	select {
	case ch <- msg:
	default:
	}
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.overlay == OverlayDebug {
		return lipgloss.JoinVertical(lipgloss.Left, m.statusBar.View(), m.debugLog.View(m.width, m.height-3))
	}

	sections := []string{
		m.statusBar.View(),
		m.renderTabs(),
		m.renderBody(),
		theme.StyleDimmed.Render("  1-7/tab:switch  ctrl+d:event log  ctrl+r:check API  q:quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTabs() string {
	var parts []string
	for i := Tab(0); i < tabCount; i++ {
		label := fmt.Sprintf("%d %s", i+1, i)
		if i == TabConnections && m.connsV.Len() > 0 {
			label += fmt.Sprintf(" (%d)", m.connsV.Len())
		}
		switch {
		case i == m.tab:
			parts = append(parts, theme.StyleSelected.Render("["+label+"]"))
		case m.tenant == nil && i != TabTenants && i != TabGuide:
			parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" "+label+" "))
		default:
			parts = append(parts, theme.StyleDimmed.Render(" "+label+" "))
		}
	}
	return " " + strings.Join(parts, " ") + "\n"
}

func (m Model) renderBody() string {
	var body string
	switch m.tab {
	case TabTenants:
		if m.api == nil {
			body = theme.StyleDimmed.Render("API client not configured.")
		} else {
			body = m.tenantsV.View()
		}
	case TabConnection:
		body = m.connV.View()
	case TabConnections:
		body = m.connsV.View()
	case TabMessages:
		body = m.messagesV.View()
	case TabContacts:
		body = m.contactsV.View()
	case TabWebhooks:
		body = m.webhooksV.View()
	case TabGuide:
		body = m.guideV.View()
	}
	return lipgloss.NewStyle().Padding(0, 2).Render(body)
}
