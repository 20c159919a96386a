// Package guide renders the webhook tunnelling guide with glamour.
package guide

import (
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/marcostaira/app-whatsapp/internal/theme"
)

//go:embed docs/*.md
var docs embed.FS

// Page is one guide section.
type Page struct {
	Title    string
	Markdown string
}

// Pages returns the embedded guide sections in order.
func Pages() []Page {
	entries, err := fs.ReadDir(docs, "docs")
	if err != nil {
		panic(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	pages := make([]Page, 0, len(names))
	for _, n := range names {
		data, err := docs.ReadFile(path.Join("docs", n))
		if err != nil {
			panic(err)
		}
		md := string(data)
		title, _, _ := strings.Cut(md, "\n")
		pages = append(pages, Page{Title: strings.TrimPrefix(title, "# "), Markdown: md})
	}
	return pages
}

var keys = struct {
	Next, Prev, Down, Up key.Binding
}{
	Next: key.NewBinding(key.WithKeys("l", "right", "]")),
	Prev: key.NewBinding(key.WithKeys("h", "left", "[")),
	Down: key.NewBinding(key.WithKeys("j", "down")),
	Up:   key.NewBinding(key.WithKeys("k", "up")),
}

type Model struct {
	pages    []Page
	page     int
	offset   int
	width    int
	rendered map[int]string
	Height   int
}

func New() Model {
	return Model{pages: Pages(), rendered: map[int]string{}, width: 80}
}

// SetWidth changes the wrap width and drops rendered pages.
func (m *Model) SetWidth(w int) {
	if w < 40 {
		w = 40
	}
	if w == m.width {
		return
	}
	m.width = w
	m.rendered = map[int]string{}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(k, keys.Next):
		m.page = (m.page + 1) % len(m.pages)
		m.offset = 0
	case key.Matches(k, keys.Prev):
		m.page = (m.page - 1 + len(m.pages)) % len(m.pages)
		m.offset = 0
	case key.Matches(k, keys.Down):
		m.offset++
	case key.Matches(k, keys.Up):
		if m.offset > 0 {
			m.offset--
		}
	}
	return m, nil
}

func (m *Model) render() string {
	if out, ok := m.rendered[m.page]; ok {
		return out
	}
	md := m.pages[m.page].Markdown
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(m.width-4),
	)
	out := md
	if err == nil {
		if s, err := r.Render(md); err == nil {
			out = s
		}
	}
	m.rendered[m.page] = out
	return out
}

func (m Model) View() string {
	var tabs []string
	for i, p := range m.pages {
		if i == m.page {
			tabs = append(tabs, theme.StyleSelected.Render("["+p.Title+"]"))
		} else {
			tabs = append(tabs, theme.StyleDimmed.Render(" "+p.Title+" "))
		}
	}

	body := strings.Split(m.render(), "\n")
	off := m.offset
	if off > len(body)-1 {
		off = max(len(body)-1, 0)
	}
	body = body[off:]
	if m.Height > 4 && len(body) > m.Height-4 {
		body = body[:m.Height-4]
	}

	return strings.Join(tabs, " ") + "\n" +
		strings.Join(body, "\n") + "\n" +
		theme.StyleDimmed.Render("h/l:section  j/k:scroll")
}
