package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/juankaspain/BotV2-sub004/internal/config"
	"github.com/juankaspain/BotV2-sub004/internal/section"
	"github.com/juankaspain/BotV2-sub004/internal/util"
	"github.com/juankaspain/BotV2-sub004/pkg/dashboard"
)

// Styles.
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
	tabStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tabSelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	colHdrStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	symbolStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	gainStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	sourceStyles = map[string]lipgloss.Style{
		"cache":    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		"prefetch": lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		"network":  lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	}
)

const stateKey = "console"

// consoleState is the UI state persisted across sessions.
type consoleState struct {
	Section string `json:"section"`
	Offset  int    `json:"offset"`
}

// Messages.
type tickMsg time.Time

type sectionMsg struct {
	key string
	sec *dashboard.Section
	err error
}

type windowMsg struct {
	key string
	win *dashboard.Window
	err error
}

// windowWantedMsg arrives from the scroll debouncer once a burst of scroll
// keys settles.
type windowWantedMsg struct{ offset int }

// refreshWantedMsg arrives from the refresh throttle; holding "r" maps to
// at most one forced reload per window.
type refreshWantedMsg struct{ key string }

type stateLoadedMsg struct {
	st    consoleState
	found bool
	err   error
}

type metricsMsg struct {
	m   *dashboard.Metrics
	err error
}

func tickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// listShaped reports whether a section is scrolled through the server's
// window endpoint rather than rendered whole.
func listShaped(key string) bool {
	switch key {
	case section.KeyPositions, section.KeyOrders, section.KeyNews:
		return true
	}
	return section.ParseBarsKey(key) != ""
}

// Model.
type model struct {
	client  *dashboard.Client
	logger  *slog.Logger
	keys    []string
	idx     int
	deb     *util.Debounced[int, struct{}]
	refresh *util.Debounced[string, struct{}]

	viewport      viewport.Model
	ready         bool
	width, height int

	// Current section.
	sec     *dashboard.Section
	win     *dashboard.Window
	offset  int // window scroll offset, in rows
	loading bool
	lastErr error

	// Metrics footer.
	metrics     *dashboard.Metrics
	showMetrics bool
}

func initialModel(c *dashboard.Client, logger *slog.Logger,
	deb *util.Debounced[int, struct{}], refresh *util.Debounced[string, struct{}]) model {
	return model{
		client:  c,
		logger:  logger,
		keys:    section.Keys(),
		deb:     deb,
		refresh: refresh,
	}
}

func (m model) current() string { return m.keys[m.idx] }

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.loadStateCmd())
}

// ---- commands ----

func (m model) loadStateCmd() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var st consoleState
		found, err := c.GetState(ctx, stateKey, &st)
		return stateLoadedMsg{st: st, found: found, err: err}
	}
}

func (m model) saveStateCmd() tea.Cmd {
	c := m.client
	st := consoleState{Section: m.current(), Offset: m.offset}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Best-effort; state loss is invisible until the next restart.
		_ = c.PutState(ctx, stateKey, st)
		return nil
	}
}

func (m model) loadSectionCmd(key string) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sec, err := c.GetSection(ctx, key)
		return sectionMsg{key: key, sec: sec, err: err}
	}
}

func (m model) loadWindowCmd(key string, offset, height int) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		win, err := c.GetWindow(ctx, key, offset, height, 1)
		return windowMsg{key: key, win: win, err: err}
	}
}

func (m model) loadMetricsCmd() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mtr, err := c.GetMetrics(ctx)
		return metricsMsg{m: mtr, err: err}
	}
}

func (m model) invalidateCmd(key string) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.InvalidateSection(ctx, key); err != nil {
			return sectionMsg{key: key, err: err}
		}
		sec, err := c.GetSection(ctx, key)
		return sectionMsg{key: key, sec: sec, err: err}
	}
}

// ---- update ----

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "1", "2", "3", "4", "5":
			idx := int(msg.String()[0] - '1')
			if idx >= len(m.keys) || idx == m.idx {
				return m, nil
			}
			return m.switchSection(idx)

		case "tab", "right":
			return m.switchSection((m.idx + 1) % len(m.keys))

		case "shift+tab", "left":
			return m.switchSection((m.idx + len(m.keys) - 1) % len(m.keys))

		case "r":
			m.refresh.Call(m.current())
			return m, nil

		case "m":
			m.showMetrics = !m.showMetrics
			if m.showMetrics {
				return m, m.loadMetricsCmd()
			}
			return m, nil

		case "j", "down":
			if listShaped(m.current()) {
				return m.scrollBy(1), nil
			}
		case "k", "up":
			if listShaped(m.current()) {
				return m.scrollBy(-1), nil
			}
		case "pgdown":
			if listShaped(m.current()) {
				return m.scrollBy(m.contentHeight()), nil
			}
		case "pgup":
			if listShaped(m.current()) {
				return m.scrollBy(-m.contentHeight()), nil
			}
		case "g", "home":
			if listShaped(m.current()) {
				return m.scrollTo(0), nil
			}
		case "G", "end":
			if listShaped(m.current()) && m.win != nil {
				return m.scrollTo(m.win.Total), nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.contentHeight()
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.setContent()
		if listShaped(m.current()) {
			return m, m.loadWindowCmd(m.current(), m.offset, vpHeight)
		}
		return m, nil

	case tickMsg:
		// Periodic refresh; served from cache unless the TTL lapsed.
		return m, tea.Batch(tickCmd(), m.loadSectionCmd(m.current()))

	case stateLoadedMsg:
		if msg.err != nil {
			m.logger.Warn("loading console state", "error", msg.err)
		}
		if msg.found && section.Known(msg.st.Section) {
			for i, k := range m.keys {
				if k == msg.st.Section {
					m.idx = i
					m.offset = msg.st.Offset
					break
				}
			}
		}
		m.loading = true
		cmds := []tea.Cmd{m.loadSectionCmd(m.current())}
		if listShaped(m.current()) {
			cmds = append(cmds, m.loadWindowCmd(m.current(), m.offset, m.contentHeight()))
		}
		return m, tea.Batch(cmds...)

	case sectionMsg:
		if msg.key != m.current() {
			return m, nil // stale; user already moved on
		}
		m.loading = false
		if msg.err != nil {
			if dashboard.IsBusy(msg.err) {
				m.logger.Debug("load dropped, server busy", "key", msg.key)
				return m, nil
			}
			m.lastErr = msg.err
			m.logger.Warn("section load failed", "key", msg.key, "error", msg.err)
			m.setContent()
			return m, nil
		}
		m.lastErr = nil
		m.sec = msg.sec
		m.setContent()
		if listShaped(msg.key) && m.win == nil {
			return m, m.loadWindowCmd(msg.key, m.offset, m.contentHeight())
		}
		return m, nil

	case windowMsg:
		if msg.key != m.current() {
			return m, nil
		}
		if msg.err != nil {
			if !dashboard.IsBusy(msg.err) {
				m.lastErr = msg.err
				m.logger.Warn("window load failed", "key", msg.key, "error", msg.err)
			}
			return m, nil
		}
		m.lastErr = nil
		m.win = msg.win
		m.setContent()
		return m, nil

	case windowWantedMsg:
		if !listShaped(m.current()) {
			return m, nil
		}
		return m, m.loadWindowCmd(m.current(), msg.offset, m.contentHeight())

	case refreshWantedMsg:
		if msg.key != m.current() {
			return m, nil
		}
		m.loading = true
		m.win = nil
		return m, m.invalidateCmd(msg.key)

	case metricsMsg:
		if msg.err != nil {
			m.logger.Warn("metrics load failed", "error", msg.err)
			return m, nil
		}
		m.metrics = msg.m
		return m, nil
	}

	if m.ready && !listShaped(m.current()) {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m model) switchSection(idx int) (tea.Model, tea.Cmd) {
	m.idx = idx
	m.offset = 0
	m.sec = nil
	m.win = nil
	m.lastErr = nil
	m.loading = true
	m.setContent()

	cmds := []tea.Cmd{m.loadSectionCmd(m.current()), m.saveStateCmd()}
	if listShaped(m.current()) {
		cmds = append(cmds, m.loadWindowCmd(m.current(), 0, m.contentHeight()))
	}
	return m, tea.Batch(cmds...)
}

// scrollBy moves the window offset and pings the scroll debouncer; the
// actual refetch happens once the key burst settles.
func (m model) scrollBy(delta int) model {
	return m.scrollTo(m.offset + delta)
}

func (m model) scrollTo(offset int) model {
	if !listShaped(m.current()) {
		return m
	}
	if m.win != nil {
		max := m.win.Total - m.contentHeight()
		if max < 0 {
			max = 0
		}
		if offset > max {
			offset = max
		}
	}
	if offset < 0 {
		offset = 0
	}
	if offset == m.offset {
		return m
	}
	m.offset = offset
	m.setContent()
	m.deb.Call(offset)
	return m
}

func (m model) contentHeight() int {
	h := m.height - 2 // header + footer
	if m.showMetrics {
		h--
	}
	if h < 1 {
		h = 1
	}
	return h
}

// ---- view ----

func (m *model) setContent() {
	if !m.ready {
		return
	}
	m.viewport.Height = m.contentHeight()
	m.viewport.SetContent(m.renderContent())
}

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if m.showMetrics {
		b.WriteString(m.renderMetricsBar())
		b.WriteString("\n")
	}
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m model) renderHeader() string {
	var tabs []string
	for i, k := range m.keys {
		label := fmt.Sprintf(" %d %s ", i+1, k)
		if i == m.idx {
			tabs = append(tabs, tabSelStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}

	status := ""
	switch {
	case m.loading:
		status = " loading..."
	case m.sec != nil:
		style, ok := sourceStyles[m.sec.Source]
		if !ok {
			style = dimStyle
		}
		status = fmt.Sprintf(" %s %dms", style.Render(m.sec.Source), m.sec.ElapsedMs)
	}

	left := strings.Join(tabs, "")
	return headerStyle.Render(padOrTrunc(left+status, m.width))
}

func (m model) renderFooter() string {
	help := " q quit  1-5/tab section  j/k scroll  pgup/pgdn page  r refresh  m metrics"
	pos := ""
	if m.win != nil && listShaped(m.current()) {
		pos = fmt.Sprintf("%d-%d/%d ", m.offset+1, m.offset+m.contentHeight(), m.win.Total)
	}
	gap := m.width - len(help) - len(pos)
	if gap < 0 {
		gap = 0
	}
	return footerStyle.Render(padOrTrunc(help+strings.Repeat(" ", gap)+pos, m.width))
}

func (m model) renderMetricsBar() string {
	if m.metrics == nil {
		return dimStyle.Render(padOrTrunc(" metrics: loading...", m.width))
	}
	c := m.metrics.Cache
	total := c.Hits + c.Misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.Hits) / float64(total) * 100
	}
	f := m.metrics.Perf.Frames
	text := fmt.Sprintf(" cache %d/%d  hit %.0f%%  evict %d  frames %d avg %s slow %d",
		c.Size, c.Capacity, hitRate, c.Evictions, f.Samples, f.Avg.Round(time.Microsecond), f.SlowFrames)
	return dimStyle.Render(padOrTrunc(text, m.width))
}

func (m model) renderContent() string {
	if m.lastErr != nil {
		return lossStyle.Render("  " + m.lastErr.Error())
	}

	key := m.current()
	if listShaped(key) {
		return m.renderWindowed(key)
	}
	if m.sec == nil {
		return dimStyle.Render("  loading...")
	}

	switch key {
	case section.KeyAccount:
		return renderAccount(m.sec.Data)
	case section.KeyWatchlist:
		return renderWatchlist(m.sec.Data)
	}
	return dimStyle.Render("  (no renderer)")
}

// renderWindowed shows the server-materialized rows for the current scroll
// offset; rows outside the fetched window render as blanks until the
// debounced refetch lands.
func (m model) renderWindowed(key string) string {
	var b strings.Builder
	b.WriteString(colHdrStyle.Render(columnHeader(key)))
	b.WriteString("\n")

	if m.win == nil {
		b.WriteString(dimStyle.Render("  loading..."))
		return b.String()
	}

	rows := make(map[int]string, len(m.win.Rows))
	for _, r := range m.win.Rows {
		rows[r.Index] = r.Markup
	}

	height := m.contentHeight() - 1
	for i := m.offset; i < m.offset+height && i < m.win.Total; i++ {
		markup, ok := rows[i]
		if !ok {
			b.WriteString("\n")
			continue
		}
		b.WriteString(formatRow(key, markup))
		b.WriteString("\n")
	}
	if m.win.Total == 0 {
		b.WriteString(dimStyle.Render("  (empty)"))
	}
	return b.String()
}

// ---- section formatting ----

func columnHeader(key string) string {
	switch key {
	case section.KeyPositions:
		return fmt.Sprintf(" %-8s %10s %10s %12s %12s", "SYMBOL", "QTY", "ENTRY", "VALUE", "P/L")
	case section.KeyOrders:
		return fmt.Sprintf(" %-8s %-5s %-8s %8s %-10s %s", "SYMBOL", "SIDE", "TYPE", "QTY", "STATUS", "SUBMITTED")
	case section.KeyNews:
		return fmt.Sprintf(" %-6s %s", "TIME", "HEADLINE")
	}
	if section.ParseBarsKey(key) != "" {
		return fmt.Sprintf(" %-12s %9s %9s %9s %9s %12s", "DATE", "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME")
	}
	return ""
}

func formatRow(key, markup string) string {
	raw := []byte(markup)
	switch key {
	case section.KeyPositions:
		var p section.PositionRow
		if json.Unmarshal(raw, &p) != nil {
			return dimStyle.Render(" ?")
		}
		plStyle := gainStyle
		if p.UnrealizedPL < 0 {
			plStyle = lossStyle
		}
		return fmt.Sprintf(" %s %10.2f %10.2f %12.2f %s",
			symbolStyle.Render(fmt.Sprintf("%-8s", p.Symbol)),
			p.Qty, p.AvgEntry, p.MarketValue,
			plStyle.Render(fmt.Sprintf("%12.2f", p.UnrealizedPL)))
	case section.KeyOrders:
		var o section.OrderRow
		if json.Unmarshal(raw, &o) != nil {
			return dimStyle.Render(" ?")
		}
		sideStyle := gainStyle
		if o.Side == "sell" {
			sideStyle = lossStyle
		}
		return fmt.Sprintf(" %s %s %-8s %8.2f %-10s %s",
			symbolStyle.Render(fmt.Sprintf("%-8s", o.Symbol)),
			sideStyle.Render(fmt.Sprintf("%-5s", o.Side)),
			o.Type, o.Qty, o.Status,
			dimStyle.Render(o.SubmittedAt.Local().Format("01-02 15:04")))
	case section.KeyNews:
		var n section.NewsItem
		if json.Unmarshal(raw, &n) != nil {
			return dimStyle.Render(" ?")
		}
		return fmt.Sprintf(" %s %s",
			dimStyle.Render(n.Time.Local().Format("15:04")), n.Headline)
	}
	if section.ParseBarsKey(key) != "" {
		var bar section.BarRow
		if json.Unmarshal(raw, &bar) != nil {
			return dimStyle.Render(" ?")
		}
		closeStyle := gainStyle
		if bar.Close < bar.Open {
			closeStyle = lossStyle
		}
		return fmt.Sprintf(" %-12s %9.2f %9.2f %9.2f %s %12d",
			bar.Time.Format("2006-01-02"), bar.Open, bar.High, bar.Low,
			closeStyle.Render(fmt.Sprintf("%9.2f", bar.Close)), bar.Volume)
	}
	return markup
}

func renderAccount(data json.RawMessage) string {
	var a section.AccountSummary
	if json.Unmarshal(data, &a) != nil {
		return dimStyle.Render("  (unreadable account payload)")
	}
	var b strings.Builder
	line := func(label string, value string) {
		b.WriteString(fmt.Sprintf("  %s %s\n", colHdrStyle.Render(fmt.Sprintf("%-14s", label)), value))
	}
	line("status", a.Status)
	line("currency", a.Currency)
	line("equity", fmt.Sprintf("%.2f", a.Equity))
	line("cash", fmt.Sprintf("%.2f", a.Cash))
	line("buying power", fmt.Sprintf("%.2f", a.BuyingPower))
	return b.String()
}

func renderWatchlist(data json.RawMessage) string {
	var wl section.WatchlistPayload
	if json.Unmarshal(data, &wl) != nil {
		return dimStyle.Render("  (unreadable watchlist payload)")
	}
	if len(wl.Symbols) == 0 {
		return dimStyle.Render("  (empty watchlist)")
	}
	var b strings.Builder
	for _, s := range wl.Symbols {
		b.WriteString("  ")
		b.WriteString(symbolStyle.Render(s))
		b.WriteString("\n")
	}
	return b.String()
}

// padOrTrunc pads s with spaces to width, or truncates if longer.
func padOrTrunc(s string, width int) string {
	n := lipgloss.Width(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

func main() {
	cfgPath := "config/dashboard.yaml"
	if p := os.Getenv("DASHBOARD_CONFIG"); p != "" {
		cfgPath = p
	}

	var cfg *config.Config
	if _, err := os.Stat(cfgPath); err == nil {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	logPath := fmt.Sprintf("/tmp/dashboard-console-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelInfo}))

	client := dashboard.NewClient(cfg.Console.ServerURL)
	logger.Info("console starting", "server", cfg.Console.ServerURL)

	// Scroll keys repeat fast; coalesce window refetches until the burst
	// settles. The program pointer is bound after construction.
	var p *tea.Program
	deb := util.Debounce(func(offset int) struct{} {
		if p != nil {
			p.Send(windowWantedMsg{offset: offset})
		}
		return struct{}{}
	}, cfg.Perf.RefreshDebounce(), util.DebounceOptions{MaxWait: time.Second})

	refresh := util.Throttle(func(key string) struct{} {
		if p != nil {
			p.Send(refreshWantedMsg{key: key})
		}
		return struct{}{}
	}, 2*time.Second, util.DebounceOptions{Leading: true})

	p = tea.NewProgram(
		initialModel(client, logger, deb, refresh),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	deb.Cancel()
	refresh.Cancel()
}
