package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xiy/webrecall/internal/store"
	"github.com/xiy/webrecall/pkg/types"
)

type tickMsg time.Time
type dashboardMsg struct {
	stats    store.Stats
	reqLogs  []store.BridgeRequestLog
	memories []types.Memory
	searches []store.CachedSearch
	err      error
	duration time.Duration
}

type dashboardStore interface {
	Stats(ctx context.Context, userID string) (store.Stats, error)
	RecentBridgeRequestLogs(ctx context.Context, limit int) ([]store.BridgeRequestLog, error)
	RecentMemories(ctx context.Context, userID string, limit int) ([]types.Memory, error)
	RecentSearches(ctx context.Context, userID string, limit int) ([]store.CachedSearch, error)
}

type model struct {
	ctx           context.Context
	st            dashboardStore
	userID        string
	stats         store.Stats
	reqLogs       []store.BridgeRequestLog
	memories      []types.Memory
	searches      []store.CachedSearch
	lastErr       error
	lastTick      time.Time
	logLines      []string
	maxLogs       int
	requestsLimit int
	memoriesLimit int
	width         int
	height        int
}

// Run starts a lightweight local admin dashboard.
func Run(ctx context.Context, st dashboardStore, userID string) error {
	m := model{
		ctx:           ctx,
		st:            st,
		userID:        userID,
		maxLogs:       10,
		requestsLimit: 8,
		memoriesLimit: 8,
	}
	m = m.appendLog("admin UI started")
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchDashboardCmd(m.ctx, m.st, m.userID, m.requestsLimit, m.memoriesLimit), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m = m.appendLog("received quit signal")
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.lastTick = time.Time(msg)
		return m, tea.Batch(fetchDashboardCmd(m.ctx, m.st, m.userID, m.requestsLimit, m.memoriesLimit), tickCmd())
	case dashboardMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.stats = msg.stats
			m.reqLogs = msg.reqLogs
			m.memories = msg.memories
			m.searches = msg.searches
			m = m.appendLog(fmt.Sprintf(
				"refresh ok total=%d auto=%d sel=%d req=%d mem=%d (%s)",
				msg.stats.Total,
				msg.stats.AutoSaves,
				msg.stats.SelectionSaves,
				len(msg.reqLogs),
				len(msg.memories),
				formatDuration(msg.duration),
			))
		} else {
			m = m.appendLog(fmt.Sprintf("refresh error: %v", msg.err))
		}
	}
	return m, nil
}

func (m model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Render("webrecall admin")
	meta := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("q to quit • refresh every 2s")

	statsBody := m.renderStats()
	logBody := "(no log events yet)"
	if len(m.logLines) > 0 {
		logBody = strings.Join(m.logLines, "\n")
	}

	paneWidth := 54
	if m.width > 0 {
		paneWidth = max(38, (m.width-3)/2)
	}
	paneHeight := 9
	if m.height > 0 {
		paneHeight = max(8, (m.height-8)/2)
	}

	topRow := joinColumns(
		renderPane("Stats", statsBody, paneWidth, paneHeight),
		renderPane("General Logs", logBody, paneWidth, paneHeight),
	)
	middleRow := joinColumns(
		renderPane("Capture Requests", formatRequestPane(m.reqLogs), paneWidth, paneHeight),
		renderPane("Recent Memories", formatRecentMemoriesPane(m.memories), paneWidth, paneHeight),
	)
	bottomRow := renderPane("Recent Searches", formatSearchesPane(m.searches), paneWidth*2+1, paneHeight)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		meta,
		"",
		topRow,
		middleRow,
		bottomRow,
	)
}

func (m model) renderStats() string {
	lastSaved := "-"
	if !m.stats.LastSavedAt.IsZero() {
		lastSaved = m.stats.LastSavedAt.UTC().Format(time.RFC3339)
	}
	body := fmt.Sprintf(
		"Total memories:  %d\nAuto saves:      %d\nSelection saves: %d\nCached searches: %d\nLast saved:      %s\nLast refresh:    %s",
		m.stats.Total,
		m.stats.AutoSaves,
		m.stats.SelectionSaves,
		m.stats.CachedSearches,
		lastSaved,
		formatTime(m.lastTick),
	)
	if m.lastErr != nil {
		body += "\n\nLast error: " + truncateText(compactWhitespace(m.lastErr.Error()), 120)
	}
	return body
}

func fetchDashboardCmd(ctx context.Context, st dashboardStore, userID string, reqLimit, memLimit int) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		s, err := st.Stats(ctx, userID)
		if err != nil {
			return dashboardMsg{err: err, duration: time.Since(start)}
		}

		reqLogs, err := st.RecentBridgeRequestLogs(ctx, reqLimit)
		if err != nil {
			return dashboardMsg{stats: s, err: err, duration: time.Since(start)}
		}

		memories, err := st.RecentMemories(ctx, userID, memLimit)
		if err != nil {
			return dashboardMsg{stats: s, reqLogs: reqLogs, err: err, duration: time.Since(start)}
		}

		searches, err := st.RecentSearches(ctx, userID, memLimit)
		if err != nil {
			return dashboardMsg{stats: s, reqLogs: reqLogs, memories: memories, err: err, duration: time.Since(start)}
		}

		return dashboardMsg{
			stats:    s,
			reqLogs:  reqLogs,
			memories: memories,
			searches: searches,
			duration: time.Since(start),
		}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func (m model) appendLog(line string) model {
	if strings.TrimSpace(line) == "" {
		return m
	}
	entry := fmt.Sprintf("[%s] %s", time.Now().UTC().Format("15:04:05"), line)
	m.logLines = append(m.logLines, entry)
	if m.maxLogs <= 0 {
		m.maxLogs = 10
	}
	if len(m.logLines) > m.maxLogs {
		m.logLines = m.logLines[len(m.logLines)-m.maxLogs:]
	}
	return m
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(10 * time.Millisecond).String()
}

func renderPane(title, body string, width, height int) string {
	style := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2)
	if width > 0 {
		style = style.Width(width)
	}
	if height > 0 {
		style = style.Height(height)
	}
	return style.Render(title + "\n\n" + body)
}

func joinColumns(left, right string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)
}

func formatRequestPane(rows []store.BridgeRequestLog) string {
	if len(rows) == 0 {
		return "(no capture requests yet)"
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		line := fmt.Sprintf(
			"[%s] %-9s %s",
			formatClock(row.CreatedAt),
			row.Outcome,
			truncateText(compactWhitespace(row.URL), 44),
		)
		if strings.TrimSpace(row.Reason) != "" {
			line += " " + truncateText(compactWhitespace(row.Reason), 40)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatRecentMemoriesPane(rows []types.Memory) string {
	if len(rows) == 0 {
		return "(no memories yet)"
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		kind := "A"
		if row.SaveType == types.SaveTypeSelection {
			kind = "S"
		}
		title := row.Title
		if strings.TrimSpace(title) == "" {
			title = row.URL
		}
		line := fmt.Sprintf(
			"[%s] %s %s :: %s",
			formatClock(row.CreatedAt),
			kind,
			truncateText(compactWhitespace(title), 28),
			truncateText(compactWhitespace(row.Summary), 52),
		)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatSearchesPane(rows []store.CachedSearch) string {
	if len(rows) == 0 {
		return "(no cached searches yet)"
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, fmt.Sprintf(
			"[%s] %s",
			formatClock(row.CreatedAt),
			truncateText(compactWhitespace(row.NormalizedQuery), 88),
		))
	}
	return strings.Join(lines, "\n")
}

func formatClock(t time.Time) string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.UTC().Format("15:04:05")
}

func truncateText(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}

func compactWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
