package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shini4i/netmon/internal/reachability"
	"github.com/shini4i/netmon/internal/traffic"
)

const (
	defaultRefresh = time.Second
	requestTimeout = 2 * time.Second
	maxBarWidth    = 50
)

type tickMsg time.Time

type snapshotMsg struct {
	snap Snapshot
	err  error
}

type toggledMsg struct {
	err error
}

type speedRow struct {
	label string
	class traffic.TrafficType
}

var speedRows = []speedRow{
	{"WWAN", traffic.WWAN},
	{"Wi-Fi", traffic.WiFi},
	{"AWDL", traffic.AWDL},
	{"Total", traffic.All},
}

// Top is the live speed dashboard.
type Top struct {
	source  Source
	refresh time.Duration

	snap   Snapshot
	err    error
	loaded bool
	// peak is the highest class speed seen, used to scale the bars.
	peak uint64

	width  int
	height int
	bars   []progress.Model
}

// NewTop creates a dashboard reading from source. A zero refresh uses one
// second.
func NewTop(source Source, refresh time.Duration) *Top {
	if refresh <= 0 {
		refresh = defaultRefresh
	}
	bars := make([]progress.Model, len(speedRows))
	for i := range bars {
		bars[i] = progress.New(progress.WithDefaultGradient())
		bars[i].Width = 30
	}
	return &Top{
		source:  source,
		refresh: refresh,
		bars:    bars,
	}
}

// Init implements tea.Model.
func (m *Top) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

func (m *Top) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Top) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		snap, err := m.source.Snapshot(ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m *Top) toggle() tea.Cmd {
	ctrl, ok := m.source.(Controller)
	if !ok {
		return nil
	}
	on := !m.snap.Monitoring
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return toggledMsg{err: ctrl.SetMonitoring(ctx, on)}
	}
}

// Update implements tea.Model.
func (m *Top) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		barWidth := min(maxBarWidth, m.width-40)
		if barWidth < 10 {
			barWidth = 10
		}
		for i := range m.bars {
			m.bars[i].Width = barWidth
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "s":
			return m, m.toggle()
		case "r":
			m.peak = 0
			return m, m.fetch()
		}

	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())

	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil {
			m.snap = msg.snap
			m.loaded = true
			for _, row := range speedRows {
				m.peak = max(m.peak, msg.snap.Speeds.Class(row.class))
			}
		}

	case toggledMsg:
		m.err = msg.err
		return m, m.fetch()
	}

	return m, nil
}

// View implements tea.Model.
func (m *Top) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Width(m.width).Render("netmon")

	var body string
	if m.loaded {
		body = baseStyle.Width(max(m.width-4, 0)).Render(
			lipgloss.JoinVertical(lipgloss.Left, m.renderSpeeds(), "", m.renderStatus()),
		)
	} else {
		body = "Waiting for data..."
	}

	lines := []string{title, "", body}
	if m.err != nil {
		lines = append(lines, "", errorStyle.Render("Error: "+m.err.Error()))
	}
	lines = append(lines, "", helpStyle.Render("s: start/stop monitoring • r: reset scale • q: quit"))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m *Top) renderSpeeds() string {
	content := []string{headerStyle.Render("Speeds"), ""}
	for i, row := range speedRows {
		speed := m.snap.Speeds.Class(row.class)
		content = append(content, fmt.Sprintf("%s %s %s",
			labelStyle.Render(row.label+":"),
			m.bars[i].ViewAs(m.fraction(speed)),
			valueStyle.Render(traffic.FormatRate(speed)),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, content...)
}

func (m *Top) fraction(speed uint64) float64 {
	if m.peak == 0 {
		return 0
	}
	return float64(speed) / float64(m.peak)
}

func (m *Top) renderStatus() string {
	monitoring := errorStyle.Render("stopped")
	if m.snap.Monitoring {
		monitoring = successStyle.Render("running")
	}

	content := []string{
		headerStyle.Render("Status"),
		"",
		fmt.Sprintf("%s %s", labelStyle.Render("Monitoring:"), monitoring),
		fmt.Sprintf("%s %s", labelStyle.Render("Interval:"), valueStyle.Render(traffic.FormatInterval(m.snap.Interval))),
		fmt.Sprintf("%s %s", labelStyle.Render("Reachability:"),
			reachabilityStyle(m.snap.Reachability).Render(ReachabilityText(m.snap.Reachability))),
	}

	if c := m.snap.Cellular; c != nil {
		tech := c.AccessTech.String()
		if gen := c.AccessTech.Generation(); gen != "" {
			tech = fmt.Sprintf("%s (%s)", gen, strings.ToUpper(tech))
		}
		operator := c.Operator.String()
		if c.OperatorName != "" {
			operator = c.OperatorName
		}
		content = append(content,
			fmt.Sprintf("%s %s", labelStyle.Render("Operator:"), valueStyle.Render(operator)),
			fmt.Sprintf("%s %s", labelStyle.Render("Radio:"), valueStyle.Render(tech)),
			fmt.Sprintf("%s %s", labelStyle.Render("Signal:"), valueStyle.Render(fmt.Sprintf("%d%%", c.SignalQuality))),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left, content...)
}

// ReachabilityText describes a reachability status for people.
func ReachabilityText(s reachability.Status) string {
	switch s {
	case reachability.StatusNotReachable:
		return "Not reachable"
	case reachability.StatusViaWWAN:
		return "Reachable via cellular"
	case reachability.StatusViaWiFi:
		return "Reachable via Wi-Fi"
	default:
		return "Unknown"
	}
}
