// Package statsui provides the Bubble Tea report viewer.
package statsui

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/keytrace/internal/model"
	"github.com/verte-zerg/keytrace/internal/stats"
)

const (
	tabSummary = iota
	tabHistogram
	tabEvolution
	tabTypingRate
	tabWords
)

const (
	plotHeight = 10
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Model implements the Bubble Tea report viewer. It pages through one or
// more session reports.
type Model struct {
	reports []model.Report
	current int

	tabs      []string
	activeTab int
	viewports []viewport.Model
	wordTable table.Model

	width  int
	height int
}

// NewModel constructs a viewer over reports.
func NewModel(reports []model.Report) *Model {
	m := &Model{
		reports: reports,
		tabs:    []string{"Summary", "Histogram", "Evolution", "Typing Rate", "Words"},
	}
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
	m.wordTable = buildWordTable(nil, 0, 1)
	m.renderTabContents()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			return m, tea.Quit
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "[", "p":
			m.moveReport(-1)
			return m, tea.ClearScreen
		case "]", "n":
			m.moveReport(1)
			return m, tea.ClearScreen
		case "g", "home":
			if m.activeTab == tabWords {
				m.wordTable.GotoTop()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabWords {
				m.wordTable.GotoBottom()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		default:
			if m.activeTab == tabWords {
				var cmd tea.Cmd
				m.wordTable, cmd = m.wordTable.Update(msg)
				return m, cmd
			}
			vp := m.viewports[m.activeTab]
			var cmd tea.Cmd
			vp, cmd = vp.Update(msg)
			m.viewports[m.activeTab] = vp
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderHelp(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) report() (model.Report, bool) {
	if len(m.reports) == 0 {
		return model.Report{}, false
	}
	return m.reports[m.current], true
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	if tabsHeight < 1 {
		tabsHeight = 1
	}
	headerHeight = tabsHeight + 1
	footerHeight = 1
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, vpHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = vpHeight
	}
	m.wordTable.SetWidth(m.width)
	m.wordTable.SetHeight(m.adjustTableHeight(vpHeight))
}

func (m *Model) moveTab(delta int) {
	m.activeTab = wrapIndex(m.activeTab+delta, len(m.tabs))
	if m.activeTab == tabWords {
		m.wordTable.Focus()
	} else {
		m.wordTable.Blur()
	}
}

func (m *Model) moveReport(delta int) {
	if len(m.reports) < 2 {
		return
	}
	m.current = wrapIndex(m.current+delta, len(m.reports))
	for i := range m.viewports {
		m.viewports[i].GotoTop()
	}
	m.renderTabContents()
}

func wrapIndex(idx, count int) int {
	if count == 0 {
		return 0
	}
	if idx < 0 {
		return count - 1
	}
	if idx >= count {
		return 0
	}
	return idx
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := padLines(m.renderTabs(), m.width)
	return tabs + "\n" + padLines(m.renderSessionLine(), m.width)
}

func (m *Model) renderSessionLine() string {
	r, ok := m.report()
	if !ok {
		return headerStyle.Render("No sessions.")
	}
	line := fmt.Sprintf("Session %d/%d: %s", m.current+1, len(m.reports), r.Name)
	if !r.StartedAt.IsZero() {
		line += fmt.Sprintf("  %s - %s", r.StartedAt.Format(time.DateTime), r.EndedAt.Format(time.TimeOnly))
	}
	if r.Series.Width > 0 {
		line += "  bucket=" + r.Series.Width.String()
	}
	return headerStyle.Render(truncateLine(line, m.width))
}

func (m *Model) renderHelp() string {
	help := "Nav: left/right  Session: [ ]  Scroll: up/down/pgup/pgdn  Quit: q"
	return headerStyle.Render(truncateLine(help, m.width))
}

func (m *Model) renderBody(height int) string {
	if _, ok := m.report(); !ok {
		return fitLines("No sessions.", m.width, height)
	}
	if m.activeTab == tabWords {
		if len(m.wordTable.Rows()) == 0 {
			return fitLines("No repeated words.", m.width, height)
		}
		return fitLines(tableMutedStyle.Render(m.wordTable.View()), m.width, height)
	}
	return fitLines(m.viewports[m.activeTab].View(), m.width, height)
}

func (m *Model) renderTabContents() {
	r, ok := m.report()
	if !ok {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	opts := stats.RenderOptions{Width: width, Height: plotHeight, Color: true}
	m.viewports[tabSummary].SetContent(renderSummary(r, width))
	m.viewports[tabHistogram].SetContent(renderWith(func(w io.Writer) error { return stats.RenderHistogram(w, r.Series, opts) }))
	m.viewports[tabEvolution].SetContent(renderWith(func(w io.Writer) error { return stats.RenderEvolution(w, r.Series, opts) }))
	m.viewports[tabTypingRate].SetContent(renderWith(func(w io.Writer) error { return stats.RenderTypingRate(w, r.Series, opts) }))
	m.wordTable.SetRows(wordRows(r.Words))
}

func renderWith(render func(w io.Writer) error) string {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return fmt.Sprintf("Failed to render: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func renderSummary(r model.Report, width int) string {
	s := r.Summary
	activeWindows := 0
	for _, w := range r.Activity {
		if w.Active {
			activeWindows++
		}
	}
	cards := []string{
		metricCard("Total", fmt.Sprintf("%.2f min", model.Round2(s.TotalMinutes))),
		metricCard("Active", fmt.Sprintf("%.2f min", model.Round2(s.ActiveMinutes))),
		metricCard("Insertions", strconv.Itoa(s.Insertions)),
		metricCard("Deletions", strconv.Itoa(s.Deletions)),
		metricCard("Active windows", fmt.Sprintf("%d/%d", activeWindows, len(r.Activity))),
	}
	var top string
	if width < 80 {
		top = strings.Join(cards, "\n")
	} else {
		row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1], cards[2])
		row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3], cards[4])
		top = lipgloss.JoinVertical(lipgloss.Left, row1, row2)
	}
	rest := renderWith(func(w io.Writer) error {
		if len(s.Commands) > 0 {
			if err := stats.RenderSummary(w, s); err != nil {
				return err
			}
		}
		return stats.RenderActivity(w, r.Activity)
	})
	return strings.TrimRight(top+"\n\n"+rest, "\n")
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func wordColumns() []table.Column {
	return []table.Column{
		{Title: "Word", Width: 24},
		{Title: "Count", Width: 7},
	}
}

func wordRows(words []model.WordCount) []table.Row {
	rows := make([]table.Row, 0, len(words))
	for _, wc := range words {
		rows = append(rows, table.Row{wc.Word, strconv.Itoa(wc.Count)})
	}
	return rows
}

func buildWordTable(words []model.WordCount, width, height int) table.Model {
	t := table.New(
		table.WithColumns(wordColumns()),
		table.WithRows(wordRows(words)),
		table.WithHeight(maxInt(1, height-1)),
	)
	t.SetWidth(width)
	t.SetStyles(wordTableStyles())
	return t
}

func wordTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

// The table header and border take rows of their own; shrink until the view fits.
func (m *Model) adjustTableHeight(bodyHeight int) int {
	target := maxInt(1, bodyHeight)
	height := maxInt(1, target-1)
	m.wordTable.SetHeight(height)
	viewHeight := lipgloss.Height(m.wordTable.View())
	if viewHeight == target {
		return height
	}
	height += target - viewHeight
	if height < 1 {
		height = 1
	}
	return height
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
