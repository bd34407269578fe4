// Package tui provides the Bubble Tea capture interface.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/keytrace/internal/capture"
)

const (
	tailLines    = 4
	refreshEvery = time.Second
)

// Recorder is the running capture the model feeds keys into.
type Recorder interface {
	Key(name string) bool
	Stats() capture.Stats
	Err() error
	Done() <-chan struct{}
	Stop() error
	Close() error
}

// StartFunc opens a capture session for a name.
type StartFunc func(name string) (Recorder, error)

// Options configure the capture model.
type Options struct {
	// Name skips the name prompt when set.
	Name     string
	StopCode string
	Start    StartFunc
	Now      func() time.Time
}

// Outcome describes how the capture ended.
type Outcome struct {
	Name    string
	Stopped bool
	Err     error
}

type phase int

const (
	phaseName phase = iota
	phaseCapture
	phaseStop
	phaseDone
)

type tickMsg time.Time

type sessionDoneMsg struct{}

var (
	typedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	cursorStyle = lipgloss.NewStyle().Underline(true)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	recStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
)

// Model implements the Bubble Tea capture UI.
type Model struct {
	opts  Options
	phase phase

	nameInput textinput.Model
	stopInput textinput.Model
	notice    string

	name      string
	rec       Recorder
	startedAt time.Time
	now       time.Time
	tail      []rune

	width  int
	height int

	outcome Outcome
}

// NewModel constructs the capture model. With a preset name the session is
// started immediately and a start failure is returned.
func NewModel(opts Options) (*Model, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Model{opts: opts}

	m.nameInput = textinput.New()
	m.nameInput.Placeholder = "client_part1"
	m.nameInput.Prompt = "Session name: "
	m.nameInput.CharLimit = 128

	m.stopInput = textinput.New()
	m.stopInput.Prompt = "Stop code: "
	m.stopInput.EchoMode = textinput.EchoPassword
	m.stopInput.CharLimit = 128

	if strings.TrimSpace(opts.Name) != "" {
		if err := m.start(opts.Name); err != nil {
			return nil, err
		}
		return m, nil
	}
	m.phase = phaseName
	m.nameInput.Focus()
	return m, nil
}

// Outcome returns how the capture ended; valid once the program exits.
func (m *Model) Outcome() Outcome {
	return m.outcome
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	if m.phase == phaseName {
		return textinput.Blink
	}
	return tea.Batch(tick(), m.waitDone())
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		m.now = time.Time(msg)
		if m.phase == phaseDone {
			return m, nil
		}
		return m, tick()
	case sessionDoneMsg:
		if m.rec != nil && m.rec.Err() != nil && m.phase != phaseDone {
			return m.finish(false, m.rec.Err())
		}
		return m, nil
	case tea.KeyMsg:
		switch m.phase {
		case phaseName:
			return m.updateName(msg)
		case phaseCapture:
			return m.updateCapture(msg)
		case phaseStop:
			return m.updateStop(msg)
		}
	}
	return m, nil
}

func (m *Model) updateName(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		name := strings.TrimSpace(m.nameInput.Value())
		if name == "" {
			m.outcome = Outcome{Err: &capture.ConfigurationError{Field: "session name", Reason: "a session name is required"}}
			m.phase = phaseDone
			return m, tea.Quit
		}
		if err := m.start(name); err != nil {
			m.outcome = Outcome{Name: name, Err: err}
			m.phase = phaseDone
			return m, tea.Quit
		}
		return m, tea.Batch(tick(), m.waitDone())
	case tea.KeyEsc, tea.KeyCtrlC:
		m.outcome = Outcome{Err: &capture.ConfigurationError{Field: "session name", Reason: "cancelled before capture started"}}
		m.phase = phaseDone
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}

func (m *Model) updateCapture(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEsc {
		m.phase = phaseStop
		m.notice = ""
		m.stopInput.SetValue("")
		return m, m.stopInput.Focus()
	}
	for _, name := range KeyNames(msg) {
		if !m.rec.Key(name) {
			if err := m.rec.Err(); err != nil {
				return m.finish(false, err)
			}
			continue
		}
		m.tail = appendTail(m.tail, name)
	}
	return m, nil
}

func (m *Model) updateStop(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		if m.stopInput.Value() == m.opts.StopCode {
			return m.finish(true, nil)
		}
		m.notice = "Wrong stop code, capture continues."
		m.backToCapture()
		return m, nil
	case tea.KeyEsc:
		m.notice = ""
		m.backToCapture()
		return m, nil
	case tea.KeyCtrlC:
		return m.finish(false, nil)
	}
	var cmd tea.Cmd
	m.stopInput, cmd = m.stopInput.Update(msg)
	return m, cmd
}

func (m *Model) backToCapture() {
	m.stopInput.Blur()
	m.stopInput.SetValue("")
	m.phase = phaseCapture
}

func (m *Model) finish(stop bool, cause error) (tea.Model, tea.Cmd) {
	var err error
	if stop {
		err = m.rec.Stop()
	} else {
		err = m.rec.Close()
	}
	if cause != nil {
		err = cause
	}
	m.outcome = Outcome{Name: m.name, Stopped: stop && err == nil, Err: err}
	m.phase = phaseDone
	return m, tea.Quit
}

func (m *Model) start(name string) error {
	rec, err := m.opts.Start(strings.TrimSpace(name))
	if err != nil {
		return err
	}
	m.name = strings.TrimSpace(name)
	m.rec = rec
	m.startedAt = m.opts.Now()
	m.now = m.startedAt
	m.phase = phaseCapture
	m.nameInput.Blur()
	return nil
}

func (m *Model) waitDone() tea.Cmd {
	rec := m.rec
	if rec == nil {
		return nil
	}
	return func() tea.Msg {
		<-rec.Done()
		return sessionDoneMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// KeyNames turns a key message into the key names recorded by the session.
// Pasted or buffered runes are reported one by one.
func KeyNames(msg tea.KeyMsg) []string {
	switch msg.Type {
	case tea.KeyRunes:
		names := make([]string, 0, len(msg.Runes))
		for _, r := range msg.Runes {
			name := string(r)
			if msg.Alt {
				name = "alt+" + name
			}
			names = append(names, name)
		}
		return names
	case tea.KeySpace:
		return []string{capture.KeySpace}
	case tea.KeyEnter:
		return []string{"enter"}
	case tea.KeyTab:
		return []string{"tab"}
	case tea.KeyBackspace:
		return []string{capture.KeyBackspace}
	case tea.KeyDelete:
		return []string{capture.KeyDelete}
	default:
		name := msg.String()
		if name == "" {
			return nil
		}
		return []string{name}
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	switch m.phase {
	case phaseName:
		return promptStyle.Render("Start a capture session") + "\n\n" + m.nameInput.View() + "\n\n" +
			footerStyle.Render("enter: start  esc: cancel")
	case phaseDone:
		return ""
	}

	contentWidth := m.width
	if contentWidth <= 0 {
		contentWidth = 80
	}
	body := lastLines(wrapStyledRunes(buildStyledRunes(m.tail), contentWidth), tailLines)
	lines := []string{recStyle.Render("● REC") + " " + m.name, "", body, ""}
	if m.phase == phaseStop {
		lines = append(lines, m.stopInput.View())
	}
	if m.notice != "" {
		lines = append(lines, errorStyle.Render(m.notice))
	}
	lines = append(lines, m.renderFooter())
	return strings.Join(lines, "\n")
}

func (m *Model) renderFooter() string {
	if m.rec == nil {
		return ""
	}
	stats := m.rec.Stats()
	elapsed := m.now.Sub(m.startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	hint := "esc: stop"
	if m.phase == phaseStop {
		hint = "enter: confirm  esc: resume  ctrl+c: abort"
	}
	segments := []string{
		formatElapsed(elapsed),
		fmt.Sprintf("keys %d", stats.Keys),
		fmt.Sprintf("written %d", stats.Written),
		fmt.Sprintf("pending del %d", stats.Pending),
		hint,
	}
	return footerStyle.Render(strings.Join(segments, "  "))
}

func formatElapsed(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
