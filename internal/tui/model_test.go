package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/keytrace/internal/capture"
)

type fakeRecorder struct {
	keys    []string
	err     error
	stopped bool
	closed  bool
	done    chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{done: make(chan struct{})}
}

func (f *fakeRecorder) Key(name string) bool {
	if f.err != nil || f.stopped || f.closed {
		return false
	}
	f.keys = append(f.keys, name)
	return true
}

func (f *fakeRecorder) Stats() capture.Stats {
	return capture.Stats{Keys: int64(len(f.keys)), Written: int64(len(f.keys)), Pending: 1}
}

func (f *fakeRecorder) Err() error            { return f.err }
func (f *fakeRecorder) Done() <-chan struct{} { return f.done }

func (f *fakeRecorder) Stop() error {
	f.stopped = true
	return f.err
}

func (f *fakeRecorder) Close() error {
	f.closed = true
	return f.err
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func key(t tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: t}
}

func newCapturing(t *testing.T, stopCode string) (*Model, *fakeRecorder) {
	t.Helper()
	rec := newFakeRecorder()
	m, err := NewModel(Options{
		Name:     "client_part1",
		StopCode: stopCode,
		Start:    func(string) (Recorder, error) { return rec, nil },
	})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	return m, rec
}

func send(m *Model, msgs ...tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	for _, msg := range msgs {
		_, cmd = m.Update(msg)
	}
	return cmd
}

func TestNamePromptStartsSession(t *testing.T) {
	rec := newFakeRecorder()
	var started string
	m, err := NewModel(Options{Start: func(name string) (Recorder, error) {
		started = name
		return rec, nil
	}})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	if m.phase != phaseName {
		t.Fatalf("expected name prompt")
	}
	send(m, runes("acme"), key(tea.KeyEnter))
	if started != "acme" || m.phase != phaseCapture {
		t.Fatalf("expected capture started for acme, got %q phase %d", started, m.phase)
	}
	if len(rec.keys) != 0 {
		t.Fatalf("name prompt keys must not be recorded: %v", rec.keys)
	}
}

func TestEmptyNameIsConfigurationError(t *testing.T) {
	m, err := NewModel(Options{Start: func(string) (Recorder, error) {
		t.Fatalf("start must not be called")
		return nil, nil
	}})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	send(m, runes("   "), key(tea.KeyEnter))
	var cfgErr *capture.ConfigurationError
	if !errors.As(m.Outcome().Err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", m.Outcome().Err)
	}
}

func TestPresetNameStartFailure(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewModel(Options{Name: "x", Start: func(string) (Recorder, error) { return nil, boom }})
	if !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}
}

func TestCaptureForwardsKeys(t *testing.T) {
	m, rec := newCapturing(t, "")
	send(m, runes("hi"), key(tea.KeySpace), key(tea.KeyBackspace), key(tea.KeyCtrlV))
	want := []string{"h", "i", "space", "backspace", "ctrl+v"}
	if strings.Join(rec.keys, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected keys %v", rec.keys)
	}
	if string(m.tail) != "hi" {
		t.Fatalf("unexpected tail %q", string(m.tail))
	}
	view := m.View()
	if !strings.Contains(view, "keys 5") || !strings.Contains(view, "client_part1") {
		t.Fatalf("unexpected view:\n%s", view)
	}
}

func TestWrongStopCodeResumes(t *testing.T) {
	m, rec := newCapturing(t, "done")
	send(m, key(tea.KeyEsc), runes("nope"), key(tea.KeyEnter))
	if m.phase != phaseCapture {
		t.Fatalf("expected capture to continue")
	}
	if !strings.Contains(m.View(), "Wrong stop code") {
		t.Fatalf("expected wrong code notice")
	}
	if len(rec.keys) != 0 || rec.stopped {
		t.Fatalf("prompt keys must not be recorded: %v", rec.keys)
	}
}

func TestStopCodeStopsSession(t *testing.T) {
	m, rec := newCapturing(t, "done")
	send(m, runes("a"), key(tea.KeyEsc), runes("done"))
	cmd := send(m, key(tea.KeyEnter))
	if !rec.stopped {
		t.Fatalf("expected session stopped")
	}
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	out := m.Outcome()
	if !out.Stopped || out.Err != nil || out.Name != "client_part1" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(rec.keys) != 1 {
		t.Fatalf("expected only the capture key recorded, got %v", rec.keys)
	}
}

func TestAbortFromStopPrompt(t *testing.T) {
	m, rec := newCapturing(t, "done")
	send(m, key(tea.KeyEsc), key(tea.KeyCtrlC))
	if !rec.closed || rec.stopped {
		t.Fatalf("expected abort to close without stop")
	}
	if m.Outcome().Stopped {
		t.Fatalf("expected outcome not stopped")
	}
}

func TestSessionFailureQuits(t *testing.T) {
	m, rec := newCapturing(t, "")
	rec.err = errors.New("disk full")
	send(m, sessionDoneMsg{})
	if !errors.Is(m.Outcome().Err, rec.err) || m.phase != phaseDone {
		t.Fatalf("expected failure outcome, got %+v", m.Outcome())
	}
}

func TestKeyNames(t *testing.T) {
	cases := []struct {
		msg  tea.KeyMsg
		want string
	}{
		{runes("ab"), "a,b"},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x"), Alt: true}, "alt+x"},
		{key(tea.KeyEnter), "enter"},
		{key(tea.KeyDelete), "delete"},
		{key(tea.KeyCtrlC), "ctrl+c"},
		{key(tea.KeyCtrlI), "tab"},
	}
	for _, tc := range cases {
		if got := strings.Join(KeyNames(tc.msg), ","); got != tc.want {
			t.Fatalf("KeyNames(%v) = %q, want %q", tc.msg, got, tc.want)
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	if got := formatElapsed(3*time.Hour + 4*time.Minute + 5*time.Second); got != "03:04:05" {
		t.Fatalf("unexpected elapsed %q", got)
	}
}
