// Package monitor renders the terminal recording screen and styled CLI
// output.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fyrsmithlabs/voxnotes/internal/capture"
	"github.com/fyrsmithlabs/voxnotes/internal/notes"
)

const tickInterval = 200 * time.Millisecond

// Controller drives one recording.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (capture.Result, error)
	Cancel() error
}

// Processor turns a finished recording into entities.
type Processor interface {
	ProcessCapture(ctx context.Context, res capture.Result) (notes.Outcome, error)
}

type recorderController struct{ r *capture.Recorder }

// FromRecorder adapts a capture.Recorder to Controller.
func FromRecorder(r *capture.Recorder) Controller {
	return recorderController{r: r}
}

func (c recorderController) Start(ctx context.Context) error {
	_, err := c.r.Start(ctx)
	return err
}

func (c recorderController) Stop(ctx context.Context) (capture.Result, error) {
	return c.r.Stop(ctx)
}

func (c recorderController) Cancel() error { return c.r.Cancel() }

// Phase is where the recording screen is in its lifecycle.
type Phase int

const (
	PhaseStarting Phase = iota
	PhaseRecording
	PhaseFinalizing
	PhaseProcessing
	PhaseDone
	PhaseFailed
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "Starting"
	case PhaseRecording:
		return "Recording"
	case PhaseFinalizing:
		return "Finishing transcript"
	case PhaseProcessing:
		return "Extracting"
	case PhaseDone:
		return "Saved"
	case PhaseFailed:
		return "Failed"
	case PhaseCancelled:
		return "Cancelled"
	}
	return "Unknown"
}

// Events carries microphone level and interim transcript updates from
// capture callbacks into the program. Sends never block; updates are
// dropped when the screen falls behind.
type Events struct {
	ch chan tea.Msg
}

// NewEvents returns an event bridge.
func NewEvents() *Events {
	return &Events{ch: make(chan tea.Msg, 64)}
}

// Level reports an input level in [0,1].
func (e *Events) Level(v float64) { e.send(LevelMsg(v)) }

// Interim reports the latest recognizer hypothesis.
func (e *Events) Interim(text string) { e.send(InterimMsg(text)) }

func (e *Events) send(msg tea.Msg) {
	select {
	case e.ch <- msg:
	default:
	}
}

func (e *Events) listen() tea.Cmd {
	return func() tea.Msg { return <-e.ch }
}

// LevelMsg carries the microphone input level.
type LevelMsg float64

// InterimMsg carries the latest recognizer hypothesis.
type InterimMsg string

type tickMsg time.Time

type startedMsg struct{ err error }

type stoppedMsg struct {
	res capture.Result
	err error
}

type processedMsg struct {
	out notes.Outcome
	err error
}

// Model is the bubbletea recording screen. It starts recording on Init,
// stops on enter or space, and cancels on esc or q.
type Model struct {
	ctrl    Controller
	proc    Processor
	events  *Events
	now     func() time.Time
	timeout time.Duration

	phase      Phase
	started    time.Time
	elapsed    time.Duration
	level      float64
	transcript string
	result     capture.Result
	outcome    notes.Outcome
	err        error
	quitting   bool

	levelBar progress.Model
}

// NewModel returns a recording screen. events may be nil.
func NewModel(ctrl Controller, proc Processor, events *Events) Model {
	if events == nil {
		events = NewEvents()
	}
	return Model{
		ctrl:    ctrl,
		proc:    proc,
		events:  events,
		now:     time.Now,
		timeout: 2 * time.Minute,
		levelBar: progress.New(
			progress.WithGradient("#00ff00", "#ff0000"),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
	}
}

// Outcome returns the processed note once the screen has finished.
func (m Model) Outcome() (notes.Outcome, error) {
	if m.phase == PhaseCancelled {
		return notes.Outcome{}, context.Canceled
	}
	return m.outcome, m.err
}

// Capture returns the finished recording, if any.
func (m Model) Capture() capture.Result { return m.result }

// Phase returns the current phase.
func (m Model) Phase() Phase { return m.phase }

// Init starts recording.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.startCmd(), tick(), m.events.listen())
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) startCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return startedMsg{err: ctrl.Start(context.Background())}
	}
}

func (m Model) stopCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		res, err := ctrl.Stop(context.Background())
		return stoppedMsg{res: res, err: err}
	}
}

func (m Model) processCmd(res capture.Result) tea.Cmd {
	proc, timeout := m.proc, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		out, err := proc.ProcessCapture(ctx, res)
		return processedMsg{out: out, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case startedMsg:
		if m.phase != PhaseStarting {
			return m, nil
		}
		if msg.err != nil {
			m.phase, m.err = PhaseFailed, msg.err
			return m, nil
		}
		m.phase = PhaseRecording
		m.started = m.now()
		return m, nil

	case tickMsg:
		if m.phase == PhaseRecording {
			m.elapsed = time.Time(msg).Sub(m.started)
		}
		if m.phase > PhaseProcessing {
			return m, nil
		}
		return m, tick()

	case LevelMsg:
		m.level = min(max(float64(msg), 0), 1)
		return m, m.events.listen()

	case InterimMsg:
		m.transcript = string(msg)
		return m, m.events.listen()

	case stoppedMsg:
		if msg.err != nil {
			m.phase, m.err = PhaseFailed, msg.err
			return m, nil
		}
		m.result = msg.res
		m.transcript = msg.res.Transcript
		if err := msg.res.Err(); err != nil {
			m.phase, m.err = PhaseFailed, err
			return m, nil
		}
		m.phase = PhaseProcessing
		return m, m.processCmd(msg.res)

	case processedMsg:
		if msg.err != nil {
			m.phase, m.err = PhaseFailed, msg.err
			return m, nil
		}
		m.phase = PhaseDone
		m.outcome = msg.out
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch m.phase {
	case PhaseStarting, PhaseRecording:
		switch key {
		case "enter", " ":
			if m.phase != PhaseRecording {
				return m, nil
			}
			m.phase = PhaseFinalizing
			return m, m.stopCmd()
		case "esc", "q", "ctrl+c":
			_ = m.ctrl.Cancel()
			m.phase = PhaseCancelled
			m.quitting = true
			return m, tea.Quit
		}
	case PhaseDone, PhaseFailed:
		switch key {
		case "enter", "esc", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View renders the screen.
func (m Model) View() string {
	if m.quitting && m.phase == PhaseCancelled {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("voxnotes"))
	b.WriteString("  ")
	b.WriteString(m.renderPhase())
	b.WriteString("\n\n")

	switch m.phase {
	case PhaseStarting, PhaseRecording, PhaseFinalizing:
		b.WriteString(labelStyle.Render("Level  "))
		b.WriteString(m.levelBar.ViewAs(m.level))
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Time   "))
		b.WriteString(valueStyle.Render(FormatElapsed(m.elapsed)))
		b.WriteString("\n\n")
		b.WriteString(m.renderTranscript())
	case PhaseProcessing:
		b.WriteString(m.renderTranscript())
	case PhaseDone:
		b.WriteString(FormatOutcome(m.outcome))
	case PhaseFailed:
		b.WriteString(errorStyle.Render(notes.UserMessage(m.err)))
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(dimStyle.Render(m.err.Error()))
		}
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return containerStyle.Render(b.String())
}

func (m Model) renderPhase() string {
	label := m.phase.String()
	switch m.phase {
	case PhaseRecording:
		return recordingStyle.Render("● " + label)
	case PhaseDone:
		return healthyStyle.Render("✓ " + label)
	case PhaseFailed:
		return errorStyle.Render("✗ " + label)
	}
	return warningStyle.Render(label + "...")
}

func (m Model) renderTranscript() string {
	if m.transcript == "" {
		return dimStyle.Render("Listening...")
	}
	return valueStyle.Render(m.transcript)
}

func (m Model) renderFooter() string {
	key := func(k, desc string) string {
		return footerKeyStyle.Render("["+k+"]") + " " + desc
	}
	switch m.phase {
	case PhaseStarting, PhaseRecording:
		return footerStyle.Render(fmt.Sprintf("%s  %s", key("enter", "stop"), key("esc", "cancel")))
	case PhaseDone, PhaseFailed:
		return footerStyle.Render(key("q", "quit"))
	}
	return footerStyle.Render(dimStyle.Render("please wait"))
}
