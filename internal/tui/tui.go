package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kartoza/kartoza-audio-capture/internal/audio"
	"github.com/kartoza/kartoza-audio-capture/internal/models"
	"github.com/kartoza/kartoza-audio-capture/internal/notify"
	"github.com/kartoza/kartoza-audio-capture/internal/recorder"
)

// actionTimeout bounds a single start or stop issued from the UI
const actionTimeout = 30 * time.Second

// Key bindings
type keyMap struct {
	Toggle key.Binding
	Name   key.Binding
	Device key.Binding
	Prefs  key.Binding
	Help   key.Binding
	Quit   key.Binding
	Cancel key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Name, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Name, k.Device},
		{k.Prefs, k.Help, k.Quit},
	}
}

var keys = keyMap{
	Toggle: key.NewBinding(
		key.WithKeys(" ", "enter"),
		key.WithHelp("space/enter", "toggle recording"),
	),
	Name: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "file name"),
	),
	Device: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next device"),
	),
	Prefs: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "privacy settings"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "done"),
	),
}

// Messages
type blinkMsg struct{}
type startedMsg struct{ session models.RecordingSession }
type stoppedMsg struct{ result models.RecordingResult }
type actionErrMsg struct{ err error }
type devicesMsg []models.RecordingDevice
type permissionMsg models.PermissionStatus

// Options wire the model to a running manager
type Options struct {
	Manager  *recorder.Manager
	Bridge   *Bridge
	Notifier *notify.Notifier
	Version  string
	// DeviceID is used while no listed device is selected
	DeviceID string
}

// Model is the recording screen
type Model struct {
	manager  *recorder.Manager
	bridge   *Bridge
	notifier *notify.Notifier
	version  string
	device   string

	help    help.Model
	spinner spinner.Model
	meter   progress.Model
	name    textinput.Model

	devices    []models.RecordingDevice
	deviceIdx  int // -1 is the adapter default
	permission models.PermissionStatus

	state    models.RecordingState
	session  *models.RecordingSession
	progress models.RecordingProgress
	level    models.RecordingLevel
	result   *models.RecordingResult
	err      error

	busy     bool
	quitting bool
	width    int
	height   int
	blinkOn  bool
	showHelp bool
	now      func() time.Time
}

// NewModel creates the recording screen for opts.Manager
func NewModel(opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorRed)

	name := textinput.New()
	name.Placeholder = "generated"
	name.CharLimit = 120
	name.Width = 40
	name.Prompt = ""

	meter := progress.New(
		progress.WithGradient(string(ColorGreen), string(ColorRed)),
		progress.WithoutPercentage(),
		progress.WithWidth(HeaderWidth-20),
	)

	bridge := opts.Bridge
	if bridge == nil {
		bridge = NewBridge()
	}

	return Model{
		manager:    opts.Manager,
		bridge:     bridge,
		notifier:   opts.Notifier,
		version:    opts.Version,
		device:     opts.DeviceID,
		help:       help.New(),
		spinner:    s,
		meter:      meter,
		name:       name,
		deviceIdx:  -1,
		permission: models.PermissionUnknown,
		state:      opts.Manager.State(),
		session:    opts.Manager.CurrentSession(),
		blinkOn:    true,
		now:        time.Now,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		blinkCmd(),
		m.bridge.wait(),
		m.loadDevices(),
		m.checkPermission(),
	)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.name.Focused() {
			return m.updateName(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case blinkMsg:
		m.blinkOn = !m.blinkOn
		return m, blinkCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stateMsg:
		m.state = models.RecordingState(msg)
		m.session = m.manager.CurrentSession()
		if m.state == models.StateIdle {
			m.result = m.manager.LastResult()
			m.level = models.RecordingLevel{}
		}
		return m, m.bridge.wait()

	case levelMsg:
		m.level = models.RecordingLevel(msg)
		return m, m.bridge.wait()

	case progressMsg:
		m.progress = models.RecordingProgress(msg)
		return m, m.bridge.wait()

	case sessionErrMsg:
		m.err = msg.err
		return m, tea.Batch(m.bridge.wait(), m.notify(func(n *notify.Notifier) error {
			return n.RecordingFailed(recorder.Describe(msg.err))
		}))

	case startedMsg:
		m.busy = false
		m.err = nil
		m.result = nil
		m.progress = models.RecordingProgress{}
		m.session = &msg.session
		label := m.manager.Adapter().Label()
		return m, m.notify(func(n *notify.Notifier) error {
			return n.RecordingStarted(label, msg.session.FilePath)
		})

	case stoppedMsg:
		m.busy = false
		m.result = &msg.result
		m.session = nil
		cmd := m.notify(func(n *notify.Notifier) error {
			return n.RecordingComplete(msg.result.FilePath, msg.result.Duration())
		})
		if m.quitting {
			return m, tea.Sequence(cmd, tea.Quit)
		}
		return m, cmd

	case actionErrMsg:
		m.busy = false
		m.err = msg.err
		m.session = m.manager.CurrentSession()
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil

	case devicesMsg:
		m.devices = msg
		return m, nil

	case permissionMsg:
		m.permission = models.PermissionStatus(msg)
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		if m.state.IsActive() {
			m.quitting = true
			if m.busy {
				return m, nil
			}
			m.busy = true
			return m, m.stopCmd()
		}
		return m, tea.Quit

	case key.Matches(msg, keys.Toggle):
		if m.busy {
			return m, nil
		}
		m.busy = true
		// an error with a session left means cleanup is still running
		if m.state.IsActive() || (m.state == models.StateError && m.session != nil) {
			return m, m.stopCmd()
		}
		return m, m.startCmd()

	case key.Matches(msg, keys.Name):
		if m.state.IsActive() {
			return m, nil
		}
		cmd := m.name.Focus()
		return m, cmd

	case key.Matches(msg, keys.Device):
		if len(m.devices) > 0 && !m.state.IsActive() {
			m.deviceIdx++
			if m.deviceIdx >= len(m.devices) {
				m.deviceIdx = -1
			}
		}
		return m, nil

	case key.Matches(msg, keys.Prefs):
		return m, m.openPreferences()

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		return m, nil
	}
	return m, nil
}

func (m Model) updateName(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter || key.Matches(msg, keys.Cancel) {
		m.name.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.name, cmd = m.name.Update(msg)
	return m, cmd
}

// View renders the UI using the standard layout
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	header := RenderHeader("Recording", &HeaderState{
		IsRecording: m.state == models.StateRecording,
		Status:      statusLabel(m.state),
		Adapter:     m.manager.Adapter().Label(),
		Duration:    m.elapsed(),
		BlinkOn:     m.blinkOn,
	})

	content := lipgloss.NewStyle().
		Width(HeaderWidth).
		Render(m.renderContent())

	footer := RenderHelpFooter(m.help.ShortHelpView(keys.ShortHelp()), m.width)
	return LayoutWithHeaderFooter(header, content, footer, m.width, m.height)
}

func (m Model) renderContent() string {
	var sections []string

	sections = append(sections, m.renderSetup())

	if m.busy || m.state == models.StateStarting || m.state == models.StateStopping {
		sections = append(sections, "", m.spinner.View()+" "+LabelStyle.Render(busyLabel(m.state)))
	}

	if m.session != nil {
		sections = append(sections, "", m.renderRecordingInfo())
	} else if m.result != nil {
		sections = append(sections, "", m.renderResult())
	}

	if m.err != nil {
		sections = append(sections, "", ErrorStyle.Render(recorder.Describe(m.err)))
	}

	if m.permission == models.PermissionDenied {
		sections = append(sections, "", ErrorStyle.Render("Audio capture permission denied.")+" "+
			LabelStyle.Render("Press p to open privacy settings."))
	}

	if m.showHelp {
		sections = append(sections, "", TitleStyle.Render("Help"), m.help.FullHelpView(keys.FullHelp()))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderSetup() string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render("Capture Setup") + "\n")

	nameView := m.name.View()
	if m.name.Focused() {
		nameView = ActiveStyle.Render("› ") + nameView
	}
	sb.WriteString(LabelStyle.Render("File:   ") + nameView + "\n")
	sb.WriteString(LabelStyle.Render("Device: ") + ValueStyle.Render(m.deviceLabel()))
	return sb.String()
}

func (m Model) renderRecordingInfo() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(ColorRed).MarginBottom(1)

	var sb strings.Builder
	sb.WriteString(title.Render("Recording In Progress") + "\n")
	sb.WriteString(LabelStyle.Render("File:    ") + ValueStyle.Render(m.session.FilePath) + "\n")
	sb.WriteString(LabelStyle.Render("Format:  ") + ValueStyle.Render(m.session.Format.String()) + "\n")
	sb.WriteString(LabelStyle.Render("Written: ") + ValueStyle.Render(FormatBytes(m.progress.BytesWritten)) + "\n")

	meter := m.meter.ViewAs(clamp01(m.level.Peak))
	if m.level.Clipped {
		meter += " " + ErrorStyle.Render("CLIP")
	}
	sb.WriteString(LabelStyle.Render("Level:   ") + meter)
	return sb.String()
}

func (m Model) renderResult() string {
	r := m.result
	var sb strings.Builder
	sb.WriteString(SuccessStyle.Render("Saved") + "\n")
	sb.WriteString(LabelStyle.Render("File:     ") + ValueStyle.Render(r.FilePath) + "\n")
	sb.WriteString(LabelStyle.Render("Duration: ") + ValueStyle.Render(FormatDuration(r.Duration())))
	if r.BytesWritten != nil {
		sb.WriteString("\n" + LabelStyle.Render("Size:     ") + ValueStyle.Render(FormatBytes(*r.BytesWritten)))
	}
	return sb.String()
}

func (m Model) deviceLabel() string {
	if m.deviceIdx < 0 || m.deviceIdx >= len(m.devices) {
		if m.device != "" {
			return m.device
		}
		return "default"
	}
	d := m.devices[m.deviceIdx]
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

func (m Model) deviceID() string {
	if m.deviceIdx < 0 || m.deviceIdx >= len(m.devices) {
		return m.device
	}
	return m.devices[m.deviceIdx].ID
}

func (m Model) elapsed() time.Duration {
	if m.session == nil {
		return 0
	}
	if m.progress.DurationMs > 0 {
		return time.Duration(m.progress.DurationMs) * time.Millisecond
	}
	return m.session.Elapsed(m.now())
}

func statusLabel(s models.RecordingState) string {
	switch s {
	case models.StateStarting:
		return "Starting"
	case models.StateStopping:
		return "Stopping"
	case models.StateError:
		return "Error"
	default:
		return "Ready"
	}
}

func busyLabel(s models.RecordingState) string {
	if s == models.StateRecording || s == models.StateStopping {
		return "Finalizing recording..."
	}
	return "Starting capture..."
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Commands

func blinkCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return blinkMsg{}
	})
}

func (m Model) startCmd() tea.Cmd {
	opts := recorder.StartOptions{
		FileName: strings.TrimSpace(m.name.Value()),
		DeviceID: m.deviceID(),
	}
	mgr := m.manager
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		session, err := mgr.Start(ctx, opts)
		if err != nil {
			return actionErrMsg{err}
		}
		return startedMsg{session}
	}
}

func (m Model) stopCmd() tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		result, err := mgr.Stop(ctx)
		if err != nil {
			return actionErrMsg{err}
		}
		return stoppedMsg{result}
	}
}

func (m Model) loadDevices() tea.Cmd {
	adapter := m.manager.Adapter()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		devices, err := audio.ListDevices(ctx, adapter)
		if err != nil {
			return devicesMsg(nil)
		}
		return devicesMsg(devices)
	}
}

func (m Model) checkPermission() tea.Cmd {
	adapter := m.manager.Adapter()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return permissionMsg(audio.PermissionStatus(ctx, adapter))
	}
}

func (m Model) openPreferences() tea.Cmd {
	adapter := m.manager.Adapter()
	return func() tea.Msg {
		if err := audio.OpenPreferences(context.Background(), adapter); err != nil {
			return actionErrMsg{fmt.Errorf("failed to open privacy settings: %w", err)}
		}
		return nil
	}
}

func (m Model) notify(send func(*notify.Notifier) error) tea.Cmd {
	n := m.notifier
	if n == nil || !n.Enabled {
		return nil
	}
	return func() tea.Msg {
		_ = send(n)
		return nil
	}
}

// Run starts the TUI application and blocks until it exits or ctx is done
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(NewModel(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if opts.Bridge != nil {
		opts.Bridge.Close()
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
