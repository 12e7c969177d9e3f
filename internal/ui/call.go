package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pion/webrtc/v4"

	"github.com/marymwortman-lang/PureConnect/internal/call"
	"github.com/marymwortman-lang/PureConnect/internal/chat"
)

const (
	chatLines  = 12
	inputLimit = 1000
)

// Controller is the part of a call session the call screen drives.
type Controller interface {
	Updates() <-chan call.Snapshot
	ToggleMute() (bool, error)
	ToggleVideo() (bool, error)
	SendChat(text string) error
	HangUp()
}

type (
	snapshotMsg call.Snapshot
	noticeMsg   struct {
		text string
		err  error
	}
	hungUpMsg struct{}
)

// CallModel is the interactive call screen: status, media toggles and chat.
type CallModel struct {
	ctl     Controller
	link    string
	copy    func(string) error
	snap    call.Snapshot
	started time.Time
	active  bool
	notice  string
	failed  bool
	input   textinput.Model
	spinner spinner.Model
	done    bool

	// Kept from the last live snapshot, since teardown clears them.
	room     string
	peer     string
	messages int
}

// NewCallModel builds the screen for a session that has already joined.
// initial is the snapshot taken right after joining.
func NewCallModel(ctl Controller, initial call.Snapshot, link string) *CallModel {
	in := textinput.New()
	in.Placeholder = "Type a message and press enter"
	in.CharLimit = inputLimit
	in.Width = 60
	in.Prompt = IconChat + " "
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	m := &CallModel{
		ctl:     ctl,
		link:    link,
		copy:    CopyText,
		started: time.Now(),
		input:   in,
		spinner: s,
	}
	m.apply(initial)
	return m
}

func (m *CallModel) apply(snap call.Snapshot) {
	m.snap = snap
	if snap.State == call.StateIdle {
		return
	}
	m.active = true
	m.room = snap.Room
	if snap.Peer != nil {
		m.peer = snap.Peer.UserName
	}
	m.messages = len(snap.Chat)
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.listenForUpdates())
}

func (m *CallModel) listenForUpdates() tea.Cmd {
	updates := m.ctl.Updates()
	return func() tea.Msg {
		return snapshotMsg(<-updates)
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case snapshotMsg:
		wasActive := m.active
		m.apply(call.Snapshot(msg))
		if m.snap.State == call.StateIdle && wasActive {
			m.done = true
			return m, tea.Quit
		}
		return m, m.listenForUpdates()

	case noticeMsg:
		m.failed = msg.err != nil
		m.notice = msg.text
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		return m, nil

	case hungUpMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *CallModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		ctl := m.ctl
		return m, func() tea.Msg {
			ctl.HangUp()
			return hungUpMsg{}
		}

	case "ctrl+a":
		ctl := m.ctl
		return m, func() tea.Msg {
			on, err := ctl.ToggleMute()
			return noticeMsg{text: onOff("Microphone", on), err: err}
		}

	case "ctrl+v":
		ctl := m.ctl
		return m, func() tea.Msg {
			on, err := ctl.ToggleVideo()
			return noticeMsg{text: onOff("Camera", on), err: err}
		}

	case "ctrl+y":
		if m.link == "" {
			return m, nil
		}
		link, copyText := m.link, m.copy
		return m, func() tea.Msg {
			if err := copyText(link); err != nil {
				return noticeMsg{err: fmt.Errorf("copy link: %w", err)}
			}
			return noticeMsg{text: IconCopy + " Room link copied"}
		}

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.SetValue("")
		ctl := m.ctl
		return m, func() tea.Msg {
			if err := ctl.SendChat(text); err != nil {
				return noticeMsg{err: err}
			}
			return nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func onOff(what string, on bool) string {
	if on {
		return what + " on"
	}
	return what + " off"
}

func (m *CallModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s %s", IconRoom, m.snap.Room)))
	b.WriteString("  " + StatusStyle.Render(m.snap.State.String()) + "\n\n")

	b.WriteString(fmt.Sprintf("%s You: %s    %s\n", IconPeer, BoldStyle.Render(m.snap.UserName), m.mediaView()))
	b.WriteString(m.peerView() + "\n")
	if m.snap.Status != "" {
		b.WriteString(MutedStyle.Render(m.snap.Status) + "\n")
	}
	if m.notice != "" {
		style := SuccessStyle
		if m.failed {
			style = ErrorStyle
		}
		b.WriteString(style.Render(m.notice) + "\n")
	}

	b.WriteString("\n" + ChatBoxStyle.Render(m.chatView()) + "\n")
	b.WriteString(m.input.View() + "\n")

	help := "enter send • ctrl+a mic • ctrl+v camera • esc hang up"
	if m.link != "" {
		help = "enter send • ctrl+a mic • ctrl+v camera • ctrl+y copy link • esc hang up"
	}
	b.WriteString(FooterStyle.Render(help))
	return b.String()
}

func (m *CallModel) mediaView() string {
	if !m.snap.HasLocal {
		return MutedStyle.Render("no local media")
	}
	mic, cam := IconMic, IconCam
	if !m.snap.AudioEnabled {
		mic = IconMicOff
	}
	if !m.snap.VideoEnabled {
		cam = IconCamOff
	}
	return mic + " " + cam
}

func (m *CallModel) peerView() string {
	if m.snap.Peer == nil {
		return fmt.Sprintf("%s %s", m.spinner.View(), MutedStyle.Render("Waiting for someone to join..."))
	}

	name := m.snap.Peer.UserName
	if name == "" {
		name = m.snap.Peer.ID
	}
	line := fmt.Sprintf("%s Peer: %s", IconPeer, SenderStyle.Render(name))

	switch m.snap.LinkState {
	case webrtc.PeerConnectionStateConnected:
		line += "  " + SuccessStyle.Render("connected")
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		line += "  " + ErrorStyle.Render(m.snap.LinkState.String())
	default:
		line += "  " + m.spinner.View() + " " + MutedStyle.Render("connecting")
	}

	if r := m.snap.Remote; r != nil {
		kinds := make([]string, 0, len(r.Tracks))
		for _, t := range r.Tracks {
			kinds = append(kinds, t.Kind.String())
		}
		line += "  " + MutedStyle.Render("receiving "+strings.Join(kinds, "+"))
	}
	return line
}

func (m *CallModel) chatView() string {
	msgs := m.snap.Chat
	if len(msgs) == 0 {
		return MutedStyle.Render("No messages yet")
	}
	if len(msgs) > chatLines {
		msgs = msgs[len(msgs)-chatLines:]
	}
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		lines = append(lines, m.chatLine(msg))
	}
	return strings.Join(lines, "\n")
}

func (m *CallModel) chatLine(msg chat.Message) string {
	style := SenderStyle
	if msg.Sender == m.snap.UserName {
		style = SelfSenderStyle
	}
	stamp := MutedStyle.Render(msg.Timestamp.Local().Format("15:04"))
	return fmt.Sprintf("%s %s %s", stamp, style.Render(msg.Sender+":"), msg.Text)
}

// Summary describes the call as it stood when the screen closed.
func (m *CallModel) Summary() CallSummary {
	status := m.snap.Status
	if m.snap.State != call.StateIdle {
		status = "Call ended"
	}
	return CallSummary{
		Room:     m.room,
		Peer:     m.peer,
		Status:   status,
		Duration: time.Since(m.started),
		Messages: m.messages,
	}
}

// RunCall shows the call screen until the call ends and returns its summary.
func RunCall(ctl Controller, initial call.Snapshot, link string) (CallSummary, error) {
	m := NewCallModel(ctl, initial, link)
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return CallSummary{}, err
	}
	return final.(*CallModel).Summary(), nil
}
