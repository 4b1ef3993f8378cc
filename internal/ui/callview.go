package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Warptalk/internal/call"
	"github.com/BioHazard786/Warptalk/internal/negotiation"
	"github.com/BioHazard786/Warptalk/internal/transcript"
)

const defaultVisibleLines = 12

// Call is what the call view drives. *call.Session implements it.
type Call interface {
	Updates() <-chan call.Update
	Transcript() []transcript.Entry
	State() negotiation.State
	Muted() bool
	PeerAudio() bool
	Listening() bool
	RoomID() string
	PeerID() string

	Start() error
	End()
	ToggleMute()
	ClearTranscript()
}

type updateMsg call.Update

type startedMsg struct{ err error }

// CallModel is the interactive call screen. Typed lines are written to
// speech, where a transcript.LineSource turns them into recognizer results.
type CallModel struct {
	call   Call
	speech io.Writer

	spinner spinner.Model
	input   textinput.Model

	state    negotiation.State
	roomID   string
	peerID   string
	notice   string
	err      error
	entries  []transcript.Entry
	visible  int
	quitting bool
}

func NewCallModel(c Call, speech io.Writer) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	in := textinput.New()
	in.Placeholder = "speak by typing; empty line ends the segment"
	in.Prompt = "› "
	in.CharLimit = 500
	in.Focus()

	return &CallModel{
		call:    c,
		speech:  speech,
		spinner: s,
		input:   in,
		state:   c.State(),
		roomID:  c.RoomID(),
		visible: defaultVisibleLines,
		notice:  "Connecting to room...",
	}
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink, m.waitForUpdate())
}

func (m *CallModel) waitForUpdate() tea.Cmd {
	updates := m.call.Updates()
	return func() tea.Msg {
		return updateMsg(<-updates)
	}
}

func (m *CallModel) startCall() tea.Cmd {
	return func() tea.Msg {
		return startedMsg{err: m.call.Start()}
	}
}

func (m *CallModel) say(line string) tea.Cmd {
	if m.speech == nil {
		return nil
	}
	w := m.speech
	return func() tea.Msg {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return startedMsg{err: err}
		}
		return nil
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "ctrl+t":
			m.call.ToggleMute()
			return m, nil
		case "ctrl+l":
			m.call.ClearTranscript()
			m.entries = nil
			return m, nil
		case "ctrl+e":
			if m.state == negotiation.StateIdle || m.state == negotiation.StateError {
				m.notice = "Starting call..."
				return m, m.startCall()
			}
			m.call.End()
			m.notice = "Call ended. Press ctrl+e to call again."
			return m, nil
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			return m, m.say(line)
		}

	case tea.WindowSizeMsg:
		m.visible = max(3, msg.Height-10)
		m.input.Width = max(20, msg.Width-6)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case startedMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil

	case updateMsg:
		cmds = append(cmds, m.apply(call.Update(msg)), m.waitForUpdate())
		return m, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *CallModel) apply(u call.Update) tea.Cmd {
	switch u.Kind {
	case call.UpdateRoomCreated:
		m.roomID = u.RoomID
		m.notice = "Room created. Joining..."

	case call.UpdateRoomJoined:
		m.roomID = u.RoomID
		m.peerID = m.call.PeerID()
		m.err = nil
		if m.peerID == "" {
			m.notice = "Waiting for someone to join..."
		} else {
			m.notice = "Joined. Calling " + m.peerID + "..."
		}
		return m.startCall()

	case call.UpdatePeerJoined:
		m.peerID = u.UserID
		m.notice = "Peer joined."

	case call.UpdatePeerLeft:
		m.peerID = ""
		m.notice = "Peer left. Waiting for someone to join..."

	case call.UpdateState:
		m.state = u.State
		switch u.State {
		case negotiation.StateConnected:
			m.notice = "Connected."
		case negotiation.StateDisconnected:
			m.notice = "Connection lost. Waiting for the peer..."
		case negotiation.StateError:
			m.err = u.Err
		}

	case call.UpdateTranscript:
		m.entries = m.call.Transcript()

	case call.UpdateError:
		m.err = u.Err
	}
	return nil
}

func stateBadge(s negotiation.State) string {
	switch s {
	case negotiation.StateConnected:
		return StatusStyle.Background(Success).Render(s.String())
	case negotiation.StateConnecting:
		return StatusStyle.Background(Warning).Render(s.String())
	case negotiation.StateError:
		return StatusStyle.Background(Error).Render(s.String())
	case negotiation.StateDisconnected:
		return StatusStyle.Background(Muted).Render(s.String())
	default:
		return StatusStyle.Render(s.String())
	}
}

func (m *CallModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	room := m.roomID
	if room == "" {
		room = "-"
	}
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s Warptalk  %s %s", IconCall, IconRoom, room)))
	b.WriteString("  " + stateBadge(m.state) + "\n\n")

	if m.state == negotiation.StateConnecting || m.peerID == "" {
		b.WriteString(m.spinner.View() + " ")
	}
	b.WriteString(m.notice + "\n")

	mic := IconMic + " live"
	if m.call.Muted() {
		mic = IconMuted + " muted"
	}
	listening := MutedStyle.Render("not transcribing")
	if m.call.Listening() {
		listening = SuccessStyle.Render("transcribing")
	}
	peer := MutedStyle.Render("no peer")
	if m.peerID != "" {
		peer = IconPeer + " " + m.peerID
		if m.call.PeerAudio() {
			peer += " (audio)"
		}
	}
	b.WriteString(fmt.Sprintf("%s  ·  %s  ·  %s\n\n", mic, listening, peer))

	b.WriteString(BoxStyle.Render(m.transcriptView()))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(FormatError(m.err) + "\n")
	}

	b.WriteString(m.input.View())
	b.WriteString(FooterStyle.Render("\nctrl+t mute · ctrl+e end/start call · ctrl+l clear · esc quit"))
	return b.String()
}

func (m *CallModel) transcriptView() string {
	if len(m.entries) == 0 {
		return MutedStyle.Render("Transcript will appear here.")
	}

	entries := m.entries
	if len(entries) > m.visible {
		entries = entries[len(entries)-m.visible:]
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		label := LocalSpeakerStyle.Render("You ")
		if e.Speaker == transcript.SpeakerRemote {
			label = RemoteSpeakerStyle.Render("Peer")
		}
		text := e.Text
		if !e.IsFinal {
			text = InterimStyle.Render(text)
		}
		lines = append(lines, label+"  "+text)
	}
	return strings.Join(lines, "\n")
}

// RunCall shows the call view until the user quits.
func RunCall(c Call, speech io.Writer) error {
	_, err := tea.NewProgram(NewCallModel(c, speech)).Run()
	return err
}
