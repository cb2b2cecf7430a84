package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/meshcall/internal/media"
	"github.com/BioHazard786/meshcall/internal/protocol"
	"github.com/BioHazard786/meshcall/internal/session"
)

// Controls are the actions the call view can trigger. They run outside the
// UI goroutine and may block.
type Controls interface {
	ToggleCamera()
	ToggleScreen()
	ToggleMic()
	Leave()
}

// LocalMedia is what the local participant is sending.
type LocalMedia struct {
	Camera bool
	Mic    bool
	Screen bool
}

type (
	joinedMsg struct {
		roomID string
		selfID string
		peers  []protocol.PeerInfo
	}
	peerJoinedMsg struct{ id, name string }
	peerLeftMsg   struct{ id string }
	peerMediaMsg  struct {
		id      string
		kind    media.TrackKind
		present bool
	}
	peerStatusMsg struct {
		id     string
		status session.PeerStatus
	}
	peerStateMsg struct {
		id    string
		state session.State
	}
	roomFullMsg   struct{ roomID string }
	localMediaMsg struct{ local LocalMedia }
	noticeMsg     struct {
		text string
		err  bool
	}
	endMsg struct{ reason string }
)

// CallModel is the Bubble Tea model for a running call.
type CallModel struct {
	roomID   string
	selfID   string
	selfName string
	local    LocalMedia

	peers map[string]*Participant
	order []string
	met   map[string]string
	peak  int

	notice    string
	noticeErr bool
	full      bool
	ended     string

	startedAt time.Time
	spinner   spinner.Model
	controls  Controls
	quitting  bool
}

// NewCallModel creates the model shown while joining roomID.
func NewCallModel(roomID, name string, controls Controls) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &CallModel{
		roomID:    roomID,
		selfName:  name,
		peers:     make(map[string]*Participant),
		met:       make(map[string]string),
		peak:      1,
		startedAt: time.Now(),
		spinner:   s,
		controls:  controls,
	}
}

func (m *CallModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case joinedMsg:
		m.roomID = msg.roomID
		m.selfID = msg.selfID
		m.startedAt = time.Now()
		for _, p := range msg.peers {
			m.ensure(p.ID).Name = p.DisplayName
		}

	case peerJoinedMsg:
		if msg.name != "" {
			m.ensure(msg.id).Name = msg.name
		} else {
			m.ensure(msg.id)
		}
		m.setNotice(fmt.Sprintf("%s joined", m.nameOf(msg.id)), false)

	case peerLeftMsg:
		if _, ok := m.peers[msg.id]; ok {
			m.setNotice(fmt.Sprintf("%s left", m.nameOf(msg.id)), false)
			m.remove(msg.id)
		}

	case peerStateMsg:
		m.ensure(msg.id).State = msg.state

	case peerMediaMsg:
		if p, ok := m.peers[msg.id]; ok {
			switch msg.kind {
			case media.CameraVideo:
				p.Camera = msg.present
			case media.CameraAudio:
				p.Audio = msg.present
			case media.ScreenVideo:
				p.Screen = msg.present
			}
		}

	case peerStatusMsg:
		if p, ok := m.peers[msg.id]; ok {
			switch msg.status.Kind {
			case session.StatusMuted:
				p.Muted = msg.status.Value
			case session.StatusSharing:
				p.Sharing = msg.status.Value
			}
		}

	case localMediaMsg:
		m.local = msg.local

	case noticeMsg:
		m.setNotice(msg.text, msg.err)

	case roomFullMsg:
		m.full = true
		m.ended = fmt.Sprintf("room %s is full", msg.roomID)
		m.quitting = true
		return m, tea.Quit

	case endMsg:
		if m.ended == "" {
			m.ended = msg.reason
		}
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *CallModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "c":
		return m, m.run(Controls.ToggleCamera)
	case "s":
		return m, m.run(Controls.ToggleScreen)
	case "m":
		return m, m.run(Controls.ToggleMic)
	case "q", "ctrl+c":
		if m.ended == "" {
			m.ended = "left"
		}
		m.quitting = true
		return m, tea.Batch(m.run(Controls.Leave), tea.Quit)
	}
	return m, nil
}

// run wraps a control so it executes off the UI goroutine.
func (m *CallModel) run(action func(Controls)) tea.Cmd {
	if m.controls == nil {
		return nil
	}
	c := m.controls
	return func() tea.Msg {
		action(c)
		return nil
	}
}

func (m *CallModel) ensure(id string) *Participant {
	p, ok := m.peers[id]
	if !ok {
		p = &Participant{ID: id}
		m.peers[id] = p
		m.order = append(m.order, id)
		m.peak = max(m.peak, len(m.peers)+1)
	}
	return p
}

func (m *CallModel) remove(id string) {
	p := m.peers[id]
	m.met[id] = p.Name
	delete(m.peers, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *CallModel) nameOf(id string) string {
	if p, ok := m.peers[id]; ok && p.Name != "" {
		return p.Name
	}
	return id
}

func (m *CallModel) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeErr = isErr
}

// Participants lists the local participant first, then peers in arrival
// order.
func (m *CallModel) Participants() []Participant {
	out := make([]Participant, 0, len(m.order)+1)
	out = append(out, Participant{
		ID:     m.selfID,
		Name:   m.selfName,
		Self:   true,
		Camera: m.local.Camera,
		Audio:  m.local.Mic,
		Muted:  m.local.Camera && !m.local.Mic,
		Screen: m.local.Screen,
	})
	for _, id := range m.order {
		out = append(out, *m.peers[id])
	}
	return out
}

// Summary describes the call so far.
func (m *CallModel) Summary() CallSummary {
	met := make([]string, 0, len(m.met)+len(m.peers))
	for id, name := range m.met {
		met = append(met, firstNonEmpty(name, id))
	}
	for _, id := range m.order {
		met = append(met, firstNonEmpty(m.peers[id].Name, id))
	}
	return CallSummary{
		RoomID:   m.roomID,
		Duration: time.Since(m.startedAt),
		Met:      met,
		Peak:     m.peak,
		Reason:   m.ended,
	}
}

func (m *CallModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	header := fmt.Sprintf("%s Room %s", IconRoom, m.roomID)
	if m.selfID != "" {
		header += " " + StatusStyle.Render(truncate(m.selfID, 8))
	}
	b.WriteString(HeaderStyle.Render(header))
	b.WriteString("\n")

	if m.selfID == "" {
		b.WriteString(fmt.Sprintf("%s Joining...\n", m.spinner.View()))
	} else {
		b.WriteString(fmt.Sprintf("%s %d of %d in call\n\n", IconPeer, len(m.peers)+1, protocol.RoomCapacity))
		b.WriteString(ParticipantTable(m.Participants()))
		b.WriteString("\n")
	}

	if m.notice != "" {
		style := MutedStyle
		if m.noticeErr {
			style = ErrorStyle
		}
		b.WriteString("\n" + style.Render(m.notice) + "\n")
	}

	b.WriteString(FooterStyle.Render("c camera • s screen • m mic • q leave"))
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// CallUI runs the call view and adapts session callbacks into model
// messages.
type CallUI struct {
	model   *CallModel
	program *tea.Program
}

var _ session.Observer = (*CallUI)(nil)

// NewCallUI creates the view. Run blocks until the user leaves or End is
// called.
func NewCallUI(roomID, name string, controls Controls, opts ...tea.ProgramOption) *CallUI {
	m := NewCallModel(roomID, name, controls)
	return &CallUI{model: m, program: tea.NewProgram(m, opts...)}
}

// Run shows the view until it quits.
func (u *CallUI) Run() error {
	_, err := u.program.Run()
	return err
}

// Summary is valid once Run has returned.
func (u *CallUI) Summary() CallSummary { return u.model.Summary() }

func (u *CallUI) Joined(roomID, selfID string, peers []protocol.PeerInfo) {
	u.program.Send(joinedMsg{roomID: roomID, selfID: selfID, peers: peers})
}

func (u *CallUI) PeerJoined(remoteID, displayName string) {
	u.program.Send(peerJoinedMsg{id: remoteID, name: displayName})
}

func (u *CallUI) PeerLeft(remoteID string) {
	u.program.Send(peerLeftMsg{id: remoteID})
}

func (u *CallUI) PeerMediaChanged(remoteID string, kind media.TrackKind, track session.RemoteTrack) {
	u.program.Send(peerMediaMsg{id: remoteID, kind: kind, present: track != nil})
}

func (u *CallUI) PeerStatusChanged(remoteID string, status session.PeerStatus) {
	u.program.Send(peerStatusMsg{id: remoteID, status: status})
}

func (u *CallUI) PeerStateChanged(remoteID string, state session.State) {
	u.program.Send(peerStateMsg{id: remoteID, state: state})
}

func (u *CallUI) RoomFull(roomID string) {
	u.program.Send(roomFullMsg{roomID: roomID})
}

// LocalMediaChanged shows what we are sending.
func (u *CallUI) LocalMediaChanged(state media.State) {
	u.program.Send(localMediaMsg{local: LocalMedia{
		Camera: state.CameraActive(),
		Mic:    state.CameraActive() && state.MicEnabled,
		Screen: state.ScreenActive(),
	}})
}

// Notice shows a transient line under the table.
func (u *CallUI) Notice(text string) {
	u.program.Send(noticeMsg{text: text})
}

// Error shows err under the table without ending the call.
func (u *CallUI) Error(err error) {
	u.program.Send(noticeMsg{text: err.Error(), err: true})
}

// End closes the view with reason.
func (u *CallUI) End(reason string) {
	u.program.Send(endMsg{reason: reason})
}
