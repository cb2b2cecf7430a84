// Package session keeps one negotiated connection per remote peer in a
// room and drives offer/answer, trickled candidates and track changes
// through the signaling hub.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/meshcall/internal/media"
	"github.com/BioHazard786/meshcall/internal/protocol"
)

const eventBuffer = 256

// Outbox delivers a message to the hub.
type Outbox interface {
	SendMessage(msg *protocol.Message) error
}

// MediaSource reports the current local media.
type MediaSource interface {
	Snapshot() media.State
}

// Options configure a Manager.
type Options struct {
	Outbox      Outbox
	Factory     ConnectionFactory
	Media       MediaSource
	Observer    Observer
	Logger      *slog.Logger
	DisplayName string
}

// Manager owns every PeerSession. All state is touched by one goroutine:
// the one running Run, or the caller of Dispatch when Run is not used.
type Manager struct {
	outbox   Outbox
	factory  ConnectionFactory
	media    MediaSource
	observer Observer
	logger   *slog.Logger

	displayName string
	selfID      string
	roomID      string
	sessions    map[string]*PeerSession

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a manager. It does nothing until Join is called and
// events are dispatched.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	return &Manager{
		outbox:      opts.Outbox,
		factory:     opts.Factory,
		media:       opts.Media,
		observer:    observer,
		logger:      logger.With("component", "session"),
		displayName: opts.DisplayName,
		sessions:    make(map[string]*PeerSession),
		events:      make(chan Event, eventBuffer),
		done:        make(chan struct{}),
	}
}

// Join asks the hub to admit us to roomID.
func (m *Manager) Join(roomID string) error {
	return m.outbox.SendMessage(&protocol.Message{
		Type:        protocol.TypeJoin,
		RoomID:      roomID,
		DisplayName: m.displayName,
	})
}

// Post queues an event for the manager goroutine. It never blocks after
// the manager is closed.
func (m *Manager) Post(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// MediaChanged implements media.Listener.
func (m *Manager) MediaChanged(change media.Change) {
	m.Post(LocalMediaChanged{Change: change})
}

// Run processes hub messages and posted events until ctx ends, incoming
// closes or the room turns out to be full. Every session is closed on
// return.
func (m *Manager) Run(ctx context.Context, incoming <-chan *protocol.Message) error {
	defer m.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-incoming:
			if !ok {
				return ErrSignalingClosed
			}
			if err := m.Dispatch(SignalReceived{Message: msg}); err != nil {
				if errors.Is(err, ErrRoomFull) {
					return err
				}
				m.report(err)
			}

		case ev := <-m.events:
			if err := m.Dispatch(ev); err != nil {
				m.report(err)
			}
		}
	}
}

func (m *Manager) report(err error) {
	if errors.Is(err, ErrConnectionTerminal) {
		m.logger.Info("peer connection ended", "err", err)
		return
	}
	m.logger.Warn("event failed", "err", err)
}

// Close tears down every session. It must not run concurrently with Run
// or Dispatch.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		for _, s := range m.ordered() {
			m.closeSession(s)
		}
	})
}

// Dispatch handles one event synchronously.
func (m *Manager) Dispatch(ev Event) error {
	switch ev := ev.(type) {
	case SignalReceived:
		return m.handleSignal(ev.Message)

	case LocalMediaChanged:
		return m.handleLocalChange(ev.Change)

	case CandidateGathered:
		s := m.sessionFor(ev.Conn)
		if s == nil {
			return nil
		}
		cand := ev.Candidate
		m.send(&protocol.Message{
			Type:    protocol.TypeICECandidate,
			To:      s.RemoteID,
			Payload: protocol.CandidatePayload{Candidate: &cand},
		})
		return nil

	case ConnectionStateChanged:
		s := m.sessionFor(ev.Conn)
		if s == nil {
			return nil
		}
		switch ev.State {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			m.closeSession(s)
			return fmt.Errorf("%w: %s is %s", ErrConnectionTerminal, s.RemoteID, ev.State)
		}
		m.logger.Debug("connection state", "peer", s.RemoteID, "state", ev.State.String())
		return nil

	case RemoteTrackAdded:
		s := m.sessionFor(ev.Conn)
		if s == nil {
			return nil
		}
		kind := s.classify(ev.Track)
		s.remoteTracks[kind] = ev.Track
		m.logger.Debug("remote track", "peer", s.RemoteID, "kind", kind, "track", ev.Track.ID())
		m.observer.PeerMediaChanged(s.RemoteID, kind, ev.Track)
		return nil
	}
	return fmt.Errorf("unknown event %T", ev)
}

func (m *Manager) handleSignal(msg *protocol.Message) error {
	if msg == nil {
		return nil
	}

	switch msg.Type {
	case protocol.TypeJoined:
		return m.handleJoined(msg)

	case protocol.TypeFull:
		m.observer.RoomFull(msg.RoomID)
		return fmt.Errorf("%w: %s", ErrRoomFull, msg.RoomID)

	case protocol.TypePeerJoined:
		if _, ok := m.sessions[msg.ID]; ok || msg.ID == "" {
			return nil
		}
		if _, err := m.openSession(msg.ID, msg.DisplayName); err != nil {
			return err
		}
		m.observer.PeerJoined(msg.ID, msg.DisplayName)
		m.sendStatusTo(msg.ID)
		return nil

	case protocol.TypePeerLeft:
		if s, ok := m.sessions[msg.ID]; ok {
			m.closeSession(s)
		}
		m.observer.PeerLeft(msg.ID)
		return nil

	case protocol.TypeOffer:
		return m.handleOffer(msg)

	case protocol.TypeAnswer:
		return m.handleAnswer(msg)

	case protocol.TypeICECandidate:
		return m.handleCandidate(msg)

	case protocol.TypePeerMuted:
		var p protocol.MutePayload
		if err := protocol.DecodePayload(msg.Payload, &p); err != nil {
			return applyError(msg.From, "mute status", err)
		}
		m.observer.PeerStatusChanged(msg.From, PeerStatus{Kind: StatusMuted, Value: p.Muted})
		return nil

	case protocol.TypePeerScreen:
		var p protocol.ScreenPayload
		if err := protocol.DecodePayload(msg.Payload, &p); err != nil {
			return applyError(msg.From, "screen status", err)
		}
		m.observer.PeerStatusChanged(msg.From, PeerStatus{Kind: StatusSharing, Value: p.Sharing})
		return nil
	}

	m.logger.Debug("ignoring message", "type", msg.Type)
	return nil
}

// handleJoined opens a session to every member already in the room and
// offers to each; the newcomer always starts the first exchange.
func (m *Manager) handleJoined(msg *protocol.Message) error {
	m.selfID = msg.You
	m.roomID = msg.RoomID
	if msg.DisplayName != "" {
		m.displayName = msg.DisplayName
	}
	m.logger.Info("joined room", "room", m.roomID, "self", m.selfID, "peers", len(msg.Peers))
	m.observer.Joined(msg.RoomID, msg.You, msg.Peers)

	var errs []error
	for _, p := range msg.Peers {
		if p.ID == m.selfID {
			continue
		}
		if _, ok := m.sessions[p.ID]; ok {
			continue
		}
		s, err := m.openSession(p.ID, p.DisplayName)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m.observer.PeerJoined(p.ID, p.DisplayName)
		if err := m.offer(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) handleOffer(msg *protocol.Message) error {
	var p protocol.SessionPayload
	if err := protocol.DecodePayload(msg.Payload, &p); err != nil {
		return applyError(msg.From, "offer", err)
	}
	if p.Description.SDP == "" {
		return applyError(msg.From, "offer without sdp", nil)
	}

	s, ok := m.sessions[msg.From]
	if !ok {
		var err error
		if s, err = m.openSession(msg.From, p.DisplayName); err != nil {
			return err
		}
		m.observer.PeerJoined(msg.From, p.DisplayName)
	}
	if s.DisplayName == "" {
		s.DisplayName = p.DisplayName
	}

	if s.state == Offering {
		if m.selfID < s.RemoteID {
			m.logger.Debug("keeping local offer over colliding offer", "peer", s.RemoteID)
			return nil
		}
		// A sent offer cannot be withdrawn, so the colliding offer is taken
		// on a fresh connection and ours is made again afterwards.
		if err := m.rebuild(s); err != nil {
			return err
		}
		m.logger.Debug("replaced connection for colliding offer", "peer", s.RemoteID)
		s.dirty = true
	}

	prev := s.state
	m.setState(s, AnswerPending)
	err := s.conn.SetRemoteDescription(p.Description)
	if errors.Is(err, ErrRemoteRestarted) {
		m.logger.Debug("peer replaced its connection", "peer", s.RemoteID)
		if err = m.rebuild(s); err == nil {
			prev = Idle
			m.setState(s, AnswerPending)
			err = s.conn.SetRemoteDescription(p.Description)
		}
	}
	if err != nil {
		m.setState(s, prev)
		return applyError(s.RemoteID, "offer", err)
	}
	s.remoteDescSet = true
	m.applyRemoteLabels(s, p.Tracks)
	m.flushCandidates(s)

	// Tracks added while answering may have no slot in the remote offer,
	// so they get an offer of their own once this exchange completes.
	added, err := m.syncSenders(s)
	if err != nil {
		m.logger.Warn("attaching local tracks", "peer", s.RemoteID, "err", err)
	}
	if added {
		s.dirty = true
	}

	answer, err := s.conn.CreateAnswer()
	if err != nil {
		m.setState(s, prev)
		return negotiationError(s.RemoteID, "answer", err)
	}
	m.send(&protocol.Message{
		Type: protocol.TypeAnswer,
		To:   s.RemoteID,
		Payload: protocol.SessionPayload{
			Description: answer,
			Tracks:      s.labels(),
			DisplayName: m.displayName,
		},
	})

	s.negotiated = true
	m.setState(s, Stable)
	if s.dirty {
		return m.offer(s)
	}
	return nil
}

func (m *Manager) handleAnswer(msg *protocol.Message) error {
	s, ok := m.sessions[msg.From]
	if !ok {
		return applyError(msg.From, "answer for unknown peer", nil)
	}
	if s.state != Offering {
		return applyError(s.RemoteID, "answer while "+s.state.String(), nil)
	}

	var p protocol.SessionPayload
	if err := protocol.DecodePayload(msg.Payload, &p); err != nil {
		return applyError(s.RemoteID, "answer", err)
	}
	if p.Description.SDP == "" {
		return applyError(s.RemoteID, "answer without sdp", nil)
	}
	err := s.conn.SetRemoteDescription(p.Description)
	if errors.Is(err, ErrRemoteRestarted) {
		// The peer answered from a new connection, which ours cannot talk
		// to. Start over from a new one of our own.
		m.logger.Debug("peer answered from a new connection", "peer", s.RemoteID)
		if err := m.rebuild(s); err != nil {
			return err
		}
		return m.offer(s)
	}
	if err != nil {
		return applyError(s.RemoteID, "answer", err)
	}
	if s.DisplayName == "" {
		s.DisplayName = p.DisplayName
	}

	s.remoteDescSet = true
	m.applyRemoteLabels(s, p.Tracks)
	m.flushCandidates(s)

	s.negotiated = true
	m.setState(s, Stable)
	if s.dirty {
		return m.offer(s)
	}
	return nil
}

func (m *Manager) handleCandidate(msg *protocol.Message) error {
	s, ok := m.sessions[msg.From]
	if !ok {
		m.logger.Debug("candidate for unknown peer", "from", msg.From)
		return nil
	}

	var p protocol.CandidatePayload
	if err := protocol.DecodePayload(msg.Payload, &p); err != nil || p.Candidate == nil || p.Candidate.Candidate == "" {
		return nil
	}

	if !s.remoteDescSet {
		s.pending = append(s.pending, *p.Candidate)
		return nil
	}
	if err := s.conn.AddICECandidate(*p.Candidate); err != nil {
		return applyError(s.RemoteID, "candidate", err)
	}
	return nil
}

func (m *Manager) flushCandidates(s *PeerSession) {
	for _, c := range s.pending {
		if err := s.conn.AddICECandidate(c); err != nil {
			m.logger.Warn("queued candidate rejected", "peer", s.RemoteID, "err", err)
		}
	}
	s.pending = nil
}

func (m *Manager) handleLocalChange(change media.Change) error {
	m.logger.Debug("local media changed", "kind", change.Kind.String())

	var errs []error
	switch change.Kind {
	case media.ChangeMic:
		state := m.media.Snapshot()
		for _, s := range m.ordered() {
			if err := m.applyMic(s, state); err != nil {
				errs = append(errs, fmt.Errorf("mute %s: %w", s.RemoteID, err))
			}
		}
		if state.CameraActive() {
			m.broadcastStatus(protocol.TypeMute, protocol.MutePayload{Muted: !state.MicEnabled})
		}

	case media.ChangeCamera:
		for _, s := range m.ordered() {
			if err := m.renegotiate(s); err != nil {
				errs = append(errs, err)
			}
		}
		state := m.media.Snapshot()
		m.broadcastStatus(protocol.TypeMute, protocol.MutePayload{
			Muted: !state.CameraActive() || !state.MicEnabled,
		})

	case media.ChangeScreen:
		for _, s := range m.ordered() {
			if err := m.renegotiate(s); err != nil {
				errs = append(errs, err)
			}
		}
		state := m.media.Snapshot()
		m.broadcastStatus(protocol.TypeScreenStatus, protocol.ScreenPayload{Sharing: state.ScreenActive()})
	}
	return errors.Join(errs...)
}

// renegotiate offers now when the session is stable and otherwise marks
// it so an offer follows the exchange in flight.
func (m *Manager) renegotiate(s *PeerSession) error {
	switch s.state {
	case Stable:
		return m.offer(s)
	case Closed:
		return nil
	}
	s.dirty = true
	return nil
}

func (m *Manager) offer(s *PeerSession) error {
	s.dirty = false
	if _, err := m.syncSenders(s); err != nil {
		m.logger.Warn("attaching local tracks", "peer", s.RemoteID, "err", err)
	}

	desc, err := s.conn.CreateOffer()
	if err != nil {
		return negotiationError(s.RemoteID, "offer", err)
	}
	m.setState(s, Offering)
	m.send(&protocol.Message{
		Type: protocol.TypeOffer,
		To:   s.RemoteID,
		Payload: protocol.SessionPayload{
			Description: desc,
			Tracks:      s.labels(),
			DisplayName: m.displayName,
		},
	})
	return nil
}

// syncSenders makes the session's outgoing slots match current local
// media: absent kinds are removed, new kinds added and restarted captures
// swapped in place. It reports whether any slot was added.
func (m *Manager) syncSenders(s *PeerSession) (bool, error) {
	state := m.media.Snapshot()

	var added bool
	var errs []error
	for _, kind := range media.TrackKinds {
		want := state.Track(kind)
		sender := s.senders[kind]

		switch {
		case want == nil && sender != nil:
			if err := s.conn.RemoveTrack(sender); err != nil {
				errs = append(errs, fmt.Errorf("remove %s: %w", kind, err))
			}
			delete(s.senders, kind)
			delete(s.attached, kind)
			if kind == media.CameraAudio {
				s.micMuted = false
			}

		case want != nil && sender == nil:
			snd, err := s.conn.AddTrack(want)
			if err != nil {
				errs = append(errs, fmt.Errorf("add %s: %w", kind, err))
				continue
			}
			s.senders[kind] = snd
			s.attached[kind] = want
			added = true

		case want != nil && s.attached[kind] != want:
			if err := sender.ReplaceTrack(want); err != nil {
				errs = append(errs, fmt.Errorf("replace %s: %w", kind, err))
				continue
			}
			s.attached[kind] = want
			if kind == media.CameraAudio {
				s.micMuted = false
			}
		}
	}

	if err := m.applyMic(s, state); err != nil {
		errs = append(errs, fmt.Errorf("mute: %w", err))
	}
	return added, errors.Join(errs...)
}

// applyMic silences or restores the audio slot without renegotiating.
func (m *Manager) applyMic(s *PeerSession, state media.State) error {
	sender := s.senders[media.CameraAudio]
	track := s.attached[media.CameraAudio]
	if sender == nil || track == nil {
		return nil
	}

	muted := !state.MicEnabled
	if muted == s.micMuted {
		return nil
	}

	var next media.Track
	if !muted {
		next = track
	}
	if err := sender.ReplaceTrack(next); err != nil {
		return err
	}
	s.micMuted = muted
	return nil
}

// applyRemoteLabels records the kinds a labelling peer declared and
// reports kinds it no longer sends.
func (m *Manager) applyRemoteLabels(s *PeerSession, labels []protocol.TrackLabel) {
	if labels == nil {
		return
	}

	next := make(map[string]media.TrackKind, len(labels))
	for _, l := range labels {
		if kind, ok := media.ParseTrackKind(l.Kind); ok {
			next[l.TrackID] = kind
		}
	}
	s.remoteLabels = next

	for _, kind := range media.TrackKinds {
		t, ok := s.remoteTracks[kind]
		if !ok {
			continue
		}
		if labelled, ok := next[t.ID()]; ok && labelled == kind {
			continue
		}
		delete(s.remoteTracks, kind)
		m.observer.PeerMediaChanged(s.RemoteID, kind, nil)
	}
}

func (m *Manager) sendStatusTo(remoteID string) {
	state := m.media.Snapshot()
	if state.CameraActive() {
		m.send(&protocol.Message{
			Type:    protocol.TypeMute,
			To:      remoteID,
			Payload: protocol.MutePayload{Muted: !state.MicEnabled},
		})
	}
	if state.ScreenActive() {
		m.send(&protocol.Message{
			Type:    protocol.TypeScreenStatus,
			To:      remoteID,
			Payload: protocol.ScreenPayload{Sharing: true},
		})
	}
}

func (m *Manager) broadcastStatus(msgType string, payload any) {
	if m.selfID == "" {
		return
	}
	m.send(&protocol.Message{Type: msgType, RoomID: m.roomID, Payload: payload})
}

func (m *Manager) openSession(remoteID, displayName string) (*PeerSession, error) {
	conn, err := m.factory.NewConnection(remoteID, m)
	if err != nil {
		return nil, fmt.Errorf("connection to %s: %w", remoteID, err)
	}
	s := newPeerSession(remoteID, displayName, conn)
	m.sessions[remoteID] = s
	m.logger.Debug("session opened", "peer", remoteID)
	m.observer.PeerStateChanged(remoteID, Idle)
	return s, nil
}

// rebuild replaces the session's connection. Outgoing slots and inbound
// tracks of the old connection are dropped; both come back through the
// next exchange.
func (m *Manager) rebuild(s *PeerSession) error {
	conn, err := m.factory.NewConnection(s.RemoteID, m)
	if err != nil {
		return fmt.Errorf("connection to %s: %w", s.RemoteID, err)
	}

	old := s.conn
	s.reset(conn)
	m.dropRemoteTracks(s)
	if err := old.Close(); err != nil {
		m.logger.Debug("closing replaced connection", "peer", s.RemoteID, "err", err)
	}
	m.setState(s, Idle)
	return nil
}

func (m *Manager) dropRemoteTracks(s *PeerSession) {
	for _, kind := range media.TrackKinds {
		if _, ok := s.remoteTracks[kind]; ok {
			delete(s.remoteTracks, kind)
			m.observer.PeerMediaChanged(s.RemoteID, kind, nil)
		}
	}
}

func (m *Manager) closeSession(s *PeerSession) {
	delete(m.sessions, s.RemoteID)
	m.dropRemoteTracks(s)
	if err := s.conn.Close(); err != nil {
		m.logger.Debug("closing connection", "peer", s.RemoteID, "err", err)
	}
	m.setState(s, Closed)
	m.logger.Debug("session closed", "peer", s.RemoteID)
}

func (m *Manager) setState(s *PeerSession, state State) {
	if s.state == state {
		return
	}
	s.state = state
	m.observer.PeerStateChanged(s.RemoteID, state)
}

func (m *Manager) sessionFor(conn Connection) *PeerSession {
	for _, s := range m.sessions {
		if s.conn == conn {
			return s
		}
	}
	return nil
}

func (m *Manager) ordered() []*PeerSession {
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]*PeerSession, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.sessions[id])
	}
	return out
}

func (m *Manager) send(msg *protocol.Message) {
	if err := m.outbox.SendMessage(msg); err != nil {
		m.logger.Warn("send failed", "type", msg.Type, "to", msg.To, "err", err)
	}
}

// SelfID returns the id the hub assigned, or "" before joining.
func (m *Manager) SelfID() string { return m.selfID }

// Session returns the session for remoteID, or nil.
func (m *Manager) Session(remoteID string) *PeerSession { return m.sessions[remoteID] }
