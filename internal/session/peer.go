package session

import (
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/meshcall/internal/media"
	"github.com/BioHazard786/meshcall/internal/protocol"
)

// State is the negotiation state of one peer session.
type State int

const (
	// Idle: the connection exists but no description has been exchanged.
	Idle State = iota
	// Offering: a local offer was sent and no answer applied yet.
	Offering
	// AnswerPending: a remote offer is applied and our answer is being built.
	AnswerPending
	Stable
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Offering:
		return "offering"
	case AnswerPending:
		return "answer-pending"
	case Stable:
		return "stable"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// PeerSession is the local view of the connection to one remote peer.
// It is owned by the manager goroutine.
type PeerSession struct {
	RemoteID    string
	DisplayName string

	conn  Connection
	state State

	senders  map[media.TrackKind]Sender
	attached map[media.TrackKind]media.Track
	micMuted bool

	// dirty is set when local media changed while an exchange was in
	// flight; a fresh offer follows once the session is stable.
	dirty      bool
	negotiated bool

	remoteDescSet bool
	pending       []protocol.ICECandidate

	remoteLabels map[string]media.TrackKind
	remoteTracks map[media.TrackKind]RemoteTrack
}

func newPeerSession(remoteID, displayName string, conn Connection) *PeerSession {
	return &PeerSession{
		RemoteID:     remoteID,
		DisplayName:  displayName,
		conn:         conn,
		state:        Idle,
		senders:      make(map[media.TrackKind]Sender),
		attached:     make(map[media.TrackKind]media.Track),
		remoteLabels: make(map[string]media.TrackKind),
		remoteTracks: make(map[media.TrackKind]RemoteTrack),
	}
}

// State returns the negotiation state.
func (s *PeerSession) State() State { return s.state }

// Sender returns the outgoing slot for kind, or nil.
func (s *PeerSession) Sender(kind media.TrackKind) Sender { return s.senders[kind] }

// RemoteTrack returns the inbound track of kind, or nil.
func (s *PeerSession) RemoteTrack(kind media.TrackKind) RemoteTrack { return s.remoteTracks[kind] }

// reset moves the session onto conn, forgetting everything negotiated on
// the previous connection. Remote tracks are left for the caller to report.
func (s *PeerSession) reset(conn Connection) {
	s.conn = conn
	s.senders = make(map[media.TrackKind]Sender)
	s.attached = make(map[media.TrackKind]media.Track)
	s.micMuted = false
	s.negotiated = false
	s.remoteDescSet = false
	s.pending = nil
	s.remoteLabels = make(map[string]media.TrackKind)
}

// labels describes every attached track. The slice is never nil so the
// receiver can tell "no tracks" from "no labels".
func (s *PeerSession) labels() []protocol.TrackLabel {
	out := make([]protocol.TrackLabel, 0, len(s.attached))
	for _, kind := range media.TrackKinds {
		t, ok := s.attached[kind]
		if !ok {
			continue
		}
		out = append(out, protocol.TrackLabel{
			TrackID:  t.ID(),
			StreamID: t.StreamID(),
			Kind:     string(kind),
		})
	}
	return out
}

// classify maps an inbound track to a kind, by label when the peer sent
// one and by arrival otherwise.
func (s *PeerSession) classify(track RemoteTrack) media.TrackKind {
	if kind, ok := s.remoteLabels[track.ID()]; ok {
		return kind
	}
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		return media.CameraAudio
	}
	if _, taken := s.remoteTracks[media.CameraVideo]; !taken {
		return media.CameraVideo
	}
	return media.ScreenVideo
}
