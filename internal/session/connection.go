package session

import (
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/meshcall/internal/media"
	"github.com/BioHazard786/meshcall/internal/protocol"
)

// Connection is the realtime connection to one remote peer. Every method is
// called from the manager's goroutine.
type Connection interface {
	AddTrack(track media.Track) (Sender, error)
	RemoveTrack(sender Sender) error

	// CreateOffer and CreateAnswer also apply the result as the local
	// description.
	CreateOffer() (protocol.SessionDescription, error)
	CreateAnswer() (protocol.SessionDescription, error)

	// SetRemoteDescription fails with ErrRemoteRestarted when desc comes
	// from a different remote connection than the one already negotiated.
	SetRemoteDescription(desc protocol.SessionDescription) error
	AddICECandidate(candidate protocol.ICECandidate) error
	Close() error
}

// Sender is an outgoing track slot on a connection.
type Sender interface {
	// ReplaceTrack swaps the outgoing track without renegotiating. A nil
	// track keeps the slot but sends nothing.
	ReplaceTrack(track media.Track) error
}

// RemoteTrack is an inbound track. *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
}

// EventSink receives connection callbacks. Implementations must not block
// for long; callbacks arrive on transport goroutines.
type EventSink interface {
	Post(ev Event)
}

// ConnectionFactory builds the connection for one remote peer. The
// connection reports its callbacks to sink as events carrying itself.
type ConnectionFactory interface {
	NewConnection(remoteID string, sink EventSink) (Connection, error)
}

// Event is anything the manager reacts to.
type Event interface {
	isEvent()
}

// SignalReceived carries a message from the hub.
type SignalReceived struct {
	Message *protocol.Message
}

// LocalMediaChanged reports a camera, screen or mic change.
type LocalMediaChanged struct {
	Change media.Change
}

// CandidateGathered reports a local ICE candidate to trickle to the peer.
type CandidateGathered struct {
	Conn      Connection
	Candidate protocol.ICECandidate
}

// ConnectionStateChanged reports the aggregate connection state.
type ConnectionStateChanged struct {
	Conn  Connection
	State webrtc.PeerConnectionState
}

// RemoteTrackAdded reports an inbound track.
type RemoteTrackAdded struct {
	Conn  Connection
	Track RemoteTrack
}

func (SignalReceived) isEvent()         {}
func (LocalMediaChanged) isEvent()      {}
func (CandidateGathered) isEvent()      {}
func (ConnectionStateChanged) isEvent() {}
func (RemoteTrackAdded) isEvent()       {}
