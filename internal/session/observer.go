package session

import (
	"github.com/BioHazard786/meshcall/internal/media"
	"github.com/BioHazard786/meshcall/internal/protocol"
)

// StatusKind says which presentation indicator a PeerStatus carries.
type StatusKind int

const (
	StatusMuted StatusKind = iota
	StatusSharing
)

// PeerStatus is a presentation-only indicator from a peer.
type PeerStatus struct {
	Kind  StatusKind
	Value bool
}

// Observer renders what the manager produces. Calls come from the
// manager's goroutine and must not call back into the manager.
type Observer interface {
	Joined(roomID, selfID string, peers []protocol.PeerInfo)
	PeerJoined(remoteID, displayName string)
	PeerLeft(remoteID string)
	// PeerMediaChanged reports an inbound track; a nil track means the kind
	// is gone.
	PeerMediaChanged(remoteID string, kind media.TrackKind, track RemoteTrack)
	PeerStatusChanged(remoteID string, status PeerStatus)
	PeerStateChanged(remoteID string, state State)
	RoomFull(roomID string)
}

// NopObserver ignores everything. Embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) Joined(string, string, []protocol.PeerInfo)            {}
func (NopObserver) PeerJoined(string, string)                             {}
func (NopObserver) PeerLeft(string)                                       {}
func (NopObserver) PeerMediaChanged(string, media.TrackKind, RemoteTrack) {}
func (NopObserver) PeerStatusChanged(string, PeerStatus)                  {}
func (NopObserver) PeerStateChanged(string, State)                        {}
func (NopObserver) RoomFull(string)                                       {}
