package media

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

var (
	ErrMediaAccessDenied = errors.New("media access denied")
	ErrUserCancelled     = errors.New("capture cancelled by user")
	ErrClosed            = errors.New("media controller closed")
)

// TrackKind is the category of an outgoing track.
type TrackKind string

const (
	CameraVideo TrackKind = "camera-video"
	CameraAudio TrackKind = "camera-audio"
	ScreenVideo TrackKind = "screen-video"
)

// TrackKinds lists every kind in sender order.
var TrackKinds = []TrackKind{CameraVideo, CameraAudio, ScreenVideo}

// ParseTrackKind validates a kind received from a peer.
func ParseTrackKind(s string) (TrackKind, bool) {
	switch k := TrackKind(s); k {
	case CameraVideo, CameraAudio, ScreenVideo:
		return k, true
	}
	return "", false
}

// Track is a local capture track that can be attached to a peer connection.
type Track interface {
	webrtc.TrackLocal
	Close() error
	OnEnded(handler func(error))
}

// Capture is the set of tracks produced by one acquisition.
type Capture struct {
	Tracks map[TrackKind]Track
}

// Track returns the track of the given kind, or nil.
func (c *Capture) Track(kind TrackKind) Track {
	if c == nil {
		return nil
	}
	return c.Tracks[kind]
}

// Close releases every track of the capture.
func (c *Capture) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, t := range c.Tracks {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Capturer acquires local media from the platform.
type Capturer interface {
	// CaptureCamera returns camera-video and camera-audio tracks.
	CaptureCamera(ctx context.Context) (*Capture, error)
	// CaptureScreen returns a screen-video track.
	CaptureScreen(ctx context.Context) (*Capture, error)
}

// State is a snapshot of local media.
type State struct {
	Camera     *Capture
	Screen     *Capture
	MicEnabled bool
}

// CameraActive reports whether a camera capture is live.
func (s State) CameraActive() bool { return s.Camera != nil }

// ScreenActive reports whether a screen capture is live.
func (s State) ScreenActive() bool { return s.Screen != nil }

// Track returns the live track of kind, or nil when absent.
func (s State) Track(kind TrackKind) Track {
	switch kind {
	case CameraVideo, CameraAudio:
		return s.Camera.Track(kind)
	case ScreenVideo:
		return s.Screen.Track(kind)
	}
	return nil
}

// Tracks returns every live track keyed by kind.
func (s State) Tracks() map[TrackKind]Track {
	out := make(map[TrackKind]Track, len(TrackKinds))
	for _, kind := range TrackKinds {
		if t := s.Track(kind); t != nil {
			out[kind] = t
		}
	}
	return out
}

// ChangeKind says which part of local media changed.
type ChangeKind int

const (
	ChangeCamera ChangeKind = iota
	ChangeScreen
	ChangeMic
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCamera:
		return "camera"
	case ChangeScreen:
		return "screen"
	case ChangeMic:
		return "mic"
	}
	return "unknown"
}

// Change is delivered to the Listener after every state change.
type Change struct {
	Kind  ChangeKind
	State State
}

// Listener is notified of local media changes.
type Listener interface {
	MediaChanged(change Change)
}
