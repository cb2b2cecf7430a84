// Package mediatest provides in-memory tracks and capturers for tests.
package mediatest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/meshcall/internal/media"
)

// Track is a local track backed by a pion static sample track, so it can be
// bound to a real peer connection, plus controllable end and close hooks.
type Track struct {
	*webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	onEnded func(error)
	closed  bool
}

var _ media.Track = (*Track)(nil)

var trackSeq atomic.Int64

// NewTrack creates a track of the given kind with a unique id in stream.
func NewTrack(kind media.TrackKind, stream string) *Track {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	if kind == media.CameraAudio {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}

	id := fmt.Sprintf("%s-%d", kind, trackSeq.Add(1))
	sample, err := webrtc.NewTrackLocalStaticSample(codec, id, stream)
	if err != nil {
		panic(err)
	}
	return &Track{TrackLocalStaticSample: sample}
}

// OnEnded registers the end hook.
func (t *Track) OnEnded(handler func(error)) {
	t.mu.Lock()
	t.onEnded = handler
	t.mu.Unlock()
}

// End fires the end hook as the platform would when capture stops outside
// the app.
func (t *Track) End(err error) {
	t.mu.Lock()
	h := t.onEnded
	t.mu.Unlock()
	if h != nil {
		h(err)
	}
}

// Close marks the track released.
func (t *Track) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (t *Track) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Capturer hands out fresh fake captures and counts acquisitions.
type Capturer struct {
	// CameraErr and ScreenErr, when set, are returned instead of a capture.
	CameraErr error
	ScreenErr error

	// Gate, when non-nil, blocks every acquisition until it is closed or
	// receives a value.
	Gate chan struct{}

	// Entered, when non-nil, receives a value as each acquisition begins.
	Entered chan struct{}

	mu          sync.Mutex
	cameraCalls int
	screenCalls int
}

var _ media.Capturer = (*Capturer)(nil)

// CaptureCamera returns a new camera-video and camera-audio pair.
func (c *Capturer) CaptureCamera(ctx context.Context) (*media.Capture, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cameraCalls++
	if c.CameraErr != nil {
		return nil, c.CameraErr
	}
	stream := fmt.Sprintf("camera-%d", c.cameraCalls)
	capture := &media.Capture{Tracks: map[media.TrackKind]media.Track{
		media.CameraVideo: NewTrack(media.CameraVideo, stream),
		media.CameraAudio: NewTrack(media.CameraAudio, stream),
	}}
	return capture, nil
}

// CaptureScreen returns a new screen-video track.
func (c *Capturer) CaptureScreen(ctx context.Context) (*media.Capture, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.screenCalls++
	if c.ScreenErr != nil {
		return nil, c.ScreenErr
	}
	stream := fmt.Sprintf("screen-%d", c.screenCalls)
	capture := &media.Capture{Tracks: map[media.TrackKind]media.Track{
		media.ScreenVideo: NewTrack(media.ScreenVideo, stream),
	}}
	return capture, nil
}

// Calls returns how many camera and screen acquisitions ran.
func (c *Capturer) Calls() (camera, screen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cameraCalls, c.screenCalls
}

func (c *Capturer) wait(ctx context.Context) error {
	if c.Entered != nil {
		c.Entered <- struct{}{}
	}
	if c.Gate == nil {
		return nil
	}
	select {
	case <-c.Gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
