package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Controller owns the local camera and screen captures.
//
// Acquisition runs without holding the lock, so other calls may interleave
// with a slow device prompt; the result is checked against the state found
// after it completes.
type Controller struct {
	capturer Capturer
	logger   *slog.Logger

	mu             sync.Mutex
	camera         *Capture
	screen         *Capture
	cameraStarting bool
	screenStarting bool
	micEnabled     bool
	closed         bool
	listener       Listener
}

// NewController creates a controller with no active media.
func NewController(capturer Capturer, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		capturer: capturer,
		logger:   logger.With("component", "media"),
	}
}

// SetListener registers the receiver of change notifications.
func (c *Controller) SetListener(l Listener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

// StartCamera acquires camera and microphone. It is a no-op while a camera
// capture is active or being acquired.
func (c *Controller) StartCamera(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.camera != nil || c.cameraStarting {
		c.mu.Unlock()
		return nil
	}
	c.cameraStarting = true
	c.mu.Unlock()

	capture, err := c.capturer.CaptureCamera(ctx)

	c.mu.Lock()
	c.cameraStarting = false
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("start camera: %w", err)
	}
	if c.closed {
		c.mu.Unlock()
		capture.Close()
		return ErrClosed
	}
	c.camera = capture
	c.micEnabled = true
	state := c.snapshotLocked()
	l := c.listener
	c.mu.Unlock()

	c.logger.Info("camera started")
	notify(l, Change{Kind: ChangeCamera, State: state})
	return nil
}

// StopCamera releases camera and microphone.
func (c *Controller) StopCamera() {
	c.mu.Lock()
	capture := c.camera
	if capture == nil {
		c.mu.Unlock()
		return
	}
	c.camera = nil
	c.micEnabled = false
	state := c.snapshotLocked()
	l := c.listener
	c.mu.Unlock()

	if err := capture.Close(); err != nil {
		c.logger.Warn("closing camera tracks", "error", err)
	}
	c.logger.Info("camera stopped")
	notify(l, Change{Kind: ChangeCamera, State: state})
}

// StartScreenShare acquires a screen capture. It is a no-op while a share is
// active or being acquired. Ending the capture from outside the app stops
// the share as StopScreenShare would.
func (c *Controller) StartScreenShare(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.screen != nil || c.screenStarting {
		c.mu.Unlock()
		return nil
	}
	c.screenStarting = true
	c.mu.Unlock()

	capture, err := c.capturer.CaptureScreen(ctx)

	c.mu.Lock()
	c.screenStarting = false
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("start screen share: %w", err)
	}
	if c.closed {
		c.mu.Unlock()
		capture.Close()
		return ErrClosed
	}
	c.screen = capture
	state := c.snapshotLocked()
	l := c.listener
	c.mu.Unlock()

	if track := capture.Track(ScreenVideo); track != nil {
		track.OnEnded(func(err error) {
			c.logger.Debug("screen capture ended", "error", err)
			c.stopScreen(capture)
		})
	}

	c.logger.Info("screen share started")
	notify(l, Change{Kind: ChangeScreen, State: state})
	return nil
}

// StopScreenShare releases the screen capture.
func (c *Controller) StopScreenShare() {
	c.mu.Lock()
	capture := c.screen
	c.mu.Unlock()
	c.stopScreen(capture)
}

// stopScreen stops the share only if capture is still the live one, so a
// late end hook from an earlier share leaves a newer one alone.
func (c *Controller) stopScreen(capture *Capture) {
	c.mu.Lock()
	if capture == nil || c.screen != capture {
		c.mu.Unlock()
		return
	}
	c.screen = nil
	state := c.snapshotLocked()
	l := c.listener
	c.mu.Unlock()

	if err := capture.Close(); err != nil {
		c.logger.Warn("closing screen track", "error", err)
	}
	c.logger.Info("screen share stopped")
	notify(l, Change{Kind: ChangeScreen, State: state})
}

// SetMicEnabled toggles whether the outgoing audio carries sound. Track
// presence is unchanged. Without an active camera there is nothing to toggle.
func (c *Controller) SetMicEnabled(enabled bool) {
	c.mu.Lock()
	if c.camera == nil || c.micEnabled == enabled {
		c.mu.Unlock()
		return
	}
	c.micEnabled = enabled
	state := c.snapshotLocked()
	l := c.listener
	c.mu.Unlock()

	notify(l, Change{Kind: ChangeMic, State: state})
}

// Snapshot returns the current local media state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close stops all capture. Further starts fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	camera, screen := c.camera, c.screen
	c.camera, c.screen = nil, nil
	c.micEnabled = false
	c.mu.Unlock()

	camera.Close()
	screen.Close()
}

func (c *Controller) snapshotLocked() State {
	return State{Camera: c.camera, Screen: c.screen, MicEnabled: c.micEnabled}
}

func notify(l Listener, change Change) {
	if l != nil {
		l.MediaChanged(change)
	}
}
