package call

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BioHazard786/meshcall/internal/media"
	"github.com/BioHazard786/meshcall/internal/ui"
)

// mediaControl is the part of media.Controller the key bindings drive.
type mediaControl interface {
	StartCamera(ctx context.Context) error
	StopCamera()
	StartScreenShare(ctx context.Context) error
	StopScreenShare()
	SetMicEnabled(enabled bool)
	Snapshot() media.State
}

type notifier interface {
	Notice(text string)
	Error(err error)
}

// controls turns key presses into media actions. Failures are shown in the
// call view and never end the call.
type controls struct {
	ctx    context.Context
	media  mediaControl
	view   notifier
	leave  func()
	logger *slog.Logger
}

var _ ui.Controls = (*controls)(nil)

func (c *controls) ToggleCamera() {
	if c.media.Snapshot().CameraActive() {
		c.media.StopCamera()
		return
	}
	c.startCamera()
}

func (c *controls) startCamera() {
	err := c.media.StartCamera(c.ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, media.ErrClosed):
		c.logger.Debug("camera start abandoned", "error", err)
	default:
		c.view.Error(NewError("start camera", err))
	}
}

func (c *controls) ToggleScreen() {
	if c.media.Snapshot().ScreenActive() {
		c.media.StopScreenShare()
		return
	}

	err := c.media.StartScreenShare(c.ctx)
	switch {
	case err == nil:
	case errors.Is(err, media.ErrUserCancelled):
		c.view.Notice("screen share cancelled")
	case errors.Is(err, media.ErrMediaAccessDenied):
		c.view.Error(WrapError("share screen", ErrScreenNotAllowed, err.Error()))
	case errors.Is(err, context.Canceled), errors.Is(err, media.ErrClosed):
		c.logger.Debug("screen share abandoned", "error", err)
	default:
		c.view.Error(NewError("share screen", err))
	}
}

func (c *controls) ToggleMic() {
	state := c.media.Snapshot()
	if !state.CameraActive() {
		c.view.Notice(ErrNothingToUnmute.Error())
		return
	}
	c.media.SetMicEnabled(!state.MicEnabled)
}

func (c *controls) Leave() {
	c.leave()
}

// fanout forwards media changes to every listener in order.
type fanout []media.Listener

func (f fanout) MediaChanged(change media.Change) {
	for _, l := range f {
		l.MediaChanged(change)
	}
}

// localView shows local media state in the call view.
type localView struct {
	view interface{ LocalMediaChanged(media.State) }
}

func (v localView) MediaChanged(change media.Change) {
	v.view.LocalMediaChanged(change.State)
}
