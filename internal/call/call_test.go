package call

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/meshcall/internal/media"
	"github.com/BioHazard786/meshcall/internal/media/mediatest"
	"github.com/BioHazard786/meshcall/internal/session"
)

type fakeView struct {
	mu      sync.Mutex
	notices []string
	errs    []error
	states  []media.State
}

func (v *fakeView) Notice(text string) {
	v.mu.Lock()
	v.notices = append(v.notices, text)
	v.mu.Unlock()
}

func (v *fakeView) Error(err error) {
	v.mu.Lock()
	v.errs = append(v.errs, err)
	v.mu.Unlock()
}

func (v *fakeView) LocalMediaChanged(state media.State) {
	v.mu.Lock()
	v.states = append(v.states, state)
	v.mu.Unlock()
}

type changeLog struct {
	kinds []media.ChangeKind
}

func (l *changeLog) MediaChanged(c media.Change) {
	l.kinds = append(l.kinds, c.Kind)
}

func newControls(t *testing.T, capturer *mediatest.Capturer) (*controls, *media.Controller, *fakeView) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl := media.NewController(capturer, logger)
	t.Cleanup(ctrl.Close)

	view := &fakeView{}
	c := &controls{
		ctx:    context.Background(),
		media:  ctrl,
		view:   view,
		leave:  func() {},
		logger: logger,
	}
	return c, ctrl, view
}

func TestControlsToggleMedia(t *testing.T) {
	c, ctrl, view := newControls(t, &mediatest.Capturer{})
	log := &changeLog{}
	ctrl.SetListener(fanout{log, localView{view}})

	c.ToggleMic()
	assert.Equal(t, []string{ErrNothingToUnmute.Error()}, view.notices)

	c.ToggleCamera()
	require.True(t, ctrl.Snapshot().CameraActive())

	c.ToggleMic()
	assert.False(t, ctrl.Snapshot().MicEnabled)
	c.ToggleMic()
	assert.True(t, ctrl.Snapshot().MicEnabled)

	c.ToggleScreen()
	require.True(t, ctrl.Snapshot().ScreenActive())
	c.ToggleScreen()
	assert.False(t, ctrl.Snapshot().ScreenActive())

	c.ToggleCamera()
	assert.False(t, ctrl.Snapshot().CameraActive())

	assert.Equal(t, []media.ChangeKind{
		media.ChangeCamera, media.ChangeMic, media.ChangeMic,
		media.ChangeScreen, media.ChangeScreen, media.ChangeCamera,
	}, log.kinds)
	assert.Len(t, view.states, len(log.kinds))
	assert.Empty(t, view.errs)
}

func TestControlsReportCaptureFailures(t *testing.T) {
	capturer := &mediatest.Capturer{
		CameraErr: fmt.Errorf("%w: no camera", media.ErrMediaAccessDenied),
		ScreenErr: media.ErrUserCancelled,
	}
	c, ctrl, view := newControls(t, capturer)

	c.ToggleCamera()
	assert.False(t, ctrl.Snapshot().CameraActive())
	require.Len(t, view.errs, 1)
	var callErr *Error
	require.ErrorAs(t, view.errs[0], &callErr)
	assert.Equal(t, "start camera", callErr.Op)
	assert.ErrorIs(t, view.errs[0], media.ErrMediaAccessDenied)

	c.ToggleScreen()
	assert.Equal(t, []string{"screen share cancelled"}, view.notices)

	capturer.ScreenErr = media.ErrMediaAccessDenied
	c.ToggleScreen()
	require.Len(t, view.errs, 2)
	assert.ErrorIs(t, view.errs[1], ErrScreenNotAllowed)
}

func TestControlsIgnoreClosedController(t *testing.T) {
	c, ctrl, view := newControls(t, &mediatest.Capturer{})
	ctrl.Close()

	c.ToggleCamera()
	c.ToggleScreen()
	assert.Empty(t, view.errs)
	assert.Empty(t, view.notices)
}

func TestControlsLeave(t *testing.T) {
	called := false
	c := &controls{leave: func() { called = true }}
	c.Leave()
	assert.True(t, called)
}

func TestEndReasonAndCallError(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		err     error
		reason  string
		wantErr error
	}{
		{name: "left", err: context.Canceled, reason: "left"},
		{name: "clean", err: nil, reason: "left"},
		{name: "full", err: fmt.Errorf("room r1: %w", session.ErrRoomFull), reason: "room is full", wantErr: session.ErrRoomFull},
		{name: "hub gone", err: session.ErrSignalingClosed, reason: "signaling server went away", wantErr: ErrSignalingError},
		{name: "other", err: boom, reason: "boom", wantErr: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.reason, endReason(tt.err))

			err := callError(tt.err)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			var callErr *Error
			require.ErrorAs(t, err, &callErr)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	err := WrapError("connect to server", ErrSignalingError, "dial tcp: refused")
	assert.Equal(t, "connect to server: signaling server error (dial tcp: refused)", err.Error())
	assert.ErrorIs(t, err, ErrSignalingError)

	plain := NewError("join room", session.ErrRoomFull)
	assert.Equal(t, "join room: "+session.ErrRoomFull.Error(), plain.Error())
}
