package media_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/meshcall/internal/media"
	"github.com/BioHazard786/meshcall/internal/media/mediatest"
)

type recorder struct {
	mu      sync.Mutex
	changes []media.Change
}

func (r *recorder) MediaChanged(c media.Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *recorder) kinds() []media.ChangeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]media.ChangeKind, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Kind
	}
	return out
}

func newController(t *testing.T, capturer media.Capturer) (*media.Controller, *recorder) {
	t.Helper()
	c := media.NewController(capturer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := &recorder{}
	c.SetListener(rec)
	t.Cleanup(c.Close)
	return c, rec
}

func TestStartCameraIsIdempotent(t *testing.T) {
	capturer := &mediatest.Capturer{}
	c, rec := newController(t, capturer)
	ctx := context.Background()

	require.NoError(t, c.StartCamera(ctx))
	first := c.Snapshot()
	require.True(t, first.CameraActive())
	assert.True(t, first.MicEnabled)

	require.NoError(t, c.StartCamera(ctx))
	second := c.Snapshot()
	assert.Same(t, first.Camera, second.Camera)
	assert.Same(t, first.Track(media.CameraVideo), second.Track(media.CameraVideo))

	cameraCalls, _ := capturer.Calls()
	assert.Equal(t, 1, cameraCalls)
	assert.Equal(t, []media.ChangeKind{media.ChangeCamera}, rec.kinds())
}

func TestConcurrentStartAcquiresOnce(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	capturer := &mediatest.Capturer{Gate: gate, Entered: entered}
	c, _ := newController(t, capturer)

	errs := make(chan error, 1)
	go func() { errs <- c.StartCamera(context.Background()) }()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("acquisition never started")
	}

	// The second start sees the first one in flight and returns at once.
	require.NoError(t, c.StartCamera(context.Background()))
	assert.False(t, c.Snapshot().CameraActive())

	close(gate)
	require.NoError(t, <-errs)

	cameraCalls, _ := capturer.Calls()
	assert.Equal(t, 1, cameraCalls)
	assert.True(t, c.Snapshot().CameraActive())
}

func TestStopCameraReleasesTracks(t *testing.T) {
	c, rec := newController(t, &mediatest.Capturer{})
	require.NoError(t, c.StartCamera(context.Background()))
	video := c.Snapshot().Track(media.CameraVideo).(*mediatest.Track)

	c.StopCamera()
	state := c.Snapshot()
	assert.False(t, state.CameraActive())
	assert.False(t, state.MicEnabled)
	assert.True(t, video.Closed())
	assert.Empty(t, state.Tracks())

	c.StopCamera()
	assert.Equal(t, []media.ChangeKind{media.ChangeCamera, media.ChangeCamera}, rec.kinds())
}

func TestAccessDeniedLeavesStateUntouched(t *testing.T) {
	c, rec := newController(t, &mediatest.Capturer{
		CameraErr: media.ErrMediaAccessDenied,
		ScreenErr: media.ErrUserCancelled,
	})

	err := c.StartCamera(context.Background())
	assert.ErrorIs(t, err, media.ErrMediaAccessDenied)
	err = c.StartScreenShare(context.Background())
	assert.ErrorIs(t, err, media.ErrUserCancelled)

	assert.False(t, c.Snapshot().CameraActive())
	assert.False(t, c.Snapshot().ScreenActive())
	assert.Empty(t, rec.kinds())
}

func TestScreenEndHookStopsShare(t *testing.T) {
	c, rec := newController(t, &mediatest.Capturer{})
	require.NoError(t, c.StartScreenShare(context.Background()))
	track := c.Snapshot().Track(media.ScreenVideo).(*mediatest.Track)

	track.End(errors.New("stopped from system tray"))
	assert.False(t, c.Snapshot().ScreenActive())
	assert.True(t, track.Closed())
	assert.Equal(t, []media.ChangeKind{media.ChangeScreen, media.ChangeScreen}, rec.kinds())
}

func TestStaleEndHookLeavesNewShareAlone(t *testing.T) {
	c, _ := newController(t, &mediatest.Capturer{})
	ctx := context.Background()

	require.NoError(t, c.StartScreenShare(ctx))
	old := c.Snapshot().Track(media.ScreenVideo).(*mediatest.Track)
	c.StopScreenShare()

	require.NoError(t, c.StartScreenShare(ctx))
	current := c.Snapshot().Track(media.ScreenVideo)
	require.NotSame(t, old, current)

	old.End(nil)
	assert.Same(t, current, c.Snapshot().Track(media.ScreenVideo))
}

func TestMicToggle(t *testing.T) {
	c, rec := newController(t, &mediatest.Capturer{})

	c.SetMicEnabled(false)
	assert.Empty(t, rec.kinds(), "no camera, nothing to toggle")

	require.NoError(t, c.StartCamera(context.Background()))
	c.SetMicEnabled(false)
	assert.False(t, c.Snapshot().MicEnabled)
	assert.NotNil(t, c.Snapshot().Track(media.CameraAudio), "audio track stays attached")

	c.SetMicEnabled(false)
	c.SetMicEnabled(true)
	assert.Equal(t, []media.ChangeKind{media.ChangeCamera, media.ChangeMic, media.ChangeMic}, rec.kinds())
}

func TestCloseReleasesAndRejects(t *testing.T) {
	c, _ := newController(t, &mediatest.Capturer{})
	ctx := context.Background()
	require.NoError(t, c.StartCamera(ctx))
	require.NoError(t, c.StartScreenShare(ctx))
	screen := c.Snapshot().Track(media.ScreenVideo).(*mediatest.Track)

	c.Close()
	assert.True(t, screen.Closed())
	assert.ErrorIs(t, c.StartCamera(ctx), media.ErrClosed)
}
