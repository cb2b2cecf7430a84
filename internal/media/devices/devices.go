// Package devices captures camera, microphone and screen with
// pion/mediadevices.
package devices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // registers camera adapters
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // registers microphone adapters
	_ "github.com/pion/mediadevices/pkg/driver/screen"     // registers screen adapters
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/meshcall/internal/media"
)

// Options tune capture and encoding.
type Options struct {
	Width           int
	Height          int
	FrameRate       float64
	ScreenFrameRate float64
	VideoBitRate    int
	AudioBitRate    int
}

// DefaultOptions suit a five-way mesh where every peer uploads N-1 copies.
func DefaultOptions() Options {
	return Options{
		Width:           640,
		Height:          480,
		FrameRate:       24,
		ScreenFrameRate: 10,
		VideoBitRate:    400_000,
		AudioBitRate:    32_000,
	}
}

// Capturer implements media.Capturer on top of the platform drivers.
type Capturer struct {
	opts     Options
	selector *mediadevices.CodecSelector
	logger   *slog.Logger
}

var _ media.Capturer = (*Capturer)(nil)

// New builds the VP8/Opus codec selector used for every capture.
func New(opts Options, logger *slog.Logger) (*Capturer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = opts.VideoBitRate
	vpxParams.KeyFrameInterval = 60
	vpxParams.RateControlEndUsage = vpx.RateControlVBR
	vpxParams.Deadline = 20 * time.Millisecond

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	opusParams.BitRate = opts.AudioBitRate
	opusParams.Latency = opus.Latency20ms

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	return &Capturer{
		opts:     opts,
		selector: selector,
		logger:   logger.With("component", "devices"),
	}, nil
}

// Populate registers the selector's codecs on a media engine so negotiated
// payload types match what the encoders produce.
func (c *Capturer) Populate(engine *webrtc.MediaEngine) error {
	c.selector.Populate(engine)
	return nil
}

// CaptureCamera opens the default camera and microphone.
func (c *Capturer) CaptureCamera(ctx context.Context) (*media.Capture, error) {
	stream, err := acquire(ctx, func() (mediadevices.MediaStream, error) {
		return mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
			Video: func(mc *mediadevices.MediaTrackConstraints) {
				mc.Width = prop.Int(c.opts.Width)
				mc.Height = prop.Int(c.opts.Height)
				mc.FrameRate = prop.Float(c.opts.FrameRate)
			},
			Audio: func(mc *mediadevices.MediaTrackConstraints) {
				mc.ChannelCount = prop.Int(1)
				mc.Latency = prop.Duration(20 * time.Millisecond)
			},
			Codec: c.selector,
		})
	})
	if err != nil {
		return nil, classify(err, media.ErrMediaAccessDenied)
	}

	capture := &media.Capture{Tracks: make(map[media.TrackKind]media.Track, 2)}
	collect(capture, media.CameraVideo, stream.GetVideoTracks())
	collect(capture, media.CameraAudio, stream.GetAudioTracks())

	if capture.Track(media.CameraVideo) == nil {
		capture.Close()
		return nil, fmt.Errorf("%w: no video track", media.ErrMediaAccessDenied)
	}
	c.logger.Debug("camera captured", "tracks", len(capture.Tracks))
	return capture, nil
}

// CaptureScreen opens the primary display.
func (c *Capturer) CaptureScreen(ctx context.Context) (*media.Capture, error) {
	stream, err := acquire(ctx, func() (mediadevices.MediaStream, error) {
		return mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
			Video: func(mc *mediadevices.MediaTrackConstraints) {
				mc.FrameRate = prop.Float(c.opts.ScreenFrameRate)
			},
			Codec: c.selector,
		})
	})
	if err != nil {
		return nil, classify(err, media.ErrMediaAccessDenied)
	}

	capture := &media.Capture{Tracks: make(map[media.TrackKind]media.Track, 1)}
	collect(capture, media.ScreenVideo, stream.GetVideoTracks())
	for _, t := range stream.GetAudioTracks() {
		t.Close()
	}

	if capture.Track(media.ScreenVideo) == nil {
		return nil, fmt.Errorf("%w: no display track", media.ErrMediaAccessDenied)
	}
	return capture, nil
}

// acquire runs a blocking platform call, giving up when ctx ends. A stream
// that arrives after the caller gave up is released.
func acquire(ctx context.Context, open func() (mediadevices.MediaStream, error)) (mediadevices.MediaStream, error) {
	type result struct {
		stream mediadevices.MediaStream
		err    error
	}

	done := make(chan result, 1)
	go func() {
		stream, err := open()
		done <- result{stream, err}
	}()

	select {
	case res := <-done:
		return res.stream, res.err
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				for _, t := range res.stream.GetTracks() {
					t.Close()
				}
			}
		}()
		return nil, ctx.Err()
	}
}

// collect keeps the first track and closes any extras.
func collect(capture *media.Capture, kind media.TrackKind, tracks []mediadevices.Track) {
	for i, t := range tracks {
		if i == 0 {
			capture.Tracks[kind] = t
			continue
		}
		t.Close()
	}
}

func classify(err error, fallback error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", media.ErrUserCancelled, err)
	}
	return fmt.Errorf("%w: %v", fallback, err)
}
