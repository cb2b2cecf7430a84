// Package call wires signaling, local media, peer sessions and the call view
// into one running call.
package call

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/BioHazard786/meshcall/internal/config"
	"github.com/BioHazard786/meshcall/internal/media"
	"github.com/BioHazard786/meshcall/internal/media/devices"
	"github.com/BioHazard786/meshcall/internal/protocol"
	"github.com/BioHazard786/meshcall/internal/session"
	"github.com/BioHazard786/meshcall/internal/signaling"
	"github.com/BioHazard786/meshcall/internal/ui"
)

// Call is one participant in one room.
type Call struct {
	cfg    *config.Config
	roomID string
	logger *slog.Logger
}

// New prepares a call to roomID. Nothing is dialed until Run.
func New(cfg *config.Config, roomID string, logger *slog.Logger) *Call {
	if logger == nil {
		logger = slog.Default()
	}
	return &Call{cfg: cfg, roomID: roomID, logger: logger}
}

// Run joins the room and blocks until the user leaves, the room turns out
// to be full, the hub goes away or ctx is cancelled. The summary is valid
// whenever the call view was shown.
func (c *Call) Run(ctx context.Context) (ui.CallSummary, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return ui.CallSummary{RoomID: c.roomID}, err
	}
	defer client.Close()

	capturer, err := devices.New(devices.DefaultOptions(), c.logger)
	if err != nil {
		return ui.CallSummary{RoomID: c.roomID}, WrapError("open devices", ErrDevicesUnusable, err.Error())
	}

	factory, err := session.NewPionFactory(session.PionOptions{
		Config:   c.cfg,
		Populate: capturer.Populate,
		Logger:   c.logger,
	})
	if err != nil {
		return ui.CallSummary{RoomID: c.roomID}, NewError("create webrtc api", err)
	}

	ctrl := media.NewController(capturer, c.logger)
	defer ctrl.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	keys := &controls{ctx: ctx, media: ctrl, leave: cancel, logger: c.logger}
	view := ui.NewCallUI(c.roomID, c.cfg.DisplayName, keys)
	keys.view = view

	mgr := session.NewManager(session.Options{
		Outbox:      client,
		Factory:     factory,
		Media:       ctrl,
		Observer:    view,
		Logger:      c.logger,
		DisplayName: c.cfg.DisplayName,
	})
	ctrl.SetListener(fanout{mgr, localView{view}})

	if err := mgr.Join(c.roomID); err != nil {
		return ui.CallSummary{RoomID: c.roomID}, WrapError("join room", ErrSignalingError, err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := mgr.Run(gctx, client.Incoming())
		view.End(endReason(err))
		return callError(err)
	})
	g.Go(func() error {
		defer cancel()
		if err := view.Run(); err != nil {
			return NewError("run call view", err)
		}
		return nil
	})
	if c.cfg.StartCamera {
		go keys.startCamera()
	}

	err = g.Wait()
	c.logger.Debug("call finished", "room", c.roomID, "error", err)
	return view.Summary(), err
}

func (c *Call) connect(ctx context.Context) (*signaling.Client, error) {
	codec, err := protocol.CodecByName(c.cfg.Codec)
	if err != nil {
		return nil, NewError("select codec", err)
	}

	sp := ui.NewConnectionSpinner("Connecting to server...")
	sp.Start()

	client := signaling.NewClient(c.cfg.DialURL(), codec, c.logger)
	if err := client.Connect(ctx); err != nil {
		sp.Error("Could not reach the signaling server")
		return nil, WrapError("connect to server", ErrSignalingError, err.Error())
	}
	sp.Success("Connected")
	return client, nil
}

func endReason(err error) string {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return "left"
	case errors.Is(err, session.ErrRoomFull):
		return "room is full"
	case errors.Is(err, session.ErrSignalingClosed):
		return "signaling server went away"
	}
	return err.Error()
}

// callError maps a session manager exit to the error Run reports. Leaving
// is not an error.
func callError(err error) error {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, session.ErrRoomFull):
		return NewError("join room", err)
	case errors.Is(err, session.ErrSignalingClosed):
		return WrapError("stay connected", ErrSignalingError, err.Error())
	}
	return NewError("run call", err)
}
