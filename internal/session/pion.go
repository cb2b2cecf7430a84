package session

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/meshcall/internal/config"
	"github.com/BioHazard786/meshcall/internal/media"
	"github.com/BioHazard786/meshcall/internal/netutil"
	"github.com/BioHazard786/meshcall/internal/protocol"
)

var errForeignSender = errors.New("sender does not belong to this connection")

// PionOptions configure a PionFactory.
type PionOptions struct {
	Config *config.Config
	// Populate registers codecs on the media engine. When nil the pion
	// defaults are used.
	Populate func(engine *webrtc.MediaEngine) error
	Logger   *slog.Logger
}

// PionFactory builds peer connections with pion/webrtc.
type PionFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
	logger *slog.Logger
}

var _ ConnectionFactory = (*PionFactory)(nil)

// NewPionFactory sets up the media engine and interceptors shared by every
// connection.
func NewPionFactory(opts PionOptions) (*PionFactory, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &webrtc.MediaEngine{}
	if opts.Populate != nil {
		if err := opts.Populate(engine); err != nil {
			return nil, fmt.Errorf("register codecs: %w", err)
		}
	} else if err := engine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(engine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	// Periodic keyframe requests let late or lossy receivers recover video.
	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("pli interceptor: %w", err)
	}
	registry.Add(pli)

	return &PionFactory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(engine), webrtc.WithInterceptorRegistry(registry)),
		config: ICEConfiguration(opts.Config),
		logger: logger.With("component", "pion"),
	}, nil
}

// ICEConfiguration builds the ICE server list. Relay-only transport is used
// when asked for, or when the network looks like a VPN or carrier NAT, and
// only if a TURN server is configured.
func ICEConfiguration(cfg *config.Config) webrtc.Configuration {
	if cfg == nil {
		return webrtc.Configuration{}
	}

	var iceServers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || netutil.ShouldForceRelay()) {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

// NewConnection implements ConnectionFactory.
func (f *PionFactory) NewConnection(remoteID string, sink EventSink) (Connection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	c := &pionConnection{pc: pc, logger: f.logger.With("peer", remoteID)}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		sink.Post(CandidateGathered{Conn: c, Candidate: candidateFromInit(cand.ToJSON())})
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		sink.Post(ConnectionStateChanged{Conn: c, State: state})
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		sink.Post(RemoteTrackAdded{Conn: c, Track: track})
	})
	return c, nil
}

type pionConnection struct {
	pc     *webrtc.PeerConnection
	logger *slog.Logger
}

type pionSender struct {
	rtp *webrtc.RTPSender
}

func (s *pionSender) ReplaceTrack(track media.Track) error {
	if track == nil {
		return s.rtp.ReplaceTrack(nil)
	}
	return s.rtp.ReplaceTrack(track)
}

func (c *pionConnection) AddTrack(track media.Track) (Sender, error) {
	rtp, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}

	// RTCP must be read for interceptors such as NACK to run.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := rtp.Read(buf); err != nil {
				return
			}
		}
	}()
	return &pionSender{rtp: rtp}, nil
}

func (c *pionConnection) RemoveTrack(sender Sender) error {
	s, ok := sender.(*pionSender)
	if !ok {
		return errForeignSender
	}
	return c.pc.RemoveTrack(s.rtp)
}

func (c *pionConnection) CreateOffer() (protocol.SessionDescription, error) {
	// An offer without media sections carries no ICE credentials and is
	// rejected by the remote, so a connection with nothing to send yet
	// offers to receive.
	if len(c.pc.GetTransceivers()) == 0 {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
			if _, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return protocol.SessionDescription{}, fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}
	}

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return protocol.SessionDescription{}, err
	}
	return localDescription(c.pc), nil
}

func (c *pionConnection) CreateAnswer() (protocol.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return protocol.SessionDescription{}, err
	}
	return localDescription(c.pc), nil
}

func (c *pionConnection) SetRemoteDescription(desc protocol.SessionDescription) error {
	sdpType := webrtc.NewSDPType(desc.Type)
	if sdpType != webrtc.SDPTypeOffer && sdpType != webrtc.SDPTypeAnswer {
		return fmt.Errorf("unexpected description type %q", desc.Type)
	}

	next := webrtc.SessionDescription{Type: sdpType, SDP: desc.SDP}
	// DTLS is never redone on a negotiated connection, so a description
	// from a different remote connection cannot be applied here.
	if prev := fingerprint(c.pc.CurrentRemoteDescription()); prev != "" {
		if cur := fingerprint(&next); cur != "" && cur != prev {
			return ErrRemoteRestarted
		}
	}
	return c.pc.SetRemoteDescription(next)
}

func (c *pionConnection) AddICECandidate(cand protocol.ICECandidate) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        cand.Candidate,
		SDPMid:           cand.SDPMid,
		SDPMLineIndex:    cand.SDPMLineIndex,
		UsernameFragment: cand.UsernameFragment,
	})
}

func (c *pionConnection) Close() error {
	return c.pc.Close()
}

func localDescription(pc *webrtc.PeerConnection) protocol.SessionDescription {
	desc := pc.LocalDescription()
	if desc == nil {
		return protocol.SessionDescription{}
	}
	return protocol.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}
}

// fingerprint returns the DTLS fingerprint a description declares, or ""
// when it has none or does not parse.
func fingerprint(desc *webrtc.SessionDescription) string {
	if desc == nil {
		return ""
	}
	// Unmarshal caches on its receiver, and desc may be owned by pion.
	local := webrtc.SessionDescription{Type: desc.Type, SDP: desc.SDP}
	parsed, err := local.Unmarshal()
	if err != nil {
		return ""
	}
	if fp, ok := parsed.Attribute("fingerprint"); ok {
		return fp
	}
	for _, m := range parsed.MediaDescriptions {
		if fp, ok := m.Attribute("fingerprint"); ok {
			return fp
		}
	}
	return ""
}

func candidateFromInit(init webrtc.ICECandidateInit) protocol.ICECandidate {
	return protocol.ICECandidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}
