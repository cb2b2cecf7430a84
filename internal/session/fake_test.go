package session

import (
	"encoding/json"
	"errors"
	"slices"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/meshcall/internal/media"
	"github.com/BioHazard786/meshcall/internal/protocol"
)

// fakeTrack is what a fake description carries per outgoing track.
type fakeTrack struct {
	ID       string `json:"id"`
	StreamID string `json:"streamId"`
	Audio    bool   `json:"audio"`
}

// fakeSDP is the whole fake description: the connection that made it and
// its outgoing tracks.
type fakeSDP struct {
	Conn   int64       `json:"conn"`
	Tracks []fakeTrack `json:"tracks"`
}

var fakeConnSeq atomic.Int64

type fakeRemote struct {
	t fakeTrack
}

func (r fakeRemote) ID() string       { return r.t.ID }
func (r fakeRemote) StreamID() string { return r.t.StreamID }
func (r fakeRemote) Kind() webrtc.RTPCodecType {
	if r.t.Audio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

type fakeFactory struct {
	conns map[string][]*fakeConn
	err   error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{conns: make(map[string][]*fakeConn)}
}

func (f *fakeFactory) NewConnection(remoteID string, sink EventSink) (Connection, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeConn{id: fakeConnSeq.Add(1), sink: sink, seen: make(map[string]bool)}
	f.conns[remoteID] = append(f.conns[remoteID], c)
	return c, nil
}

// conn returns the latest connection made for remoteID.
func (f *fakeFactory) conn(remoteID string) *fakeConn {
	list := f.conns[remoteID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

type fakeSender struct {
	track media.Track
	// last is the most recent non-nil track; a muted slot still describes it.
	last     media.Track
	replaced int
}

func (s *fakeSender) ReplaceTrack(track media.Track) error {
	s.track = track
	if track != nil {
		s.last = track
	}
	s.replaced++
	return nil
}

// fakeConn models just enough of the signaling state machine: the
// description is a JSON fakeSDP, descriptions applied in the wrong state
// fail the way a real connection would, and there is no rollback.
type fakeConn struct {
	id      int64
	sink    EventSink
	senders []*fakeSender

	// remote is the connection the last applied description came from.
	remote int64

	localOffer  bool
	remoteOffer bool
	remoteSet   bool
	gathered    bool
	closed      bool

	seen       map[string]bool
	candidates []protocol.ICECandidate
	offers     int
	answers    int
}

func (c *fakeConn) AddTrack(track media.Track) (Sender, error) {
	s := &fakeSender{track: track, last: track}
	c.senders = append(c.senders, s)
	return s, nil
}

func (c *fakeConn) RemoveTrack(sender Sender) error {
	i := slices.IndexFunc(c.senders, func(s *fakeSender) bool { return Sender(s) == sender })
	if i < 0 {
		return errors.New("unknown sender")
	}
	c.senders = slices.Delete(c.senders, i, i+1)
	return nil
}

func (c *fakeConn) sender(kind webrtc.RTPCodecType) *fakeSender {
	for _, s := range c.senders {
		if s.last.Kind() == kind {
			return s
		}
	}
	return nil
}

func (c *fakeConn) description(sdpType string) protocol.SessionDescription {
	tracks := make([]fakeTrack, 0, len(c.senders))
	for _, s := range c.senders {
		tracks = append(tracks, fakeTrack{
			ID:       s.last.ID(),
			StreamID: s.last.StreamID(),
			Audio:    s.last.Kind() == webrtc.RTPCodecTypeAudio,
		})
	}
	data, _ := json.Marshal(fakeSDP{Conn: c.id, Tracks: tracks})
	return protocol.SessionDescription{Type: sdpType, SDP: string(data)}
}

func (c *fakeConn) gather() {
	if c.gathered {
		return
	}
	c.gathered = true
	c.sink.Post(CandidateGathered{Conn: c, Candidate: protocol.ICECandidate{
		Candidate: "candidate:1 1 udp 2130706431 10.0.0.1 50000 typ host",
	}})
}

func (c *fakeConn) CreateOffer() (protocol.SessionDescription, error) {
	if c.remoteOffer {
		return protocol.SessionDescription{}, errors.New("offer in have-remote-offer")
	}
	c.localOffer = true
	c.offers++
	c.gather()
	return c.description("offer"), nil
}

func (c *fakeConn) CreateAnswer() (protocol.SessionDescription, error) {
	if !c.remoteOffer {
		return protocol.SessionDescription{}, errors.New("answer without remote offer")
	}
	c.remoteOffer = false
	c.answers++
	c.gather()
	return c.description("answer"), nil
}

func (c *fakeConn) SetRemoteDescription(desc protocol.SessionDescription) error {
	var d fakeSDP
	if err := json.Unmarshal([]byte(desc.SDP), &d); err != nil {
		return err
	}
	if c.remote != 0 && d.Conn != 0 && d.Conn != c.remote {
		return ErrRemoteRestarted
	}

	switch desc.Type {
	case "offer":
		if c.localOffer {
			return errors.New("remote offer in have-local-offer")
		}
		c.remoteOffer = true
	case "answer":
		if !c.localOffer {
			return errors.New("answer in stable")
		}
		c.localOffer = false
	default:
		return errors.New("bad description type")
	}
	c.remoteSet = true
	if d.Conn != 0 {
		c.remote = d.Conn
	}

	for _, t := range d.Tracks {
		if c.seen[t.ID] {
			continue
		}
		c.seen[t.ID] = true
		c.sink.Post(RemoteTrackAdded{Conn: c, Track: fakeRemote{t}})
	}
	return nil
}

func (c *fakeConn) AddICECandidate(cand protocol.ICECandidate) error {
	if !c.remoteSet {
		return errors.New("no remote description")
	}
	c.candidates = append(c.candidates, cand)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// recorder keeps the latest view an Observer would render.
type recorder struct {
	selfID string
	peers  map[string]string
	left   []string
	media  map[string]map[media.TrackKind]RemoteTrack
	status map[string]map[StatusKind]bool
	states map[string][]State
	full   []string
}

func newRecorder() *recorder {
	return &recorder{
		peers:  make(map[string]string),
		media:  make(map[string]map[media.TrackKind]RemoteTrack),
		status: make(map[string]map[StatusKind]bool),
		states: make(map[string][]State),
	}
}

func (r *recorder) Joined(_ string, selfID string, peers []protocol.PeerInfo) {
	r.selfID = selfID
}

func (r *recorder) PeerJoined(remoteID, displayName string) {
	r.peers[remoteID] = displayName
}

func (r *recorder) PeerLeft(remoteID string) {
	delete(r.peers, remoteID)
	r.left = append(r.left, remoteID)
}

func (r *recorder) PeerMediaChanged(remoteID string, kind media.TrackKind, track RemoteTrack) {
	if r.media[remoteID] == nil {
		r.media[remoteID] = make(map[media.TrackKind]RemoteTrack)
	}
	if track == nil {
		delete(r.media[remoteID], kind)
		return
	}
	r.media[remoteID][kind] = track
}

func (r *recorder) PeerStatusChanged(remoteID string, status PeerStatus) {
	if r.status[remoteID] == nil {
		r.status[remoteID] = make(map[StatusKind]bool)
	}
	r.status[remoteID][status.Kind] = status.Value
}

func (r *recorder) PeerStateChanged(remoteID string, state State) {
	r.states[remoteID] = append(r.states[remoteID], state)
}

func (r *recorder) RoomFull(roomID string) {
	r.full = append(r.full, roomID)
}

// outbox collects sent messages without a hub.
type outbox struct {
	sent []*protocol.Message
}

func (o *outbox) SendMessage(msg *protocol.Message) error {
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) last(msgType string) *protocol.Message {
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].Type == msgType {
			return o.sent[i]
		}
	}
	return nil
}
