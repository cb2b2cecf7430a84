package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/meshcall/internal/hub"
	"github.com/BioHazard786/meshcall/internal/protocol"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := hub.New(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(NewRouter(h, logger))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

type wsPeer struct {
	t     *testing.T
	conn  *websocket.Conn
	codec protocol.Codec
}

func dial(t *testing.T, srv *httptest.Server, codec protocol.Codec) *wsPeer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?codec=" + codec.Name()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsPeer{t: t, conn: conn, codec: codec}
}

func (p *wsPeer) send(msg *protocol.Message) {
	data, err := p.codec.Marshal(msg)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteMessage(p.codec.FrameType(), data))
}

func (p *wsPeer) recv() *protocol.Message {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frameType, data, err := p.conn.ReadMessage()
	require.NoError(p.t, err)
	require.Equal(p.t, p.codec.FrameType(), frameType)

	var msg protocol.Message
	require.NoError(p.t, p.codec.Unmarshal(data, &msg))
	return &msg
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownCodecRejected(t *testing.T) {
	srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?codec=xml"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMixedCodecCall(t *testing.T) {
	srv := newTestServer(t)
	a := dial(t, srv, protocol.JSON)
	b := dial(t, srv, protocol.MsgPack)

	a.send(&protocol.Message{Type: protocol.TypeJoin, RoomID: "r1", DisplayName: "alice"})
	joinedA := a.recv()
	require.Equal(t, protocol.TypeJoined, joinedA.Type)
	assert.Empty(t, joinedA.Peers)

	b.send(&protocol.Message{Type: protocol.TypeJoin, RoomID: "r1", DisplayName: "bob"})
	joinedB := b.recv()
	require.Equal(t, protocol.TypeJoined, joinedB.Type)
	require.Len(t, joinedB.Peers, 1)
	assert.Equal(t, joinedA.You, joinedB.Peers[0].ID)
	assert.Equal(t, "alice", joinedB.Peers[0].DisplayName)

	notice := a.recv()
	assert.Equal(t, protocol.TypePeerJoined, notice.Type)
	assert.Equal(t, joinedB.You, notice.ID)

	// An offer written as msgpack reaches a JSON reader intact.
	b.send(&protocol.Message{
		Type: protocol.TypeOffer,
		To:   joinedA.You,
		Payload: protocol.SessionPayload{
			Description: protocol.SessionDescription{Type: "offer", SDP: "v=0"},
			Tracks:      []protocol.TrackLabel{{TrackID: "v", StreamID: "s", Kind: "camera-video"}},
		},
	})
	offer := a.recv()
	assert.Equal(t, protocol.TypeOffer, offer.Type)
	assert.Equal(t, joinedB.You, offer.From)

	var payload protocol.SessionPayload
	require.NoError(t, protocol.DecodePayload(offer.Payload, &payload))
	assert.Equal(t, "v=0", payload.Description.SDP)
	require.Len(t, payload.Tracks, 1)
	assert.Equal(t, "camera-video", payload.Tracks[0].Kind)

	a.send(&protocol.Message{Type: protocol.TypeMute, Payload: protocol.MutePayload{Muted: true}})
	muted := b.recv()
	assert.Equal(t, protocol.TypePeerMuted, muted.Type)
	var mp protocol.MutePayload
	require.NoError(t, protocol.DecodePayload(muted.Payload, &mp))
	assert.True(t, mp.Muted)

	require.NoError(t, b.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	b.conn.Close()

	left := a.recv()
	assert.Equal(t, protocol.TypePeerLeft, left.Type)
	assert.Equal(t, joinedB.You, left.ID)
}
