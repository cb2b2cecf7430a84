package protocol

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, c.Name())

	c, err = CodecByName("msgpack")
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, c.FrameType())

	_, err = CodecByName("xml")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestCodecForFrame(t *testing.T) {
	assert.Equal(t, JSON, CodecForFrame(websocket.TextMessage))
	assert.Equal(t, MsgPack, CodecForFrame(websocket.BinaryMessage))
	assert.Nil(t, CodecForFrame(websocket.PingMessage))
}

func TestDecodePayloadAcrossCodecs(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	sent := &Message{
		Type: TypeOffer,
		To:   "peer-b",
		Payload: SessionPayload{
			Description: SessionDescription{Type: "offer", SDP: "v=0\r\n"},
			Tracks: []TrackLabel{
				{TrackID: "t1", StreamID: "s1", Kind: "camera-video"},
				{TrackID: "t2", StreamID: "s1", Kind: "camera-audio"},
			},
			DisplayName: "alice",
		},
	}
	candidate := &Message{
		Type: TypeICECandidate,
		Payload: CandidatePayload{Candidate: &ICECandidate{
			Candidate:     "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host",
			SDPMid:        &mid,
			SDPMLineIndex: &idx,
		}},
	}

	for _, codec := range []Codec{JSON, MsgPack} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Marshal(sent)
			require.NoError(t, err)

			var got Message
			require.NoError(t, codec.Unmarshal(data, &got))
			assert.Equal(t, TypeOffer, got.Type)
			assert.Equal(t, "peer-b", got.To)

			var payload SessionPayload
			require.NoError(t, DecodePayload(got.Payload, &payload))
			assert.Equal(t, "v=0\r\n", payload.Description.SDP)
			assert.Equal(t, "alice", payload.DisplayName)
			require.Len(t, payload.Tracks, 2)
			assert.Equal(t, "camera-audio", payload.Tracks[1].Kind)

			data, err = codec.Marshal(candidate)
			require.NoError(t, err)
			var gotCandidate Message
			require.NoError(t, codec.Unmarshal(data, &gotCandidate))

			var cp CandidatePayload
			require.NoError(t, DecodePayload(gotCandidate.Payload, &cp))
			require.NotNil(t, cp.Candidate)
			require.NotNil(t, cp.Candidate.SDPMLineIndex)
			assert.Equal(t, uint16(0), *cp.Candidate.SDPMLineIndex)
			assert.Equal(t, "0", *cp.Candidate.SDPMid)
		})
	}
}

func TestDecodePayloadEmpty(t *testing.T) {
	var p MutePayload
	assert.ErrorIs(t, DecodePayload(nil, &p), ErrEmptyPayload)
}

func TestJoinedPeersSurviveMsgPack(t *testing.T) {
	data, err := MsgPack.Marshal(&Message{
		Type:   TypeJoined,
		RoomID: "r1",
		You:    "b",
		Peers:  []PeerInfo{{ID: "a", DisplayName: "User-a"}},
	})
	require.NoError(t, err)

	var got Message
	require.NoError(t, MsgPack.Unmarshal(data, &got))
	assert.Equal(t, []PeerInfo{{ID: "a", DisplayName: "User-a"}}, got.Peers)
}
