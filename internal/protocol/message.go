package protocol

import "encoding/json"

// RoomCapacity is the maximum number of participants a room admits.
const RoomCapacity = 5

// Message type constants.
const (
	TypeJoin       = "join"
	TypeJoined     = "joined"
	TypeFull       = "full"
	TypePeerJoined = "peer-joined"
	TypePeerLeft   = "peer-left"

	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"

	TypeMute         = "mute"
	TypePeerMuted    = "peer-muted"
	TypeScreenStatus = "screen-status"
	TypePeerScreen   = "peer-screen"
)

// PeerInfo describes one room member.
type PeerInfo struct {
	ID          string `json:"id" msgpack:"id"`
	DisplayName string `json:"displayName" msgpack:"displayName"`
}

// Message is the envelope for every frame exchanged with the hub.
// The hub only reads the routing fields; Payload is relayed untouched.
type Message struct {
	Type        string     `json:"type" msgpack:"type"`
	RoomID      string     `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	DisplayName string     `json:"displayName,omitempty" msgpack:"displayName,omitempty"`
	You         string     `json:"you,omitempty" msgpack:"you,omitempty"`
	Peers       []PeerInfo `json:"peers,omitempty" msgpack:"peers,omitempty"`
	ID          string     `json:"id,omitempty" msgpack:"id,omitempty"`
	To          string     `json:"to,omitempty" msgpack:"to,omitempty"`
	From        string     `json:"from,omitempty" msgpack:"from,omitempty"`
	Payload     any        `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// SessionDescription is an SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type" msgpack:"type"`
	SDP  string `json:"sdp" msgpack:"sdp"`
}

// ICECandidate mirrors the browser RTCIceCandidateInit shape.
type ICECandidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

// TrackLabel tags an outgoing track with the media kind it carries so the
// receiver does not have to guess from arrival order.
type TrackLabel struct {
	TrackID  string `json:"trackId" msgpack:"trackId"`
	StreamID string `json:"streamId" msgpack:"streamId"`
	Kind     string `json:"kind" msgpack:"kind"`
}

// SessionPayload is carried by offer and answer messages. Tracks is always
// present from labelling peers, even when empty; nil means the sender does
// not label its tracks.
type SessionPayload struct {
	Description SessionDescription `json:"description" msgpack:"description"`
	Tracks      []TrackLabel       `json:"tracks" msgpack:"tracks"`
	DisplayName string             `json:"displayName,omitempty" msgpack:"displayName,omitempty"`
}

// CandidatePayload is carried by ice-candidate messages.
type CandidatePayload struct {
	Candidate *ICECandidate `json:"candidate" msgpack:"candidate"`
}

// MutePayload is carried by mute and peer-muted messages.
type MutePayload struct {
	Muted bool `json:"muted" msgpack:"muted"`
}

// ScreenPayload is carried by screen-status and peer-screen messages.
type ScreenPayload struct {
	Sharing bool `json:"sharing" msgpack:"sharing"`
}

// DecodePayload converts a generically decoded payload into v.
// Payloads arrive as maps after either codec decodes them, so they are
// round-tripped through JSON to reach the typed struct.
func DecodePayload(payload any, v any) error {
	if payload == nil {
		return ErrEmptyPayload
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
