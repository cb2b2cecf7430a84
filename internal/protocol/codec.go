package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrEmptyPayload = errors.New("empty payload")
	ErrUnknownCodec = errors.New("unknown codec")
)

// Codec names accepted by the hub's ?codec= query parameter.
const (
	CodecJSON    = "json"
	CodecMsgPack = "msgpack"
)

// Codec encodes messages for one websocket frame type.
type Codec interface {
	Name() string
	FrameType() int
	Marshal(msg *Message) ([]byte, error)
	Unmarshal(data []byte, msg *Message) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string   { return CodecJSON }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Marshal(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg *Message) error {
	return json.Unmarshal(data, msg)
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string   { return CodecMsgPack }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Marshal(msg *Message) ([]byte, error) {
	return msgpack.Marshal(msg)
}

func (msgpackCodec) Unmarshal(data []byte, msg *Message) error {
	return msgpack.Unmarshal(data, msg)
}

var (
	// JSON carries messages on text frames.
	JSON Codec = jsonCodec{}
	// MsgPack carries messages on binary frames.
	MsgPack Codec = msgpackCodec{}
)

// CodecForFrame returns the codec that decodes frames of the given websocket
// frame type, or nil for control and unknown frames.
func CodecForFrame(frameType int) Codec {
	switch frameType {
	case websocket.TextMessage:
		return JSON
	case websocket.BinaryMessage:
		return MsgPack
	}
	return nil
}

// CodecByName resolves a codec name. An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSON, nil
	case CodecMsgPack:
		return MsgPack, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}
