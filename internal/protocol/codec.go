package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec names accepted in the ?codec= query parameter.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

var ErrUnknownCodec = errors.New("unknown codec")

// Codec turns messages into websocket frames and back. Each connection
// picks one codec for its whole lifetime.
type Codec interface {
	Name() string
	FrameType() int
	Marshal(m *Message) ([]byte, error)
	Unmarshal(data []byte) (*Message, error)
}

// CodecByName returns the codec for name. An empty name means JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// JSONCodec sends text frames. Browsers speak this one.
type JSONCodec struct{}

func (JSONCodec) Name() string   { return CodecJSON }
func (JSONCodec) FrameType() int { return websocket.TextMessage }

func (JSONCodec) Marshal(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

func (JSONCodec) Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &m, nil
}

// MsgpackCodec sends binary frames. Payloads stay JSON bytes inside the
// msgpack envelope so frames can cross codecs at the relay unchanged.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string   { return CodecMsgpack }
func (MsgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (MsgpackCodec) Marshal(m *Message) ([]byte, error) {
	return msgpack.Marshal(m)
}

func (MsgpackCodec) Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &m, nil
}
