package protocol

import (
	"encoding/json"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, c.Name())
	assert.Equal(t, websocket.TextMessage, c.FrameType())

	c, err = CodecByName("msgpack")
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, c.FrameType())

	_, err = CodecByName("xml")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

// A frame decoded from one codec and re-encoded with the other must keep
// its payload bytes, since the relay bridges JSON and msgpack peers.
func TestPayloadSurvivesCodecBridge(t *testing.T) {
	in := []byte(`{"type":"offer","room":"r1","payload":{"type":"offer","sdp":"v=0"},"futureField":1}`)

	msg, err := JSONCodec{}.Unmarshal(in)
	require.NoError(t, err)
	msg.SenderName = "ann"

	packed, err := MsgpackCodec{}.Marshal(msg)
	require.NoError(t, err)
	out, err := MsgpackCodec{}.Unmarshal(packed)
	require.NoError(t, err)

	assert.Equal(t, TypeOffer, out.Type)
	assert.Equal(t, "ann", out.SenderName)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(out.Payload))

	back, err := JSONCodec{}.Marshal(out)
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(back, &generic))
	assert.Equal(t, "ann", generic["senderName"])
}

func TestJSONCodecRejectsGarbage(t *testing.T) {
	_, err := JSONCodec{}.Unmarshal([]byte("{nope"))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = MsgpackCodec{}.Unmarshal([]byte{0xc1})
	assert.ErrorIs(t, err, ErrMalformed)
}
