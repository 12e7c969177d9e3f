package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/transport/v3/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marymwortman-lang/PureConnect/internal/protocol"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testRelay struct {
	hub *Hub
	srv *httptest.Server
}

func startRelay(t *testing.T) *testRelay {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, quietLogger())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewMux(hub))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &testRelay{hub: hub, srv: srv}
}

func (r *testRelay) wsURL(codec string) string {
	u := "ws" + strings.TrimPrefix(r.srv.URL, "http") + PathWS
	if codec != "" {
		u += "?codec=" + codec
	}
	return u
}

type testConn struct {
	t     *testing.T
	conn  *websocket.Conn
	codec protocol.Codec

	// joinedID is the id the relay assigned, known after the first joined.
	joinedID string
}

func (r *testRelay) dial(t *testing.T, codecName string) *testConn {
	t.Helper()
	codec, err := protocol.CodecByName(codecName)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(r.wsURL(codecName), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testConn{t: t, conn: conn, codec: codec}
}

func (c *testConn) send(m *protocol.Message) {
	c.t.Helper()
	data, err := c.codec.Marshal(m)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(c.codec.FrameType(), data))
}

func (c *testConn) sendRaw(frame string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (c *testConn) recv() *protocol.Message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	m, err := c.codec.Unmarshal(data)
	require.NoError(c.t, err)
	return m
}

func (c *testConn) expect(msgType string) *protocol.Message {
	c.t.Helper()
	m := c.recv()
	require.Equal(c.t, msgType, m.Type, "unexpected frame %+v", m)
	return m
}

func (c *testConn) join(room, name string) *protocol.Message {
	c.t.Helper()
	c.send(protocol.NewJoin(room, name))
	m := c.expect(protocol.TypeJoined)
	c.joinedID = m.SelfID
	return m
}

func errorReason(t *testing.T, m *protocol.Message) string {
	t.Helper()
	var p protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(m.Payload, &p))
	return p.Error
}

func TestJoinAnnouncesParticipants(t *testing.T) {
	defer test.TimeOut(10 * time.Second).Stop()
	relay := startRelay(t)

	alice := relay.dial(t, "")
	joined := alice.join("r1", "alice")
	assert.NotEmpty(t, joined.SelfID)
	assert.Empty(t, joined.Peers)

	bob := relay.dial(t, "")
	bobJoined := bob.join("r1", "bob")
	require.Len(t, bobJoined.Peers, 1)
	assert.Equal(t, protocol.Participant{ID: joined.SelfID, UserName: "alice"}, bobJoined.Peers[0])

	notice := alice.expect(protocol.TypeParticipantJoined)
	require.NotNil(t, notice.Participant)
	assert.Equal(t, bobJoined.SelfID, notice.Participant.ID)
	assert.Equal(t, "bob", notice.Participant.UserName)
}

func TestJoinedAlwaysCarriesPeersOnTheWire(t *testing.T) {
	relay := startRelay(t)
	c := relay.dial(t, "")
	c.send(protocol.NewJoin("r1", "alice"))

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"peers":[]`)
}

func TestEmptyUserNameGetsGuestName(t *testing.T) {
	relay := startRelay(t)
	alice := relay.dial(t, "")
	alice.join("r1", "")

	bob := relay.dial(t, "")
	joined := bob.join("r1", "bob")
	require.Len(t, joined.Peers, 1)
	assert.Regexp(t, `^Guest-\d+$`, joined.Peers[0].UserName)
}

func TestThirdJoinerRejected(t *testing.T) {
	relay := startRelay(t)
	relay.dial(t, "").join("r1", "alice")
	relay.dial(t, "").join("r1", "bob")

	carol := relay.dial(t, "")
	carol.send(protocol.NewJoin("r1", "carol"))
	m := carol.expect(protocol.TypeError)
	assert.Equal(t, protocol.ReasonRoomFull, errorReason(t, m))

	assert.Len(t, relay.hub.Registry().Members("r1"), 2)
}

func TestChatReachesEveryMember(t *testing.T) {
	relay := startRelay(t)
	alice := relay.dial(t, "")
	alice.join("r1", "alice")
	bob := relay.dial(t, "")
	bob.join("r1", "bob")
	alice.expect(protocol.TypeParticipantJoined)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	payload, err := json.Marshal(protocol.ChatPayload{Text: "hi", Timestamp: ts, Sender: "mallory"})
	require.NoError(t, err)
	alice.send(&protocol.Message{Type: protocol.TypeChatMessage, Room: "r1", Payload: payload})

	for _, c := range []*testConn{alice, bob} {
		m := c.expect(protocol.TypeChatMessage)
		assert.Equal(t, "r1", m.Room)
		var got protocol.ChatPayload
		require.NoError(t, json.Unmarshal(m.Payload, &got))
		assert.Equal(t, "hi", got.Text)
		assert.Equal(t, "alice", got.Sender)
		assert.True(t, ts.Equal(got.Timestamp))
	}
}

func TestChatRequiresMembership(t *testing.T) {
	relay := startRelay(t)
	alice := relay.dial(t, "")
	alice.join("r1", "alice")

	chat, err := protocol.NewChat("r2", "hi", time.Now())
	require.NoError(t, err)
	alice.send(chat)

	m := alice.expect(protocol.TypeError)
	assert.Equal(t, protocol.ReasonNotInRoom, errorReason(t, m))
}

func TestNegotiationForwardedToPeerOnly(t *testing.T) {
	relay := startRelay(t)
	alice := relay.dial(t, "")
	aliceID := alice.join("r1", "alice").SelfID
	bob := relay.dial(t, "")
	bob.join("r1", "bob")
	alice.expect(protocol.TypeParticipantJoined)

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0 opaque"}`)
	alice.send(&protocol.Message{Type: protocol.TypeOffer, Room: "r1", Payload: sdp})
	alice.send(&protocol.Message{Type: protocol.TypeICECandidate, Room: "r1", Payload: json.RawMessage(`{"candidate":"c1"}`)})

	offer := bob.expect(protocol.TypeOffer)
	assert.Equal(t, "alice", offer.SenderName)
	assert.Equal(t, aliceID, offer.SenderID)
	assert.JSONEq(t, string(sdp), string(offer.Payload))

	cand := bob.expect(protocol.TypeICECandidate)
	assert.JSONEq(t, `{"candidate":"c1"}`, string(cand.Payload))

	// Nothing was echoed back: alice's next frame is her own chat.
	chat, err := protocol.NewChat("r1", "ping", time.Now())
	require.NoError(t, err)
	alice.send(chat)
	alice.expect(protocol.TypeChatMessage)
}

func TestSignalWithoutMembershipRejected(t *testing.T) {
	relay := startRelay(t)
	c := relay.dial(t, "")
	c.send(&protocol.Message{Type: protocol.TypeOffer, Room: "r1", Payload: json.RawMessage(`{"type":"offer","sdp":"x"}`)})

	m := c.expect(protocol.TypeError)
	assert.Equal(t, protocol.ReasonNotInRoom, errorReason(t, m))
}

func TestCloseNotifiesRemainingAndDeletesEmptyRoom(t *testing.T) {
	relay := startRelay(t)
	alice := relay.dial(t, "")
	aliceID := alice.join("r1", "alice").SelfID
	bob := relay.dial(t, "")
	bob.join("r1", "bob")

	require.NoError(t, alice.conn.Close())

	left := bob.expect(protocol.TypeParticipantLeft)
	require.NotNil(t, left.Participant)
	assert.Equal(t, aliceID, left.Participant.ID)
	assert.Equal(t, "alice", left.Participant.UserName)
	assert.Len(t, relay.hub.Registry().Members("r1"), 1)

	require.NoError(t, bob.conn.Close())
	assert.Eventually(t, func() bool {
		return len(relay.hub.Registry().Rooms()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLeaveKeepsSocketOpen(t *testing.T) {
	relay := startRelay(t)
	alice := relay.dial(t, "")
	alice.join("r1", "alice")
	bob := relay.dial(t, "")
	bob.join("r1", "bob")
	alice.expect(protocol.TypeParticipantJoined)

	alice.send(protocol.NewLeave("r1"))
	bob.expect(protocol.TypeParticipantLeft)

	joined := alice.join("r1", "alice")
	require.Len(t, joined.Peers, 1)
	assert.Equal(t, "bob", joined.Peers[0].UserName)
}

func TestRoomSwitchLeavesPreviousRoom(t *testing.T) {
	relay := startRelay(t)
	alice := relay.dial(t, "")
	alice.join("r1", "alice")
	bob := relay.dial(t, "")
	bob.join("r1", "bob")
	alice.expect(protocol.TypeParticipantJoined)

	joined := alice.join("r2", "alice")
	assert.Empty(t, joined.Peers)
	bob.expect(protocol.TypeParticipantLeft)

	rooms := relay.hub.Registry().Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "r1", rooms[0].ID)
	assert.Len(t, rooms[0].Participants, 1)
	assert.Equal(t, "r2", rooms[1].ID)
}

func TestSwitchIntoFullRoomKeepsCurrentRoom(t *testing.T) {
	relay := startRelay(t)
	alice := relay.dial(t, "")
	alice.join("r1", "alice")
	bob := relay.dial(t, "")
	bob.join("r1", "bob")
	alice.expect(protocol.TypeParticipantJoined)
	relay.dial(t, "").join("r2", "carol")
	relay.dial(t, "").join("r2", "dave")

	alice.send(protocol.NewJoin("r2", "alice"))
	m := alice.expect(protocol.TypeError)
	assert.Equal(t, protocol.ReasonRoomFull, errorReason(t, m))

	room, ok := relay.hub.Registry().RoomOf(alice.joinedID)
	require.True(t, ok)
	assert.Equal(t, "r1", room)
	assert.Len(t, relay.hub.Registry().Members("r2"), 2)

	// Bob never heard alice leave; her next chat is his next frame.
	chat, err := protocol.NewChat("r1", "still here", time.Now())
	require.NoError(t, err)
	alice.send(chat)
	got := bob.expect(protocol.TypeChatMessage)
	var p protocol.ChatPayload
	require.NoError(t, json.Unmarshal(got.Payload, &p))
	assert.Equal(t, "alice", p.Sender)
}

func TestMalformedFramesDroppedConnectionKept(t *testing.T) {
	relay := startRelay(t)
	c := relay.dial(t, "")

	c.sendRaw("not json at all")
	c.sendRaw(`{"type":"offer","payload":{"type":"offer","sdp":"x"}}`)
	c.sendRaw(`{"type":"chatMessage","room":"r1"}`)
	c.sendRaw(`{"type":"teleport","room":"r1"}`)
	c.sendRaw(`{"room":"r1"}`)

	joined := c.join("r1", "alice")
	assert.NotEmpty(t, joined.SelfID)
}

func TestMsgpackClientTalksToJSONClient(t *testing.T) {
	relay := startRelay(t)
	alice := relay.dial(t, protocol.CodecMsgpack)
	alice.join("r1", "alice")
	bob := relay.dial(t, protocol.CodecJSON)
	bob.join("r1", "bob")
	alice.expect(protocol.TypeParticipantJoined)

	bob.send(&protocol.Message{Type: protocol.TypeAnswer, Room: "r1", Payload: json.RawMessage(`{"type":"answer","sdp":"v=0"}`)})

	answer := alice.expect(protocol.TypeAnswer)
	assert.Equal(t, "bob", answer.SenderName)
	assert.JSONEq(t, `{"type":"answer","sdp":"v=0"}`, string(answer.Payload))
}

func TestUnknownCodecRefused(t *testing.T) {
	relay := startRelay(t)
	_, resp, err := websocket.DefaultDialer.Dial(relay.wsURL("xml"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoomsListing(t *testing.T) {
	relay := startRelay(t)
	relay.dial(t, "").join("lobby", "alice")

	resp, err := http.Get(relay.srv.URL + PathRooms)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var rooms []protocol.RoomInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "lobby", rooms[0].ID)
	require.Len(t, rooms[0].Participants, 1)
	assert.Equal(t, "alice", rooms[0].Participants[0].UserName)
}

func TestHealth(t *testing.T) {
	relay := startRelay(t)
	resp, err := http.Get(relay.srv.URL + PathHealth)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSendDropsWhenQueueFull(t *testing.T) {
	hub := NewHub(nil, quietLogger())
	c := &Client{hub: hub, log: hub.log, ID: "p1", send: make(chan *protocol.Message, 1)}

	hub.send(c, protocol.NewError("first"))
	done := make(chan struct{})
	go func() {
		hub.send(c, protocol.NewError("second"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send blocked on a full queue")
	}
	assert.Len(t, c.send, 1)
}
