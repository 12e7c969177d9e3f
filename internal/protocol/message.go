package protocol

import (
	"encoding/json"
	"time"
)

// Message is a single frame on the signaling socket, in either direction.
// Type selects which of the remaining fields carry meaning; see Parse.
type Message struct {
	Type     string          `json:"type" msgpack:"type"`
	Room     string          `json:"room,omitempty" msgpack:"room,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty" msgpack:"payload,omitempty"`
	UserName string          `json:"userName,omitempty" msgpack:"userName,omitempty"`

	// Stamped by the relay on forwarded negotiation frames.
	SenderName string `json:"senderName,omitempty" msgpack:"senderName,omitempty"`
	SenderID   string `json:"senderId,omitempty" msgpack:"senderId,omitempty"`

	// Set on "joined" only. Peers is emitted even when empty.
	SelfID string        `json:"selfId,omitempty" msgpack:"selfId,omitempty"`
	Peers  []Participant `json:"peers,omitzero" msgpack:"peers,omitempty"`

	// Set on "participantJoined" and "participantLeft".
	Participant *Participant `json:"participant,omitempty" msgpack:"participant,omitempty"`
}

// Message type constants.
const (
	TypeJoin         = "join"
	TypeLeave        = "leave"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeChatMessage  = "chatMessage"

	TypeJoined            = "joined"
	TypeParticipantJoined = "participantJoined"
	TypeParticipantLeft   = "participantLeft"
	TypeError             = "error"
)

// Participant is the public view of a room member.
type Participant struct {
	ID       string `json:"id" msgpack:"id"`
	UserName string `json:"userName" msgpack:"userName"`
}

// ChatPayload is the payload of a chatMessage frame. Sender is only
// meaningful on frames coming from the relay.
type ChatPayload struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender,omitempty"`
}

// ErrorPayload represents error messages from the relay.
type ErrorPayload struct {
	Error string `json:"error"`
}

// Error reasons sent by the relay.
const (
	ReasonRoomFull  = "Room is full"
	ReasonNotInRoom = "You must join the room first"
)

// RoomInfo is one entry of the relay's /rooms listing.
type RoomInfo struct {
	ID           string        `json:"id"`
	Participants []Participant `json:"participants"`
}
