package protocol

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v4"
)

func NewJoin(room, userName string) *Message {
	return &Message{Type: TypeJoin, Room: room, UserName: userName}
}

func NewLeave(room string) *Message {
	return &Message{Type: TypeLeave, Room: room}
}

// NewDescription wraps an offer or answer for the room. The message type
// follows desc.Type.
func NewDescription(room string, desc webrtc.SessionDescription) (*Message, error) {
	payload, err := json.Marshal(desc)
	if err != nil {
		return nil, err
	}
	msgType := TypeOffer
	if desc.Type == webrtc.SDPTypeAnswer {
		msgType = TypeAnswer
	}
	return &Message{Type: msgType, Room: room, Payload: payload}, nil
}

func NewCandidate(room string, c webrtc.ICECandidateInit) (*Message, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return &Message{Type: TypeICECandidate, Room: room, Payload: payload}, nil
}

func NewChat(room, text string, ts time.Time) (*Message, error) {
	payload, err := json.Marshal(ChatPayload{Text: text, Timestamp: ts})
	if err != nil {
		return nil, err
	}
	return &Message{Type: TypeChatMessage, Room: room, Payload: payload}, nil
}

// NewJoined always carries a peers list, possibly empty.
func NewJoined(selfID string, peers []Participant) *Message {
	if peers == nil {
		peers = []Participant{}
	}
	return &Message{Type: TypeJoined, SelfID: selfID, Peers: peers}
}

func NewParticipantJoined(p Participant) *Message {
	return &Message{Type: TypeParticipantJoined, Participant: &p}
}

func NewParticipantLeft(p Participant) *Message {
	return &Message{Type: TypeParticipantLeft, Participant: &p}
}

func NewError(reason string) *Message {
	payload, _ := json.Marshal(ErrorPayload{Error: reason})
	return &Message{Type: TypeError, Payload: payload}
}
