package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

var (
	ErrMalformed      = errors.New("malformed message")
	ErrMissingRoom    = errors.New("missing room")
	ErrMissingField   = errors.New("missing required field")
	ErrUnknownType    = errors.New("unknown message type")
	ErrUnexpectedType = errors.New("unexpected message type")
)

// Envelope is the closed set of validated message kinds. The only
// implementations are the structs in this file.
type Envelope interface {
	Kind() string
	envelope()
}

type Join struct {
	Room     string
	UserName string
}

type Leave struct {
	Room string
}

// Offer and Answer keep the session description opaque so the relay can
// forward it without looking inside.
type Offer struct {
	Room       string
	Payload    json.RawMessage
	SenderName string
	SenderID   string
}

type Answer struct {
	Room       string
	Payload    json.RawMessage
	SenderName string
	SenderID   string
}

type Candidate struct {
	Room       string
	Payload    json.RawMessage
	SenderName string
	SenderID   string
}

type Chat struct {
	Room string
	ChatPayload
}

type Joined struct {
	SelfID string
	Peers  []Participant
}

type ParticipantJoined struct {
	Participant Participant
}

type ParticipantLeft struct {
	Participant Participant
}

type Error struct {
	Reason string
}

func (Join) Kind() string              { return TypeJoin }
func (Leave) Kind() string             { return TypeLeave }
func (Offer) Kind() string             { return TypeOffer }
func (Answer) Kind() string            { return TypeAnswer }
func (Candidate) Kind() string         { return TypeICECandidate }
func (Chat) Kind() string              { return TypeChatMessage }
func (Joined) Kind() string            { return TypeJoined }
func (ParticipantJoined) Kind() string { return TypeParticipantJoined }
func (ParticipantLeft) Kind() string   { return TypeParticipantLeft }
func (Error) Kind() string             { return TypeError }

func (Join) envelope()              {}
func (Leave) envelope()             {}
func (Offer) envelope()             {}
func (Answer) envelope()            {}
func (Candidate) envelope()         {}
func (Chat) envelope()              {}
func (Joined) envelope()            {}
func (ParticipantJoined) envelope() {}
func (ParticipantLeft) envelope()   {}
func (Error) envelope()             {}

// Description decodes the forwarded session description.
func (o Offer) Description() (webrtc.SessionDescription, error) {
	return decodeDescription(o.Payload, webrtc.SDPTypeOffer)
}

// Description decodes the forwarded session description.
func (a Answer) Description() (webrtc.SessionDescription, error) {
	return decodeDescription(a.Payload, webrtc.SDPTypeAnswer)
}

// Init decodes the forwarded candidate.
func (c Candidate) Init() (webrtc.ICECandidateInit, error) {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(c.Payload, &init); err != nil {
		return init, fmt.Errorf("%w: candidate: %v", ErrMalformed, err)
	}
	return init, nil
}

func decodeDescription(raw json.RawMessage, want webrtc.SDPType) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return desc, fmt.Errorf("%w: session description: %v", ErrMalformed, err)
	}
	if desc.Type != want {
		return desc, fmt.Errorf("%w: got %s description, want %s", ErrMalformed, desc.Type, want)
	}
	return desc, nil
}

// Parse validates m and returns its typed form. Nothing outside this
// function reads Message fields by type.
func Parse(m *Message) (Envelope, error) {
	if m == nil {
		return nil, ErrMalformed
	}

	switch m.Type {
	case TypeJoin:
		if m.Room == "" {
			return nil, ErrMissingRoom
		}
		return Join{Room: m.Room, UserName: m.UserName}, nil

	case TypeLeave:
		if m.Room == "" {
			return nil, ErrMissingRoom
		}
		return Leave{Room: m.Room}, nil

	case TypeOffer, TypeAnswer, TypeICECandidate:
		if m.Room == "" {
			return nil, ErrMissingRoom
		}
		if len(m.Payload) == 0 || string(m.Payload) == "null" {
			return nil, fmt.Errorf("%w: payload", ErrMissingField)
		}
		switch m.Type {
		case TypeOffer:
			return Offer{Room: m.Room, Payload: m.Payload, SenderName: m.SenderName, SenderID: m.SenderID}, nil
		case TypeAnswer:
			return Answer{Room: m.Room, Payload: m.Payload, SenderName: m.SenderName, SenderID: m.SenderID}, nil
		default:
			return Candidate{Room: m.Room, Payload: m.Payload, SenderName: m.SenderName, SenderID: m.SenderID}, nil
		}

	case TypeChatMessage:
		if m.Room == "" {
			return nil, ErrMissingRoom
		}
		if len(m.Payload) == 0 {
			return nil, fmt.Errorf("%w: payload", ErrMissingField)
		}
		var p ChatPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: chat payload: %v", ErrMalformed, err)
		}
		return Chat{Room: m.Room, ChatPayload: p}, nil

	case TypeJoined:
		return Joined{SelfID: m.SelfID, Peers: m.Peers}, nil

	case TypeParticipantJoined, TypeParticipantLeft:
		if m.Participant == nil || m.Participant.ID == "" {
			return nil, fmt.Errorf("%w: participant", ErrMissingField)
		}
		if m.Type == TypeParticipantJoined {
			return ParticipantJoined{Participant: *m.Participant}, nil
		}
		return ParticipantLeft{Participant: *m.Participant}, nil

	case TypeError:
		var p ErrorPayload
		if len(m.Payload) > 0 {
			if err := json.Unmarshal(m.Payload, &p); err != nil {
				return nil, fmt.Errorf("%w: error payload: %v", ErrMalformed, err)
			}
		}
		return Error{Reason: p.Error}, nil

	case "":
		return nil, fmt.Errorf("%w: type", ErrMissingField)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, m.Type)
	}
}
