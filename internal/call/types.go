package call

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/marymwortman-lang/PureConnect/internal/chat"
	"github.com/marymwortman-lang/PureConnect/internal/protocol"
)

// State is where the session is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateJoining
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// MediaSource acquires the local camera and microphone.
type MediaSource interface {
	Acquire(ctx context.Context) (MediaHandle, error)
}

// MediaHandle is acquired local media. Toggling enablement never touches
// negotiation.
type MediaHandle interface {
	Tracks() []webrtc.TrackLocal
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	AudioEnabled() bool
	VideoEnabled() bool
	Stop()
}

// PeerLink is the peer-to-peer media transport being negotiated.
type PeerLink interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) error
	ConnectionState() webrtc.PeerConnectionState
	Close() error
}

// RemoteTrack describes a track the peer started sending.
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     webrtc.RTPCodecType
}

// PeerLinkHandlers are invoked from the link's own goroutines.
type PeerLinkHandlers struct {
	OnICECandidate          func(c webrtc.ICECandidateInit)
	OnTrack                 func(t RemoteTrack)
	OnConnectionStateChange func(s webrtc.PeerConnectionState)
}

type PeerLinkFactory interface {
	NewPeerLink(h PeerLinkHandlers) (PeerLink, error)
}

type PeerLinkFactoryFunc func(h PeerLinkHandlers) (PeerLink, error)

func (f PeerLinkFactoryFunc) NewPeerLink(h PeerLinkHandlers) (PeerLink, error) {
	return f(h)
}

// Signaler is a connected signaling socket. Incoming is closed when the
// socket goes away for any reason.
type Signaler interface {
	Send(m *protocol.Message) error
	Incoming() <-chan *protocol.Message
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Signaler, error)
}

type DialerFunc func(ctx context.Context) (Signaler, error)

func (f DialerFunc) Dial(ctx context.Context) (Signaler, error) {
	return f(ctx)
}

// RemoteMedia is the first stream the peer sent us.
type RemoteMedia struct {
	StreamID string
	Tracks   []RemoteTrack
}

// Snapshot is a copy of the session's observable state.
type Snapshot struct {
	State        State
	SelfID       string
	Room         string
	UserName     string
	Peer         *protocol.Participant
	Status       string
	AudioEnabled bool
	VideoEnabled bool
	HasLocal     bool
	LinkState    webrtc.PeerConnectionState
	Remote       *RemoteMedia
	Chat         []chat.Message
}
