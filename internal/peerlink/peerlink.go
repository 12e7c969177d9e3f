// Package peerlink implements the call's peer link on top of pion.
package peerlink

import (
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/marymwortman-lang/PureConnect/internal/call"
	"github.com/marymwortman-lang/PureConnect/internal/logging"
)

const rtcpBufferSize = 1500

// Config describes how links reach the outside world.
type Config struct {
	STUNServers []string
	Logger      *slog.Logger
}

// Factory builds pion-backed links sharing one API instance.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
	log    *slog.Logger
}

var _ call.PeerLinkFactory = (*Factory)(nil)

func NewFactory(cfg Config) (*Factory, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	s := webrtc.SettingEngine{LoggerFactory: logging.NewPionFactory(logger)}

	var iceServers []webrtc.ICEServer
	if len(cfg.STUNServers) > 0 {
		iceServers = []webrtc.ICEServer{{URLs: cfg.STUNServers}}
	}

	return &Factory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(s)),
		config: webrtc.Configuration{ICEServers: iceServers},
		log:    logger,
	}, nil
}

// NewPeerLink creates a link and wires h to its events. Remote tracks are
// drained in the background so their buffers never fill.
func (f *Factory) NewPeerLink(h call.PeerLinkHandlers) (call.PeerLink, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, call.NewError("create peer connection", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || h.OnICECandidate == nil {
			return
		}
		h.OnICECandidate(c.ToJSON())
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		f.log.Debug("peer connection state changed", "state", state)
		if h.OnConnectionStateChange != nil {
			h.OnConnectionStateChange(state)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		f.log.Debug("remote track", "kind", track.Kind(), "stream", track.StreamID(), "codec", track.Codec().MimeType)
		if h.OnTrack != nil {
			h.OnTrack(call.RemoteTrack{
				ID:       track.ID(),
				StreamID: track.StreamID(),
				Kind:     track.Kind(),
			})
		}
		go drainTrack(track)
	})

	return &Link{pc: pc}, nil
}

func drainTrack(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

// Link is a single pion peer connection.
type Link struct {
	pc *webrtc.PeerConnection
}

var _ call.PeerLink = (*Link)(nil)

func (l *Link) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return offer, call.NewError("create offer", err)
	}
	return offer, nil
}

func (l *Link) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return answer, call.NewError("create answer", err)
	}
	return answer, nil
}

func (l *Link) SetLocalDescription(desc webrtc.SessionDescription) error {
	if err := l.pc.SetLocalDescription(desc); err != nil {
		return call.NewError("set local description", err)
	}
	return nil
}

func (l *Link) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return call.NewError("set remote description", err)
	}
	return nil
}

func (l *Link) AddICECandidate(c webrtc.ICECandidateInit) error {
	if err := l.pc.AddICECandidate(c); err != nil {
		return call.NewError("add ICE candidate", err)
	}
	return nil
}

// AddTrack attaches a local track and reads its RTCP until the sender
// stops.
func (l *Link) AddTrack(track webrtc.TrackLocal) error {
	sender, err := l.pc.AddTrack(track)
	if err != nil {
		return call.NewError("add track", err)
	}
	go func() {
		buf := make([]byte, rtcpBufferSize)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (l *Link) ConnectionState() webrtc.PeerConnectionState {
	return l.pc.ConnectionState()
}

func (l *Link) Close() error {
	return l.pc.Close()
}
