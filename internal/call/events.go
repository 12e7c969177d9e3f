package call

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/marymwortman-lang/PureConnect/internal/protocol"
)

// event is anything the Run loop reacts to. Callback events carry the
// generation of the link or signaler that produced them; stale ones are
// dropped.
type event interface {
	apply(s *Session)
}

type cmdJoin struct {
	ctx      context.Context
	room     string
	userName string
	reply    chan error
}

func (c cmdJoin) apply(s *Session) { s.startJoin(c) }

type cmdHangUp struct {
	reply chan struct{}
}

func (c cmdHangUp) apply(s *Session) {
	s.hangUp()
	close(c.reply)
}

type toggleResult struct {
	enabled bool
	err     error
}

type cmdToggle struct {
	flip  func(MediaHandle) bool
	reply chan toggleResult
}

func (c cmdToggle) apply(s *Session) {
	if s.local == nil {
		c.reply <- toggleResult{err: NewError("toggle media", ErrNotInRoom)}
		return
	}
	enabled := c.flip(s.local)
	s.publish()
	c.reply <- toggleResult{enabled: enabled}
}

type cmdSendChat struct {
	text  string
	reply chan error
}

func (c cmdSendChat) apply(s *Session) { c.reply <- s.sendChat(c.text) }

type cmdSnapshot struct {
	reply chan Snapshot
}

func (c cmdSnapshot) apply(s *Session) { c.reply <- s.snapshot() }

type sigMessage struct {
	gen uint64
	msg *protocol.Message
}

func (e sigMessage) apply(s *Session) {
	if e.gen != s.sigGen || s.sig == nil {
		return
	}
	s.handleSignal(e.msg)
}

type sigClosed struct {
	gen uint64
}

func (e sigClosed) apply(s *Session) {
	if e.gen != s.sigGen || s.state == StateIdle {
		return
	}
	s.log.Warn("signaling connection lost")
	s.resolveJoin(NewError("join", ErrSignaling))
	s.teardown("Disconnected from signaling server")
}

type linkCandidate struct {
	gen       uint64
	candidate webrtc.ICECandidateInit
}

func (e linkCandidate) apply(s *Session) {
	if e.gen == s.linkGen && s.link != nil {
		s.onLinkCandidate(e.candidate)
	}
}

type linkTrack struct {
	gen   uint64
	track RemoteTrack
}

func (e linkTrack) apply(s *Session) {
	if e.gen == s.linkGen && s.link != nil {
		s.onLinkTrack(e.track)
	}
}

type linkState struct {
	gen   uint64
	state webrtc.PeerConnectionState
}

func (e linkState) apply(s *Session) {
	if e.gen == s.linkGen && s.link != nil {
		s.onLinkState(e.state)
	}
}
