// Package call drives one side of a two-party call: joining a room through
// the relay, negotiating the peer link, and tearing it all down again.
//
// A Session is an actor. Run owns every field; the public methods, the
// signaling reader and the peer link callbacks only post events to it.
package call

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/marymwortman-lang/PureConnect/internal/chat"
	"github.com/marymwortman-lang/PureConnect/internal/names"
	"github.com/marymwortman-lang/PureConnect/internal/protocol"
)

const (
	eventBuffer = 256
	chatHistory = 500
	statusEnded = "Call ended"
	statusIdle  = "Ready"
)

// Config wires a Session to its collaborators.
type Config struct {
	Media     MediaSource
	PeerLinks PeerLinkFactory
	Dialer    Dialer
	Logger    *slog.Logger
}

type Session struct {
	cfg Config
	log *slog.Logger

	events  chan event
	updates chan Snapshot
	done    chan struct{}

	// Everything below is owned by Run.
	state    State
	selfID   string
	room     string
	userName string
	peer     *protocol.Participant
	status   string

	local  MediaHandle
	remote *RemoteMedia

	link      PeerLink
	linkGen   uint64
	linkState webrtc.PeerConnectionState

	sig    Signaler
	sigGen uint64

	pending       []webrtc.ICECandidateInit
	remoteDescSet bool

	chat      *chat.Log
	joinReply chan error
}

func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:     cfg,
		log:     logger,
		events:  make(chan event, eventBuffer),
		updates: make(chan Snapshot, 1),
		done:    make(chan struct{}),
		status:  statusIdle,
		chat:    chat.NewLog(chatHistory),
	}
}

// Updates delivers the latest snapshot after each change. Only the most
// recent one is kept if the reader falls behind.
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

// Run processes events until ctx is cancelled. Any call in progress is torn
// down on the way out.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.teardown(statusEnded)
			return
		case ev := <-s.events:
			ev.apply(s)
		}
	}
}

// Join acquires media, connects to the relay and joins room. It returns once
// the relay has accepted or refused the join.
func (s *Session) Join(ctx context.Context, room, userName string) error {
	reply := make(chan error, 1)
	if err := s.post(ctx, cmdJoin{ctx: ctx, room: room, userName: userName, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

// HangUp ends the call. Calling it while idle does nothing.
func (s *Session) HangUp() {
	reply := make(chan struct{})
	if err := s.post(context.Background(), cmdHangUp{reply: reply}); err != nil {
		return
	}
	select {
	case <-reply:
	case <-s.done:
	}
}

// ToggleMute flips the microphone and reports whether audio is now enabled.
func (s *Session) ToggleMute() (bool, error) {
	return s.toggle(func(h MediaHandle) bool {
		h.SetAudioEnabled(!h.AudioEnabled())
		return h.AudioEnabled()
	})
}

// ToggleVideo flips the camera and reports whether video is now enabled.
func (s *Session) ToggleVideo() (bool, error) {
	return s.toggle(func(h MediaHandle) bool {
		h.SetVideoEnabled(!h.VideoEnabled())
		return h.VideoEnabled()
	})
}

func (s *Session) toggle(flip func(MediaHandle) bool) (bool, error) {
	reply := make(chan toggleResult, 1)
	if err := s.post(context.Background(), cmdToggle{flip: flip, reply: reply}); err != nil {
		return false, err
	}
	select {
	case r := <-reply:
		return r.enabled, r.err
	case <-s.done:
		return false, ErrSessionClosed
	}
}

// SendChat sends text to everyone in the room. The message shows up in the
// log once the relay echoes it back.
func (s *Session) SendChat(text string) error {
	reply := make(chan error, 1)
	if err := s.post(context.Background(), cmdSendChat{text: text, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if err := s.post(context.Background(), cmdSnapshot{reply: reply}); err != nil {
		return Snapshot{Status: statusEnded}
	}
	select {
	case snap := <-reply:
		return snap
	case <-s.done:
		return Snapshot{Status: statusEnded}
	}
}

func (s *Session) post(ctx context.Context, ev event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		State:     s.state,
		SelfID:    s.selfID,
		Room:      s.room,
		UserName:  s.userName,
		Status:    s.status,
		LinkState: s.linkState,
		Chat:      s.chat.Messages(),
	}
	if s.peer != nil {
		p := *s.peer
		snap.Peer = &p
	}
	if s.local != nil {
		snap.HasLocal = true
		snap.AudioEnabled = s.local.AudioEnabled()
		snap.VideoEnabled = s.local.VideoEnabled()
	}
	if s.remote != nil {
		r := *s.remote
		r.Tracks = append([]RemoteTrack(nil), s.remote.Tracks...)
		snap.Remote = &r
	}
	return snap
}

// publish replaces whatever snapshot is waiting in updates.
func (s *Session) publish() {
	snap := s.snapshot()
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	default:
	}
}

func (s *Session) setStatus(format string, args ...any) {
	s.status = fmt.Sprintf(format, args...)
	s.publish()
}

func (s *Session) startJoin(c cmdJoin) {
	if s.state != StateIdle {
		c.reply <- NewError("join", ErrCallInProgress)
		return
	}
	room := strings.TrimSpace(c.room)
	if room == "" {
		c.reply <- NewError("join", ErrNoRoom)
		return
	}
	userName := strings.TrimSpace(c.userName)
	if userName == "" {
		userName = names.GuestName()
	}

	s.state = StateJoining
	s.room = room
	s.userName = userName
	s.setStatus("Requesting camera and microphone...")

	local, err := s.cfg.Media.Acquire(c.ctx)
	if err != nil {
		s.log.Warn("media acquisition failed", "err", err)
		s.teardown("Could not access camera or microphone")
		c.reply <- categorized("join", ErrMediaAccess, err, "room "+room)
		return
	}
	s.local = local
	s.setStatus("Connecting to signaling server...")

	sig, err := s.cfg.Dialer.Dial(c.ctx)
	if err != nil {
		s.log.Warn("signaling dial failed", "err", err)
		s.teardown("Could not reach signaling server")
		c.reply <- categorized("join", ErrSignaling, err, "room "+room)
		return
	}
	s.sigGen++
	s.sig = sig
	go s.pumpSignals(s.sigGen, sig)

	if err := sig.Send(protocol.NewJoin(room, userName)); err != nil {
		s.teardown("Could not reach signaling server")
		c.reply <- categorized("join", ErrSignaling, err, "room "+room)
		return
	}
	s.joinReply = c.reply
	s.setStatus("Joining room %s...", room)
}

// pumpSignals forwards frames from one signaler until it closes.
func (s *Session) pumpSignals(gen uint64, sig Signaler) {
	for m := range sig.Incoming() {
		if s.post(context.Background(), sigMessage{gen: gen, msg: m}) != nil {
			return
		}
	}
	s.post(context.Background(), sigClosed{gen: gen})
}

func (s *Session) resolveJoin(err error) {
	if s.joinReply == nil {
		return
	}
	s.joinReply <- err
	s.joinReply = nil
}

func (s *Session) handleSignal(m *protocol.Message) {
	env, err := protocol.Parse(m)
	if err != nil {
		s.log.Warn("dropping invalid message from relay", "type", m.Type, "err", err)
		return
	}

	switch e := env.(type) {
	case protocol.Joined:
		s.onJoined(e)
	case protocol.ParticipantJoined:
		s.onParticipantJoined(e.Participant)
	case protocol.ParticipantLeft:
		s.onParticipantLeft(e.Participant)
	case protocol.Offer:
		s.onOffer(e)
	case protocol.Answer:
		s.onAnswer(e)
	case protocol.Candidate:
		s.onCandidate(e)
	case protocol.Chat:
		s.onChat(e)
	case protocol.Error:
		s.onError(e)
	default:
		s.log.Warn("dropping client-bound message of unexpected kind", "type", env.Kind())
	}
}

func (s *Session) onJoined(e protocol.Joined) {
	if s.state != StateJoining {
		s.log.Debug("ignoring joined outside of joining", "state", s.state)
		return
	}
	s.state = StateConnected
	s.selfID = e.SelfID
	s.resolveJoin(nil)

	if len(e.Peers) == 0 {
		s.setStatus("Waiting for someone to join %s...", s.room)
		return
	}

	peer := e.Peers[0]
	s.peer = &peer
	if s.shouldOffer(peer.ID) {
		s.offer()
		return
	}
	s.setStatus("Waiting for %s to call...", peer.UserName)
}

// shouldOffer breaks glare: of the two members only the one with the
// lexicographically smaller id sends the offer.
func (s *Session) shouldOffer(peerID string) bool {
	return s.selfID < peerID
}

func (s *Session) onParticipantJoined(p protocol.Participant) {
	if s.state != StateConnected {
		return
	}
	if s.link != nil && s.link.ConnectionState() == webrtc.PeerConnectionStateConnected {
		s.log.Debug("already connected, ignoring participant", "participant", p.ID)
		return
	}
	s.peer = &p
	if s.shouldOffer(p.ID) {
		s.offer()
		return
	}
	s.setStatus("%s joined, waiting for their call...", p.UserName)
}

func (s *Session) onParticipantLeft(p protocol.Participant) {
	if s.peer == nil || s.peer.ID != p.ID {
		return
	}
	s.log.Info("peer left", "participant", p.ID)
	s.teardown(fmt.Sprintf("%s left the call", displayName(p)))
}

func (s *Session) offer() {
	if err := s.newLink(); err != nil {
		s.log.Warn("creating peer link", "err", err)
		s.setStatus("Could not start the call")
		return
	}
	s.setStatus("Creating offer...")

	desc, err := s.link.CreateOffer()
	if err != nil {
		s.log.Warn("creating offer", "err", err)
		return
	}
	if err := s.link.SetLocalDescription(desc); err != nil {
		s.log.Warn("setting local offer", "err", err)
		return
	}
	msg, err := protocol.NewDescription(s.room, desc)
	if err != nil {
		s.log.Warn("encoding offer", "err", err)
		return
	}
	s.send(msg)
	s.setStatus("Offer sent, waiting for answer...")
}

func (s *Session) onOffer(e protocol.Offer) {
	if s.state != StateConnected {
		s.log.Debug("ignoring offer outside of a call", "state", s.state)
		return
	}
	desc, err := e.Description()
	if err != nil {
		s.log.Warn("bad offer", "err", err)
		return
	}

	if !s.reusableLink() {
		if err := s.newLink(); err != nil {
			s.log.Warn("creating peer link", "err", err)
			return
		}
	}
	s.peer = &protocol.Participant{ID: e.SenderID, UserName: e.SenderName}
	s.setStatus("Received offer from %s...", displayName(*s.peer))

	if err := s.link.SetRemoteDescription(desc); err != nil {
		s.log.Warn("setting remote offer", "err", err)
		return
	}
	s.remoteDescSet = true
	s.flushCandidates()

	answer, err := s.link.CreateAnswer()
	if err != nil {
		s.log.Warn("creating answer", "err", err)
		return
	}
	if err := s.link.SetLocalDescription(answer); err != nil {
		s.log.Warn("setting local answer", "err", err)
		return
	}
	msg, err := protocol.NewDescription(s.room, answer)
	if err != nil {
		s.log.Warn("encoding answer", "err", err)
		return
	}
	s.send(msg)
	s.setStatus("Answer sent, connecting...")
}

func (s *Session) reusableLink() bool {
	if s.link == nil {
		return false
	}
	switch s.link.ConnectionState() {
	case webrtc.PeerConnectionStateConnecting, webrtc.PeerConnectionStateConnected:
		return true
	}
	return false
}

func (s *Session) onAnswer(e protocol.Answer) {
	if s.link == nil {
		s.log.Warn("answer without a peer link, dropping")
		return
	}
	desc, err := e.Description()
	if err != nil {
		s.log.Warn("bad answer", "err", err)
		return
	}
	if err := s.link.SetRemoteDescription(desc); err != nil {
		s.log.Warn("setting remote answer", "err", err)
		return
	}
	s.remoteDescSet = true
	s.flushCandidates()
	s.setStatus("Answer received, connecting...")
}

func (s *Session) onCandidate(e protocol.Candidate) {
	init, err := e.Init()
	if err != nil {
		s.log.Warn("bad candidate", "err", err)
		return
	}
	if s.link == nil || !s.remoteDescSet {
		s.pending = append(s.pending, init)
		return
	}
	if err := s.link.AddICECandidate(init); err != nil {
		s.log.Warn("adding candidate", "err", err)
	}
}

// flushCandidates applies buffered candidates in arrival order.
func (s *Session) flushCandidates() {
	pending := s.pending
	s.pending = nil
	for _, c := range pending {
		if err := s.link.AddICECandidate(c); err != nil {
			s.log.Warn("adding buffered candidate", "err", err)
		}
	}
}

func (s *Session) onChat(e protocol.Chat) {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	s.chat.Append(chat.Message{Text: e.Text, Sender: e.Sender, Timestamp: ts})
	s.publish()
}

func (s *Session) onError(e protocol.Error) {
	s.log.Warn("relay reported an error", "reason", e.Reason)
	if s.state == StateJoining && e.Reason == protocol.ReasonRoomFull {
		s.resolveJoin(NewError("join", ErrRoomFull))
		s.teardown(protocol.ReasonRoomFull)
		return
	}
	s.setStatus("Error: %s", e.Reason)
}

// newLink replaces the current peer link with a fresh one carrying the
// local tracks.
func (s *Session) newLink() error {
	s.closeLink()

	s.linkGen++
	gen := s.linkGen
	link, err := s.cfg.PeerLinks.NewPeerLink(PeerLinkHandlers{
		OnICECandidate: func(c webrtc.ICECandidateInit) {
			s.post(context.Background(), linkCandidate{gen: gen, candidate: c})
		},
		OnTrack: func(t RemoteTrack) {
			s.post(context.Background(), linkTrack{gen: gen, track: t})
		},
		OnConnectionStateChange: func(state webrtc.PeerConnectionState) {
			s.post(context.Background(), linkState{gen: gen, state: state})
		},
	})
	if err != nil {
		return err
	}

	if s.local != nil {
		for _, track := range s.local.Tracks() {
			if err := link.AddTrack(track); err != nil {
				link.Close()
				return fmt.Errorf("adding %s track: %w", track.Kind(), err)
			}
		}
	}
	s.link = link
	s.linkState = webrtc.PeerConnectionStateNew
	return nil
}

func (s *Session) closeLink() {
	if s.link == nil {
		return
	}
	if err := s.link.Close(); err != nil {
		s.log.Debug("closing peer link", "err", err)
	}
	s.link = nil
	s.linkGen++
	s.remoteDescSet = false
	s.remote = nil
}

func (s *Session) onLinkCandidate(c webrtc.ICECandidateInit) {
	msg, err := protocol.NewCandidate(s.room, c)
	if err != nil {
		s.log.Warn("encoding candidate", "err", err)
		return
	}
	s.send(msg)
}

func (s *Session) onLinkTrack(t RemoteTrack) {
	if s.remote == nil {
		s.remote = &RemoteMedia{StreamID: t.StreamID}
	}
	if s.remote.StreamID != t.StreamID {
		s.log.Debug("ignoring track from a second stream", "stream", t.StreamID)
		return
	}
	s.remote.Tracks = append(s.remote.Tracks, t)
	s.publish()
}

func (s *Session) onLinkState(state webrtc.PeerConnectionState) {
	s.linkState = state
	switch state {
	case webrtc.PeerConnectionStateConnected:
		name := "peer"
		if s.peer != nil {
			name = displayName(*s.peer)
		}
		s.setStatus("Connected to %s", name)
	case webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed:
		s.log.Info("peer link went away", "state", state)
		s.teardown(statusEnded)
	default:
		s.publish()
	}
}

func (s *Session) send(m *protocol.Message) {
	if s.sig == nil {
		return
	}
	if err := s.sig.Send(m); err != nil {
		s.log.Warn("sending to relay", "type", m.Type, "err", err)
	}
}

func (s *Session) sendChat(text string) error {
	if s.state != StateConnected || s.sig == nil {
		return NewError("send chat", ErrNotInRoom)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return NewError("send chat", ErrEmptyMessage)
	}
	msg, err := protocol.NewChat(s.room, text, time.Now())
	if err != nil {
		return NewError("send chat", err)
	}
	if err := s.sig.Send(msg); err != nil {
		return categorized("send chat", ErrSignaling, err, "")
	}
	return nil
}

func (s *Session) hangUp() {
	if s.sig != nil && s.state != StateIdle {
		s.send(protocol.NewLeave(s.room))
	}
	s.teardown(statusEnded)
}

// teardown releases everything the call holds and returns to Idle. It is
// safe to call any number of times.
func (s *Session) teardown(status string) {
	if s.state == StateIdle && s.link == nil && s.sig == nil && s.local == nil {
		return
	}

	s.closeLink()
	if s.sig != nil {
		if err := s.sig.Close(); err != nil {
			s.log.Debug("closing signaler", "err", err)
		}
		s.sig = nil
	}
	s.sigGen++
	if s.local != nil {
		s.local.Stop()
		s.local = nil
	}

	s.resolveJoin(NewError("join", ErrCallEnded))
	s.remote = nil
	s.pending = nil
	s.remoteDescSet = false
	s.peer = nil
	s.selfID = ""
	s.room = ""
	s.linkState = webrtc.PeerConnectionStateClosed
	s.chat.Clear()
	s.state = StateIdle
	s.setStatus("%s", status)
}

func displayName(p protocol.Participant) string {
	if p.UserName != "" {
		return p.UserName
	}
	return p.ID
}
