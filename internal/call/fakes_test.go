package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/marymwortman-lang/PureConnect/internal/protocol"
)

type fakeHandle struct {
	mu      sync.Mutex
	audio   bool
	video   bool
	stopped int
	tracks  []webrtc.TrackLocal
}

func newFakeHandle(t *testing.T) *fakeHandle {
	t.Helper()
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "local")
	require.NoError(t, err)
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "local")
	require.NoError(t, err)
	return &fakeHandle{audio: true, video: true, tracks: []webrtc.TrackLocal{audio, video}}
}

func (h *fakeHandle) Tracks() []webrtc.TrackLocal { return h.tracks }

func (h *fakeHandle) SetAudioEnabled(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.audio = v
}

func (h *fakeHandle) SetVideoEnabled(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.video = v
}

func (h *fakeHandle) AudioEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.audio
}

func (h *fakeHandle) VideoEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.video
}

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped++
}

func (h *fakeHandle) stops() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

type fakeMedia struct {
	handle *fakeHandle
	err    error
}

func (m *fakeMedia) Acquire(context.Context) (MediaHandle, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.handle, nil
}

// fakeLink with autoConn reports connected once both descriptions are set,
// the way a real link would after ICE completes. It also echoes each local
// track back as a remote one, as if the peer were sending the same kinds.
type fakeLink struct {
	mu         sync.Mutex
	h          PeerLinkHandlers
	ops        []string
	candidates []string
	tracks     []webrtc.TrackLocal
	state      webrtc.PeerConnectionState
	local      bool
	remote     bool
	closed     int
	autoConn   bool
}

func (l *fakeLink) record(op string) {
	l.mu.Lock()
	l.ops = append(l.ops, op)
	l.mu.Unlock()
}

func (l *fakeLink) CreateOffer() (webrtc.SessionDescription, error) {
	l.record("createOffer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "fake-offer"}, nil
}

func (l *fakeLink) CreateAnswer() (webrtc.SessionDescription, error) {
	l.record("createAnswer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "fake-answer"}, nil
}

func (l *fakeLink) SetLocalDescription(webrtc.SessionDescription) error {
	l.record("setLocal")
	l.mu.Lock()
	l.local = true
	l.mu.Unlock()
	l.maybeConnect()
	return nil
}

func (l *fakeLink) SetRemoteDescription(webrtc.SessionDescription) error {
	l.record("setRemote")
	l.mu.Lock()
	l.remote = true
	l.mu.Unlock()
	l.maybeConnect()
	return nil
}

func (l *fakeLink) maybeConnect() {
	l.mu.Lock()
	ready := l.autoConn && l.local && l.remote && l.state != webrtc.PeerConnectionStateConnected
	if ready {
		l.state = webrtc.PeerConnectionStateConnected
	}
	tracks := append([]webrtc.TrackLocal(nil), l.tracks...)
	l.mu.Unlock()
	if !ready {
		return
	}
	go func() {
		for _, t := range tracks {
			l.h.OnTrack(RemoteTrack{ID: t.ID(), StreamID: "peer-stream", Kind: t.Kind()})
		}
		l.h.OnConnectionStateChange(webrtc.PeerConnectionStateConnected)
	}()
}

func (l *fakeLink) AddICECandidate(c webrtc.ICECandidateInit) error {
	l.record("addCandidate")
	l.mu.Lock()
	l.candidates = append(l.candidates, c.Candidate)
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) AddTrack(t webrtc.TrackLocal) error {
	l.mu.Lock()
	l.tracks = append(l.tracks, t)
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) ConnectionState() webrtc.PeerConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *fakeLink) setState(s webrtc.PeerConnectionState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	l.h.OnConnectionStateChange(s)
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	l.closed++
	l.state = webrtc.PeerConnectionStateClosed
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) trackCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tracks)
}

func (l *fakeLink) snapshot() (ops, candidates []string, closed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...), append([]string(nil), l.candidates...), l.closed
}

type fakeFactory struct {
	mu       sync.Mutex
	links    []*fakeLink
	autoConn bool
}

func (f *fakeFactory) NewPeerLink(h PeerLinkHandlers) (PeerLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &fakeLink{h: h, state: webrtc.PeerConnectionStateNew, autoConn: f.autoConn}
	f.links = append(f.links, l)
	return l, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.links)
}

func (f *fakeFactory) link(i int) *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links[i]
}

type fakeSignaler struct {
	sent     chan *protocol.Message
	incoming chan *protocol.Message
	mu       sync.Mutex
	closed   int
	dropOnce sync.Once
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{
		sent:     make(chan *protocol.Message, 64),
		incoming: make(chan *protocol.Message, 64),
	}
}

func (s *fakeSignaler) Send(m *protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed > 0 {
		return errors.New("closed")
	}
	s.sent <- m
	return nil
}

func (s *fakeSignaler) Incoming() <-chan *protocol.Message { return s.incoming }

func (s *fakeSignaler) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	s.drop()
	return nil
}

// drop simulates the socket going away.
func (s *fakeSignaler) drop() {
	s.dropOnce.Do(func() { close(s.incoming) })
}

func (s *fakeSignaler) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSignaler) expect(t *testing.T, msgType string) *protocol.Message {
	t.Helper()
	select {
	case m := <-s.sent:
		require.Equal(t, msgType, m.Type, "unexpected message %+v", m)
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", msgType)
		return nil
	}
}

func (s *fakeSignaler) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case m := <-s.sent:
		t.Fatalf("unexpected message %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

type harness struct {
	t       *testing.T
	session *Session
	media   *fakeMedia
	links   *fakeFactory
	sig     *fakeSignaler
	dials   int
	dialErr error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		media: &fakeMedia{handle: newFakeHandle(t)},
		links: &fakeFactory{},
		sig:   newFakeSignaler(),
	}
	h.session = NewSession(Config{
		Media:     h.media,
		PeerLinks: h.links,
		Dialer: DialerFunc(func(context.Context) (Signaler, error) {
			h.dials++
			if h.dialErr != nil {
				return nil, h.dialErr
			}
			return h.sig, nil
		}),
		Logger: quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go h.session.Run(ctx)
	t.Cleanup(cancel)
	return h
}

// join drives Join through the relay's joined reply.
func (h *harness) join(selfID string, peers ...protocol.Participant) {
	h.t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- h.session.Join(context.Background(), "r1", "me") }()

	m := h.sig.expect(h.t, protocol.TypeJoin)
	require.Equal(h.t, "r1", m.Room)
	require.Equal(h.t, "me", m.UserName)

	h.deliver(protocol.NewJoined(selfID, peers))
	select {
	case err := <-errCh:
		require.NoError(h.t, err)
	case <-time.After(2 * time.Second):
		h.t.Fatal("join did not return")
	}
}

func (h *harness) deliver(m *protocol.Message) {
	h.sig.incoming <- m
}

func (h *harness) waitFor(cond func(Snapshot) bool) Snapshot {
	h.t.Helper()
	var snap Snapshot
	require.Eventually(h.t, func() bool {
		snap = h.session.Snapshot()
		return cond(snap)
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

// settle waits for every event posted so far to be applied.
func (h *harness) settle() Snapshot {
	time.Sleep(20 * time.Millisecond)
	return h.session.Snapshot()
}

func offerFrom(t *testing.T, id, name string) *protocol.Message {
	t.Helper()
	m, err := protocol.NewDescription("r1", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"})
	require.NoError(t, err)
	m.SenderID = id
	m.SenderName = name
	return m
}

func answerFrom(t *testing.T, id string) *protocol.Message {
	t.Helper()
	m, err := protocol.NewDescription("r1", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "remote-answer"})
	require.NoError(t, err)
	m.SenderID = id
	return m
}

func candidateFrom(t *testing.T, id, candidate string) *protocol.Message {
	t.Helper()
	m, err := protocol.NewCandidate("r1", webrtc.ICECandidateInit{Candidate: candidate})
	require.NoError(t, err)
	m.SenderID = id
	return m
}
