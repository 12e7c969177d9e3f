package call_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/transport/v3/test"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marymwortman-lang/PureConnect/internal/call"
	"github.com/marymwortman-lang/PureConnect/internal/media"
	"github.com/marymwortman-lang/PureConnect/internal/peerlink"
	"github.com/marymwortman-lang/PureConnect/internal/relay"
	"github.com/marymwortman-lang/PureConnect/internal/signaling"
)

func newPionSession(t *testing.T, ctx context.Context, url string) *call.Session {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	links, err := peerlink.NewFactory(peerlink.Config{Logger: logger})
	require.NoError(t, err)

	s := call.NewSession(call.Config{
		Media:     media.NewSource(media.Options{Logger: logger}),
		PeerLinks: links,
		Dialer: call.DialerFunc(func(ctx context.Context) (call.Signaler, error) {
			c, err := signaling.Dial(ctx, url, signaling.Options{Logger: logger})
			if err != nil {
				return nil, err
			}
			return c, nil
		}),
		Logger: logger,
	})
	go s.Run(ctx)
	return s
}

func TestCallOverRealPeerLinks(t *testing.T) {
	defer test.TimeOut(30 * time.Second).Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := relay.NewHub(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run(ctx)
	srv := httptest.NewServer(relay.NewMux(hub))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + relay.PathWS

	alice := newPionSession(t, ctx, url)
	bob := newPionSession(t, ctx, url)

	require.NoError(t, alice.Join(ctx, "r1", "alice"))
	require.NoError(t, bob.Join(ctx, "r1", "bob"))

	streaming := func(s call.Snapshot) bool {
		return s.State == call.StateConnected &&
			s.LinkState == webrtc.PeerConnectionStateConnected &&
			s.Remote != nil && len(s.Remote.Tracks) == 2
	}
	for _, s := range []*call.Session{alice, bob} {
		require.Eventually(t, func() bool { return streaming(s.Snapshot()) },
			20*time.Second, 50*time.Millisecond)
	}

	kinds := map[webrtc.RTPCodecType]bool{}
	for _, tr := range alice.Snapshot().Remote.Tracks {
		kinds[tr.Kind] = true
	}
	assert.True(t, kinds[webrtc.RTPCodecTypeAudio])
	assert.True(t, kinds[webrtc.RTPCodecTypeVideo])

	bob.HangUp()
	require.Eventually(t, func() bool {
		snap := alice.Snapshot()
		return snap.State == call.StateIdle && !snap.HasLocal && snap.Remote == nil
	}, 10*time.Second, 50*time.Millisecond)
}
