package signaling

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marymwortman-lang/PureConnect/internal/protocol"
	"github.com/marymwortman-lang/PureConnect/internal/relay"
)

func startRelay(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := relay.NewHub(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run(ctx)
	srv := httptest.NewServer(relay.NewMux(hub))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + relay.PathWS
}

func recv(t *testing.T, c *Client) *protocol.Message {
	t.Helper()
	select {
	case m, ok := <-c.Incoming():
		require.True(t, ok, "incoming closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}

func TestDialAndJoin(t *testing.T) {
	for _, codec := range []protocol.Codec{protocol.JSONCodec{}, protocol.MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			url := startRelay(t)
			c, err := Dial(context.Background(), url, Options{Codec: codec})
			require.NoError(t, err)
			defer c.Close()

			require.NoError(t, c.Send(protocol.NewJoin("r1", "alice")))
			m := recv(t, c)
			assert.Equal(t, protocol.TypeJoined, m.Type)
			assert.NotEmpty(t, m.SelfID)
		})
	}
}

func TestCloseEndsIncomingAndRejectsSend(t *testing.T) {
	url := startRelay(t)
	c, err := Dial(context.Background(), url, Options{})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send(protocol.NewJoin("r1", "alice")), ErrClosed)

	select {
	case _, ok := <-c.Incoming():
		for ok {
			_, ok = <-c.Incoming()
		}
	case <-time.After(2 * time.Second):
		t.Fatal("incoming was not closed")
	}
}

func TestDialUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Dial(ctx, "ws://127.0.0.1:1/ws", Options{})
	assert.Error(t, err)
}

func TestDialBadURL(t *testing.T) {
	_, err := Dial(context.Background(), "://nope", Options{})
	assert.ErrorContains(t, err, "invalid server URL")
}
