package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/marymwortman-lang/PureConnect/internal/protocol"
)

// Default configuration values
const (
	DefaultServerURL  = "ws://localhost:3001/ws"
	DefaultSTUN       = "stun:stun.l.google.com:19302"
	DefaultPublicURL  = "http://localhost:3000/"
	DefaultListenAddr = ":3001"
)

var ErrInvalidURL = errors.New("invalid URL")

// Config holds the call client's configuration.
type Config struct {
	// ServerURL is the relay's websocket endpoint.
	ServerURL string

	// STUNServer is used for ICE.
	STUNServer string

	// Codec is the signaling frame encoding.
	Codec protocol.Codec

	// PublicURL is the web app address room links point at.
	PublicURL string
}

// Options for loading config with CLI flag overrides
type Options struct {
	ServerURL  string
	STUNServer string
	Codec      string
	PublicURL  string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	serverURL := pick(opts.ServerURL, "SERVER_URL", DefaultServerURL)
	u, err := url.Parse(serverURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("%w: server %q must be a ws:// or wss:// address", ErrInvalidURL, serverURL)
	}

	codec, err := protocol.CodecByName(pick(opts.Codec, "CODEC", protocol.CodecJSON))
	if err != nil {
		return nil, err
	}

	publicURL := pick(opts.PublicURL, "PUBLIC_URL", DefaultPublicURL)
	if _, err := url.Parse(publicURL); err != nil {
		return nil, fmt.Errorf("%w: public url %q", ErrInvalidURL, publicURL)
	}

	return &Config{
		ServerURL:  serverURL,
		STUNServer: pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		Codec:      codec,
		PublicURL:  publicURL,
	}, nil
}

// GetRoomLink returns the web app URL that opens roomID.
func (c *Config) GetRoomLink(roomID string) string {
	u, err := url.Parse(c.PublicURL)
	if err != nil {
		return c.PublicURL
	}
	q := u.Query()
	q.Set("roomId", roomID)
	u.RawQuery = q.Encode()
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings. An empty setting
// disables STUN.
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" || c.STUNServer == "none" {
		return nil
	}
	return []string{c.STUNServer}
}

// HTTPBase turns the websocket endpoint into the relay's HTTP root.
func (c *Config) HTTPBase() string {
	return HTTPBase(c.ServerURL)
}

// HTTPBase maps ws(s)://host/ws to http(s)://host.
func HTTPBase(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil {
		return serverURL
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws")
	u.RawQuery = ""
	return strings.TrimSuffix(u.String(), "/")
}

// ServerConfig holds the relay's configuration.
type ServerConfig struct {
	ListenAddr string
	Advertise  bool
}

type ServerOptions struct {
	ListenAddr string
	Advertise  bool
}

// LoadServer applies the same priority as Load. ADVERTISE accepts anything
// strconv.ParseBool does.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	advertise := opts.Advertise
	if !advertise {
		if v, ok := os.LookupEnv("ADVERTISE"); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("ADVERTISE: %w", err)
			}
			advertise = b
		}
	}
	return &ServerConfig{
		ListenAddr: pick(opts.ListenAddr, "LISTEN_ADDR", DefaultListenAddr),
		Advertise:  advertise,
	}, nil
}

func pick(flag, env, fallback string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return fallback
}
