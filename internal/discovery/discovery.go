// Package discovery advertises relays on the LAN over mDNS/DNS-SD and finds
// them again from the client.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

const (
	// ServiceType is the DNS-SD service relays register under.
	ServiceType = "_pureconnect._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	DefaultBrowseTimeout = 3 * time.Second
)

var (
	ErrNotFound    = errors.New("no relay found on the local network")
	ErrInvalidPort = errors.New("invalid port")
)

// Server is a live mDNS registration.
type Server interface {
	Shutdown()
}

// ServerFactory registers services. Tests substitute their own.
type ServerFactory interface {
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (Server, error)
}

type zeroconfServerFactory struct{}

func (zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (Server, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiseConfig describes the relay being announced.
type AdvertiseConfig struct {
	// Instance is the human readable service name. Defaults to the host name.
	Instance string

	Port int

	// Path is the websocket path, published as TXT path=.
	Path string

	Version string

	Factory       ServerFactory
	LoggerFactory logging.LoggerFactory
}

// Advertise announces a relay until the returned Server is shut down.
func Advertise(cfg AdvertiseConfig) (Server, error) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("advertise: %w: %d", ErrInvalidPort, cfg.Port)
	}
	if cfg.Factory == nil {
		cfg.Factory = zeroconfServerFactory{}
	}
	if cfg.Instance == "" {
		cfg.Instance = defaultInstance()
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}

	txt := []string{"path=" + cfg.Path}
	if cfg.Version != "" {
		txt = append(txt, "version="+cfg.Version)
	}

	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("discovery")
		log.Debugf("registering mDNS service: instance=%s service=%s port=%d txt=%v",
			cfg.Instance, ServiceType, cfg.Port, txt)
	}

	server, err := cfg.Factory.Register(cfg.Instance, ServiceType, Domain, cfg.Port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("advertise: mDNS registration failed: %w", err)
	}
	if log != nil {
		log.Infof("advertising %s on port %d", cfg.Instance, cfg.Port)
	}
	return server, nil
}

// Browser looks services up. *zeroconf.Resolver satisfies it.
type Browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// Relay is a relay found on the network.
type Relay struct {
	Instance string
	URL      string
}

// Find returns the first relay that answers within timeout. A zero timeout
// means DefaultBrowseTimeout.
func Find(ctx context.Context, browser Browser, timeout time.Duration) (Relay, error) {
	if browser == nil {
		r, err := zeroconf.NewResolver(nil)
		if err != nil {
			return Relay{}, fmt.Errorf("discovery: %w", err)
		}
		browser = r
	}
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	errCh := make(chan error, 1)
	go func() {
		errCh <- browser.Browse(ctx, ServiceType, Domain, entries)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return Relay{}, ErrNotFound
			}
			if relay, ok := relayFrom(entry); ok {
				return relay, nil
			}
		case err := <-errCh:
			if err != nil {
				return Relay{}, fmt.Errorf("discovery: %w", err)
			}
			// Browse returned; keep reading until ctx expires.
			errCh = nil
		case <-ctx.Done():
			return Relay{}, ErrNotFound
		}
	}
}

func relayFrom(entry *zeroconf.ServiceEntry) (Relay, bool) {
	if entry == nil || entry.Port == 0 {
		return Relay{}, false
	}

	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		host = strings.TrimSuffix(entry.HostName, ".")
	default:
		return Relay{}, false
	}

	path := "/ws"
	for _, txt := range entry.Text {
		if v, ok := strings.CutPrefix(txt, "path="); ok && v != "" {
			path = v
		}
	}

	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(host, fmt.Sprint(entry.Port)),
		Path:   path,
	}
	return Relay{Instance: entry.Instance, URL: u.String()}, true
}

func defaultInstance() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "PureConnect relay"
	}
	return "PureConnect relay on " + host
}
