// Package dns resolves the relay host, falling back to public resolvers when
// the system one fails.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// PublicServers are queried if a local lookup fails.
var PublicServers = []string{
	"1.0.0.1",                // Cloudflare
	"1.1.1.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.4.4",                // Google
	"8.8.8.8",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"208.67.220.220",         // Cisco OpenDNS
	"208.67.222.222",         // Cisco OpenDNS
}

var ErrNoAddresses = errors.New("no IP addresses found")

// Resolver looks a host up locally first, then races Servers.
type Resolver struct {
	Servers      []string
	LocalTimeout time.Duration
	RaceTimeout  time.Duration

	// lookup is swapped out in tests.
	lookup func(ctx context.Context, r *net.Resolver, host string) ([]string, error)
}

func NewResolver() *Resolver {
	return &Resolver{
		Servers:      PublicServers,
		LocalTimeout: time.Second,
		RaceTimeout:  2 * time.Second,
	}
}

// Lookup resolves host to a single IP, preferring IPv4. IP literals are
// returned as they are.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}

	localCtx, cancel := context.WithTimeout(ctx, r.LocalTimeout)
	ip, err := r.lookupWith(localCtx, &net.Resolver{}, host)
	cancel()
	if err == nil {
		return ip, nil
	}
	if len(r.Servers) == 0 {
		return "", err
	}

	return r.race(ctx, host)
}

// DialContext resolves addr's host with Lookup and dials the result. It fits
// websocket.Dialer.NetDialContext.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, r.RaceTimeout)
	defer cancel()

	results := make(chan result, len(r.Servers))
	for _, server := range r.Servers {
		go func(server string) {
			ip, err := r.lookupWith(ctx, viaServer(server), host)
			results <- result{ip: ip, err: err}
		}(server)
	}

	failures := 0
	for range r.Servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
			failures++
		case <-ctx.Done():
			return "", fmt.Errorf("dns lookup of %s timed out during public DNS race", host)
		}
	}
	return "", fmt.Errorf("failed to resolve %s: all %d public DNS servers failed", host, failures)
}

func (r *Resolver) lookupWith(ctx context.Context, res *net.Resolver, host string) (string, error) {
	lookup := r.lookup
	if lookup == nil {
		lookup = func(ctx context.Context, res *net.Resolver, host string) ([]string, error) {
			return res.LookupHost(ctx, host)
		}
	}

	ips, err := lookup(ctx, res, host)
	if err != nil {
		return "", err
	}
	return preferIPv4(ips)
}

// viaServer returns a resolver that only talks to server on port 53.
func viaServer(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
}

func preferIPv4(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", ErrNoAddresses
	}
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
