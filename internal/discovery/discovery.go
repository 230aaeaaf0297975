// Package discovery advertises and finds the sender's signaling endpoint on
// the local network over mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	Service = "_balltrack._tcp"
	Domain  = "local."
)

// ErrNotFound is returned when browsing ends without a usable entry.
var ErrNotFound = errors.New("discovery: no sender found")

// Endpoint is a discovered signaling endpoint.
type Endpoint struct {
	Instance string
	Host     string
	Port     int
	Kind     string
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Advertisement is a running mDNS registration.
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise registers instance on port. kind is published in the TXT record so
// the client can pick the matching transport.
func Advertise(instance string, port int, kind string) (*Advertisement, error) {
	srv, err := zeroconf.Register(instance, Service, Domain, port, []string{"kind=" + kind}, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	return &Advertisement{server: srv}, nil
}

// Shutdown withdraws the registration.
func (a *Advertisement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Browse returns the first sender that answers before ctx ends.
func Browse(ctx context.Context) (Endpoint, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return Endpoint{}, fmt.Errorf("mdns resolver: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return Endpoint{}, fmt.Errorf("mdns browse: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return Endpoint{}, ErrNotFound
		case e, ok := <-entries:
			if !ok {
				return Endpoint{}, ErrNotFound
			}
			if ep, ok := fromEntry(e); ok {
				return ep, nil
			}
		}
	}
}

func fromEntry(e *zeroconf.ServiceEntry) (Endpoint, bool) {
	if e == nil || e.Port == 0 {
		return Endpoint{}, false
	}
	ep := Endpoint{Instance: e.Instance, Port: e.Port}
	switch {
	case len(e.AddrIPv4) > 0:
		ep.Host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		ep.Host = e.AddrIPv6[0].String()
	default:
		return Endpoint{}, false
	}
	for _, txt := range e.Text {
		if v, ok := strings.CutPrefix(txt, "kind="); ok {
			ep.Kind = v
		}
	}
	return ep, true
}
