package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog/log"
)

// Service is one advertised instance seen during a browse
type Service struct {
	Name string // Instance name without service/domain suffix
	Host string
	Addr net.IP
	Port int
}

// Address returns the address used to reach the instance over HTTP.
// Port 80 (and unknown ports) are left implicit for IPv4; IPv6 literals
// always carry a port so they come out bracketed.
func (s Service) Address() string {
	if s.Addr == nil {
		return ""
	}
	port := s.Port
	if port == 0 {
		port = 80
	}
	if port == 80 && s.Addr.To4() != nil {
		return s.Addr.String()
	}
	return net.JoinHostPort(s.Addr.String(), strconv.Itoa(port))
}

// Browser runs a bounded browse session. Browse blocks for the window, calls
// found for every instance seen (possibly from another goroutine, possibly
// more than once per instance), and tears the session down before returning.
// It only returns an error if the session could not be opened.
type Browser interface {
	Browse(ctx context.Context, window time.Duration, found func(Service)) error
}

// MDNSBrowser browses with hashicorp/mdns
type MDNSBrowser struct {
	Service string
	Domain  string
}

// NewMDNSBrowser creates a browser for service (e.g. "_http._tcp") in domain
func NewMDNSBrowser(service, domain string) *MDNSBrowser {
	return &MDNSBrowser{Service: service, Domain: domain}
}

// Browse implements Browser
func (b *MDNSBrowser) Browse(ctx context.Context, window time.Duration, found func(Service)) error {
	entries := make(chan *mdns.ServiceEntry, 16)
	suffix := "." + strings.Trim(b.Service, ".") + "." + strings.Trim(b.Domain, ".") + "."

	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			addr := entry.AddrV4
			if addr == nil {
				addr = entry.AddrV6
			}
			log.Debug().
				Str("name", entry.Name).
				Str("host", entry.Host).
				Stringer("addr", addr).
				Int("port", entry.Port).
				Msg("mDNS entry")
			found(Service{
				Name: strings.TrimSuffix(entry.Name, suffix),
				Host: entry.Host,
				Addr: addr,
				Port: entry.Port,
			})
		}
	}()

	params := mdns.DefaultParams(b.Service)
	params.Domain = b.Domain
	params.Timeout = window
	params.Entries = entries
	params.DisableIPv6 = true

	// QueryContext returns after the timeout with the client closed
	err := mdns.QueryContext(ctx, params)
	close(entries)
	<-done

	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowse, err)
	}
	return nil
}

// ZeroconfBrowser browses with grandcat/zeroconf
type ZeroconfBrowser struct {
	Service string
	Domain  string
}

// NewZeroconfBrowser creates a browser for service in domain
func NewZeroconfBrowser(service, domain string) *ZeroconfBrowser {
	return &ZeroconfBrowser{Service: service, Domain: domain}
}

// Browse implements Browser
func (b *ZeroconfBrowser) Browse(ctx context.Context, window time.Duration, found func(Service)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("%w: creating mDNS resolver: %v", ErrBrowse, err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			var addr net.IP
			if len(entry.AddrIPv4) > 0 {
				addr = entry.AddrIPv4[0]
			} else if len(entry.AddrIPv6) > 0 {
				addr = entry.AddrIPv6[0]
			}
			found(Service{
				Name: entry.Instance,
				Host: entry.HostName,
				Addr: addr,
				Port: entry.Port,
			})
		}
	}()

	if err := resolver.Browse(browseCtx, b.Service, b.Domain+".", entries); err != nil {
		return fmt.Errorf("%w: browsing: %v", ErrBrowse, err)
	}

	// The resolver closes entries once browseCtx expires
	<-browseCtx.Done()
	<-done
	return nil
}
