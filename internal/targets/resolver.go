package targets

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
)

const defaultDNSPort = "53"

// Resolver looks up the addresses of a hostname.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]netip.Addr, error)
}

// SystemResolver resolves names through the operating system resolver.
type SystemResolver struct {
	resolver *net.Resolver
}

// NewSystemResolver creates a resolver backed by net.DefaultResolver.
func NewSystemResolver() *SystemResolver {
	return &SystemResolver{resolver: net.DefaultResolver}
}

// LookupHost returns the IPv4 and IPv6 addresses of host.
func (r *SystemResolver) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	addrs, err := r.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	out := make([]netip.Addr, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, addr.Unmap())
	}
	return out, nil
}

// DNSResolver queries one nameserver directly for A and AAAA records.
type DNSResolver struct {
	server string
	client *dns.Client
}

// NewDNSResolver creates a resolver that queries server ("host", "[v6]" or
// "host:port"; port 53 is assumed when omitted).
func NewDNSResolver(server string) *DNSResolver {
	if _, _, err := net.SplitHostPort(server); err != nil {
		host := strings.TrimSuffix(strings.TrimPrefix(server, "["), "]")
		server = net.JoinHostPort(host, defaultDNSPort)
	}
	return &DNSResolver{
		server: server,
		client: &dns.Client{Net: "udp"},
	}
}

// Server returns the nameserver address queried by the resolver.
func (r *DNSResolver) Server() string {
	return r.server
}

// LookupHost returns A records followed by AAAA records for host.
// The lookup fails only when neither query produced an address.
func (r *DNSResolver) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	var addrs []netip.Addr
	var lastErr error

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		found, err := r.query(ctx, host, qtype)
		if err != nil {
			lastErr = err
			continue
		}
		addrs = append(addrs, found...)
	}

	if len(addrs) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("no A or AAAA records for %s", host)
	}
	return addrs, nil
}

func (r *DNSResolver) query(ctx context.Context, host string, qtype uint16) ([]netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("%s query to %s failed: %w", dns.TypeToString[qtype], r.server, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s query for %s returned %s",
			dns.TypeToString[qtype], host, dns.RcodeToString[in.Rcode])
	}

	var addrs []netip.Addr
	for _, rr := range in.Answer {
		var ip net.IP
		switch record := rr.(type) {
		case *dns.A:
			ip = record.A
		case *dns.AAAA:
			ip = record.AAAA
		default:
			continue
		}
		if addr, ok := netip.AddrFromSlice(ip); ok {
			addrs = append(addrs, addr.Unmap())
		}
	}
	return addrs, nil
}
