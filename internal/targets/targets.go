// Package targets expands user supplied target strings into concrete addresses.
//
// Entries may be IP literals, CIDR blocks or hostnames. Expansion is lazy:
// a /8 is walked one address at a time instead of being materialized, and
// addresses are deduplicated across every entry in first-seen order.
package targets

import (
	"context"
	"fmt"
	"iter"
	"net/netip"
	"strings"
	"time"

	"github.com/anstrom/quickscope/internal/errors"
	"github.com/anstrom/quickscope/internal/logging"
)

// DefaultResolveTimeout bounds a single hostname lookup.
const DefaultResolveTimeout = 3 * time.Second

// Target is one resolved address.
type Target struct {
	// Addr is the concrete IPv4 or IPv6 address to probe.
	Addr netip.Addr
	// Input is the entry the address was produced from.
	Input string
	// Hostname is set when the address came from name resolution.
	Hostname string
}

// String returns the address in canonical text form.
func (t Target) String() string {
	return t.Addr.String()
}

// Outcome is one element of an expansion: either a Target or the
// resolution failure of one input entry.
type Outcome struct {
	Target Target
	Err    *errors.ResolutionError
}

// Failed reports whether the outcome carries a resolution error.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Expander turns raw target strings into a lazy sequence of outcomes.
type Expander struct {
	resolver Resolver
	timeout  time.Duration
	logger   *logging.Logger
}

// NewExpander creates an expander that resolves hostnames through resolver,
// bounding each lookup by timeout. A nil resolver uses the system resolver.
func NewExpander(resolver Resolver, timeout time.Duration) *Expander {
	if resolver == nil {
		resolver = NewSystemResolver()
	}
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	return &Expander{
		resolver: resolver,
		timeout:  timeout,
		logger:   logging.Default().WithComponent("targets"),
	}
}

// Expand returns the deduplicated, ordered sequence of outcomes for inputs.
// The sequence stops early when ctx is cancelled.
func (e *Expander) Expand(ctx context.Context, inputs []string) iter.Seq[Outcome] {
	return func(yield func(Outcome) bool) {
		seen := make(map[netip.Addr]struct{})

		emit := func(addr netip.Addr, input, hostname string) bool {
			addr = addr.Unmap().WithZone("")
			if _, dup := seen[addr]; dup {
				return true
			}
			seen[addr] = struct{}{}
			return yield(Outcome{Target: Target{Addr: addr, Input: input, Hostname: hostname}})
		}

		for _, raw := range inputs {
			input := strings.TrimSpace(raw)
			if input == "" {
				continue
			}
			if ctx.Err() != nil {
				return
			}

			switch {
			case strings.Contains(input, "/"):
				prefix, err := netip.ParsePrefix(input)
				if err != nil {
					if !yield(e.fail(input, fmt.Errorf("invalid CIDR: %w", err))) {
						return
					}
					continue
				}
				for addr := range Hosts(prefix) {
					if ctx.Err() != nil {
						return
					}
					if !emit(addr, input, "") {
						return
					}
				}

			default:
				if addr, err := netip.ParseAddr(input); err == nil {
					if !emit(addr, input, "") {
						return
					}
					continue
				}

				addrs, err := e.lookup(ctx, input)
				if err != nil {
					if !yield(e.fail(input, err)) {
						return
					}
					continue
				}
				for _, addr := range addrs {
					if !emit(addr, input, input) {
						return
					}
				}
			}
		}
	}
}

// MaxHosts returns an upper bound on the number of addresses inputs expand
// to. It reports false when a hostname makes the count unknown.
func MaxHosts(inputs []string) (uint64, bool) {
	var total uint64
	for _, raw := range inputs {
		input := strings.TrimSpace(raw)
		var n uint64
		switch {
		case input == "":
			continue
		case strings.Contains(input, "/"):
			prefix, err := netip.ParsePrefix(input)
			if err != nil {
				continue
			}
			n = HostCount(prefix)
		default:
			if _, err := netip.ParseAddr(input); err != nil {
				return 0, false
			}
			n = 1
		}
		if total+n < total {
			return ^uint64(0), true
		}
		total += n
	}
	return total, true
}

func (e *Expander) lookup(ctx context.Context, host string) ([]netip.Addr, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	addrs, err := e.resolver.LookupHost(lookupCtx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses found")
	}

	e.logger.Debug("Resolved hostname",
		"host", host,
		"addresses", len(addrs),
		"duration", time.Since(start))
	return addrs, nil
}

func (e *Expander) fail(input string, err error) Outcome {
	resErr := errors.NewResolutionError(input, err)
	e.logger.WarnResolve("Target could not be resolved", input, err)
	return Outcome{Err: resErr}
}
