// Package probe performs single TCP connect probes and classifies the outcome.
package probe

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Status is the terminal state of one probe.
type Status string

const (
	// StatusOpen means the TCP handshake completed.
	StatusOpen Status = "open"
	// StatusClosed means the connection was actively refused or reset.
	StatusClosed Status = "closed"
	// StatusFiltered means nothing answered before the timeout.
	StatusFiltered Status = "filtered"
	// StatusError covers any other failure, such as an unreachable network.
	StatusError Status = "error"
)

// Result is the outcome of one connect attempt.
type Result struct {
	Status  Status
	Elapsed time.Duration
	// Detail is a short diagnostic for non-open outcomes.
	Detail string
}

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Prober performs connect probes with a fixed timeout.
type Prober struct {
	dialer  Dialer
	timeout time.Duration
}

// New creates a prober that gives up on a connection attempt after timeout.
func New(timeout time.Duration) *Prober {
	return NewWithDialer(&net.Dialer{}, timeout)
}

// NewWithDialer creates a prober that opens connections through dialer.
func NewWithDialer(dialer Dialer, timeout time.Duration) *Prober {
	return &Prober{dialer: dialer, timeout: timeout}
}

// Timeout returns the per-connection timeout.
func (p *Prober) Timeout() time.Duration {
	return p.timeout
}

// Probe attempts a TCP connection to addr:port. On StatusOpen the live
// connection is returned and the caller must close it; on every other
// status the returned connection is nil.
func (p *Prober) Probe(ctx context.Context, addr netip.Addr, port uint16) (Result, net.Conn) {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	address := net.JoinHostPort(addr.String(), strconv.Itoa(int(port)))
	start := time.Now()
	conn, err := p.dialer.DialContext(dialCtx, "tcp", address)
	elapsed := time.Since(start)

	if err == nil {
		return Result{Status: StatusOpen, Elapsed: elapsed}, conn
	}

	status, detail := Classify(err)
	return Result{Status: status, Elapsed: elapsed, Detail: detail}, nil
}

// Classify maps a dial error onto a probe status and a short diagnostic.
func Classify(err error) (Status, string) {
	switch {
	case err == nil:
		return StatusOpen, ""
	case errors.Is(err, syscall.ECONNREFUSED):
		return StatusClosed, "connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return StatusClosed, "connection reset"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return StatusFiltered, "timeout"
	case errors.Is(err, context.Canceled):
		return StatusError, "canceled"
	case errors.Is(err, syscall.ENETUNREACH):
		return StatusError, "network unreachable"
	case errors.Is(err, syscall.EHOSTUNREACH):
		return StatusError, "host unreachable"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusFiltered, "timeout"
	}

	// Some platforms only surface refusals as text.
	if strings.Contains(err.Error(), "refused") {
		return StatusClosed, "connection refused"
	}
	return StatusError, shortDetail(err)
}

// shortDetail strips the "dial tcp a:b:" prefix net.OpError adds.
func shortDetail(err error) string {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return opErr.Err.Error()
	}
	return err.Error()
}
