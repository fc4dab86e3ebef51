package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loopback = netip.MustParseAddr("127.0.0.1")

// stubDialer returns a fixed error after an optional delay.
type stubDialer struct {
	err   error
	delay time.Duration
}

func (s stubDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: ctx.Err()}
		}
	}
	return nil, s.err
}

func listen(t *testing.T) (net.Listener, uint16) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln, uint16(ln.Addr().(*net.TCPAddr).Port)
}

// closedPort returns a loopback port that had a listener a moment ago.
func closedPort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())
	return port
}

func TestProbeOpen(t *testing.T) {
	ln, port := listen(t)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()

	result, conn := New(time.Second).Probe(context.Background(), loopback, port)
	require.NotNil(t, conn)
	defer conn.Close()

	assert.Equal(t, StatusOpen, result.Status)
	assert.Empty(t, result.Detail)
}

func TestProbeNoListener(t *testing.T) {
	port := closedPort(t)
	timeout := 500 * time.Millisecond

	start := time.Now()
	result, conn := New(timeout).Probe(context.Background(), loopback, port)

	assert.Nil(t, conn)
	assert.Contains(t, []Status{StatusClosed, StatusFiltered}, result.Status)
	assert.Less(t, time.Since(start), timeout+250*time.Millisecond)
}

func TestProbeTimeoutIsFiltered(t *testing.T) {
	prober := NewWithDialer(stubDialer{delay: time.Minute}, 50*time.Millisecond)

	start := time.Now()
	result, conn := prober.Probe(context.Background(), loopback, 80)

	assert.Nil(t, conn)
	assert.Equal(t, StatusFiltered, result.Status)
	assert.Equal(t, "timeout", result.Detail)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProbeAddressFormatting(t *testing.T) {
	var got string
	dialer := dialFunc(func(_ context.Context, _, address string) (net.Conn, error) {
		got = address
		return nil, syscall.ECONNREFUSED
	})

	NewWithDialer(dialer, time.Second).Probe(context.Background(), netip.MustParseAddr("2001:db8::1"), 443)
	assert.Equal(t, "[2001:db8::1]:443", got)

	NewWithDialer(dialer, time.Second).Probe(context.Background(), loopback, 22)
	assert.Equal(t, net.JoinHostPort("127.0.0.1", strconv.Itoa(22)), got)
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (f dialFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

func TestClassify(t *testing.T) {
	opErr := func(err error) error {
		return &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", err)}
	}

	tests := []struct {
		name   string
		err    error
		status Status
		detail string
	}{
		{"refused", opErr(syscall.ECONNREFUSED), StatusClosed, "connection refused"},
		{"reset", opErr(syscall.ECONNRESET), StatusClosed, "connection reset"},
		{"deadline", &net.OpError{Op: "dial", Err: context.DeadlineExceeded}, StatusFiltered, "timeout"},
		{"io timeout", opErr(os.ErrDeadlineExceeded), StatusFiltered, "timeout"},
		{"canceled", &net.OpError{Op: "dial", Err: context.Canceled}, StatusError, "canceled"},
		{"net unreachable", opErr(syscall.ENETUNREACH), StatusError, "network unreachable"},
		{"host unreachable", opErr(syscall.EHOSTUNREACH), StatusError, "host unreachable"},
		{"refused text", errors.New("dial: connectex: target machine actively refused it"), StatusClosed, "connection refused"},
		{"other", opErr(syscall.EACCES), StatusError, "connect: permission denied"},
		{"plain", fmt.Errorf("weird"), StatusError, "weird"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, detail := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.detail, detail)
		})
	}
}
