package banner

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipe returns the client end of an in-memory connection whose server end
// is driven by serve.
func pipe(t *testing.T, serve func(server net.Conn)) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer server.Close()
		serve(server)
	}()
	t.Cleanup(func() {
		_ = client.Close()
		<-done
	})
	return client
}

func TestGrabPassiveGreeting(t *testing.T) {
	conn := pipe(t, func(server net.Conn) {
		_, _ = server.Write([]byte("SSH-2.0-OpenSSH_9.6\r\n"))
	})

	result := Grab(context.Background(), conn, time.Second)

	assert.True(t, result.Available)
	assert.Equal(t, "SSH-2.0-OpenSSH_9.6", result.Text)
}

func TestGrabSendsProbeWhenSilent(t *testing.T) {
	received := make(chan []byte, 1)
	conn := pipe(t, func(server net.Conn) {
		buf := make([]byte, 16)
		n, err := server.Read(buf)
		if err != nil {
			return
		}
		received <- buf[:n]
		_, _ = server.Write([]byte("HTTP/1.1 400 Bad Request\r\nServer: nginx\r\n\r\n"))
	})

	result := Grab(context.Background(), conn, 400*time.Millisecond)

	require.True(t, result.Available)
	assert.Equal(t, "HTTP/1.1 400 Bad Request Server: nginx", result.Text)
	assert.Equal(t, Probe, <-received)
}

func TestGrabSilentServiceIsBounded(t *testing.T) {
	conn := pipe(t, func(server net.Conn) {
		_, _ = io.Copy(io.Discard, server)
	})

	start := time.Now()
	result := Grab(context.Background(), conn, 200*time.Millisecond)

	assert.Equal(t, Unavailable, result)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGrabServiceThatNeverReads(t *testing.T) {
	block := make(chan struct{})
	conn := pipe(t, func(net.Conn) { <-block })
	defer close(block)

	start := time.Now()
	result := Grab(context.Background(), conn, 200*time.Millisecond)

	assert.False(t, result.Available)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGrabImmediateClose(t *testing.T) {
	conn := pipe(t, func(net.Conn) {})

	start := time.Now()
	result := Grab(context.Background(), conn, 5*time.Second)

	assert.False(t, result.Available)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGrabCancelClosesConnection(t *testing.T) {
	block := make(chan struct{})
	conn := pipe(t, func(net.Conn) { <-block })
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	result := Grab(ctx, conn, 10*time.Second)

	assert.False(t, result.Available)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGrabTruncatesLongResponses(t *testing.T) {
	conn := pipe(t, func(server net.Conn) {
		_, _ = server.Write(bytes.Repeat([]byte("A"), 4096))
	})

	result := Grab(context.Background(), conn, time.Second)

	assert.True(t, result.Available)
	assert.LessOrEqual(t, len(result.Text), MaxBytes)
}

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		raw      []byte
		expected string
	}{
		{"trims whitespace", []byte("  220 mail ESMTP \r\n"), "220 mail ESMTP"},
		{"joins lines", []byte("line one\r\nline two\n"), "line one line two"},
		{"drops control bytes", []byte("a\x00b\x07c"), "abc"},
		{"replaces invalid utf-8", []byte{'o', 'k', 0xff, 0xfe, '!'}, "ok�!"},
		{"whitespace only", []byte("\r\n"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Clean(tt.raw))
		})
	}
}

func TestCleanBoundsInput(t *testing.T) {
	raw := []byte(strings.Repeat("x", MaxBytes*2))
	assert.Len(t, Clean(raw), MaxBytes)
}
