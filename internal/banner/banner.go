// Package banner reads short identifying greetings from open TCP connections.
//
// Many services (SSH, SMTP, FTP) greet immediately, so the grabber first
// listens passively. If nothing arrives it sends a bare CRLF, which prompts a
// response from most line-oriented protocols, and listens once more.
package banner

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxBytes bounds how much of a response is read.
	MaxBytes = 256

	// DefaultTimeout is the total time budget for one banner grab.
	DefaultTimeout = 600 * time.Millisecond
)

// Probe is written when the service stays silent during the passive read.
var Probe = []byte("\r\n")

// Result is the outcome of a banner grab.
type Result struct {
	// Text is the cleaned banner. It may be empty when the service only
	// sent whitespace or control bytes.
	Text string
	// Available is false when nothing at all was received.
	Available bool
}

// Unavailable is the result of a grab that received nothing.
var Unavailable = Result{}

// Grab reads a banner from conn within timeout. Half of the budget is spent
// on the passive read, the remainder on the probe and second read. Grab
// never fails: any I/O error yields Unavailable. Cancelling ctx closes conn
// so a pending read returns at once.
func Grab(ctx context.Context, conn net.Conn, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	start := time.Now()
	deadline := start.Add(timeout)
	buf := make([]byte, MaxBytes)

	if err := conn.SetReadDeadline(start.Add(timeout / 2)); err != nil {
		return Unavailable
	}
	n, err := conn.Read(buf)
	if n > 0 {
		return clean(buf[:n])
	}
	if !isTimeout(err) || ctx.Err() != nil {
		// EOF or a hard error: the service is not going to talk.
		return Unavailable
	}

	if err := conn.SetDeadline(deadline); err != nil {
		return Unavailable
	}
	if _, err := conn.Write(Probe); err != nil {
		return Unavailable
	}
	n, _ = conn.Read(buf)
	if n > 0 {
		return clean(buf[:n])
	}
	return Unavailable
}

// Clean converts raw banner bytes into printable text.
func Clean(raw []byte) string {
	return clean(raw).Text
}

func clean(raw []byte) Result {
	if len(raw) > MaxBytes {
		raw = raw[:MaxBytes]
	}
	s := string(raw)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\r' || r == '\n' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, s)
	return Result{Text: strings.Join(strings.Fields(s), " "), Available: true}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
