package scanning

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/anstrom/quickscope/internal/banner"
	"github.com/anstrom/quickscope/internal/errors"
	"github.com/anstrom/quickscope/internal/ports"
	"github.com/anstrom/quickscope/internal/probe"
	"github.com/anstrom/quickscope/internal/targets"
)

const (
	// DefaultConcurrency is the default number of probes in flight.
	DefaultConcurrency = 1024
	// DefaultTimeout is the default per-connection timeout.
	DefaultTimeout = 1200 * time.Millisecond
	// DefaultPorts is the default port specification.
	DefaultPorts = ports.CommonKeyword
)

// ProgressFunc receives one Event per finished work unit. It is called from
// a single goroutine, so implementations need no locking of their own.
type ProgressFunc func(Event)

// Options configures one scan.
type Options struct {
	// Targets lists IPs, hostnames and CIDR ranges.
	Targets []string `validate:"required,min=1"`
	// Ports is a port specification such as "22,80,8000-8100" or "common".
	Ports string
	// Exclude removes ports from Ports using the same grammar.
	Exclude string
	// Concurrency is the maximum number of probes in flight.
	Concurrency int `validate:"gt=0"`
	// Timeout bounds each connection attempt.
	Timeout time.Duration `validate:"gt=0"`
	// Banner enables banner grabbing on open ports.
	Banner bool
	// BannerTimeout bounds each banner grab and must be shorter than Timeout.
	// Zero derives it from Timeout, see EffectiveBannerTimeout.
	BannerTimeout time.Duration `validate:"gte=0"`
	// ResolveTimeout bounds each hostname lookup.
	ResolveTimeout time.Duration `validate:"gt=0"`
	// Nameserver, when set, is queried directly instead of the system resolver.
	Nameserver string `validate:"omitempty,hostname_port|ip|tcp_addr"`
	// RateLimit caps probe starts per second (0 = unlimited).
	RateLimit int `validate:"gte=0"`
	// MaxDuration stops the scan after this long (0 = no limit).
	MaxDuration time.Duration `validate:"gte=0"`
	// Progress, when set, is told about every finished work unit.
	Progress ProgressFunc `validate:"-"`
}

// DefaultOptions returns options with every tunable at its default.
func DefaultOptions() Options {
	return Options{
		Ports:          DefaultPorts,
		Concurrency:    DefaultConcurrency,
		Timeout:        DefaultTimeout,
		Banner:         true,
		ResolveTimeout: targets.DefaultResolveTimeout,
	}
}

var validate = validator.New()

// Validate checks the options and returns a *errors.ConfigError describing
// the first problem found.
func (o *Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errors.NewConfigFieldError(errors.CodeValidation,
				describeFieldError(fe), fe.Field(), fe.Value())
		}
		return errors.WrapConfigError(errors.CodeValidation, "invalid scan options", err)
	}

	if o.Banner && o.BannerTimeout > 0 && o.BannerTimeout >= o.Timeout {
		return errors.NewConfigFieldError(errors.CodeValidation,
			fmt.Sprintf("banner timeout must be shorter than the connect timeout (%s)", o.Timeout),
			"BannerTimeout", o.BannerTimeout)
	}

	hasTarget := false
	for _, t := range o.Targets {
		if strings.TrimSpace(t) != "" {
			hasTarget = true
			break
		}
	}
	if !hasTarget {
		return errors.NewConfigError(errors.CodeNoTargets, "no targets specified")
	}
	return nil
}

// EffectiveBannerTimeout returns BannerTimeout when set, otherwise the
// shorter of banner.DefaultTimeout and half the connect timeout.
func (o *Options) EffectiveBannerTimeout() time.Duration {
	if o.BannerTimeout > 0 {
		return o.BannerTimeout
	}
	return min(banner.DefaultTimeout, o.Timeout/2)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "min":
		return fmt.Sprintf("%s must not be empty", strings.ToLower(fe.Field()))
	case "gt":
		return fmt.Sprintf("%s must be positive", strings.ToLower(fe.Field()))
	case "gte":
		return fmt.Sprintf("%s must not be negative", strings.ToLower(fe.Field()))
	case "hostname_port|ip|tcp_addr":
		return fmt.Sprintf("%s must be an IP address or host:port", strings.ToLower(fe.Field()))
	default:
		return fmt.Sprintf("%s is invalid (%s)", strings.ToLower(fe.Field()), fe.Tag())
	}
}

// ProbeResult is the terminal outcome of one work unit.
type ProbeResult struct {
	Target  targets.Target
	Port    uint16
	Status  probe.Status
	Elapsed time.Duration
	Detail  string
	// Banner is set only for open ports when banner grabbing is enabled.
	Banner *banner.Result
}

// Open reports whether the port accepted the connection.
func (r ProbeResult) Open() bool {
	return r.Status == probe.StatusOpen
}

// BannerText returns the banner text or an empty string.
func (r ProbeResult) BannerText() string {
	if r.Banner == nil {
		return ""
	}
	return r.Banner.Text
}

// HostReport holds every probe result for one target, ordered by port.
type HostReport struct {
	Target targets.Target
	Ports  []ProbeResult
	// Complete is false when the scan stopped before every port ran.
	Complete bool
}

// OpenPorts returns the open results only.
func (h HostReport) OpenPorts() []ProbeResult {
	var open []ProbeResult
	for _, p := range h.Ports {
		if p.Open() {
			open = append(open, p)
		}
	}
	return open
}

// ResolutionFailure records a target entry that produced no addresses.
type ResolutionFailure struct {
	Input string
	Error string
}

// Totals counts outcomes across the whole scan.
type Totals struct {
	Hosts    int
	Ports    int
	Open     int
	Closed   int
	Filtered int
	Errors   int
	// Skipped counts work units that were queued but never started.
	Skipped int
}

func (t *Totals) add(status probe.Status) {
	t.Ports++
	switch status {
	case probe.StatusOpen:
		t.Open++
	case probe.StatusClosed:
		t.Closed++
	case probe.StatusFiltered:
		t.Filtered++
	default:
		t.Errors++
	}
}

// Summary is the result of one scan. It is owned by the caller.
type Summary struct {
	ID                 uuid.UUID
	Ports              ports.Spec
	Hosts              []HostReport
	ResolutionFailures []ResolutionFailure
	Start              time.Time
	End                time.Time
	Totals             Totals
	// Cancelled is true when the caller or the scan deadline stopped the scan.
	Cancelled bool
}

// Duration returns how long the scan ran.
func (s *Summary) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Event describes one finished work unit together with overall progress.
type Event struct {
	ScanID uuid.UUID
	Result ProbeResult
	Done   int
	// Total is the number of units known so far. It grows while targets are
	// still being expanded.
	Total int
}
