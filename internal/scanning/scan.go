package scanning

import (
	"cmp"
	"context"
	"iter"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/quickscope/internal/banner"
	"github.com/anstrom/quickscope/internal/errors"
	"github.com/anstrom/quickscope/internal/logging"
	"github.com/anstrom/quickscope/internal/metrics"
	"github.com/anstrom/quickscope/internal/ports"
	"github.com/anstrom/quickscope/internal/probe"
	"github.com/anstrom/quickscope/internal/targets"
	"github.com/anstrom/quickscope/internal/workers"
)

// Scanner runs TCP connect scans. A Scanner holds no per-scan state and may
// run several scans at once.
type Scanner struct {
	recorder metrics.Recorder
	logger   *logging.Logger
	dialer   probe.Dialer
	resolver targets.Resolver
}

// NewScanner creates a scanner that reports to no metrics backend and dials
// through the system network stack.
func NewScanner() *Scanner {
	return &Scanner{
		recorder: metrics.Nop{},
		logger:   logging.Default().WithComponent("scanner"),
	}
}

// WithRecorder sets the metrics recorder.
func (s *Scanner) WithRecorder(r metrics.Recorder) *Scanner {
	if r == nil {
		r = metrics.Nop{}
	}
	s.recorder = r
	return s
}

// WithLogger sets the logger.
func (s *Scanner) WithLogger(l *logging.Logger) *Scanner {
	if l != nil {
		s.logger = l.WithComponent("scanner")
	}
	return s
}

// WithDialer replaces the dialer used for probes.
func (s *Scanner) WithDialer(d probe.Dialer) *Scanner {
	s.dialer = d
	return s
}

// WithResolver replaces the hostname resolver. It takes precedence over
// Options.Nameserver.
func (s *Scanner) WithResolver(r targets.Resolver) *Scanner {
	s.resolver = r
	return s
}

// unit is one (target, port) pair.
type unit struct {
	host   int
	target targets.Target
	port   uint16
}

// unitResult carries a finished unit from a worker to the collector.
type unitResult struct {
	host    int
	result  ProbeResult
	skipped bool
}

// Scan probes every port of every target in opts and returns the summary.
//
// Only configuration problems produce an error: invalid options, a bad port
// specification, or targets of which none resolve. When ctx is cancelled or
// MaxDuration elapses, Scan stops queuing work, lets in-flight probes finish
// and returns what completed with Summary.Cancelled set.
func (s *Scanner) Scan(ctx context.Context, opts Options) (*Summary, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	spec, err := ports.Resolve(opts.Ports, opts.Exclude)
	if err != nil {
		return nil, err
	}

	var (
		scanCtx context.Context
		cancel  context.CancelFunc
	)
	if opts.MaxDuration > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, opts.MaxDuration)
	} else {
		scanCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	summary := &Summary{
		ID:    uuid.New(),
		Ports: spec,
		Start: time.Now(),
	}
	log := s.logger.WithScanID(summary.ID.String())

	expander := targets.NewExpander(s.resolverFor(opts), opts.ResolveTimeout)
	next, stop := iter.Pull(expander.Expand(scanCtx, opts.Targets))
	defer stop()

	// Resolve up to the first usable target before starting any workers, so
	// a scan with nothing to probe fails as a configuration error.
	first, ok := s.nextTarget(next, summary)
	if !ok {
		if scanCtx.Err() != nil {
			summary.Cancelled = true
			summary.End = time.Now()
			s.recorder.ObserveScan(true, summary.Duration(), 0)
			return summary, nil
		}
		return nil, errors.ErrNoTargets()
	}

	run := &scanRun{
		scanner: s,
		opts:    opts,
		spec:    spec,
		summary: summary,
		log:     log,
		limiter: NewLimiter(opts.Concurrency),
		prober:  s.prober(opts.Timeout),
		workers: workerCount(opts, spec.Len()),
	}
	run.results = make(chan unitResult, run.workers)
	run.limiter.OnChange(s.recorder.SetInFlight)

	log.InfoScan("Starting scan",
		"targets", len(opts.Targets),
		"ports", spec.String(),
		"port_count", spec.Len(),
		"concurrency", opts.Concurrency,
		"workers", run.workers,
		"banner", opts.Banner)

	hosts := run.execute(scanCtx, first, next)

	summary.End = time.Now()
	summary.Cancelled = scanCtx.Err() != nil
	run.assemble(hosts)

	log.InfoScan("Scan finished",
		"hosts", summary.Totals.Hosts,
		"open", summary.Totals.Open,
		"closed", summary.Totals.Closed,
		"filtered", summary.Totals.Filtered,
		"errors", summary.Totals.Errors,
		"skipped", summary.Totals.Skipped,
		"resolution_failures", len(summary.ResolutionFailures),
		"peak_in_flight", run.limiter.Peak(),
		"cancelled", summary.Cancelled,
		"duration", summary.Duration())
	s.recorder.ObserveScan(summary.Cancelled, summary.Duration(), summary.Totals.Hosts)

	return summary, nil
}

func (s *Scanner) resolverFor(opts Options) targets.Resolver {
	if s.resolver != nil {
		return s.resolver
	}
	if opts.Nameserver != "" {
		return targets.NewDNSResolver(opts.Nameserver)
	}
	return nil
}

func (s *Scanner) prober(timeout time.Duration) *probe.Prober {
	if s.dialer != nil {
		return probe.NewWithDialer(s.dialer, timeout)
	}
	return probe.New(timeout)
}

// nextTarget pulls outcomes until one resolves, recording failures.
func (s *Scanner) nextTarget(next func() (targets.Outcome, bool), summary *Summary) (targets.Target, bool) {
	for {
		outcome, ok := next()
		if !ok {
			return targets.Target{}, false
		}
		if outcome.Failed() {
			s.recordFailure(summary, outcome)
			continue
		}
		return outcome.Target, true
	}
}

func (s *Scanner) recordFailure(summary *Summary, outcome targets.Outcome) {
	summary.ResolutionFailures = append(summary.ResolutionFailures, ResolutionFailure{
		Input: outcome.Err.Input,
		Error: outcome.Err.Error(),
	})
	s.recorder.IncResolutionFailures()
}

// workerCount returns opts.Concurrency, or the number of work units when the
// targets bound it below that.
func workerCount(opts Options, portCount int) int {
	hosts, bounded := targets.MaxHosts(opts.Targets)
	if !bounded || hosts >= uint64(opts.Concurrency) {
		return opts.Concurrency
	}
	units := hosts * uint64(portCount)
	if units >= uint64(opts.Concurrency) {
		return opts.Concurrency
	}
	return max(int(units), 1)
}

// scanRun holds the state of one Scan call.
type scanRun struct {
	scanner *Scanner
	opts    Options
	spec    ports.Spec
	summary *Summary
	log     *logging.Logger
	limiter *Limiter
	prober  *probe.Prober
	workers int
	results chan unitResult

	queued  atomic.Int64
	byHost  map[int][]ProbeResult
	skipped int
}

// execute feeds every unit through the worker pool and blocks until all of
// them have been collected. It returns the targets in intake order.
func (r *scanRun) execute(ctx context.Context, first targets.Target, next func() (targets.Outcome, bool)) []targets.Target {
	pool := workers.New(workers.Config{
		Size:      r.workers,
		QueueSize: r.workers,
		RateLimit: r.opts.RateLimit,
	})
	pool.Start(ctx)

	var collected sync.WaitGroup
	collected.Add(1)
	go func() {
		defer collected.Done()
		r.collect()
	}()

	var hosts []targets.Target
	target, ok := first, true
	for ok && ctx.Err() == nil {
		hosts = append(hosts, target)
		if !r.enqueue(ctx, pool, len(hosts)-1, target) {
			break
		}
		target, ok = r.scanner.nextTarget(next, r.summary)
	}

	pool.Close()
	close(r.results)
	collected.Wait()

	return hosts
}

// enqueue submits one unit per port for target. It reports false once ctx
// ends and intake must stop.
func (r *scanRun) enqueue(ctx context.Context, pool *workers.Pool, host int, target targets.Target) bool {
	for _, port := range r.spec.Ports() {
		u := unit{host: host, target: target, port: port}
		job := workers.JobFunc(func(ctx context.Context) error {
			result, err := r.probeUnit(ctx, u)
			if err != nil {
				r.results <- unitResult{host: u.host, skipped: true}
				return err
			}
			r.results <- unitResult{host: u.host, result: result}
			return nil
		})
		r.queued.Add(1)
		if err := pool.Submit(ctx, job); err != nil {
			r.queued.Add(-1)
			return false
		}
	}
	return true
}

// probeUnit runs one unit while holding a limiter slot. The slot is released
// only after the connection, if any, has been closed. It returns an error
// without probing when ctx ended before the unit could start.
func (r *scanRun) probeUnit(ctx context.Context, u unit) (ProbeResult, error) {
	if err := ctx.Err(); err != nil {
		return ProbeResult{}, err
	}
	if err := r.limiter.Acquire(ctx); err != nil {
		return ProbeResult{}, err
	}
	defer r.limiter.Release()

	// A dial that has started runs to its own timeout even if the scan is
	// cancelled, so every started unit ends in a real status.
	outcome, conn := r.prober.Probe(context.WithoutCancel(ctx), u.target.Addr, u.port)
	result := ProbeResult{
		Target:  u.target,
		Port:    u.port,
		Status:  outcome.Status,
		Elapsed: outcome.Elapsed,
		Detail:  outcome.Detail,
	}
	if conn == nil {
		return result, nil
	}
	defer conn.Close()

	if r.opts.Banner {
		grabbed := banner.Grab(ctx, conn, r.opts.EffectiveBannerTimeout())
		result.Banner = &grabbed
	}
	return result, nil
}

// collect drains results until the channel is closed. It is the only
// goroutine that touches byHost and skipped.
func (r *scanRun) collect() {
	r.byHost = make(map[int][]ProbeResult)
	done := 0
	recorder := r.scanner.recorder

	for res := range r.results {
		if res.skipped {
			r.skipped++
			continue
		}
		done++
		r.byHost[res.host] = append(r.byHost[res.host], res.result)

		recorder.ObserveProbe(string(res.result.Status), res.result.Elapsed)
		if res.result.Banner != nil {
			recorder.ObserveBanner(res.result.Banner.Available)
		}
		r.log.DebugProbe("Probe finished", res.result.Target.String(), res.result.Port,
			"status", res.result.Status,
			"elapsed", res.result.Elapsed,
			"detail", res.result.Detail)

		if r.opts.Progress != nil {
			r.opts.Progress(Event{
				ScanID: r.summary.ID,
				Result: res.result,
				Done:   done,
				Total:  int(r.queued.Load()),
			})
		}
	}
}

// assemble builds the host reports in target order with ports ascending.
func (r *scanRun) assemble(hosts []targets.Target) {
	summary := r.summary
	summary.Hosts = make([]HostReport, 0, len(hosts))
	summary.Totals.Skipped = r.skipped

	for i, target := range hosts {
		results := r.byHost[i]
		if len(results) == 0 && summary.Cancelled {
			continue
		}
		slices.SortFunc(results, func(a, b ProbeResult) int {
			return cmp.Compare(a.Port, b.Port)
		})
		for _, res := range results {
			summary.Totals.add(res.Status)
		}
		summary.Hosts = append(summary.Hosts, HostReport{
			Target:   target,
			Ports:    results,
			Complete: len(results) == r.spec.Len(),
		})
	}
	summary.Totals.Hosts = len(summary.Hosts)
}

// HostByAddr returns the report for addr, if the scan covered it.
func (s *Summary) HostByAddr(addr netip.Addr) (HostReport, bool) {
	for _, h := range s.Hosts {
		if h.Target.Addr == addr {
			return h, true
		}
	}
	return HostReport{}, false
}
