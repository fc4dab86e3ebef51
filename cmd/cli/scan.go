package cli

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/anstrom/quickscope/internal/api"
	"github.com/anstrom/quickscope/internal/errors"
	"github.com/anstrom/quickscope/internal/metrics"
	"github.com/anstrom/quickscope/internal/output"
	"github.com/anstrom/quickscope/internal/scanning"
)

// systemMetricsInterval is how often goroutine and uptime gauges refresh
// while the metrics server runs.
const systemMetricsInterval = 5 * time.Second

func newScanCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan TARGET [TARGET...]",
		Short: "Scan targets for open TCP ports",
		Long: `Scan one or more targets for open TCP ports. A target is an IPv4 or IPv6
address, a hostname, or a CIDR range. Every port of every target is probed
with a TCP connect; open ports are optionally asked for a banner.

Results go to stdout, progress and diagnostics to stderr. When interrupted,
the ports probed so far are still printed and the exit code is 130.`,
		Example: `  quickscope scan 192.168.1.0/24
  quickscope scan example.com -p 22,80,443 --json
  quickscope scan 10.0.0.5 2001:db8::/126 -p 1-1024 -x 135-139,445 --csv --csv-header
  quickscope scan 192.168.1.0/24 --progress --metrics-addr 127.0.0.1:9464`,
		Args: requireTargets,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScan(cmd.Context(), args)
		},
	}

	addScanFlags(cmd.Flags())
	return cmd
}

// addScanFlags defines the flags shared by scan and watch. Defaults are shown
// for help only; unset flags never override the configuration file.
func addScanFlags(flags *pflag.FlagSet) {
	defaults := scanning.DefaultOptions()

	flags.StringP("ports", "p", defaults.Ports, "ports: 'common', '22,80,443' or '1-1024'")
	flags.StringP("exclude", "x", "", "exclude ports/ranges (e.g. '135-139,445')")
	flags.DurationP("timeout", "t", defaults.Timeout, "per-connection timeout")
	flags.IntP("concurrency", "c", defaults.Concurrency, "maximum concurrent connections")
	flags.Bool("no-banner", false, "disable banner grabbing (faster, quieter)")
	flags.Duration("banner-timeout", defaults.BannerTimeout,
		"banner read timeout, shorter than --timeout (0 = min(600ms, timeout/2))")
	flags.Duration("resolve-timeout", defaults.ResolveTimeout, "hostname resolution timeout")
	flags.String("nameserver", "", "query this DNS server (ip or host:port) instead of the system resolver")
	flags.Int("rate-limit", 0, "maximum probe starts per second (0 = unlimited)")
	flags.Duration("max-duration", 0, "stop the scan after this long (0 = no limit)")

	flags.String("format", string(output.FormatText), "output format: text, json, csv, ndjson")
	flags.Bool("json", false, "output JSON (object keyed by IP)")
	flags.Bool("csv", false, "output CSV")
	flags.Bool("ndjson", false, "output newline-delimited JSON")
	flags.Bool("csv-header", false, "include a header row in CSV output")
	flags.Bool("all", false, "show closed, filtered and error ports too")
	flags.Bool("progress", false, "show progress on stderr")

	flags.String("metrics-addr", "", "serve /metrics, /healthz and /ws/progress on this address during the scan")
}

func requireTargets(_ *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.NewConfigError(errors.CodeNoTargets, "at least one target is required")
	}
	return nil
}

func (a *app) runScan(ctx context.Context, targets []string) error {
	format, err := output.ParseFormat(a.cfg.Output.Format)
	if err != nil {
		return err
	}

	session, err := a.startSession(ctx)
	if err != nil {
		return err
	}
	defer session.close()

	summary, err := session.scan(ctx, a.cfg.ScanOptions(targets))
	if err != nil {
		return err
	}

	if err := a.writeSummary(summary, format); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return errInterrupted
	}
	return nil
}

func (a *app) writeSummary(summary *scanning.Summary, format output.Format) error {
	return output.Write(a.stdout, summary, output.Options{
		Format:    format,
		All:       a.cfg.Output.All,
		CSVHeader: a.cfg.Output.CSVHeader,
	})
}

// session holds what one or more scans in a single command share: the
// scanner, and the metrics server when it is enabled.
type session struct {
	app     *app
	scanner *scanning.Scanner
	server  *api.Server

	stopServer context.CancelFunc
	wg         sync.WaitGroup
}

// startSession builds the scanner and, when metrics are enabled, starts the
// HTTP server. The listener is opened before returning so a bad address
// fails the command immediately.
func (a *app) startSession(ctx context.Context) (*session, error) {
	s := &session{
		app:     a,
		scanner: scanning.NewScanner().WithLogger(a.logger),
	}
	if !a.cfg.Metrics.Enabled {
		return s, nil
	}

	pm := metrics.NewPrometheusMetrics()
	s.scanner.WithRecorder(pm)

	ln, err := net.Listen("tcp", a.cfg.Metrics.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to start metrics server on %s: %w", a.cfg.Metrics.ListenAddr, err)
	}

	s.server = api.New(api.Config{
		ListenAddr: a.cfg.Metrics.ListenAddr,
		Version:    version,
	}, pm, a.logger)

	// The server outlives an interrupted scan long enough to publish the
	// final summary; close stops it.
	serverCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopServer = cancel

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(serverCtx, ln); err != nil {
			a.logger.Error("Metrics server failed", "error", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		pm.StartPeriodicUpdates(serverCtx, systemMetricsInterval)
	}()

	a.logger.Info("Metrics server listening", "address", ln.Addr().String())
	return s, nil
}

// scan runs one scan with the session's progress reporting attached.
func (s *session) scan(ctx context.Context, opts scanning.Options) (*scanning.Summary, error) {
	var progress *output.Progress
	if s.app.cfg.Output.Progress {
		progress = output.NewProgress(s.app.stderr)
		opts.Progress = progress.Observe
	}
	if s.server != nil {
		opts.Progress = s.server.Progress(opts.Progress)
	}

	summary, err := s.scanner.Scan(ctx, opts)
	if progress != nil && err == nil {
		progress.Finish()
	}
	if err != nil {
		return nil, err
	}

	if s.server != nil {
		s.server.ScanFinished(summary)
	}
	return summary, nil
}

func (s *session) close() {
	if s.stopServer != nil {
		s.stopServer()
	}
	s.wg.Wait()
}
