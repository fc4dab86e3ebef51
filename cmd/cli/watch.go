package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/quickscope/internal/errors"
	"github.com/anstrom/quickscope/internal/output"
	"github.com/anstrom/quickscope/internal/scheduler"
)

func newWatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch TARGET [TARGET...]",
		Short: "Re-run a scan on a cron schedule",
		Long: `Run the same scan immediately and then on every tick of a cron schedule,
printing each result set, until interrupted. A run that is still going when
the next tick arrives causes that tick to be skipped. Nothing is kept between
runs.

The schedule takes five standard cron fields or a descriptor such as
@hourly, @daily or "@every 15m".`,
		Example: `  quickscope watch 192.168.1.0/24 --cron @hourly
  quickscope watch db.internal -p 5432,6379 --cron "*/10 * * * *" --ndjson
  quickscope watch 10.0.0.0/24 --cron "@every 5m" --metrics-addr :9464`,
		Args: requireTargets,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWatch(cmd.Context(), args)
		},
	}

	addScanFlags(cmd.Flags())
	cmd.Flags().String("cron", "@hourly", "cron schedule for repeated scans")
	return cmd
}

func (a *app) runWatch(ctx context.Context, targets []string) error {
	format, err := output.ParseFormat(a.cfg.Output.Format)
	if err != nil {
		return err
	}
	schedule := a.cfg.Watch.Schedule
	if err := scheduler.ValidateSchedule(schedule); err != nil {
		return err
	}

	// Options are checked once up front so a typo fails the command instead
	// of every scheduled run.
	opts := a.cfg.ScanOptions(targets)
	if err := opts.Validate(); err != nil {
		return err
	}

	session, err := a.startSession(ctx)
	if err != nil {
		return err
	}
	defer session.close()

	sched := scheduler.NewScheduler(a.logger)
	stop := context.AfterFunc(ctx, sched.Stop)
	defer stop()
	defer sched.Stop()

	run := 0
	jobID, err := sched.AddJob("watch", schedule, func(jobCtx context.Context) error {
		run++
		summary, err := session.scan(jobCtx, opts)
		if err != nil {
			if errors.IsFatal(err) {
				return err
			}
			return errors.WrapScanErrorWithTarget(errors.CodeScanFailed,
				fmt.Sprintf("run %d failed", run), strings.Join(targets, ","), err)
		}
		if format == output.FormatText {
			_, _ = fmt.Fprintf(a.stdout, "=== Run %d at %s ===\n", run, summary.Start.Format(time.RFC3339))
		}
		if err := a.writeSummary(summary, format); err != nil {
			return errors.WrapScanError(errors.CodeScanFailed,
				fmt.Sprintf("run %d: cannot write results", run), err).WithContext("format", format)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The first run happens now; configuration problems such as targets that
	// never resolve end the command here.
	if err := sched.RunJob(jobID); err != nil {
		if ctx.Err() != nil {
			return errInterrupted
		}
		if errors.IsFatal(err) {
			return err
		}
		a.logger.Warn("Scan run failed", "error", err)
	}
	if ctx.Err() != nil {
		return errInterrupted
	}

	if err := sched.Start(); err != nil {
		if ctx.Err() != nil {
			return errInterrupted
		}
		return err
	}
	if job, err := sched.GetJob(jobID); err == nil {
		a.logger.Info("Waiting for next scheduled run", "schedule", schedule, "next_run", job.NextRun)
	}

	<-ctx.Done()
	return errInterrupted
}
