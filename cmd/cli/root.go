// Package cli provides the command-line interface for quickscope.
// This package implements the Cobra-based command tree (scan, watch, config
// and version), layering flags and QUICKSCOPE_* environment variables over
// the YAML configuration file through Viper.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anstrom/quickscope/internal/config"
	"github.com/anstrom/quickscope/internal/errors"
	"github.com/anstrom/quickscope/internal/logging"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

const envPrefix = "QUICKSCOPE"

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// errInterrupted reports that the user stopped the command. Partial results
// have already been written when it is returned.
var errInterrupted = stderrors.New("interrupted")

// usageError marks command-line mistakes cobra reports as plain errors.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// flagKeys maps command-line flags to configuration keys. A flag only
// overrides the configuration when it is given explicitly.
var flagKeys = map[string]string{
	"ports":           "scanning.ports",
	"exclude":         "scanning.exclude",
	"concurrency":     "scanning.concurrency",
	"timeout":         "scanning.timeout",
	"banner-timeout":  "scanning.banner_timeout",
	"resolve-timeout": "scanning.resolve_timeout",
	"nameserver":      "scanning.nameserver",
	"rate-limit":      "scanning.rate_limit",
	"max-duration":    "scanning.max_duration",
	"format":          "output.format",
	"all":             "output.all",
	"csv-header":      "output.csv_header",
	"progress":        "output.progress",
	"metrics-addr":    "metrics.listen_addr",
	"cron":            "watch.schedule",
	"log-level":       "logging.level",
	"log-format":      "logging.format",
}

// app holds the state shared by one invocation of the command tree.
type app struct {
	cfgFile string
	verbose bool

	viper  *viper.Viper
	stdout io.Writer
	stderr io.Writer

	cfg    *config.Config
	logger *logging.Logger
}

// Execute runs the command line in args and returns the process exit code.
// ctx should be cancelled on SIGINT/SIGTERM; commands then print what they
// have and exit with ExitInterrupted.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	report(stderr, err)
	return exitCode(err)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		viper:  viper.New(),
		stdout: stdout,
		stderr: stderr,
	}

	root := &cobra.Command{
		Use:   "quickscope",
		Short: "Fast concurrent TCP connect port scanner",
		Long: `quickscope scans hosts, hostnames and CIDR ranges for open TCP ports
using plain connect probes, optionally reading a short banner from every
open port. Hundreds of probes run at once under a fixed concurrency cap.`,
		Version:       getVersion(),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "",
		"config file (default is ./quickscope.yaml or ~/.config/quickscope/quickscope.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose logging (debug level)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "log format: text, json")

	root.AddCommand(
		newScanCommand(a),
		newWatchCommand(a),
		newConfigCommand(a),
		newVersionCommand(a),
	)
	return root
}

// initConfig resolves the effective configuration: defaults, then the
// config file, then QUICKSCOPE_* environment variables, then flags.
func (a *app) initConfig(cmd *cobra.Command) error {
	v := a.viper
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindFlags(v, cmd.Flags())

	path, err := a.configPath()
	if err != nil {
		return err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := applyOverrides(v, cmd.Flags(), cfg); err != nil {
		return err
	}
	if a.verbose {
		cfg.Logging.Level = string(logging.LevelDebug)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.initLogging()
	if path != "" {
		a.logger.Debug("Using config file", "path", path)
	}
	return nil
}

// configPath returns the file to load, or "" to use the defaults.
func (a *app) configPath() (string, error) {
	if a.cfgFile != "" {
		if _, err := os.Stat(a.cfgFile); err != nil {
			return "", errors.WrapConfigError(errors.CodeConfiguration,
				fmt.Sprintf("cannot read config file %s", a.cfgFile), err)
		}
		return a.cfgFile, nil
	}

	for _, dir := range configDirs() {
		candidate := filepath.Join(dir, "quickscope.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func configDirs() []string {
	dirs := []string{"."}
	if home, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "quickscope"))
	}
	return dirs
}

// bindFlags binds the flags the running command defines to their keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

// applyOverrides copies every key set through the environment or an
// explicit flag into cfg.
func applyOverrides(v *viper.Viper, flags *pflag.FlagSet, cfg *config.Config) error {
	s := &cfg.Scanning
	setString(v, "scanning.ports", &s.Ports)
	setString(v, "scanning.exclude", &s.Exclude)
	setInt(v, "scanning.concurrency", &s.Concurrency)
	setDuration(v, "scanning.timeout", &s.Timeout)
	setBool(v, "scanning.banner", &s.Banner)
	setDuration(v, "scanning.banner_timeout", &s.BannerTimeout)
	setDuration(v, "scanning.resolve_timeout", &s.ResolveTimeout)
	setString(v, "scanning.nameserver", &s.Nameserver)
	setInt(v, "scanning.rate_limit", &s.RateLimit)
	setDuration(v, "scanning.max_duration", &s.MaxDuration)

	o := &cfg.Output
	setString(v, "output.format", &o.Format)
	setBool(v, "output.all", &o.All)
	setBool(v, "output.csv_header", &o.CSVHeader)
	setBool(v, "output.progress", &o.Progress)

	setString(v, "logging.level", &cfg.Logging.Level)
	setString(v, "logging.format", &cfg.Logging.Format)
	setString(v, "logging.output", &cfg.Logging.Output)

	setBool(v, "metrics.enabled", &cfg.Metrics.Enabled)
	setString(v, "metrics.listen_addr", &cfg.Metrics.ListenAddr)
	setString(v, "watch.schedule", &cfg.Watch.Schedule)

	// Flags without a one-to-one configuration key.
	if f := flags.Lookup("no-banner"); f != nil && f.Changed {
		s.Banner = f.Value.String() != "true"
	}
	if f := flags.Lookup("metrics-addr"); f != nil && f.Changed {
		cfg.Metrics.Enabled = true
	}
	selected := ""
	for _, name := range []string{"json", "csv", "ndjson"} {
		if f := flags.Lookup(name); f != nil && f.Changed && f.Value.String() == "true" {
			if selected != "" {
				return usageError{fmt.Errorf("--%s and --%s cannot be combined", selected, name)}
			}
			selected = name
		}
	}
	if selected != "" {
		o.Format = selected
	}
	return nil
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func setBool(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(key) {
		*dst = v.GetBool(key)
	}
}

func setDuration(v *viper.Viper, key string, dst *time.Duration) {
	if v.IsSet(key) {
		*dst = v.GetDuration(key)
	}
}

// initLogging installs the configured logger as the package default.
func (a *app) initLogging() {
	logCfg := a.cfg.LoggerConfig()
	logCfg.AddSource = logCfg.Level == logging.LevelDebug

	var logger *logging.Logger
	switch logCfg.Output {
	case "", "stderr":
		logger = logging.NewWithWriter(logCfg, a.stderr)
	default:
		var err error
		logger, err = logging.New(logCfg)
		if err != nil {
			_, _ = fmt.Fprintf(a.stderr, "Warning: failed to initialize logging: %v\n", err)
			logger = logging.NewWithWriter(logCfg, a.stderr)
		}
	}

	logging.SetDefault(logger)
	a.logger = logger
}

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	var usage usageError
	switch {
	case err == nil:
		return ExitOK
	case stderrors.Is(err, errInterrupted):
		return ExitInterrupted
	case errors.IsFatal(err), stderrors.As(err, &usage):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// report prints a one-line description of err to w.
func report(w io.Writer, err error) {
	var cfgErr *errors.ConfigError
	var usage usageError
	switch {
	case err == nil:
	case stderrors.Is(err, errInterrupted):
		_, _ = fmt.Fprintln(w, "\n[!] Aborted.")
	case errors.IsCode(err, errors.CodeNoTargets) && stderrors.As(err, &cfgErr):
		_, _ = fmt.Fprintf(w, "[!] %s.\n", capitalize(cfgErr.Message))
	case errors.IsFatal(err), stderrors.As(err, &usage):
		_, _ = fmt.Fprintf(w, "[!] Invalid input: %v\n", err)
	default:
		_, _ = fmt.Fprintf(w, "[!] Error: %v\n", err)
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
