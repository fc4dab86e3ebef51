// Package scanning provides the core TCP connect scanning engine for quickscope.
//
// The engine takes a list of targets (IP addresses, hostnames and CIDR
// ranges) and a port specification, probes every (address, port) pair under
// a fixed concurrency bound, optionally grabs a banner from each open port
// and returns a Summary describing every host.
//
// # Overview
//
// A scan is described by Options and run by a Scanner:
//
//	opts := scanning.DefaultOptions()
//	opts.Targets = []string{"192.168.1.0/24", "example.com"}
//	opts.Ports = "22,80,443,8000-8100"
//	summary, err := scanning.NewScanner().Scan(ctx, opts)
//
// Scan returns an error only for configuration problems: invalid options, a
// malformed port specification, or a target list of which nothing resolves.
// Unresolvable hostnames, refused connections and failed banner reads are
// all reported as data in the Summary.
//
// # Scheduling
//
// Targets are expanded lazily. The intake loop pulls one target at a time,
// queues one work unit per port on a bounded worker pool and moves on; a
// /8 network is never materialized in memory. Each worker takes a slot from
// the Limiter before dialing and gives it back only after the connection is
// closed, so at most Options.Concurrency connections exist at once.
//
// Results travel by value over a channel to a single collector goroutine,
// which feeds the progress hook and the metrics recorder. Host reports are
// assembled after the pool drains: hosts in target order, ports ascending.
//
// # Cancellation
//
// When the caller's context is cancelled or Options.MaxDuration elapses:
//
//   - intake stops queuing new units
//   - queued units that have not started are skipped (Totals.Skipped)
//   - dials already in progress run to their own timeout
//   - connections being read for a banner are closed at once
//
// The returned Summary has Cancelled set and covers every unit that ran.
// Hosts cut short have HostReport.Complete set to false.
package scanning
