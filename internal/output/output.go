// Package output renders scan summaries as text tables, JSON, CSV or NDJSON.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/quickscope/internal/errors"
	"github.com/anstrom/quickscope/internal/probe"
	"github.com/anstrom/quickscope/internal/scanning"
)

// Format selects how results are rendered.
type Format string

const (
	FormatText   Format = "text"
	FormatJSON   Format = "json"
	FormatCSV    Format = "csv"
	FormatNDJSON Format = "ndjson"
)

// protocol is the transport every result uses.
const protocol = "tcp"

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatText, FormatJSON, FormatCSV, FormatNDJSON}
}

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Formats() {
		if f == known {
			return f, nil
		}
	}
	return "", errors.NewConfigFieldError(errors.CodeValidation,
		fmt.Sprintf("unknown output format %q", name), "format", name)
}

// Options controls rendering.
type Options struct {
	Format Format
	// All includes closed, filtered and error ports. Without it only open
	// ports are shown and hosts without open ports are left out.
	All bool
	// CSVHeader writes a header row in CSV output.
	CSVHeader bool
}

// Entry is one rendered port result.
type Entry struct {
	IP       string `json:"ip,omitempty"`
	Port     uint16 `json:"port"`
	Protocol string `json:"protocol"`
	State    string `json:"state"`
	Banner   string `json:"banner"`
	Hostname string `json:"hostname,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// hostEntries is the filtered view of one host.
type hostEntries struct {
	report  scanning.HostReport
	entries []Entry
}

// Write renders summary to w.
func Write(w io.Writer, summary *scanning.Summary, opts Options) error {
	hosts := filter(summary, opts.All)

	switch opts.Format {
	case FormatText, "":
		return writeText(w, summary, hosts, opts.All)
	case FormatJSON:
		return writeJSON(w, hosts)
	case FormatCSV:
		return writeCSV(w, hosts, opts.CSVHeader)
	case FormatNDJSON:
		return writeNDJSON(w, hosts)
	default:
		_, err := ParseFormat(string(opts.Format))
		return err
	}
}

func filter(summary *scanning.Summary, all bool) []hostEntries {
	var hosts []hostEntries
	for _, h := range summary.Hosts {
		var entries []Entry
		for _, p := range h.Ports {
			if !all && !p.Open() {
				continue
			}
			entries = append(entries, Entry{
				IP:       h.Target.Addr.String(),
				Port:     p.Port,
				Protocol: protocol,
				State:    string(p.Status),
				Banner:   p.BannerText(),
				Hostname: h.Target.Hostname,
				Detail:   p.Detail,
			})
		}
		if len(entries) == 0 {
			continue
		}
		hosts = append(hosts, hostEntries{report: h, entries: entries})
	}
	return hosts
}

func writeText(w io.Writer, summary *scanning.Summary, hosts []hostEntries, all bool) error {
	if len(hosts) == 0 {
		msg := "No open ports found."
		if all {
			msg = "No results."
		}
		if _, err := fmt.Fprintln(w, msg); err != nil {
			return err
		}
	}

	for _, h := range hosts {
		title := h.report.Target.Addr.String()
		if h.report.Target.Hostname != "" {
			title = fmt.Sprintf("%s (%s)", title, h.report.Target.Hostname)
		}
		if !h.report.Complete {
			title += " [incomplete]"
		}
		if _, err := fmt.Fprintf(w, "\n%s\n", title); err != nil {
			return err
		}

		table := tablewriter.NewWriter(w)
		table.Header("Port", "State", "Banner")
		for _, e := range h.entries {
			info := e.Banner
			if info == "" && e.State != string(probe.StatusOpen) {
				info = e.Detail
			}
			if err := table.Append([]string{
				fmt.Sprintf("%d/%s", e.Port, e.Protocol),
				e.State,
				info,
			}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	for _, f := range summary.ResolutionFailures {
		if _, err := fmt.Fprintf(w, "\nCould not resolve %s: %s\n", f.Input, f.Error); err != nil {
			return err
		}
	}

	t := summary.Totals
	status := "Scanned"
	if summary.Cancelled {
		status = "Scan interrupted after"
	}
	_, err := fmt.Fprintf(w, "\n%s %d hosts, %d ports in %s: %d open, %d closed, %d filtered, %d errors\n",
		status, t.Hosts, t.Ports, summary.Duration().Round(time.Millisecond), t.Open, t.Closed, t.Filtered, t.Errors)
	return err
}

// writeJSON writes an object keyed by IP address.
func writeJSON(w io.Writer, hosts []hostEntries) error {
	out := make(map[string][]Entry, len(hosts))
	for _, h := range hosts {
		entries := make([]Entry, 0, len(h.entries))
		for _, e := range h.entries {
			e.IP = ""
			e.Hostname = ""
			entries = append(entries, e)
		}
		out[h.report.Target.Addr.String()] = entries
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeCSV(w io.Writer, hosts []hostEntries, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write([]string{"ip", "port", "protocol", "state", "banner"}); err != nil {
			return err
		}
	}
	for _, h := range hosts {
		for _, e := range h.entries {
			if err := cw.Write([]string{e.IP, strconv.Itoa(int(e.Port)), e.Protocol, e.State, e.Banner}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeNDJSON(w io.Writer, hosts []hostEntries) error {
	enc := json.NewEncoder(w)
	for _, h := range hosts {
		for _, e := range h.entries {
			e.Detail = ""
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
	}
	return nil
}
