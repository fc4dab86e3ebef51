// Package ports resolves port specifications into ordered port sets.
//
// A specification is a comma-separated list of tokens. Each token is a single
// port ("22"), an inclusive range ("1-1024") or the keyword "common", which
// expands to a small preset of frequently exposed services.
package ports

import (
	"slices"
	"strconv"
	"strings"

	"github.com/anstrom/quickscope/internal/errors"
)

const (
	// MinPort and MaxPort bound every valid TCP port.
	MinPort = 1
	MaxPort = 65535

	// CommonKeyword selects the built-in preset.
	CommonKeyword = "common"

	expectedPortRangeParts = 2
)

// commonPorts is the preset selected by the "common" keyword.
var commonPorts = []uint16{
	21, 22, 23, 25, 53, 80, 110, 123, 135, 139, 143, 161, 389, 443, 445,
	465, 514, 587, 631, 636, 8080, 8443, 25565,
}

// Common returns a copy of the preset selected by the "common" keyword.
func Common() []uint16 {
	return slices.Clone(commonPorts)
}

// Spec is an immutable, ascending set of distinct ports.
type Spec struct {
	ports []uint16
}

// Ports returns a copy of the ports in ascending order.
func (s Spec) Ports() []uint16 {
	return slices.Clone(s.ports)
}

// Len returns the number of ports in the set.
func (s Spec) Len() int {
	return len(s.ports)
}

// Contains reports whether port is part of the set.
func (s Spec) Contains(port uint16) bool {
	_, found := slices.BinarySearch(s.ports, port)
	return found
}

// String renders the set back into compact specification form.
func (s Spec) String() string {
	var b strings.Builder
	for i := 0; i < len(s.ports); {
		j := i
		for j+1 < len(s.ports) && s.ports[j+1] == s.ports[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(s.ports[i])))
		if j > i {
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(int(s.ports[j])))
		}
		i = j + 1
	}
	return b.String()
}

// Resolve parses include and exclude specifications and returns
// include minus exclude. An empty exclude string excludes nothing.
// Any malformed token, an empty include specification, or an empty
// result is reported as a *errors.PortSpecError.
func Resolve(include, exclude string) (Spec, error) {
	included, err := parse(include)
	if err != nil {
		return Spec{}, err
	}
	if len(included) == 0 {
		return Spec{}, errors.NewPortSpecError(include, "", "no ports specified")
	}

	excluded, err := parse(exclude)
	if err != nil {
		return Spec{}, err
	}

	out := make([]uint16, 0, len(included))
	for port := range included {
		if _, skip := excluded[port]; !skip {
			out = append(out, port)
		}
	}
	if len(out) == 0 {
		return Spec{}, errors.NewPortSpecError(include, "", "every port is excluded")
	}
	slices.Sort(out)

	return Spec{ports: out}, nil
}

// MustResolve is like Resolve but panics on error. Intended for tests and
// package-level defaults.
func MustResolve(include, exclude string) Spec {
	spec, err := Resolve(include, exclude)
	if err != nil {
		panic(err)
	}
	return spec
}

// parse turns one specification into a set of ports.
func parse(spec string) (map[uint16]struct{}, error) {
	set := make(map[uint16]struct{})
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if strings.EqualFold(token, CommonKeyword) {
			for _, p := range commonPorts {
				set[p] = struct{}{}
			}
			continue
		}
		start, end, err := parseToken(spec, token)
		if err != nil {
			return nil, err
		}
		for p := start; p <= end; p++ {
			set[uint16(p)] = struct{}{}
		}
	}
	return set, nil
}

// parseToken parses "port" or "start-end" and returns inclusive bounds.
func parseToken(spec, token string) (int, int, error) {
	if !strings.Contains(token, "-") {
		port, err := parsePort(spec, token, token)
		return port, port, err
	}

	bounds := strings.Split(token, "-")
	if len(bounds) != expectedPortRangeParts {
		return 0, 0, errors.NewPortSpecError(spec, token, "invalid range format")
	}
	start, err := parsePort(spec, token, bounds[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := parsePort(spec, token, bounds[1])
	if err != nil {
		return 0, 0, err
	}
	if start > end {
		return 0, 0, errors.NewPortSpecError(spec, token, "range start is greater than range end")
	}
	return start, end, nil
}

func parsePort(spec, token, value string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, errors.NewPortSpecError(spec, token, "not a number")
	}
	if port < MinPort || port > MaxPort {
		return 0, errors.NewPortSpecError(spec, token, "port must be between 1 and 65535")
	}
	return port, nil
}
