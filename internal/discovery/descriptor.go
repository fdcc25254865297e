package discovery

import (
	"errors"
	"fmt"
	"strings"
)

// Descriptor identifies a resolved light strip. It is created once per
// discovered device and never modified afterwards.
type Descriptor struct {
	Type       string `json:"type"`
	MAC        string `json:"mac"`
	Serial     string `json:"serial"`
	Address    string `json:"address"`
	Hostname   string `json:"hostname"`
	UniqueName string `json:"unique_name"`
}

// Candidate is an advertised service instance that passed the name filter
type Candidate struct {
	Name    string // Instance name, e.g. "led-strip-1a2b"
	Host    string // Advertised host, e.g. "led-strip-1a2b.local."
	Address string // Resolved address used for probing, "ip" or "ip:port"
}

// ProbeInfo is the identity block a device returns from GET /
type ProbeInfo struct {
	Type   string
	MAC    string
	Serial string
}

// ErrMalformedProbe is returned when a probe body is not exactly three
// newline-delimited fields
var ErrMalformedProbe = errors.New("malformed probe response")

// ParseProbe parses "<type>\n<mac>\n<serial>". A single trailing newline is
// tolerated; a missing or empty field, or any extra field, is an error.
func ParseProbe(body string) (ProbeInfo, error) {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.TrimSuffix(body, "\n")

	fields := strings.Split(body, "\n")
	if len(fields) != 3 {
		return ProbeInfo{}, fmt.Errorf("%w: want 3 fields, got %d", ErrMalformedProbe, len(fields))
	}
	for i, f := range fields {
		if strings.TrimSpace(f) == "" {
			return ProbeInfo{}, fmt.Errorf("%w: field %d is empty", ErrMalformedProbe, i+1)
		}
	}

	return ProbeInfo{
		Type:   strings.TrimSpace(fields[0]),
		MAC:    strings.TrimSpace(fields[1]),
		Serial: strings.TrimSpace(fields[2]),
	}, nil
}

// Describe assembles a descriptor from a candidate and its probe result
func Describe(c Candidate, info ProbeInfo) Descriptor {
	return Descriptor{
		Type:       info.Type,
		MAC:        info.MAC,
		Serial:     info.Serial,
		Address:    c.Address,
		Hostname:   c.Host,
		UniqueName: c.Name,
	}
}
