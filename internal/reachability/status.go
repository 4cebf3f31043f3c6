// Package reachability tracks whether the network can be reached and over
// which kind of link, and notifies subscribers when that changes.
package reachability

import (
	"fmt"
	"strings"
)

// Status is the reachability of the network.
type Status int

const (
	// StatusUnknown means reachability has not been determined.
	StatusUnknown Status = -1
	// StatusNotReachable means no network can be reached.
	StatusNotReachable Status = 0
	// StatusViaWWAN means the network is reachable over a cellular link.
	StatusViaWWAN Status = 1
	// StatusViaWiFi means the network is reachable over Wi-Fi or another
	// non-cellular link.
	StatusViaWiFi Status = 2
)

var statusNames = map[Status]string{
	StatusUnknown:      "unknown",
	StatusNotReachable: "not_reachable",
	StatusViaWWAN:      "wwan",
	StatusViaWiFi:      "wifi",
}

// String returns the wire name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsReachable returns true if the network can be reached over any link.
func (s Status) IsReachable() bool {
	return s == StatusViaWWAN || s == StatusViaWiFi
}

// ParseStatus parses a wire name produced by String.
func ParseStatus(name string) (Status, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown reachability status %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("invalid reachability status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
