// Package traffic samples per-interface-class byte counters and turns them
// into throughput.
package traffic

import (
	"fmt"
	"strings"
)

// TrafficType is a set of directional traffic flags.
//
// WWAN is cellular data, WiFi is Wi-Fi, and AWDL is peer-to-peer wireless
// (direct device-to-device links such as Wi-Fi P2P).
type TrafficType uint

const (
	WWANSent TrafficType = 1 << iota
	WWANReceived
	WiFiSent
	WiFiReceived
	AWDLSent
	AWDLReceived
)

const (
	WWAN = WWANSent | WWANReceived
	WiFi = WiFiSent | WiFiReceived
	AWDL = AWDLSent | AWDLReceived

	All = WWAN | WiFi | AWDL
)

// directions lists every directional flag in bit order.
var directions = []TrafficType{
	WWANSent, WWANReceived,
	WiFiSent, WiFiReceived,
	AWDLSent, AWDLReceived,
}

// classes lists the composite class flags sampled by the monitor.
var classes = []TrafficType{WWAN, WiFi, AWDL}

var flagNames = map[TrafficType]string{
	WWANSent:     "wwan-sent",
	WWANReceived: "wwan-received",
	WiFiSent:     "wifi-sent",
	WiFiReceived: "wifi-received",
	AWDLSent:     "awdl-sent",
	AWDLReceived: "awdl-received",
	WWAN:         "wwan",
	WiFi:         "wifi",
	AWDL:         "awdl",
	All:          "all",
}

// Has reports whether every flag in other is set in t.
func (t TrafficType) Has(other TrafficType) bool {
	return other != 0 && t&other == other
}

// Directions returns the directional flags set in t, in bit order.
func (t TrafficType) Directions() []TrafficType {
	var out []TrafficType
	for _, d := range directions {
		if t.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// String renders t using composite names where a full pair is present,
// e.g. "wifi|awdl-received".
func (t TrafficType) String() string {
	if t == 0 {
		return "none"
	}
	if t&All == All {
		return "all"
	}

	var parts []string
	for _, class := range classes {
		switch {
		case t&class == class:
			parts = append(parts, flagNames[class])
		case t&class != 0:
			parts = append(parts, flagNames[t&class])
		}
	}
	if extra := t &^ All; extra != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint(extra)))
	}
	return strings.Join(parts, "|")
}

// ParseTrafficType parses a list of flag names separated by commas, pipes or
// whitespace. Names are case-insensitive; "wlan" and "cellular" are accepted
// as aliases of "wifi" and "wwan".
func ParseTrafficType(s string) (TrafficType, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '|' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty traffic type")
	}

	var t TrafficType
	for _, f := range fields {
		flag, ok := lookupFlag(strings.ToLower(f))
		if !ok {
			return 0, fmt.Errorf("unknown traffic type %q", f)
		}
		t |= flag
	}
	return t, nil
}

func lookupFlag(name string) (TrafficType, bool) {
	name = strings.NewReplacer("wlan", "wifi", "cellular", "wwan", "_", "-").Replace(name)
	for flag, n := range flagNames {
		if n == name {
			return flag, true
		}
	}
	return 0, false
}

// Class identifies the interface class a network interface belongs to.
type Class string

const (
	ClassNone Class = "none"
	ClassWWAN Class = "wwan"
	ClassWiFi Class = "wifi"
	ClassAWDL Class = "awdl"
)

// ParseClass parses a class name as used in configuration files.
func ParseClass(s string) (Class, error) {
	switch c := Class(strings.ToLower(strings.TrimSpace(s))); c {
	case ClassNone, ClassWWAN, ClassWiFi, ClassAWDL:
		return c, nil
	case "wlan":
		return ClassWiFi, nil
	case "cellular":
		return ClassWWAN, nil
	default:
		return "", fmt.Errorf("unknown interface class %q", s)
	}
}

// Flags returns the composite traffic flags for the class.
func (c Class) Flags() TrafficType {
	switch c {
	case ClassWWAN:
		return WWAN
	case ClassWiFi:
		return WiFi
	case ClassAWDL:
		return AWDL
	default:
		return 0
	}
}

// Sent returns the class's transmit flag.
func (c Class) Sent() TrafficType {
	return c.Flags() & (WWANSent | WiFiSent | AWDLSent)
}

// Received returns the class's receive flag.
func (c Class) Received() TrafficType {
	return c.Flags() & (WWANReceived | WiFiReceived | AWDLReceived)
}
