// Package cellular describes the cellular link: the carrier and the radio
// access technology in use.
package cellular

import (
	"fmt"
	"strings"
)

// Operator identifies a mobile network operator.
type Operator uint

// Known operators.
const (
	OperatorUnknown Operator = iota
	OperatorChinaMobile
	OperatorChinaUnicom
	OperatorChinaTelecom
	OperatorChinaTietong
)

var operatorNames = map[Operator]string{
	OperatorUnknown:      "unknown",
	OperatorChinaMobile:  "china_mobile",
	OperatorChinaUnicom:  "china_unicom",
	OperatorChinaTelecom: "china_telecom",
	OperatorChinaTietong: "china_tietong",
}

// operatorCodes maps 3GPP MCC+MNC codes onto operators.
var operatorCodes = map[string]Operator{
	"46000": OperatorChinaMobile,
	"46002": OperatorChinaMobile,
	"46004": OperatorChinaMobile,
	"46007": OperatorChinaMobile,
	"46008": OperatorChinaMobile,
	"46001": OperatorChinaUnicom,
	"46006": OperatorChinaUnicom,
	"46009": OperatorChinaUnicom,
	"46003": OperatorChinaTelecom,
	"46005": OperatorChinaTelecom,
	"46011": OperatorChinaTelecom,
	"46020": OperatorChinaTietong,
}

// OperatorFromCode returns the operator for an MCC+MNC code such as "46000".
func OperatorFromCode(code string) Operator {
	return operatorCodes[strings.TrimSpace(code)]
}

func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return fmt.Sprintf("operator(%d)", uint(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Operator) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Operator) UnmarshalText(text []byte) error {
	for op, name := range operatorNames {
		if name == string(text) {
			*o = op
			return nil
		}
	}
	return fmt.Errorf("unknown operator %q", text)
}

// AccessTech is a radio access technology. Later values are newer
// generations within their family.
type AccessTech uint

// Access technologies, oldest first within each family.
const (
	AccessTechUnknown AccessTech = iota
	AccessTechGPRS
	AccessTechEdge
	AccessTechWCDMA
	AccessTechHSDPA
	AccessTechHSUPA
	AccessTechCDMA1x
	AccessTechCDMAEVDORev0
	AccessTechCDMAEVDORevA
	AccessTechCDMAEVDORevB
	AccessTechHRPD
	AccessTechLTE
	AccessTechNR
)

var accessTechNames = map[AccessTech]string{
	AccessTechUnknown:      "unknown",
	AccessTechGPRS:         "gprs",
	AccessTechEdge:         "edge",
	AccessTechWCDMA:        "wcdma",
	AccessTechHSDPA:        "hsdpa",
	AccessTechHSUPA:        "hsupa",
	AccessTechCDMA1x:       "cdma1x",
	AccessTechCDMAEVDORev0: "evdo_rev0",
	AccessTechCDMAEVDORevA: "evdo_reva",
	AccessTechCDMAEVDORevB: "evdo_revb",
	AccessTechHRPD:         "hrpd",
	AccessTechLTE:          "lte",
	AccessTechNR:           "nr",
}

func (a AccessTech) String() string {
	if name, ok := accessTechNames[a]; ok {
		return name
	}
	return fmt.Sprintf("access_tech(%d)", uint(a))
}

// MarshalText implements encoding.TextMarshaler.
func (a AccessTech) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AccessTech) UnmarshalText(text []byte) error {
	for tech, name := range accessTechNames {
		if name == string(text) {
			*a = tech
			return nil
		}
	}
	return fmt.Errorf("unknown access technology %q", text)
}

// Generation returns the marketing generation ("2G" to "5G"), or "" when
// unknown.
func (a AccessTech) Generation() string {
	switch a {
	case AccessTechGPRS, AccessTechEdge, AccessTechCDMA1x:
		return "2G"
	case AccessTechWCDMA, AccessTechHSDPA, AccessTechHSUPA,
		AccessTechCDMAEVDORev0, AccessTechCDMAEVDORevA, AccessTechCDMAEVDORevB, AccessTechHRPD:
		return "3G"
	case AccessTechLTE:
		return "4G"
	case AccessTechNR:
		return "5G"
	default:
		return ""
	}
}

// ModemManager access technology bits (MMModemAccessTechnology).
const (
	mmAccessGSM        uint32 = 1 << 1
	mmAccessGSMCompact uint32 = 1 << 2
	mmAccessGPRS       uint32 = 1 << 3
	mmAccessEDGE       uint32 = 1 << 4
	mmAccessUMTS       uint32 = 1 << 5
	mmAccessHSDPA      uint32 = 1 << 6
	mmAccessHSUPA      uint32 = 1 << 7
	mmAccessHSPA       uint32 = 1 << 8
	mmAccessHSPAPlus   uint32 = 1 << 9
	mmAccess1xRTT      uint32 = 1 << 10
	mmAccessEVDO0      uint32 = 1 << 11
	mmAccessEVDOA      uint32 = 1 << 12
	mmAccessEVDOB      uint32 = 1 << 13
	mmAccessLTE        uint32 = 1 << 14
	mmAccess5GNR       uint32 = 1 << 15
	mmAccessLTECatM    uint32 = 1 << 16
	mmAccessLTENBIoT   uint32 = 1 << 17
)

var accessTechBits = []struct {
	bit  uint32
	tech AccessTech
}{
	{mmAccessGSM, AccessTechGPRS},
	{mmAccessGSMCompact, AccessTechGPRS},
	{mmAccessGPRS, AccessTechGPRS},
	{mmAccessEDGE, AccessTechEdge},
	{mmAccessUMTS, AccessTechWCDMA},
	{mmAccessHSDPA, AccessTechHSDPA},
	{mmAccessHSUPA, AccessTechHSUPA},
	{mmAccessHSPA, AccessTechHSUPA},
	{mmAccessHSPAPlus, AccessTechHSUPA},
	{mmAccess1xRTT, AccessTechCDMA1x},
	{mmAccessEVDO0, AccessTechCDMAEVDORev0},
	{mmAccessEVDOA, AccessTechCDMAEVDORevA},
	{mmAccessEVDOB, AccessTechCDMAEVDORevB},
	{mmAccessLTE, AccessTechLTE},
	{mmAccessLTECatM, AccessTechLTE},
	{mmAccessLTENBIoT, AccessTechLTE},
	{mmAccess5GNR, AccessTechNR},
}

// AccessTechFromMask converts a ModemManager access technology bitmask into
// the most advanced technology it contains.
func AccessTechFromMask(mask uint32) AccessTech {
	best := AccessTechUnknown
	for _, b := range accessTechBits {
		if mask&b.bit != 0 && b.tech > best {
			best = b.tech
		}
	}
	return best
}

// Info describes the active cellular modem.
type Info struct {
	Modem         string     `json:"modem"`
	OperatorCode  string     `json:"operator_code,omitempty"`
	OperatorName  string     `json:"operator_name,omitempty"`
	Operator      Operator   `json:"operator"`
	AccessTech    AccessTech `json:"access_tech"`
	SignalQuality uint32     `json:"signal_quality"`
}
