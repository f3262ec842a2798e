package corridor

import (
	"strings"
)

// Direction of travel. Even train codes run UP, odd codes DN.
type Direction string

const (
	Up   Direction = "UP"
	Down Direction = "DN"
)

// Class selects the speed-limit and platform tables used for a train.
type Class string

const (
	ClassFast Class = "fast"
	ClassSlow Class = "slow"
	ClassTHB  Class = "thb"
)

// Family is the service family encoded by a train code's 3-digit prefix.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyFast
	FamilySlowSE
	FamilySlowNE
	FamilySlowGeneral
	FamilyTransHarbour
	FamilyHarbour
	FamilyPort
)

// Base corridor names, combined with a Direction to form a corridor name.
const (
	BaseFast      = "FASTLOCALS"
	BaseSlow      = "SLOWLOCALS"
	BaseLocalsSE  = "LOCALSSE"
	BaseLocalsNE  = "LOCALSNE"
	BaseHarbour   = "HARBOUR"
	BaseTHB       = "THB"
	BaseTHBPanvel = "THB_PNVL"
	BaseTHBVashi  = "THB_VSH"

	defaultBase  = BaseSlow
	prefixLength = 3
)

var prefixFamilies = map[string]Family{
	"950": FamilyFast, "951": FamilyFast, "952": FamilyFast, "953": FamilyFast, "954": FamilyFast,
	"955": FamilyFast, "956": FamilyFast, "957": FamilyFast, "958": FamilyFast, "959": FamilyFast,

	"960": FamilySlowSE, "961": FamilySlowSE, "962": FamilySlowSE, "963": FamilySlowSE,

	"964": FamilySlowNE, "965": FamilySlowNE, "966": FamilySlowNE,

	"970": FamilySlowGeneral, "971": FamilySlowGeneral, "972": FamilySlowGeneral, "973": FamilySlowGeneral,
	"974": FamilySlowGeneral, "975": FamilySlowGeneral, "976": FamilySlowGeneral,

	"990": FamilyTransHarbour, "992": FamilyTransHarbour, "993": FamilyTransHarbour,
	"994": FamilyTransHarbour, "995": FamilyTransHarbour,

	"980": FamilyHarbour, "981": FamilyHarbour, "982": FamilyHarbour, "983": FamilyHarbour, "984": FamilyHarbour,
	"985": FamilyHarbour, "986": FamilyHarbour, "987": FamilyHarbour, "988": FamilyHarbour, "989": FamilyHarbour,

	"996": FamilyPort, "997": FamilyPort,
}

// familyBases maps the families whose corridor follows directly from the
// prefix. Trans-harbour needs the endpoints and is handled separately.
var familyBases = map[Family]string{
	FamilyFast:        BaseFast,
	FamilySlowSE:      BaseLocalsSE,
	FamilySlowNE:      BaseLocalsNE,
	FamilySlowGeneral: BaseSlow,
	FamilyHarbour:     BaseHarbour,
	FamilyPort:        BaseHarbour,
}

func codeSet(codes ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		m[c] = struct{}{}
	}
	return m
}

// Shared main-line stations appear in both regional sets.
var mainLine = []string{
	"CSMT", "MSD", "SNRD", "BY", "CHG", "CRD", "PR", "DR", "MTN", "SION", "CLA", "VVH", "GC", "VK",
	"KJMG", "BND", "NHR", "MLND", "TNA", "KLVA", "MBQ", "DW", "KOPR", "DI", "THK",
}

var (
	seStations = codeSet(append([]string{
		"KYN", "VLDI", "ULNR", "ABH", "BUD", "VGI", "SHELU", "NRL", "BVS", "KJT", "PDI", "KLY", "DLY", "LWJ", "KHPI",
	}, mainLine...)...)
	neStations = codeSet(append([]string{
		"KYN", "SHD", "ABY", "TLA", "KDV", "VSD", "ASO", "ATG", "THS", "KE", "OMB", "KSRA",
	}, mainLine...)...)
	thbVashiStations = codeSet("VSH_THB", "SNPD")

	thbPanvelPrefixes = codeSet("990")
	thbVashiPrefixes  = codeSet("994", "995")
)

// Info is a resolved corridor assignment.
type Info struct {
	Corridor  string    `json:"corridor"`
	Base      string    `json:"base"`
	Direction Direction `json:"direction"`
	TrainCode string    `json:"train_code"`
	Family    Family    `json:"-"`
	Class     Class     `json:"train_class"`
}

// PrefixFamily looks up the family for a train code.
func PrefixFamily(code string) Family {
	code = strings.TrimSpace(code)
	if len(code) < prefixLength {
		return FamilyUnknown
	}
	return prefixFamilies[code[:prefixLength]]
}

// DirectionOf returns the direction encoded in the last digit of code.
func DirectionOf(code string) (Direction, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}
	last := code[len(code)-1]
	if last < '0' || last > '9' {
		return "", false
	}
	if (last-'0')%2 == 0 {
		return Up, true
	}
	return Down, true
}

// Resolve maps a train code and optional endpoints onto a corridor. It
// returns false when the code carries no direction digit.
func Resolve(code, from, to string) (Info, bool) {
	code = strings.TrimSpace(code)
	dir, ok := DirectionOf(code)
	if !ok {
		return Info{}, false
	}
	family := PrefixFamily(code)
	base := baseCorridor(code, family, NormalizeStation(from), NormalizeStation(to))
	return Info{
		Corridor:  string(dir) + base,
		Base:      base,
		Direction: dir,
		TrainCode: code,
		Family:    family,
		Class:     classOf(base, family),
	}, true
}

func baseCorridor(code string, family Family, from, to string) string {
	if family == FamilyTransHarbour {
		prefix := code[:prefixLength]
		switch {
		case inSet(thbPanvelPrefixes, prefix):
			return BaseTHBPanvel
		case inSet(thbVashiPrefixes, prefix), inSet(thbVashiStations, from), inSet(thbVashiStations, to):
			return BaseTHBVashi
		default:
			return BaseTHB
		}
	}
	if base, ok := familyBases[family]; ok {
		return base
	}
	switch {
	case inSet(seStations, from) && inSet(seStations, to):
		return BaseLocalsSE
	case inSet(neStations, from) && inSet(neStations, to):
		return BaseLocalsNE
	}
	return defaultBase
}

func classOf(base string, family Family) Class {
	switch {
	case strings.Contains(base, BaseTHB):
		return ClassTHB
	case family == FamilyFast:
		return ClassFast
	default:
		return ClassSlow
	}
}

func inSet(set map[string]struct{}, code string) bool {
	_, ok := set[code]
	return ok
}

