package tour

import (
	"fmt"
	"strings"

	"github.com/tormoder/fit"
)

// TourTypeMode selects how a tour's type name is built from the names the
// file reports.
type TourTypeMode string

const (
	BySportName           TourTypeMode = "by-sport-name"
	ByProfileName         TourTypeMode = "by-profile-name"
	ByProfileElseSport    TourTypeMode = "by-profile-else-sport"
	BySportAndProfile     TourTypeMode = "by-sport-and-profile"
	BySessionProfileName  TourTypeMode = "by-session-profile-name"
	BySportAndSubSport    TourTypeMode = "by-sport-and-subsport"
	DefaultTourTypeMode                = BySportName
	tourTypeNameSeparator              = " / "
)

var tourTypeModes = []TourTypeMode{
	BySportName,
	ByProfileName,
	ByProfileElseSport,
	BySportAndProfile,
	BySessionProfileName,
	BySportAndSubSport,
}

// ParseTourTypeMode validates a mode name. An empty name selects the default.
func ParseTourTypeMode(s string) (TourTypeMode, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return DefaultTourTypeMode, nil
	}
	for _, m := range tourTypeModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown tour type mode %q", s)
}

// TourTypeNames are the names a classification mode chooses from.
type TourTypeNames struct {
	Sport              string
	SubSport           string
	ProfileName        string
	SessionProfileName string
}

// ClassifyTourType builds the tour type name for the mode. It returns "" when
// the file reported nothing the mode can use.
func ClassifyTourType(mode TourTypeMode, names TourTypeNames) string {
	switch mode {
	case ByProfileName:
		return names.ProfileName
	case ByProfileElseSport:
		if names.ProfileName != "" {
			return names.ProfileName
		}
		return names.Sport
	case BySportAndProfile:
		return joinTypeName(names.Sport, names.ProfileName)
	case BySessionProfileName:
		return names.SessionProfileName
	case BySportAndSubSport:
		return joinTypeName(names.Sport, names.SubSport)
	default:
		return names.Sport
	}
}

func joinTypeName(primary, secondary string) string {
	switch {
	case primary == "":
		return secondary
	case secondary == "":
		return primary
	default:
		return primary + tourTypeNameSeparator + secondary
	}
}

// SportName returns the FIT profile name of a sport value.
func SportName(v uint8) string {
	return strings.ToLower(fit.Sport(v).String())
}

// SubSportName returns the FIT profile name of a sub_sport value. The generic
// sub sport has no useful name and yields "".
func SubSportName(v uint8) string {
	if fit.SubSport(v) == fit.SubSportGeneric {
		return ""
	}
	return strings.ToLower(fit.SubSport(v).String())
}
