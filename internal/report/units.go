package report

import (
	"fmt"
	"math"

	"racecurve/internal/config"
)

const (
	metersPerMile = 1609.344
	metersPerKm   = 1000.0
)

// unit is a display length: metres per unit and its short label.
type unit struct {
	meters float64
	label  string
}

var (
	kilometre = unit{metersPerKm, "km"}
	mile      = unit{metersPerMile, "mi"}
)

// Units formats distances and paces in the configured display units.
// Anything other than "mi" / "min/mi" falls back to metric.
type Units struct {
	distance unit
	pace     unit
}

// NewUnits resolves the display config once.
func NewUnits(cfg config.DisplayConfig) Units {
	u := Units{distance: kilometre, pace: kilometre}
	if cfg.DistanceUnit == "mi" {
		u.distance = mile
	}
	if cfg.PaceUnit == "min/mi" {
		u.pace = mile
	}
	return u
}

// FormatDistance renders metres with one decimal, e.g. "10.0 km".
func (u Units) FormatDistance(meters float64) string {
	return fmt.Sprintf("%.1f %s", meters/u.distance.meters, u.distance.label)
}

// FormatPace renders the pace of covering meters in seconds, e.g. "4:00/km".
func (u Units) FormatPace(seconds, meters float64) string {
	if meters <= 0 || seconds <= 0 {
		return "-"
	}
	return FormatDuration(seconds*u.pace.meters/meters) + "/" + u.pace.label
}

// FormatSpeed renders a speed in m/s as a pace.
func (u Units) FormatSpeed(mps float64) string {
	if mps <= 0 {
		return "-"
	}
	return u.FormatPace(u.pace.meters/mps, u.pace.meters)
}

// PaceLabel is "min/km" or "min/mi".
func (u Units) PaceLabel() string { return "min/" + u.pace.label }

// FormatDuration renders seconds as H:MM:SS, or M:SS under an hour. Negative
// and non-finite values render as "-".
func FormatDuration(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "-"
	}
	d := int(math.Round(seconds))
	if d >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", d/3600, d/60%60, d%60)
	}
	return fmt.Sprintf("%d:%02d", d/60, d%60)
}
