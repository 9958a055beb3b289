package analysis

import "math"

// BanisterMale and BanisterFemale are the published TRIMP weightings.
const (
	BanisterMale   = 1.92
	BanisterFemale = 1.67
)

// HRZones bounds an athlete's heart-rate reserve. Coefficient is the Banister
// weighting; zero means BanisterMale.
type HRZones struct {
	RestingHR   float64
	MaxHR       float64
	Coefficient float64
}

// DefaultZones is used when no athlete settings are configured.
func DefaultZones() HRZones {
	return HRZones{RestingHR: 50, MaxHR: 185, Coefficient: BanisterMale}
}

// ReserveFraction places hr within the reserve, clamped to [0, 1]. It is 0
// when the reserve is empty.
func (z HRZones) ReserveFraction(hr float64) float64 {
	reserve := z.MaxHR - z.RestingHR
	if reserve <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, (hr-z.RestingHR)/reserve))
}

// TRIMP is Banister's training impulse: minutes × r × e^(b·r) with r the
// heart-rate reserve fraction.
func TRIMP(durationSeconds, avgHR float64, zones HRZones) float64 {
	if avgHR <= 0 || durationSeconds <= 0 {
		return 0
	}
	b := zones.Coefficient
	if b <= 0 {
		b = BanisterMale
	}
	r := zones.ReserveFraction(avgHR)
	return durationSeconds / 60 * r * math.Exp(b*r)
}
