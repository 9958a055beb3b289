package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReserveFraction(t *testing.T) {
	z := DefaultZones()
	assert.InDelta(t, 100.0/135, z.ReserveFraction(150), 1e-12)
	assert.Zero(t, z.ReserveFraction(40))
	assert.Equal(t, 1.0, z.ReserveFraction(200))
	assert.Zero(t, HRZones{RestingHR: 100, MaxHR: 100}.ReserveFraction(150))
}

func TestTRIMP(t *testing.T) {
	zones := DefaultZones()
	female := zones
	female.Coefficient = BanisterFemale

	r150 := 100.0 / 135
	tests := []struct {
		name     string
		duration float64
		avgHR    float64
		zones    HRZones
		want     float64
	}{
		{"hour at 150", 3600, 150, zones, 60 * r150 * math.Exp(BanisterMale*r150)},
		{"female weighting", 3600, 150, female, 60 * r150 * math.Exp(BanisterFemale*r150)},
		{"unset coefficient", 3600, 150, HRZones{RestingHR: 50, MaxHR: 185}, 60 * r150 * math.Exp(BanisterMale*r150)},
		{"above max clamps", 3600, 200, zones, 60 * math.Exp(BanisterMale)},
		{"below resting", 3600, 40, zones, 0},
		{"no heart rate", 3600, 0, zones, 0},
		{"no duration", 0, 150, zones, 0},
		{"empty reserve", 3600, 150, HRZones{RestingHR: 100, MaxHR: 100}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TRIMP(tt.duration, tt.avgHR, tt.zones), 1e-9)
		})
	}

	assert.Less(t, TRIMP(3600, 150, female), TRIMP(3600, 150, zones))
}
