package analysis

import (
	"math"
	"testing"

	"racecurve/internal/ingest"
)

func TestEfficiencyFactor(t *testing.T) {
	tests := []struct {
		name     string
		samples  []ingest.Sample
		expected float64
		delta    float64
	}{
		{
			name:     "empty samples",
			samples:  nil,
			expected: 0,
		},
		{
			name: "no valid data points - HR too low",
			samples: []ingest.Sample{
				makeSample(0, 3.0, 70), // HR below 80 threshold
				makeSample(1, 3.0, 75),
			},
			expected: 0,
		},
		{
			name: "no valid data points - HR too high",
			samples: []ingest.Sample{
				makeSample(0, 3.0, 225),
				makeSample(1, 3.0, 230),
			},
			expected: 0,
		},
		{
			name: "constant pace and HR",
			samples: []ingest.Sample{
				makeSample(0, 3.0, 150), // 3 m/s = 180 m/min
				makeSample(1, 3.0, 150),
				makeSample(2, 3.0, 150),
			},
			// EF = 180 / 150
			expected: 1.2,
			delta:    0.001,
		},
		{
			name: "varying pace same HR",
			samples: []ingest.Sample{
				makeSample(0, 2.5, 150),
				makeSample(1, 3.0, 150),
				makeSample(2, 3.5, 150),
				makeSample(3, 3.0, 150),
			},
			expected: 1.2,
			delta:    0.001,
		},
		{
			name: "filters stopped and missing points",
			samples: []ingest.Sample{
				makeSample(0, 3.0, 150),
				makeSample(1, 0.3, 150), // too slow
				makeSample(2, 3.0, 0),   // no HR
				makeSample(3, 0, 150),   // no pace
				makeSample(4, 3.0, 150),
			},
			expected: 1.2,
			delta:    0.001,
		},
		{
			name: "higher efficiency - faster runner",
			samples: []ingest.Sample{
				makeSample(0, 4.0, 150),
				makeSample(1, 4.0, 150),
			},
			expected: 1.6,
			delta:    0.001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EfficiencyFactor(tt.samples)
			if math.Abs(result-tt.expected) > tt.delta {
				t.Errorf("EfficiencyFactor() = %v, want %v (±%v)", result, tt.expected, tt.delta)
			}
		})
	}
}

func TestAerobicDecoupling(t *testing.T) {
	// Too short
	if got := AerobicDecoupling(steadyRun(60, 3, 150)); got != 0 {
		t.Errorf("AerobicDecoupling(60s) = %v, want 0", got)
	}

	// Steady effort: no drift
	if got := AerobicDecoupling(steadyRun(1200, 3, 150)); math.Abs(got) > 1e-9 {
		t.Errorf("AerobicDecoupling(steady) = %v, want 0", got)
	}

	// HR climbs 150 -> 165 at the same pace in the second half
	samples := steadyRun(1200, 3, 150)
	for i := len(samples) / 2; i < len(samples); i++ {
		samples[i].Heartrate = floatPtr(165)
	}
	got := AerobicDecoupling(samples)
	if math.Abs(got-10) > 0.1 {
		t.Errorf("AerobicDecoupling(drift) = %v, want 10", got)
	}
}

func TestAverageHR(t *testing.T) {
	samples := []ingest.Sample{
		makeSample(0, 3, 140),
		makeSample(1, 3, 160),
		makeSample(2, 3, 30),  // below valid range
		makeSample(3, 3, 250), // above valid range
		makeSample(4, 3, 0),
	}
	if got := averageHR(samples); got != 150 {
		t.Errorf("averageHR() = %v, want 150", got)
	}
	if got := averageHR(nil); got != 0 {
		t.Errorf("averageHR(nil) = %v, want 0", got)
	}
}
