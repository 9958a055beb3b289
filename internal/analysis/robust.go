package analysis

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
)

// LossKind names a robust loss function.
type LossKind string

// Supported losses. LossLeastSquares is the non-robust baseline.
const (
	LossHuber        LossKind = "huber"
	LossTukey        LossKind = "tukey"
	LossLeastSquares LossKind = "least_squares"
)

// Default tuning constants give 95% efficiency under normal errors.
const (
	HuberTuning = 1.345
	TukeyTuning = 4.685
)

// madToSigma converts a median absolute deviation to a normal-consistent scale.
const madToSigma = 0.6745

// Loss is an M-estimator ρ function, described by its ψ = ρ′, ψ′ and the
// IRLS weight ψ(u)/u, all on standardized residuals.
type Loss interface {
	Kind() LossKind
	Psi(u float64) float64
	DPsi(u float64) float64
	Weight(u float64) float64
}

// NewLoss returns the loss for kind. A non-positive tuning constant selects
// the default.
func NewLoss(kind LossKind, tuning float64) (Loss, error) {
	switch kind {
	case LossHuber:
		if tuning <= 0 {
			tuning = HuberTuning
		}
		return huberLoss{c: tuning}, nil
	case LossTukey:
		if tuning <= 0 {
			tuning = TukeyTuning
		}
		return tukeyLoss{c: tuning}, nil
	case LossLeastSquares:
		return squaredLoss{}, nil
	}
	return nil, eris.Errorf("analysis: unknown loss %q", kind)
}

type huberLoss struct{ c float64 }

func (huberLoss) Kind() LossKind { return LossHuber }

func (h huberLoss) Psi(u float64) float64 {
	return math.Max(-h.c, math.Min(h.c, u))
}

func (h huberLoss) DPsi(u float64) float64 {
	if math.Abs(u) <= h.c {
		return 1
	}
	return 0
}

func (h huberLoss) Weight(u float64) float64 {
	if a := math.Abs(u); a > h.c {
		return h.c / a
	}
	return 1
}

type tukeyLoss struct{ c float64 }

func (tukeyLoss) Kind() LossKind { return LossTukey }

func (t tukeyLoss) Psi(u float64) float64 {
	if math.Abs(u) > t.c {
		return 0
	}
	z := 1 - (u/t.c)*(u/t.c)
	return u * z * z
}

func (t tukeyLoss) DPsi(u float64) float64 {
	if math.Abs(u) > t.c {
		return 0
	}
	r := (u / t.c) * (u / t.c)
	return (1 - r) * (1 - 5*r)
}

func (t tukeyLoss) Weight(u float64) float64 {
	if math.Abs(u) > t.c {
		return 0
	}
	z := 1 - (u/t.c)*(u/t.c)
	return z * z
}

type squaredLoss struct{}

func (squaredLoss) Kind() LossKind        { return LossLeastSquares }
func (squaredLoss) Psi(u float64) float64  { return u }
func (squaredLoss) DPsi(float64) float64   { return 1 }
func (squaredLoss) Weight(float64) float64 { return 1 }

// madScale is the normal-consistent median absolute deviation of residuals
// about zero.
func madScale(residuals []float64) float64 {
	abs := make([]float64, len(residuals))
	for i, r := range residuals {
		abs[i] = math.Abs(r)
	}
	return median(abs) / madToSigma
}

// median of a copy of xs; NaN for empty input. The empirical 0.5 quantile is
// the lower middle value, so it is averaged with the upper one for even n.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	lower := stat.Quantile(0.5, stat.Empirical, s, nil)
	return (lower + s[len(s)/2]) / 2
}

// theilSen fits y = a + b·x by the median of pairwise slopes and the median
// intercept. Pairs with equal x are skipped.
func theilSen(x, y []float64) (intercept, slope float64, ok bool) {
	var slopes []float64
	for i := 0; i < len(x); i++ {
		for j := i + 1; j < len(x); j++ {
			if dx := x[j] - x[i]; dx != 0 {
				slopes = append(slopes, (y[j]-y[i])/dx)
			}
		}
	}
	if len(slopes) == 0 {
		return 0, 0, false
	}
	slope = median(slopes)

	intercepts := make([]float64, len(x))
	for i := range x {
		intercepts[i] = y[i] - slope*x[i]
	}
	return median(intercepts), slope, true
}
