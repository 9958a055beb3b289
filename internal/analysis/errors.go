package analysis

import "github.com/rotisserie/eris"

var (
	// ErrInsufficientData means too few distinct duration buckets, or too
	// narrow a duration spread, to fit a curve.
	ErrInsufficientData = eris.New("insufficient data")
	// ErrNonMonotonic means the fitted parameters do not give a speed that
	// decreases with duration.
	ErrNonMonotonic = eris.New("non-monotonic curve")
	// ErrUnconverged means the iteration cap was reached. The curve is still
	// returned.
	ErrUnconverged = eris.New("fit did not converge")
	// ErrOutOfDomain means the predicted duration lies outside the fitted
	// range widened by the out-of-domain ratio. The prediction is still
	// returned, flagged low confidence.
	ErrOutOfDomain = eris.New("prediction out of domain")
	// ErrNoSolution means the curve cannot produce a finishing time for the
	// target distance.
	ErrNoSolution = eris.New("no finishing time for distance")
)
