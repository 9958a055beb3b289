package analysis

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// CurveFamily names the speed-duration model.
type CurveFamily string

// Curve families. The two-parameter form is v(t) = CS + D'/t; the
// three-parameter (Morton) form is v(t) = CS + D'/(t+k), bounding the speed
// at t=0 to CS + D'/k.
const (
	FamilyTwoParameter   CurveFamily = "two_parameter"
	FamilyThreeParameter CurveFamily = "three_parameter"
)

// Parameter names
const (
	ParamCS     = "cs"
	ParamDPrime = "d_prime"
	ParamK      = "k"
)

// DurationSpeed is one best-effort observation.
type DurationSpeed struct {
	DurationS float64
	SpeedMPS  float64
}

// Parameter is a fitted value with its standard error and confidence interval.
type Parameter struct {
	Name   string
	Value  float64
	StdErr float64
	Lower  float64
	Upper  float64
}

// PerformanceCurve is a fitted speed-duration curve. The parameters always give
// a speed that decreases with duration.
type PerformanceCurve struct {
	AthleteID       string
	Family          CurveFamily
	Params          []Parameter
	Covariance      [][]float64
	ConfidenceLevel float64
	DF              float64

	Loss          LossKind
	ResidualScale float64
	RobustR2      float64
	Iterations    int
	Converged     bool
	Points        []DurationSpeed
	Weights       []float64

	MinDurationS float64
	MaxDurationS float64

	VO2      float64
	VO2Model string
}

// Values returns the parameter values in model order.
func (c *PerformanceCurve) Values() []float64 {
	v := make([]float64, len(c.Params))
	for i, p := range c.Params {
		v[i] = p.Value
	}
	return v
}

// Param returns the named parameter.
func (c *PerformanceCurve) Param(name string) (Parameter, bool) {
	for _, p := range c.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// CriticalSpeed returns CS in m/s.
func (c *PerformanceCurve) CriticalSpeed() float64 {
	p, _ := c.Param(ParamCS)
	return p.Value
}

// DPrime returns D' in metres.
func (c *PerformanceCurve) DPrime() float64 {
	p, _ := c.Param(ParamDPrime)
	return p.Value
}

// Speed evaluates the curve at duration t seconds.
func (c *PerformanceCurve) Speed(t float64) float64 {
	return modelFor(c.Family).eval(t, c.Values())
}

// MaxSpeed returns the bounded speed at t=0 of a three-parameter curve, or
// +Inf for the two-parameter form.
func (c *PerformanceCurve) MaxSpeed() float64 {
	if c.Family != FamilyThreeParameter {
		return math.Inf(1)
	}
	v := c.Values()
	if v[2] <= 0 {
		return math.Inf(1)
	}
	return v[0] + v[1]/v[2]
}

// CovarianceMatrix returns the parameter covariance.
func (c *PerformanceCurve) CovarianceMatrix() *mat.SymDense {
	p := len(c.Covariance)
	m := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			m.SetSym(i, j, c.Covariance[i][j])
		}
	}
	return m
}

// curveModel is one family's closed forms.
type curveModel interface {
	family() CurveFamily
	names() []string
	eval(t float64, p []float64) float64
	gradient(t float64, p []float64, g []float64)
	slope(t float64, p []float64) float64 // dv/dt
	initial(points []DurationSpeed) ([]float64, bool)
	project(p []float64)
	monotonic(p []float64) bool
	// duration solves distance = t·v(t) for t.
	duration(distance float64, p []float64) (float64, bool)
}

func modelFor(f CurveFamily) curveModel {
	if f == FamilyThreeParameter {
		return threeParam{}
	}
	return twoParam{}
}

type twoParam struct{}

func (twoParam) family() CurveFamily { return FamilyTwoParameter }
func (twoParam) names() []string     { return []string{ParamCS, ParamDPrime} }

func (twoParam) eval(t float64, p []float64) float64 {
	return p[0] + p[1]/t
}

func (twoParam) gradient(t float64, _ []float64, g []float64) {
	g[0] = 1
	g[1] = 1 / t
}

func (twoParam) slope(t float64, p []float64) float64 {
	return -p[1] / (t * t)
}

func (twoParam) initial(points []DurationSpeed) ([]float64, bool) {
	cs, dp, ok := theilSenStart(points)
	return []float64{cs, dp}, ok
}

func (twoParam) project([]float64) {}

func (twoParam) monotonic(p []float64) bool {
	return p[0] > 0 && p[1] > 0
}

func (twoParam) duration(distance float64, p []float64) (float64, bool) {
	cs, dp := p[0], p[1]
	if cs <= 0 || distance <= dp {
		return 0, false
	}
	return (distance - dp) / cs, true
}

type threeParam struct{}

func (threeParam) family() CurveFamily { return FamilyThreeParameter }
func (threeParam) names() []string     { return []string{ParamCS, ParamDPrime, ParamK} }

func (threeParam) eval(t float64, p []float64) float64 {
	return p[0] + p[1]/(t+p[2])
}

func (threeParam) gradient(t float64, p []float64, g []float64) {
	s := t + p[2]
	g[0] = 1
	g[1] = 1 / s
	g[2] = -p[1] / (s * s)
}

func (threeParam) slope(t float64, p []float64) float64 {
	s := t + p[2]
	return -p[1] / (s * s)
}

func (threeParam) initial(points []DurationSpeed) ([]float64, bool) {
	cs, dp, ok := theilSenStart(points)
	if !ok {
		return nil, false
	}
	tmin := points[0].DurationS
	k := 0.1 * tmin
	return []float64{cs, dp * (tmin + k) / tmin, k}, true
}

func (threeParam) project(p []float64) {
	if p[2] < 0 {
		p[2] = 0
	}
}

func (threeParam) monotonic(p []float64) bool {
	return p[0] > 0 && p[1] > 0 && p[2] >= 0
}

// duration solves CS·t² + (CS·k + D' − D)·t − D·k = 0 for the positive root.
func (threeParam) duration(distance float64, p []float64) (float64, bool) {
	cs, dp, k := p[0], p[1], p[2]
	if cs <= 0 || distance <= 0 {
		return 0, false
	}
	b := cs*k + dp - distance
	disc := b*b + 4*cs*distance*k
	if disc < 0 {
		return 0, false
	}
	t := (-b + math.Sqrt(disc)) / (2 * cs)
	if t <= 0 || math.IsNaN(t) {
		return 0, false
	}
	return t, true
}

// theilSenStart fits v = CS + D'·(1/t) robustly for the starting point.
func theilSenStart(points []DurationSpeed) (cs, dp float64, ok bool) {
	x := make([]float64, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = 1 / p.DurationS
		y[i] = p.SpeedMPS
	}
	return theilSen(x, y)
}

// EstimatorOptions configures curve fitting.
type EstimatorOptions struct {
	Family            CurveFamily
	Loss              LossKind
	TuningConstant    float64 // 0 selects the loss default
	MinBuckets        int
	MinDurationSpread float64
	Tolerance         float64
	MaxIterations     int
	ConfidenceLevel   float64
	VO2               VO2Model
}

// DefaultEstimatorOptions returns a Huber two-parameter fit with the Daniels
// VO2 proxy.
func DefaultEstimatorOptions() EstimatorOptions {
	return EstimatorOptions{
		Family:            FamilyTwoParameter,
		Loss:              LossHuber,
		MinBuckets:        4,
		MinDurationSpread: 3,
		Tolerance:         1e-6,
		MaxIterations:     50,
		ConfidenceLevel:   0.95,
		VO2:               DanielsModel{FractionAtCS: DefaultFractionAtCS},
	}
}

// Estimator fits performance curves. It is safe for concurrent use.
type Estimator struct {
	opts  EstimatorOptions
	loss  Loss
	model curveModel
}

// NewEstimator validates options and builds an estimator.
func NewEstimator(opts EstimatorOptions) (*Estimator, error) {
	if opts.Family != FamilyTwoParameter && opts.Family != FamilyThreeParameter {
		return nil, eris.Errorf("analysis: unknown curve family %q", opts.Family)
	}
	loss, err := NewLoss(opts.Loss, opts.TuningConstant)
	if err != nil {
		return nil, err
	}
	model := modelFor(opts.Family)
	if opts.MinBuckets <= len(model.names()) {
		return nil, eris.Errorf("analysis: min buckets %d must exceed the %d curve parameters", opts.MinBuckets, len(model.names()))
	}
	if opts.MinDurationSpread <= 1 {
		return nil, eris.Errorf("analysis: min duration spread %v must exceed 1", opts.MinDurationSpread)
	}
	if opts.Tolerance <= 0 || opts.MaxIterations <= 0 {
		return nil, eris.New("analysis: tolerance and max iterations must be positive")
	}
	if opts.ConfidenceLevel <= 0 || opts.ConfidenceLevel >= 1 {
		return nil, eris.Errorf("analysis: confidence level %v outside (0, 1)", opts.ConfidenceLevel)
	}
	if opts.VO2 == nil {
		opts.VO2 = DanielsModel{FractionAtCS: DefaultFractionAtCS}
	}
	return &Estimator{opts: opts, loss: loss, model: model}, nil
}

// CollectBests reduces feature vectors to one point per duration bucket: the
// fastest rolling speed seen at that duration in any activity.
func CollectBests(features []Features) []DurationSpeed {
	best := make(map[int]float64)
	for _, f := range features {
		for d, v := range f.BestSpeed {
			if v > best[d] {
				best[d] = v
			}
		}
	}

	points := make([]DurationSpeed, 0, len(best))
	for d, v := range best {
		points = append(points, DurationSpeed{DurationS: float64(d), SpeedMPS: v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].DurationS < points[j].DurationS })
	return points
}

// Estimate collects best efforts from features and fits them.
func (e *Estimator) Estimate(athleteID string, features []Features) (*PerformanceCurve, error) {
	return e.Fit(athleteID, CollectBests(features))
}

// Fit runs the robust regression of speed on duration. On ErrUnconverged the
// returned curve is usable and flagged; on any other error it is nil.
func (e *Estimator) Fit(athleteID string, points []DurationSpeed) (*PerformanceCurve, error) {
	pts := cleanPoints(points)

	distinct := 0
	for i := range pts {
		if i == 0 || pts[i].DurationS != pts[i-1].DurationS {
			distinct++
		}
	}
	if distinct < e.opts.MinBuckets {
		return nil, eris.Wrapf(ErrInsufficientData, "athlete %s: %d distinct durations, need %d", athleteID, distinct, e.opts.MinBuckets)
	}
	tmin, tmax := pts[0].DurationS, pts[len(pts)-1].DurationS
	if tmax/tmin < e.opts.MinDurationSpread {
		return nil, eris.Wrapf(ErrInsufficientData, "athlete %s: duration spread %.2f below %.2f", athleteID, tmax/tmin, e.opts.MinDurationSpread)
	}

	theta, ok := e.model.initial(pts)
	if !ok {
		return nil, eris.Wrapf(ErrInsufficientData, "athlete %s: no starting estimate", athleteID)
	}
	floors := make([]float64, len(theta))
	for j, v := range theta {
		floors[j] = math.Max(1e-3*math.Abs(v), 1e-9)
	}

	n := len(pts)
	res := make([]float64, n)
	w := make([]float64, n)
	scaleFloor := 1e-8 * (1 + math.Abs(median(speeds(pts))))
	lambda := 1e-3
	converged := false
	iter := 0

	for iter < e.opts.MaxIterations {
		iter++
		e.residuals(pts, theta, res)
		scale := math.Max(madScale(res), scaleFloor)
		for i := range w {
			w[i] = e.loss.Weight(res[i] / scale)
		}

		next, nextLambda, improved := e.dampedStep(pts, theta, w, lambda)
		lambda = nextLambda
		if !improved {
			converged = true
			break
		}

		change := 0.0
		for j := range theta {
			change = math.Max(change, math.Abs(next[j]-theta[j])/math.Max(math.Abs(next[j]), floors[j]))
		}
		theta = next
		if change < e.opts.Tolerance {
			converged = true
			break
		}
	}

	e.residuals(pts, theta, res)
	scale := math.Max(madScale(res), scaleFloor)
	for i := range w {
		w[i] = e.loss.Weight(res[i] / scale)
	}

	if !e.model.monotonic(theta) {
		return nil, eris.Wrapf(ErrNonMonotonic, "athlete %s: parameters %v", athleteID, theta)
	}

	cov, err := e.covariance(pts, theta, res, w, scale)
	if err != nil {
		return nil, eris.Wrapf(ErrInsufficientData, "athlete %s: %v", athleteID, err)
	}

	df := float64(n - len(theta))
	q := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Quantile(1 - (1-e.opts.ConfidenceLevel)/2)

	curve := &PerformanceCurve{
		AthleteID:       athleteID,
		Family:          e.model.family(),
		ConfidenceLevel: e.opts.ConfidenceLevel,
		DF:              df,
		Loss:            e.loss.Kind(),
		ResidualScale:   scale,
		RobustR2:        robustR2(pts, res, w),
		Iterations:      iter,
		Converged:       converged,
		Points:          pts,
		Weights:         append([]float64(nil), w...),
		MinDurationS:    tmin,
		MaxDurationS:    tmax,
	}
	for j, name := range e.model.names() {
		se := math.Sqrt(math.Max(cov.At(j, j), 0))
		curve.Params = append(curve.Params, Parameter{
			Name:   name,
			Value:  theta[j],
			StdErr: se,
			Lower:  theta[j] - q*se,
			Upper:  theta[j] + q*se,
		})
	}
	curve.Covariance = make([][]float64, len(theta))
	for i := range theta {
		curve.Covariance[i] = make([]float64, len(theta))
		for j := range theta {
			curve.Covariance[i][j] = cov.At(i, j)
		}
	}

	curve.VO2 = e.opts.VO2.VO2(curve.CriticalSpeed())
	curve.VO2Model = e.opts.VO2.Name()

	if !converged {
		return curve, eris.Wrapf(ErrUnconverged, "athlete %s: %d iterations", athleteID, iter)
	}
	return curve, nil
}

func (e *Estimator) residuals(pts []DurationSpeed, theta, res []float64) {
	for i, p := range pts {
		res[i] = p.SpeedMPS - e.model.eval(p.DurationS, theta)
	}
}

func (e *Estimator) weightedSSE(pts []DurationSpeed, theta, w []float64) float64 {
	var sse float64
	for i, p := range pts {
		r := p.SpeedMPS - e.model.eval(p.DurationS, theta)
		sse += w[i] * r * r
	}
	return sse
}

func (e *Estimator) jacobian(pts []DurationSpeed, theta []float64) *mat.Dense {
	p := len(theta)
	J := mat.NewDense(len(pts), p, nil)
	g := make([]float64, p)
	for i, pt := range pts {
		e.model.gradient(pt.DurationS, theta, g)
		J.SetRow(i, g)
	}
	return J
}

// dampedStep takes one Levenberg-Marquardt step on the weighted sum of
// squares. It reports false when no damping yields an improvement.
func (e *Estimator) dampedStep(pts []DurationSpeed, theta, w []float64, lambda float64) ([]float64, float64, bool) {
	p := len(theta)
	J := e.jacobian(pts, theta)

	A := mat.NewDense(p, p, nil)
	g := mat.NewVecDense(p, nil)
	for i, pt := range pts {
		r := pt.SpeedMPS - e.model.eval(pt.DurationS, theta)
		for a := 0; a < p; a++ {
			ja := J.At(i, a)
			g.SetVec(a, g.AtVec(a)+w[i]*ja*r)
			for b := 0; b < p; b++ {
				A.Set(a, b, A.At(a, b)+w[i]*ja*J.At(i, b))
			}
		}
	}

	trace := 0.0
	for j := 0; j < p; j++ {
		trace += A.At(j, j)
	}
	tiny := 1e-12 * trace / float64(p)

	base := e.weightedSSE(pts, theta, w)
	M := mat.NewDense(p, p, nil)
	for attempt := 0; attempt < 12; attempt++ {
		M.Copy(A)
		for j := 0; j < p; j++ {
			M.Set(j, j, A.At(j, j)+lambda*math.Max(A.At(j, j), tiny))
		}

		var delta mat.VecDense
		if err := delta.SolveVec(M, g); err == nil {
			next := make([]float64, p)
			finite := true
			for j := range next {
				next[j] = theta[j] + delta.AtVec(j)
				finite = finite && !math.IsNaN(next[j]) && !math.IsInf(next[j], 0)
			}
			e.model.project(next)
			if finite && e.weightedSSE(pts, next, w) <= base {
				return next, math.Max(lambda/10, 1e-12), true
			}
		}
		lambda *= 10
	}
	return theta, lambda, false
}

// covariance is Huber's sandwich estimator with the H1 small-sample
// correction. When the mean ψ′ is not positive it falls back to the weighted
// least-squares covariance.
func (e *Estimator) covariance(pts []DurationSpeed, theta, res, w []float64, scale float64) (*mat.SymDense, error) {
	n, p := len(pts), len(theta)
	J := e.jacobian(pts, theta)

	u := make([]float64, n)
	psi2, dpsi := 0.0, make([]float64, n)
	for i := range res {
		u[i] = res[i] / scale
		psi := e.loss.Psi(u[i])
		psi2 += psi * psi
		dpsi[i] = e.loss.DPsi(u[i])
	}
	m, v := stat.MeanVariance(dpsi, nil)

	if m > 0 {
		var jtj mat.SymDense
		jtj.SymOuterK(1, J.T())
		inv, err := invertSym(&jtj)
		if err != nil {
			return nil, err
		}
		k := 1 + float64(p)/float64(n)*v/(m*m)
		factor := k * k * (psi2 / float64(n-p)) / (m * m) * scale * scale
		inv.ScaleSym(factor, inv)
		return inv, nil
	}

	var wsum, wsse float64
	for i := range res {
		wsum += w[i]
		wsse += w[i] * res[i] * res[i]
	}
	if wsum <= float64(p) {
		return nil, eris.New("too few effective observations for covariance")
	}
	var jtwj mat.SymDense
	wj := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			wj.Set(i, j, math.Sqrt(w[i])*J.At(i, j))
		}
	}
	jtwj.SymOuterK(1, wj.T())
	inv, err := invertSym(&jtwj)
	if err != nil {
		return nil, err
	}
	inv.ScaleSym(wsse/(wsum-float64(p)), inv)
	return inv, nil
}

func invertSym(a *mat.SymDense) (*mat.SymDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, eris.New("singular design matrix")
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, eris.Wrap(err, "invert design matrix")
	}
	return &inv, nil
}

// robustR2 is the weighted coefficient of determination.
func robustR2(pts []DurationSpeed, res, w []float64) float64 {
	var wsum, wmean float64
	for i, p := range pts {
		wsum += w[i]
		wmean += w[i] * p.SpeedMPS
	}
	if wsum == 0 {
		return 0
	}
	wmean /= wsum

	var sse, sst float64
	for i, p := range pts {
		sse += w[i] * res[i] * res[i]
		d := p.SpeedMPS - wmean
		sst += w[i] * d * d
	}
	if sst == 0 {
		if sse == 0 {
			return 1
		}
		return 0
	}
	return 1 - sse/sst
}

// cleanPoints drops non-finite and non-positive observations and orders by
// duration so the fit does not depend on input order.
func cleanPoints(points []DurationSpeed) []DurationSpeed {
	out := make([]DurationSpeed, 0, len(points))
	for _, p := range points {
		if p.DurationS > 0 && p.SpeedMPS > 0 && !math.IsInf(p.DurationS, 0) && !math.IsNaN(p.SpeedMPS) && !math.IsInf(p.SpeedMPS, 0) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DurationS != out[j].DurationS {
			return out[i].DurationS < out[j].DurationS
		}
		return out[i].SpeedMPS < out[j].SpeedMPS
	})
	return out
}

func speeds(pts []DurationSpeed) []float64 {
	v := make([]float64, len(pts))
	for i, p := range pts {
		v[i] = p.SpeedMPS
	}
	return v
}
