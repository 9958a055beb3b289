package ingest

import (
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrMalformedRecord marks an activity that cannot be normalized. It is
// dropped from the batch; the batch continues.
var ErrMalformedRecord = eris.New("malformed record")

// ErrDuplicateActivity marks an activity superseded by a more complete copy.
var ErrDuplicateActivity = eris.New("duplicate activity")

// MinSpeedForPace filters stopped time out of pace (m/s).
const MinSpeedForPace = 0.5

// Options configures the normalizer. Zero values fall back to DefaultOptions.
type Options struct {
	// ResampleStep is the grid spacing in seconds.
	ResampleStep float64
	// DistanceTolerance is the largest distance regression, in metres, that
	// is clamped instead of failing the record.
	DistanceTolerance float64
	// DedupWindow is the start-time window for duplicate detection.
	DedupWindow time.Duration
	// DedupDistanceTolerance is the relative total-distance agreement for
	// duplicate detection.
	DedupDistanceTolerance float64
	// MinSamples is the minimum resampled length of a record.
	MinSamples int
}

// DefaultOptions returns a 1 s grid, 5 m regression tolerance, 60 s / 2%
// duplicate window and a 10 sample minimum.
func DefaultOptions() Options {
	return Options{
		ResampleStep:           1,
		DistanceTolerance:      5,
		DedupWindow:            60 * time.Second,
		DedupDistanceTolerance: 0.02,
		MinSamples:             10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ResampleStep <= 0 {
		o.ResampleStep = d.ResampleStep
	}
	if o.DistanceTolerance < 0 {
		o.DistanceTolerance = d.DistanceTolerance
	}
	if o.DedupWindow <= 0 {
		o.DedupWindow = d.DedupWindow
	}
	if o.DedupDistanceTolerance <= 0 {
		o.DedupDistanceTolerance = d.DedupDistanceTolerance
	}
	if o.MinSamples <= 0 {
		o.MinSamples = d.MinSamples
	}
	return o
}

// Normalizer converts raw activities into ActivityRecords.
type Normalizer struct {
	opts Options
}

// NewNormalizer creates a normalizer.
func NewNormalizer(opts Options) *Normalizer {
	return &Normalizer{opts: opts.withDefaults()}
}

// Normalize normalizes a batch and removes duplicate activities. Records come
// back ordered by athlete and start time. Every excluded activity is logged
// and reported in dropped.
func (n *Normalizer) Normalize(raw []RawActivity) ([]ActivityRecord, []DroppedRecord) {
	records := make([]ActivityRecord, 0, len(raw))
	var dropped []DroppedRecord

	for _, r := range raw {
		rec, err := n.NormalizeActivity(r)
		if err != nil {
			zap.L().Warn("dropping activity",
				zap.String("athlete", r.AthleteID),
				zap.String("activity", r.ActivityID),
				zap.Error(err),
			)
			dropped = append(dropped, DroppedRecord{AthleteID: r.AthleteID, ActivityID: r.ActivityID, Err: err})
			continue
		}
		records = append(records, rec)
	}

	records, dups := Deduplicate(records, n.opts.DedupWindow, n.opts.DedupDistanceTolerance)
	for _, d := range dups {
		zap.L().Debug("dropping duplicate activity",
			zap.String("athlete", d.AthleteID),
			zap.String("activity", d.ActivityID),
		)
	}
	dropped = append(dropped, dups...)

	return records, dropped
}

// point is a raw sample after unit conversion, on the elapsed-time axis.
type point struct {
	t           float64
	distance    *float64
	elevation   *float64
	heartrate   *float64
	temperature *float64
	speed       *float64
}

// NormalizeActivity normalizes a single activity. Errors wrap
// ErrMalformedRecord.
func (n *Normalizer) NormalizeActivity(raw RawActivity) (ActivityRecord, error) {
	fail := func(format string, args ...any) (ActivityRecord, error) {
		return ActivityRecord{}, eris.Wrapf(ErrMalformedRecord, "activity %s: "+format, append([]any{raw.ActivityID}, args...)...)
	}

	if len(raw.Samples) == 0 {
		return fail("no samples")
	}

	distFactor, ok := distanceFactor(raw.Units.Distance)
	if !ok {
		return fail("unknown distance unit %q", raw.Units.Distance)
	}
	elevFactor, ok := elevationFactor(raw.Units.Elevation)
	if !ok {
		return fail("unknown elevation unit %q", raw.Units.Elevation)
	}

	start := raw.StartTime
	if start.IsZero() {
		for _, s := range raw.Samples {
			if !s.Timestamp.IsZero() {
				start = s.Timestamp
				break
			}
		}
	}

	points := make([]point, 0, len(raw.Samples))
	for i, s := range raw.Samples {
		var t float64
		switch {
		case s.Elapsed != nil:
			t = *s.Elapsed
		case !s.Timestamp.IsZero():
			t = s.Timestamp.Sub(start).Seconds()
		default:
			return fail("sample %d has no time", i)
		}
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fail("sample %d has non-finite time", i)
		}

		p := point{
			t:           t,
			distance:    scaled(s.Distance, distFactor),
			elevation:   scaled(s.Elevation, elevFactor),
			heartrate:   finite(s.Heartrate),
			temperature: finite(s.Temperature),
			speed:       finite(s.Speed),
		}

		// Exact duplicates collapse into one sample.
		if len(points) > 0 && samePoint(points[len(points)-1], p) {
			continue
		}
		points = append(points, p)
	}

	for i := 1; i < len(points); i++ {
		if points[i].t <= points[i-1].t {
			return fail("time not increasing at sample %d (%.1fs after %.1fs)", i, points[i].t, points[i-1].t)
		}
	}

	// Distance channel: fill from speed where missing, then validate
	// monotonicity. Points without any distance information are skipped.
	track := points[:0:0]
	var last float64
	haveLast := false
	var lastT float64
	for _, p := range points {
		if p.distance == nil && p.speed != nil {
			if haveLast {
				p.distance = ptr(last + math.Max(*p.speed, 0)*(p.t-lastT))
			} else {
				p.distance = ptr(0)
			}
		}
		if p.distance == nil {
			continue
		}
		d := *p.distance
		if haveLast && d < last {
			if last-d > n.opts.DistanceTolerance {
				return fail("distance regressed %.1fm at %.1fs", last-d, p.t)
			}
			d = last
		}
		p.distance = ptr(d)
		last, lastT, haveLast = d, p.t, true
		track = append(track, p)
	}
	if len(track) < 2 {
		return fail("fewer than two samples with distance")
	}

	samples := resample(track, n.opts.ResampleStep)
	if len(samples) < n.opts.MinSamples {
		return fail("%d samples after resampling, need %d", len(samples), n.opts.MinSamples)
	}

	withHR := 0
	for _, s := range samples {
		if s.Heartrate != nil {
			withHR++
		}
	}

	return ActivityRecord{
		AthleteID:       raw.AthleteID,
		ActivityID:      raw.ActivityID,
		StartTime:       start.Add(time.Duration(track[0].t * float64(time.Second))),
		Source:          raw.Source,
		StepS:           n.opts.ResampleStep,
		Samples:         samples,
		ObservedSamples: len(track),
		HRCoverage:      float64(withHR) / float64(len(samples)),
	}, nil
}

// resample interpolates the track onto a uniform grid starting at the first
// sample. Distance and elevation interpolate linearly; HR and temperature only
// where both neighbouring raw samples observed them.
func resample(track []point, step float64) []Sample {
	t0 := track[0].t
	span := track[len(track)-1].t - t0
	count := int(math.Floor(span/step+1e-9)) + 1

	samples := make([]Sample, 0, count)
	j := 0
	for k := 0; k < count; k++ {
		t := t0 + float64(k)*step
		for j < len(track)-2 && track[j+1].t <= t {
			j++
		}
		a, b := track[j], track[j+1]
		frac := (t - a.t) / (b.t - a.t)
		if frac < 0 {
			frac = 0
		} else if frac > 1 {
			frac = 1
		}

		samples = append(samples, Sample{
			ElapsedS:     float64(k) * step,
			DistanceM:    lerp(*a.distance, *b.distance, frac),
			ElevationM:   interpolate(a.elevation, b.elevation, frac),
			Heartrate:    interpolate(a.heartrate, b.heartrate, frac),
			TemperatureC: interpolate(a.temperature, b.temperature, frac),
		})
	}

	for i := range samples {
		var dd float64
		switch {
		case len(samples) == 1:
			continue
		case i == 0:
			dd = samples[1].DistanceM - samples[0].DistanceM
		default:
			dd = samples[i].DistanceM - samples[i-1].DistanceM
		}
		speed := dd / step
		if speed >= MinSpeedForPace {
			samples[i].PaceSPerKm = ptr(MetersPerKilometer / speed)
		}
	}

	return samples
}

// interpolate returns nil unless both neighbours were observed, or the grid
// time lands on an observed endpoint.
func interpolate(a, b *float64, frac float64) *float64 {
	switch {
	case a != nil && b != nil:
		return ptr(lerp(*a, *b, frac))
	case a != nil && frac == 0:
		return ptr(*a)
	case b != nil && frac == 1:
		return ptr(*b)
	}
	return nil
}

func lerp(a, b, frac float64) float64 {
	return a + (b-a)*frac
}

// Deduplicate removes activities of the same athlete that start within window
// of each other and whose distances agree within the relative tolerance. The
// most complete copy is kept. Records come back ordered by athlete and start
// time.
func Deduplicate(records []ActivityRecord, window time.Duration, tolerance float64) ([]ActivityRecord, []DroppedRecord) {
	sorted := make([]ActivityRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].AthleteID != sorted[j].AthleteID {
			return sorted[i].AthleteID < sorted[j].AthleteID
		}
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	kept := make([]ActivityRecord, 0, len(sorted))
	var dropped []DroppedRecord
	for _, rec := range sorted {
		dup := -1
		for i := len(kept) - 1; i >= 0; i-- {
			k := kept[i]
			if k.AthleteID != rec.AthleteID || rec.StartTime.Sub(k.StartTime) > window {
				break
			}
			if sameDistance(k.Distance(), rec.Distance(), tolerance) {
				dup = i
				break
			}
		}
		if dup < 0 {
			kept = append(kept, rec)
			continue
		}

		loser := rec
		if moreComplete(rec, kept[dup]) {
			loser = kept[dup]
			kept[dup] = rec
		}
		dropped = append(dropped, DroppedRecord{
			AthleteID:  loser.AthleteID,
			ActivityID: loser.ActivityID,
			Err:        eris.Wrapf(ErrDuplicateActivity, "activity %s", loser.ActivityID),
		})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].AthleteID != kept[j].AthleteID {
			return kept[i].AthleteID < kept[j].AthleteID
		}
		return kept[i].StartTime.Before(kept[j].StartTime)
	})
	return kept, dropped
}

func sameDistance(a, b, tolerance float64) bool {
	larger := math.Max(a, b)
	if larger == 0 {
		return true
	}
	return math.Abs(a-b) <= tolerance*larger
}

// moreComplete ranks by observed samples, then HR coverage, then duration.
func moreComplete(a, b ActivityRecord) bool {
	if a.ObservedSamples != b.ObservedSamples {
		return a.ObservedSamples > b.ObservedSamples
	}
	if a.HRCoverage != b.HRCoverage {
		return a.HRCoverage > b.HRCoverage
	}
	return a.Duration() > b.Duration()
}

func distanceFactor(unit string) (float64, bool) {
	switch unit {
	case "", "m":
		return 1, true
	case "km":
		return MetersPerKilometer, true
	case "mi":
		return MetersPerMile, true
	}
	return 0, false
}

func elevationFactor(unit string) (float64, bool) {
	switch unit {
	case "", "m":
		return 1, true
	case "ft":
		return MetersPerFoot, true
	}
	return 0, false
}

func scaled(v *float64, factor float64) *float64 {
	v = finite(v)
	if v == nil {
		return nil
	}
	return ptr(*v * factor)
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

func samePoint(a, b point) bool {
	return a.t == b.t && sameValue(a.distance, b.distance) &&
		sameValue(a.elevation, b.elevation) && sameValue(a.heartrate, b.heartrate)
}

func sameValue(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
