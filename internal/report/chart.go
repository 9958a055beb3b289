package report

import (
	"fmt"
	"math"

	"github.com/guptarohit/asciigraph"

	"racecurve/internal/store"
)

const (
	chartMinDurationS = 60.0
	chartMaxDurationS = 3600.0
	chartPoints       = 48
	chartMaxSeries    = 6
)

var chartColors = []asciigraph.AnsiColor{
	asciigraph.Green, asciigraph.Blue, asciigraph.Yellow,
	asciigraph.Magenta, asciigraph.Cyan, asciigraph.Red,
}

// curvePace samples pace (s/km) on a log-spaced duration grid.
func curvePace(c store.CurveRow) []float64 {
	k := 0.0
	if c.K != nil {
		k = *c.K
	}
	ratio := math.Log(chartMaxDurationS / chartMinDurationS)
	out := make([]float64, chartPoints)
	for i := range out {
		t := chartMinDurationS * math.Exp(ratio*float64(i)/float64(chartPoints-1))
		v := c.CS + c.DPrime/(t+k)
		if v <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = metersPerKm / v
	}
	return out
}

// renderCurveChart plots the first few fitted curves as pace over duration.
func renderCurveChart(curves []store.CurveRow) string {
	if len(curves) == 0 {
		return ""
	}
	n := min(len(curves), chartMaxSeries)
	series := make([][]float64, n)
	legends := make([]string, n)
	for i := range n {
		series[i] = curvePace(curves[i])
		legends[i] = curves[i].AthleteID
	}

	graph := asciigraph.PlotMany(series,
		asciigraph.Height(10),
		asciigraph.Width(60),
		asciigraph.Precision(0),
		asciigraph.SeriesColors(chartColors[:n]...),
		asciigraph.SeriesLegends(legends...),
		asciigraph.Caption(fmt.Sprintf("pace s/km, %.0f to %.0f min (log)", chartMinDurationS/60, chartMaxDurationS/60)),
	)
	return titleStyle.Render("Curve shape") + "\n" + graph
}
