package analysis

import "github.com/rotisserie/eris"

// DefaultFractionAtCS is the share of VO2max a runner sustains at critical
// speed.
const DefaultFractionAtCS = 0.88

// VO2 model names
const (
	VO2Daniels   = "daniels"
	VO2ACSM      = "acsm"
	VO2VDOTTable = "vdot_table"
)

// VO2Model maps critical speed (m/s) to a VO2max proxy in ml/kg/min.
type VO2Model interface {
	Name() string
	VO2(cs float64) float64
}

// NewVO2Model returns the named model.
func NewVO2Model(name string, fractionAtCS float64) (VO2Model, error) {
	if fractionAtCS <= 0 || fractionAtCS > 1 {
		fractionAtCS = DefaultFractionAtCS
	}
	switch name {
	case VO2Daniels, "":
		return DanielsModel{FractionAtCS: fractionAtCS}, nil
	case VO2ACSM:
		return ACSMModel{FractionAtCS: fractionAtCS}, nil
	case VO2VDOTTable:
		return VDOTTableModel{}, nil
	}
	return nil, eris.Errorf("analysis: unknown VO2 model %q", name)
}

// DanielsModel uses the Daniels-Gilbert oxygen cost of running.
type DanielsModel struct {
	FractionAtCS float64
}

func (DanielsModel) Name() string { return VO2Daniels }

func (m DanielsModel) VO2(cs float64) float64 {
	if cs <= 0 {
		return 0
	}
	v := cs * 60 // m/min
	cost := -4.60 + 0.182258*v + 0.000104*v*v
	return cost / m.FractionAtCS
}

// ACSMModel uses the ACSM level running equation.
type ACSMModel struct {
	FractionAtCS float64
}

func (ACSMModel) Name() string { return VO2ACSM }

func (m ACSMModel) VO2(cs float64) float64 {
	if cs <= 0 {
		return 0
	}
	return (3.5 + 0.2*cs*60) / m.FractionAtCS
}

// VDOTTableModel reads VDOT for an hour run at critical speed from the
// Daniels tables.
type VDOTTableModel struct{}

func (VDOTTableModel) Name() string { return VO2VDOTTable }

func (VDOTTableModel) VO2(cs float64) float64 {
	if cs <= 0 {
		return 0
	}
	return CalculateVDOT(cs*3600, 3600)
}
