package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVO2Model(t *testing.T) {
	for _, name := range []string{VO2Daniels, VO2ACSM, VO2VDOTTable} {
		m, err := NewVO2Model(name, 0.88)
		require.NoError(t, err)
		assert.Equal(t, name, m.Name())
	}

	m, err := NewVO2Model("", 0)
	require.NoError(t, err)
	assert.Equal(t, DanielsModel{FractionAtCS: DefaultFractionAtCS}, m)

	_, err = NewVO2Model("cooper", 0.88)
	assert.Error(t, err)
}

func TestVO2ModelsAgreeOnScale(t *testing.T) {
	// CS of 4.2 m/s is roughly a 40 minute 10K runner
	const cs = 4.2
	for _, name := range []string{VO2Daniels, VO2ACSM, VO2VDOTTable} {
		m, err := NewVO2Model(name, DefaultFractionAtCS)
		require.NoError(t, err)
		got := m.VO2(cs)
		assert.Greater(t, got, 40.0, name)
		assert.Less(t, got, 70.0, name)
	}
}

func TestVO2Monotonic(t *testing.T) {
	for _, name := range []string{VO2Daniels, VO2ACSM, VO2VDOTTable} {
		m, err := NewVO2Model(name, DefaultFractionAtCS)
		require.NoError(t, err)
		assert.LessOrEqual(t, m.VO2(3.5), m.VO2(4.5), name)
		assert.Zero(t, m.VO2(0), name)
	}
}

func TestDanielsFraction(t *testing.T) {
	full := DanielsModel{FractionAtCS: 1}.VO2(4)
	part := DanielsModel{FractionAtCS: 0.8}.VO2(4)
	assert.InDelta(t, full/0.8, part, 1e-9)
}
