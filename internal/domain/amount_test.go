package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeTotal(t *testing.T) {
	items := []OrderItem{
		{Name: "X", Price: 100, Quantity: 2},
		{Name: "Y", Price: 49.99, Quantity: 1},
	}

	total := ComputeTotal(items)

	assert.Equal(t, 249.99, total.Value)
	assert.Equal(t, UnitMajor, total.Unit)
}

func TestComputeTotal_Empty(t *testing.T) {
	total := ComputeTotal(nil)

	assert.Equal(t, 0.0, total.Value)
	assert.Equal(t, UnitMajor, total.Unit)
}

func TestAmount_MinorUnits(t *testing.T) {
	major := Amount{Value: 200, Unit: UnitMajor}
	assert.Equal(t, int64(20000), major.MinorUnits())

	// a large legitimate total must not be mistaken for minor units
	large := Amount{Value: 1_500_000, Unit: UnitMajor}
	assert.Equal(t, int64(150_000_000), large.MinorUnits())

	// already-minor amounts convert zero times
	minor := Amount{Value: 20000, Unit: UnitMinor}
	assert.Equal(t, int64(20000), minor.MinorUnits())
}

func TestAmount_MinorUnits_Rounding(t *testing.T) {
	a := Amount{Value: 49.99, Unit: UnitMajor}
	assert.Equal(t, int64(4999), a.MinorUnits())

	var x, y float64 = 0.1, 0.2
	b := Amount{Value: x + y, Unit: UnitMajor} // 0.30000000000000004
	assert.Equal(t, int64(30), b.MinorUnits())
}

func TestAmount_MajorUnits(t *testing.T) {
	minor := Amount{Value: 20000, Unit: UnitMinor}
	assert.Equal(t, 200.0, minor.MajorUnits())

	major := Amount{Value: 200, Unit: UnitMajor}
	assert.Equal(t, 200.0, major.MajorUnits())
}
