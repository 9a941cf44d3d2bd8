package domain

import "math"

// AmountUnit tags a monetary value with the unit it is expressed in.
// Every Amount carries its unit from the moment it is computed; gateway
// clients convert exactly once at their own boundary and must never guess
// the unit from the magnitude of the value.
type AmountUnit string

const (
	// UnitMajor is the natural currency unit (naira, dollars).
	UnitMajor AmountUnit = "major"
	// UnitMinor is the smallest currency unit (kobo, cents).
	UnitMinor AmountUnit = "minor"
)

type Amount struct {
	Value float64    `bson:"value" json:"value"`
	Unit  AmountUnit `bson:"unit" json:"unit"`
}

// ComputeTotal sums price*quantity over the items. The result is always in
// major units; client-supplied totals are never consulted.
func ComputeTotal(items []OrderItem) Amount {
	var sum float64
	for _, it := range items {
		sum += it.Price * float64(it.Quantity)
	}
	return Amount{Value: sum, Unit: UnitMajor}
}

// MinorUnits returns the amount as an integer count of the smallest currency
// unit. This is the single conversion point for providers that bill in minor
// units.
func (a Amount) MinorUnits() int64 {
	if a.Unit == UnitMinor {
		return int64(math.Round(a.Value))
	}
	return int64(math.Round(a.Value * 100))
}

// MajorUnits returns the amount in the natural currency unit.
func (a Amount) MajorUnits() float64 {
	if a.Unit == UnitMinor {
		return a.Value / 100
	}
	return a.Value
}
