package domain

import "math"

// precipitationReduction is the litres subtracted per millimetre of rain.
const precipitationReduction = 0.5

// WaterCalculator turns trees and the latest weather into a daily litre amount.
type WaterCalculator interface {
	Requirement(trees []Tree, m Measurement) float64
}

// DailyCalculator applies age and temperature factors to each tree's base
// requirement and subtracts the rain contribution per tree.
type DailyCalculator struct{}

// Requirement sums the per-tree requirement; each tree contributes at least zero.
func (DailyCalculator) Requirement(trees []Tree, m Measurement) float64 {
	var total float64
	for _, t := range trees {
		total += TreeRequirement(t, m)
	}
	return total
}

// SoilMoistureCalculator is DailyCalculator scaled by a measured soil moisture
// percentage: dry soil raises the need, saturated soil lowers it.
type SoilMoistureCalculator struct {
	MoisturePercent float64
}

// Requirement sums TreeRequirementWithSoilMoisture over trees.
func (c SoilMoistureCalculator) Requirement(trees []Tree, m Measurement) float64 {
	var total float64
	for _, t := range trees {
		total += TreeRequirementWithSoilMoisture(t, m, c.MoisturePercent)
	}
	return total
}

// TreeRequirement returns the daily litres for a single tree.
func TreeRequirement(t Tree, m Measurement) float64 {
	need := t.BaseRequirement * ageFactor(t.AgeYears) * temperatureFactor(m.Temperature)
	need -= m.Precipitation * precipitationReduction
	return math.Max(0, need)
}

// TreeRequirementWithSoilMoisture additionally scales by the measured soil
// moisture percentage. A requirement already cancelled by rain stays zero.
func TreeRequirementWithSoilMoisture(t Tree, m Measurement, moisture float64) float64 {
	need := TreeRequirement(t, m)
	if need <= 0 {
		return 0
	}
	return need * moistureFactor(moisture)
}

func ageFactor(years int) float64 {
	switch {
	case years < 3:
		return 0.8
	case years <= 10:
		return 1.0
	default:
		return 1.2
	}
}

func temperatureFactor(celsius float64) float64 {
	switch {
	case celsius < 15:
		return 0.85
	case celsius <= 25:
		return 1.0
	default:
		return 1.15
	}
}

func moistureFactor(percent float64) float64 {
	switch {
	case percent <= 20:
		return 1.2
	case percent <= 35:
		return 1.1
	case percent <= 50:
		return 1.0
	case percent <= 70:
		return 0.8
	default:
		return 0.6
	}
}
