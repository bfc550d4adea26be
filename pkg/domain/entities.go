// Package domain defines the persistent entities, the error taxonomy, and the
// input validation rules used by the irrigation planner.
package domain

import "time"

// EntityType identifies the type of record stored in the planner's tables.
type EntityType string

// Supported entity type identifiers used in errors and log fields.
const (
	// EntityPlot identifies a cultivated plot.
	EntityPlot EntityType = "plot"
	// EntityTree identifies a tree planted on a plot.
	EntityTree EntityType = "tree"
	// EntityMeasurement identifies a weather measurement captured for a plot.
	EntityMeasurement EntityType = "measurement"
	// EntityRecommendation identifies a persisted irrigation recommendation.
	EntityRecommendation EntityType = "recommendation"
)

// Measurement bounds accepted on insert.
const (
	MinTemperature = -50.0
	MaxTemperature = 60.0
)

// Plot is a cultivated area owning zero or more trees. TreeCount is a
// denormalized cache that must equal the number of trees referencing the plot.
type Plot struct {
	ID          int64   `db:"plot_id" json:"id"`
	Name        string  `db:"name" json:"name" validate:"notblank"`
	TreeCount   int     `db:"tree_count" json:"tree_count"`
	AreaSqm     float64 `db:"area_sqm" json:"area_sqm" validate:"gt=0"`
	ClimateZone string  `db:"climate_zone" json:"climate_zone"`
	OwnerID     int64   `db:"owner_id" json:"owner_id" validate:"gt=0"`
}

// Tree is a plant record belonging to exactly one plot at a time.
type Tree struct {
	ID              int64   `db:"tree_id" json:"id"`
	PlotID          int64   `db:"plot_id" json:"plot_id"`
	AgeYears        int     `db:"age_years" json:"age_years" validate:"gte=0"`
	SpeciesID       int64   `db:"species_id" json:"species_id"`
	BaseRequirement float64 `db:"base_requirement" json:"base_requirement" validate:"gt=0"`
}

// Measurement is an immutable weather observation tied to a plot. CapturedAt
// is assigned by the store.
type Measurement struct {
	ID            int64     `db:"measurement_id" json:"id"`
	PlotID        int64     `db:"plot_id" json:"plot_id"`
	Temperature   float64   `db:"temperature" json:"temperature" validate:"gte=-50,lte=60"`
	Precipitation float64   `db:"precipitation" json:"precipitation" validate:"gte=0"`
	CapturedAt    time.Time `db:"captured_at" json:"captured_at"`
}

// Recommendation is the water amount computed for a plot at a point in time.
type Recommendation struct {
	ID          int64     `db:"recommendation_id" json:"id"`
	PlotID      int64     `db:"plot_id" json:"plot_id"`
	WaterLiters float64   `db:"water_liters" json:"water_liters"`
	ComputedAt  time.Time `db:"computed_at" json:"computed_at"`
}
