package repository

import (
	"context"
	"fmt"

	"irrigation/pkg/domain"
)

const measurementColumns = `measurement_id, plot_id, temperature, precipitation, captured_at`

// InsertMeasurement appends a measurement. A zero CapturedAt is left to the
// column default.
func InsertMeasurement(ctx context.Context, c Conn, m domain.Measurement) (int64, error) {
	var (
		id  int64
		err error
	)
	if m.CapturedAt.IsZero() {
		id, err = insert(ctx, c,
			`INSERT INTO measurement (plot_id, temperature, precipitation) VALUES (?, ?, ?)`,
			"measurement_id", m.PlotID, m.Temperature, m.Precipitation)
	} else {
		id, err = insert(ctx, c,
			`INSERT INTO measurement (plot_id, temperature, precipitation, captured_at) VALUES (?, ?, ?, ?)`,
			"measurement_id", m.PlotID, m.Temperature, m.Precipitation, m.CapturedAt.UTC())
	}
	if err != nil {
		return 0, fmt.Errorf("insert measurement: %w", err)
	}
	return id, nil
}

// LatestMeasurement returns the most recent measurement of a plot. Ties on
// captured_at go to the later insert. A plot with no measurement yields a
// NotFoundError for the measurement entity keyed by the plot id.
func LatestMeasurement(ctx context.Context, c Conn, plotID int64) (domain.Measurement, error) {
	var m domain.Measurement
	if err := getOne(ctx, c, &m, domain.EntityMeasurement, plotID,
		`SELECT `+measurementColumns+` FROM measurement WHERE plot_id = ? ORDER BY captured_at DESC, measurement_id DESC LIMIT 1`,
		plotID); err != nil {
		return domain.Measurement{}, err
	}
	return m, nil
}

// DeleteMeasurementsByPlot removes the measurement history of a plot.
func DeleteMeasurementsByPlot(ctx context.Context, c Conn, plotID int64) (int64, error) {
	n, err := exec(ctx, c, `DELETE FROM measurement WHERE plot_id = ?`, plotID)
	if err != nil {
		return 0, fmt.Errorf("delete measurements: %w", err)
	}
	return n, nil
}
