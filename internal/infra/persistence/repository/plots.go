package repository

import (
	"context"
	"fmt"

	"irrigation/pkg/domain"
)

const plotColumns = `plot_id, name, tree_count, area_sqm, climate_zone, owner_id`

// InsertPlot stores p with a tree count of zero and returns the generated id.
func InsertPlot(ctx context.Context, c Conn, p domain.Plot) (int64, error) {
	id, err := insert(ctx, c,
		`INSERT INTO plot (name, tree_count, area_sqm, climate_zone, owner_id) VALUES (?, 0, ?, ?, ?)`,
		"plot_id", p.Name, p.AreaSqm, p.ClimateZone, p.OwnerID)
	if err != nil {
		return 0, fmt.Errorf("insert plot: %w", err)
	}
	return id, nil
}

// GetPlot loads a plot or returns a NotFoundError.
func GetPlot(ctx context.Context, c Conn, id int64) (domain.Plot, error) {
	var p domain.Plot
	if err := getOne(ctx, c, &p, domain.EntityPlot, id,
		`SELECT `+plotColumns+` FROM plot WHERE plot_id = ?`, id); err != nil {
		return domain.Plot{}, err
	}
	return p, nil
}

// ListPlots returns every plot ordered by id.
func ListPlots(ctx context.Context, c Conn) ([]domain.Plot, error) {
	var plots []domain.Plot
	if err := c.SelectContext(ctx, &plots, `SELECT `+plotColumns+` FROM plot ORDER BY plot_id`); err != nil {
		return nil, fmt.Errorf("list plots: %w", err)
	}
	return plots, nil
}

// PlotExists reports whether a plot row with id exists.
func PlotExists(ctx context.Context, c Conn, id int64) (bool, error) {
	var n int
	if err := c.GetContext(ctx, &n, c.Rebind(`SELECT COUNT(*) FROM plot WHERE plot_id = ?`), id); err != nil {
		return false, fmt.Errorf("check plot %d: %w", id, err)
	}
	return n > 0, nil
}

// SetTreeCount overwrites the cached tree count.
func SetTreeCount(ctx context.Context, c Conn, id int64, count int) error {
	n, err := exec(ctx, c, `UPDATE plot SET tree_count = ? WHERE plot_id = ?`, count, id)
	if err != nil {
		return fmt.Errorf("set tree count: %w", err)
	}
	if n == 0 {
		return &domain.NotFoundError{Entity: domain.EntityPlot, ID: id}
	}
	return nil
}

// AdjustTreeCount adds delta to the cached tree count in a single statement.
func AdjustTreeCount(ctx context.Context, c Conn, id int64, delta int) error {
	n, err := exec(ctx, c, `UPDATE plot SET tree_count = tree_count + ? WHERE plot_id = ?`, delta, id)
	if err != nil {
		return fmt.Errorf("adjust tree count: %w", err)
	}
	if n == 0 {
		return &domain.NotFoundError{Entity: domain.EntityPlot, ID: id}
	}
	return nil
}

// UpdateClimateZone sets the climate zone of a plot.
func UpdateClimateZone(ctx context.Context, c Conn, id int64, zone string) error {
	n, err := exec(ctx, c, `UPDATE plot SET climate_zone = ? WHERE plot_id = ?`, zone, id)
	if err != nil {
		return fmt.Errorf("update climate zone: %w", err)
	}
	if n == 0 {
		return &domain.NotFoundError{Entity: domain.EntityPlot, ID: id}
	}
	return nil
}

// DeletePlot removes the plot row only. Dependants must already be gone.
func DeletePlot(ctx context.Context, c Conn, id int64) (bool, error) {
	n, err := exec(ctx, c, `DELETE FROM plot WHERE plot_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete plot: %w", err)
	}
	return n > 0, nil
}
