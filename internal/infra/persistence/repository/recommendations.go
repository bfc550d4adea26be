package repository

import (
	"context"
	"fmt"

	"irrigation/pkg/domain"
)

const recommendationColumns = `recommendation_id, plot_id, water_liters, computed_at`

// InsertRecommendation stores a computed water amount for a plot.
func InsertRecommendation(ctx context.Context, c Conn, r domain.Recommendation) (int64, error) {
	id, err := insert(ctx, c,
		`INSERT INTO recommendation (plot_id, water_liters) VALUES (?, ?)`,
		"recommendation_id", r.PlotID, r.WaterLiters)
	if err != nil {
		return 0, fmt.Errorf("insert recommendation: %w", err)
	}
	return id, nil
}

// GetRecommendation loads one recommendation by id.
func GetRecommendation(ctx context.Context, c Conn, id int64) (domain.Recommendation, error) {
	var r domain.Recommendation
	if err := getOne(ctx, c, &r, domain.EntityRecommendation, id,
		`SELECT `+recommendationColumns+` FROM recommendation WHERE recommendation_id = ?`, id); err != nil {
		return domain.Recommendation{}, err
	}
	return r, nil
}

// ListRecommendations returns the recommendation history of a plot, newest first.
func ListRecommendations(ctx context.Context, c Conn, plotID int64) ([]domain.Recommendation, error) {
	var recs []domain.Recommendation
	if err := c.SelectContext(ctx, &recs,
		c.Rebind(`SELECT `+recommendationColumns+` FROM recommendation WHERE plot_id = ? ORDER BY computed_at DESC, recommendation_id DESC`),
		plotID); err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	return recs, nil
}

// DeleteRecommendationsByPlot removes the recommendation history of a plot.
func DeleteRecommendationsByPlot(ctx context.Context, c Conn, plotID int64) (int64, error) {
	n, err := exec(ctx, c, `DELETE FROM recommendation WHERE plot_id = ?`, plotID)
	if err != nil {
		return 0, fmt.Errorf("delete recommendations: %w", err)
	}
	return n, nil
}
