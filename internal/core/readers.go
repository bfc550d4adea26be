package core

import (
	"context"

	"irrigation/internal/infra/persistence/repository"
	"irrigation/internal/txn"
	"irrigation/pkg/domain"
)

// TreeReader loads the trees used to compute a plot's water requirement.
// Readers receive the unit's connection so they observe its uncommitted writes.
type TreeReader interface {
	TreesForPlot(ctx context.Context, conn txn.Conn, plotID int64) ([]domain.Tree, error)
}

// MeasurementReader loads the weather used to compute a plot's water
// requirement. A plot without measurements must yield a NotFoundError.
type MeasurementReader interface {
	LatestMeasurement(ctx context.Context, conn txn.Conn, plotID int64) (domain.Measurement, error)
}

type repositoryReader struct{}

func (repositoryReader) TreesForPlot(ctx context.Context, conn txn.Conn, plotID int64) ([]domain.Tree, error) {
	return repository.ListTreesByPlot(ctx, conn, plotID)
}

func (repositoryReader) LatestMeasurement(ctx context.Context, conn txn.Conn, plotID int64) (domain.Measurement, error) {
	return repository.LatestMeasurement(ctx, conn, plotID)
}
