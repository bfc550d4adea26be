package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"irrigation/internal/infra/persistence/repository"
	"irrigation/internal/storeerr"
	"irrigation/internal/txn"
	"irrigation/pkg/domain"
)

// CreatePlotWithTrees stores a plot and its initial trees atomically and
// returns the reloaded plot with its tree count set. Input is validated before
// any statement runs. A duplicate plot name fails with a ValidationError on
// "name" and leaves no rows behind.
func (s *Service) CreatePlotWithTrees(ctx context.Context, parent *txn.Handle, plot domain.Plot, trees []domain.Tree) (domain.Plot, error) {
	var out domain.Plot
	err := s.observe(ctx, opCreatePlot, func(ctx context.Context) error {
		if err := domain.ValidatePlot(plot); err != nil {
			return err
		}
		if err := domain.ValidateTrees(trees); err != nil {
			return err
		}
		created, err := txn.Do(ctx, s.coord, parent, opCreatePlot, func(ctx context.Context, h *txn.Handle) (domain.Plot, error) {
			conn := h.Conn()
			id, err := repository.InsertPlot(ctx, conn, plot)
			if err != nil {
				return domain.Plot{}, storeerr.Translate(err, "insert plot", storeerr.UniqueField("name", plot.Name))
			}
			for _, t := range trees {
				if _, err := repository.InsertTree(ctx, conn, id, t); err != nil {
					return domain.Plot{}, storeerr.Translate(err, "insert tree", storeerr.ReferenceField("plot_id", id))
				}
			}
			if err := repository.SetTreeCount(ctx, conn, id, len(trees)); err != nil {
				return domain.Plot{}, err
			}
			return repository.GetPlot(ctx, conn, id)
		})
		if err != nil {
			return err
		}
		out = created
		s.log.Info("plot created",
			zap.Int64("plot_id", created.ID),
			zap.String("name", created.Name),
			zap.Int("trees", created.TreeCount))
		return nil
	})
	return out, err
}

// DeletePlotCascade removes a plot with its measurements, recommendations and
// trees in one unit. A missing plot fails with a NotFoundError.
func (s *Service) DeletePlotCascade(ctx context.Context, parent *txn.Handle, plotID int64) (bool, error) {
	var deleted bool
	err := s.observe(ctx, opDeletePlot, func(ctx context.Context) error {
		return s.coord.Run(ctx, parent, opDeletePlot, func(ctx context.Context, h *txn.Handle) error {
			conn := h.Conn()
			exists, err := repository.PlotExists(ctx, conn, plotID)
			if err != nil {
				return err
			}
			if !exists {
				return &domain.NotFoundError{Entity: domain.EntityPlot, ID: plotID}
			}
			measurements, err := repository.DeleteMeasurementsByPlot(ctx, conn, plotID)
			if err != nil {
				return err
			}
			recommendations, err := repository.DeleteRecommendationsByPlot(ctx, conn, plotID)
			if err != nil {
				return err
			}
			trees, err := repository.DeleteTreesByPlot(ctx, conn, plotID)
			if err != nil {
				return err
			}
			deleted, err = repository.DeletePlot(ctx, conn, plotID)
			if err != nil {
				return err
			}
			s.log.Info("plot deleted",
				zap.Int64("plot_id", plotID),
				zap.Int64("measurements", measurements),
				zap.Int64("recommendations", recommendations),
				zap.Int64("trees", trees))
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// AddTree plants one tree on a plot and increments the plot's tree count.
func (s *Service) AddTree(ctx context.Context, parent *txn.Handle, plotID int64, tree domain.Tree) (domain.Tree, error) {
	var out domain.Tree
	err := s.observe(ctx, opAddTree, func(ctx context.Context) error {
		if err := domain.ValidateTree(tree); err != nil {
			return err
		}
		added, err := txn.Do(ctx, s.coord, parent, opAddTree, func(ctx context.Context, h *txn.Handle) (domain.Tree, error) {
			conn := h.Conn()
			if err := requirePlot(ctx, conn, plotID); err != nil {
				return domain.Tree{}, err
			}
			id, err := repository.InsertTree(ctx, conn, plotID, tree)
			if err != nil {
				return domain.Tree{}, storeerr.Translate(err, "insert tree", storeerr.ReferenceField("plot_id", plotID))
			}
			if err := repository.AdjustTreeCount(ctx, conn, plotID, 1); err != nil {
				return domain.Tree{}, err
			}
			return repository.GetTree(ctx, conn, id)
		})
		out = added
		return err
	})
	return out, err
}

// RemoveTree deletes one tree and decrements its plot's tree count.
func (s *Service) RemoveTree(ctx context.Context, parent *txn.Handle, treeID int64) error {
	return s.observe(ctx, opRemoveTree, func(ctx context.Context) error {
		return s.coord.Run(ctx, parent, opRemoveTree, func(ctx context.Context, h *txn.Handle) error {
			conn := h.Conn()
			tree, err := repository.GetTree(ctx, conn, treeID)
			if err != nil {
				return err
			}
			if _, err := repository.DeleteTree(ctx, conn, treeID); err != nil {
				return err
			}
			return repository.AdjustTreeCount(ctx, conn, tree.PlotID, -1)
		})
	})
}

// CreateSamplePlot stores a demonstration plot with three trees.
func (s *Service) CreateSamplePlot(ctx context.Context) (domain.Plot, error) {
	plot := domain.Plot{
		Name:        fmt.Sprintf("Sample-Plot-%d", s.now().UnixNano()),
		AreaSqm:     500,
		ClimateZone: "Mediterranean",
		OwnerID:     101,
	}
	trees := []domain.Tree{
		{AgeYears: 3, SpeciesID: 1, BaseRequirement: 20.0},
		{AgeYears: 5, SpeciesID: 1, BaseRequirement: 25.0},
		{AgeYears: 8, SpeciesID: 1, BaseRequirement: 30.0},
	}
	return s.CreatePlotWithTrees(ctx, nil, plot, trees)
}

func requirePlot(ctx context.Context, conn txn.Conn, plotID int64) error {
	exists, err := repository.PlotExists(ctx, conn, plotID)
	if err != nil {
		return err
	}
	if !exists {
		return &domain.NotFoundError{Entity: domain.EntityPlot, ID: plotID}
	}
	return nil
}

