package core

import (
	"context"

	"go.uber.org/zap"

	"irrigation/internal/infra/persistence/repository"
	"irrigation/internal/txn"
	"irrigation/pkg/domain"
)

// TransferTrees moves treeIDs from one plot to another and adjusts both tree
// counts. Either every tree moves or none does: a tree that is missing or not
// on the source plot aborts the whole transfer with a BusinessRuleError.
func (s *Service) TransferTrees(ctx context.Context, parent *txn.Handle, from, to int64, treeIDs []int64) error {
	return s.observe(ctx, opTransferTrees, func(ctx context.Context) error {
		if err := validateTransfer(from, to, treeIDs); err != nil {
			return err
		}
		return s.coord.Run(ctx, parent, opTransferTrees, func(ctx context.Context, h *txn.Handle) error {
			conn := h.Conn()
			if err := requirePlot(ctx, conn, from); err != nil {
				return err
			}
			if err := requirePlot(ctx, conn, to); err != nil {
				return err
			}
			owned, err := repository.CountTreesInPlot(ctx, conn, from, treeIDs)
			if err != nil {
				return err
			}
			if owned != len(treeIDs) {
				return foreignTreeError(ctx, conn, from, treeIDs)
			}
			moved, err := repository.MoveTrees(ctx, conn, from, to, treeIDs)
			if err != nil {
				return err
			}
			if int(moved) != len(treeIDs) {
				return domain.NewBusinessRuleError("moved %d of %d trees from plot %d", moved, len(treeIDs), from)
			}
			if err := repository.AdjustTreeCount(ctx, conn, from, -len(treeIDs)); err != nil {
				return err
			}
			if err := repository.AdjustTreeCount(ctx, conn, to, len(treeIDs)); err != nil {
				return err
			}
			s.log.Info("trees transferred",
				zap.Int64("from", from),
				zap.Int64("to", to),
				zap.Int64s("tree_ids", treeIDs))
			return nil
		})
	})
}

// foreignTreeError names the first listed tree that is not on plot from.
func foreignTreeError(ctx context.Context, conn txn.Conn, from int64, treeIDs []int64) error {
	for _, id := range treeIDs {
		tree, err := repository.GetTree(ctx, conn, id)
		if domain.IsNotFound(err) || (err == nil && tree.PlotID != from) {
			return domain.NewBusinessRuleError("tree %d does not belong to plot %d", id, from)
		}
		if err != nil {
			return err
		}
	}
	return domain.NewBusinessRuleError("trees %v are not all on plot %d", treeIDs, from)
}

func validateTransfer(from, to int64, treeIDs []int64) error {
	if from == to {
		return domain.NewBusinessRuleError("source and destination plot are both %d", from)
	}
	if len(treeIDs) == 0 {
		return &domain.ValidationError{Field: "tree_ids", Message: "must not be empty"}
	}
	seen := make(map[int64]struct{}, len(treeIDs))
	for _, id := range treeIDs {
		if _, dup := seen[id]; dup {
			return &domain.ValidationError{Field: "tree_ids", Value: id, Message: "duplicate tree id"}
		}
		seen[id] = struct{}{}
	}
	return nil
}
