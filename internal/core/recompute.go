package core

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"irrigation/internal/infra/persistence/repository"
	"irrigation/internal/storeerr"
	"irrigation/internal/txn"
	"irrigation/pkg/domain"
)

// BulkRecomputeAndPersist computes and stores a recommendation for every plot
// inside one root transaction. Each plot runs in its own savepoint, so a failing
// plot is rolled back alone, logged and recorded in the report while the batch
// continues. The returned error covers only the root transaction itself: when
// it is non-nil nothing from the batch was committed, even for items the report
// marks as succeeded.
//
// A plot id listed more than once is recomputed only for its first occurrence.
//
// Holding a single transaction for the whole batch keeps row locks until the
// last plot is done. Callers with very large plot sets should split them into
// several calls.
func (s *Service) BulkRecomputeAndPersist(ctx context.Context, plots []domain.Plot) (BatchReport, error) {
	report := newBatchReport(KindRecompute, s.now())
	err := s.observe(ctx, opBulkRecompute, func(ctx context.Context) error {
		return s.coord.Run(ctx, nil, opBulkRecompute, func(ctx context.Context, h *txn.Handle) error {
			seen := make(map[int64]struct{}, len(plots))
			for _, p := range plots {
				if _, dup := seen[p.ID]; dup {
					s.log.Debug("skipping repeated plot", zap.Int64("plot_id", p.ID))
					continue
				}
				seen[p.ID] = struct{}{}
				var rec domain.Recommendation
				label := fmt.Sprintf("%s %d", opRecomputePlot, p.ID)
				err := s.coord.Run(ctx, h, label, func(ctx context.Context, h *txn.Handle) error {
					var err error
					rec, err = s.recomputePlot(ctx, h.Conn(), p.ID)
					return err
				})
				if err != nil {
					s.log.Warn("plot recompute failed",
						zap.Int64("plot_id", p.ID),
						zap.String("kind", domain.Kind(err)),
						zap.Error(err))
					report.fail(p.ID, err)
					continue
				}
				report.succeed(p.ID, rec)
			}
			return nil
		})
	})
	report.FinishedAt = s.now().UTC()
	if err != nil {
		return report, err
	}
	s.log.Info("batch recompute finished",
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", report.Failed()))
	s.finishBatch(ctx, report)
	return report, nil
}

// RecomputeAll runs BulkRecomputeAndPersist over every stored plot.
func (s *Service) RecomputeAll(ctx context.Context) (BatchReport, error) {
	plots, err := s.ListPlots(ctx)
	if err != nil {
		return newBatchReport(KindRecompute, s.now()), err
	}
	return s.BulkRecomputeAndPersist(ctx, plots)
}

// RecordMeasurementAndRecompute stores a measurement for a plot and the
// recommendation computed from it in one unit.
func (s *Service) RecordMeasurementAndRecompute(ctx context.Context, parent *txn.Handle, plotID int64, m domain.Measurement) (domain.Recommendation, error) {
	var out domain.Recommendation
	err := s.observe(ctx, opRecordAndCalc, func(ctx context.Context) error {
		m.PlotID = plotID
		if err := domain.ValidateMeasurement(m); err != nil {
			return err
		}
		rec, err := txn.Do(ctx, s.coord, parent, opRecordAndCalc, func(ctx context.Context, h *txn.Handle) (domain.Recommendation, error) {
			conn := h.Conn()
			if err := requirePlot(ctx, conn, plotID); err != nil {
				return domain.Recommendation{}, err
			}
			if _, err := repository.InsertMeasurement(ctx, conn, m); err != nil {
				return domain.Recommendation{}, storeerr.Translate(err, "insert measurement", storeerr.ReferenceField("plot_id", plotID))
			}
			return s.recomputePlot(ctx, conn, plotID)
		})
		out = rec
		return err
	})
	return out, err
}

// recomputePlot stores a fresh recommendation for plotID. A plot without
// trees needs no water and is not required to have a measurement.
func (s *Service) recomputePlot(ctx context.Context, conn txn.Conn, plotID int64) (domain.Recommendation, error) {
	if err := requirePlot(ctx, conn, plotID); err != nil {
		return domain.Recommendation{}, err
	}
	trees, err := s.trees.TreesForPlot(ctx, conn, plotID)
	if err != nil {
		return domain.Recommendation{}, err
	}
	var liters float64
	if len(trees) > 0 {
		m, err := s.measurements.LatestMeasurement(ctx, conn, plotID)
		if err != nil {
			return domain.Recommendation{}, err
		}
		liters = s.calc.Requirement(trees, m)
	}
	id, err := repository.InsertRecommendation(ctx, conn, domain.Recommendation{PlotID: plotID, WaterLiters: liters})
	if err != nil {
		return domain.Recommendation{}, storeerr.Translate(err, "insert recommendation", storeerr.ReferenceField("plot_id", plotID))
	}
	return repository.GetRecommendation(ctx, conn, id)
}

// UpdateClimateZones sets the climate zone of each plot in its own
// transaction. A failing plot is recorded in the report and does not affect
// the others.
func (s *Service) UpdateClimateZones(ctx context.Context, zones map[int64]string) BatchReport {
	report := newBatchReport(KindClimateZones, s.now())
	ids := make([]int64, 0, len(zones))
	for id := range zones {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		zone := zones[id]
		err := s.observe(ctx, opUpdateZone, func(ctx context.Context) error {
			return s.coord.Run(ctx, nil, opUpdateZone, func(ctx context.Context, h *txn.Handle) error {
				return repository.UpdateClimateZone(ctx, h.Conn(), id, zone)
			})
		})
		if err != nil {
			report.fail(id, err)
			continue
		}
		report.Items[id] = ItemResult{PlotID: id, Status: ItemSucceeded}
	}
	report.FinishedAt = s.now().UTC()
	s.finishBatch(ctx, report)
	return report
}

func (s *Service) finishBatch(ctx context.Context, report BatchReport) {
	if b, ok := s.metrics.(BatchObserver); ok {
		b.ObserveBatch(report)
	}
	if s.archive == nil {
		return
	}
	info, err := s.archive.Archive(ctx, report)
	if err != nil {
		s.log.Warn("archiving batch report failed", zap.String("kind", report.Kind), zap.Error(err))
		return
	}
	s.log.Debug("batch report archived", zap.String("key", info.Key))
}
