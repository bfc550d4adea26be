// Package core implements the planner's transactional operations on top of the
// transaction coordinator and the relational repositories.
package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"irrigation/internal/infra/persistence/repository"
	"irrigation/internal/storeerr"
	"irrigation/internal/txn"
	"irrigation/pkg/domain"
)

// Operation labels used for transaction units, metrics and spans.
const (
	opCreatePlot      = "create_plot_with_trees"
	opDeletePlot      = "delete_plot_cascade"
	opTransferTrees   = "transfer_trees"
	opBulkRecompute   = "bulk_recompute"
	opRecomputePlot   = "recompute_plot"
	opRecordAndCalc   = "record_measurement_and_recompute"
	opUpdateZone      = "update_climate_zone"
	opAddTree         = "add_tree"
	opRemoveTree      = "remove_tree"
	opGetPlot         = "get_plot"
	opListPlots       = "list_plots"
	opListTrees       = "list_trees"
	opLatestMeasure   = "latest_measurement"
	opListRecommended = "list_recommendations"
)

// Service exposes the atomic units of work of the irrigation planner.
type Service struct {
	coord        *txn.Coordinator
	log          *zap.Logger
	metrics      MetricsRecorder
	tracer       Tracer
	calc         domain.WaterCalculator
	trees        TreeReader
	measurements MeasurementReader
	archive      *ReportArchiver
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the operation metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithCalculator replaces the water requirement calculator.
func WithCalculator(c domain.WaterCalculator) Option {
	return func(s *Service) {
		if c != nil {
			s.calc = c
		}
	}
}

// WithTreeReader replaces the tree source used by recomputation.
func WithTreeReader(r TreeReader) Option {
	return func(s *Service) {
		if r != nil {
			s.trees = r
		}
	}
}

// WithMeasurementReader replaces the weather source used by recomputation.
func WithMeasurementReader(r MeasurementReader) Option {
	return func(s *Service) {
		if r != nil {
			s.measurements = r
		}
	}
}

// WithArchiver stores every batch report after it completes.
func WithArchiver(a *ReportArchiver) Option {
	return func(s *Service) { s.archive = a }
}

// WithClock overrides the time source used for batch reports.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a Service over coord.
func NewService(coord *txn.Coordinator, opts ...Option) *Service {
	s := &Service{
		coord:        coord,
		log:          zap.NewNop(),
		metrics:      noopMetrics{},
		tracer:       noopTracer{},
		calc:         domain.DailyCalculator{},
		trees:        repositoryReader{},
		measurements: repositoryReader{},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Coordinator returns the transaction coordinator the service runs on.
func (s *Service) Coordinator() *txn.Coordinator { return s.coord }

// observe wraps an operation with a span, a metric sample and an error log.
func (s *Service) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	if err != nil {
		s.log.Warn("operation failed",
			zap.String("op", op),
			zap.String("kind", domain.Kind(err)),
			zap.Error(err))
	}
	return err
}

// GetPlot loads one plot outside any transaction.
func (s *Service) GetPlot(ctx context.Context, id int64) (domain.Plot, error) {
	var out domain.Plot
	err := s.observe(ctx, opGetPlot, func(ctx context.Context) error {
		p, err := repository.GetPlot(ctx, s.coord.CurrentConnection(nil), id)
		out = p
		return storeerr.Translate(err, opGetPlot)
	})
	return out, err
}

// ListPlots returns every plot ordered by id.
func (s *Service) ListPlots(ctx context.Context) ([]domain.Plot, error) {
	var out []domain.Plot
	err := s.observe(ctx, opListPlots, func(ctx context.Context) error {
		plots, err := repository.ListPlots(ctx, s.coord.CurrentConnection(nil))
		out = plots
		return storeerr.Translate(err, opListPlots)
	})
	return out, err
}

// ListTrees returns the trees currently on a plot.
func (s *Service) ListTrees(ctx context.Context, plotID int64) ([]domain.Tree, error) {
	var out []domain.Tree
	err := s.observe(ctx, opListTrees, func(ctx context.Context) error {
		trees, err := repository.ListTreesByPlot(ctx, s.coord.CurrentConnection(nil), plotID)
		out = trees
		return storeerr.Translate(err, opListTrees)
	})
	return out, err
}

// LatestMeasurement returns the newest measurement of a plot.
func (s *Service) LatestMeasurement(ctx context.Context, plotID int64) (domain.Measurement, error) {
	var out domain.Measurement
	err := s.observe(ctx, opLatestMeasure, func(ctx context.Context) error {
		m, err := repository.LatestMeasurement(ctx, s.coord.CurrentConnection(nil), plotID)
		out = m
		return storeerr.Translate(err, opLatestMeasure)
	})
	return out, err
}

// ListRecommendations returns a plot's recommendations, newest first.
func (s *Service) ListRecommendations(ctx context.Context, plotID int64) ([]domain.Recommendation, error) {
	var out []domain.Recommendation
	err := s.observe(ctx, opListRecommended, func(ctx context.Context) error {
		recs, err := repository.ListRecommendations(ctx, s.coord.CurrentConnection(nil), plotID)
		out = recs
		return storeerr.Translate(err, opListRecommended)
	})
	return out, err
}
