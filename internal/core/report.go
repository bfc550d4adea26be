package core

import (
	"sort"
	"time"

	"irrigation/pkg/domain"
)

// Batch kinds recorded on reports and used as archive prefixes.
const (
	KindRecompute    = "recompute"
	KindClimateZones = "climate_zones"
)

// ItemStatus is the outcome of one plot in a batch.
type ItemStatus string

const (
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
)

// ItemResult is the outcome recorded for one plot.
type ItemResult struct {
	PlotID           int64      `json:"plot_id"`
	Status           ItemStatus `json:"status"`
	RecommendationID int64      `json:"recommendation_id,omitempty"`
	WaterLiters      float64    `json:"water_liters,omitempty"`
	Error            string     `json:"error,omitempty"`
	ErrorKind        string     `json:"error_kind,omitempty"`

	// Err keeps the typed error for callers in the same process.
	Err error `json:"-"`
}

// BatchReport lists per-plot outcomes of a batch operation.
type BatchReport struct {
	Kind       string               `json:"kind"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Items      map[int64]ItemResult `json:"items"`
}

func newBatchReport(kind string, started time.Time) BatchReport {
	return BatchReport{Kind: kind, StartedAt: started.UTC(), Items: map[int64]ItemResult{}}
}

func (r *BatchReport) succeed(plotID int64, rec domain.Recommendation) {
	r.Items[plotID] = ItemResult{
		PlotID:           plotID,
		Status:           ItemSucceeded,
		RecommendationID: rec.ID,
		WaterLiters:      rec.WaterLiters,
	}
}

func (r *BatchReport) fail(plotID int64, err error) {
	r.Items[plotID] = ItemResult{
		PlotID:    plotID,
		Status:    ItemFailed,
		Error:     err.Error(),
		ErrorKind: domain.Kind(err),
		Err:       err,
	}
}

// Succeeded counts successful items.
func (r BatchReport) Succeeded() int { return r.count(ItemSucceeded) }

// Failed counts failed items.
func (r BatchReport) Failed() int { return r.count(ItemFailed) }

func (r BatchReport) count(status ItemStatus) int {
	n := 0
	for _, item := range r.Items {
		if item.Status == status {
			n++
		}
	}
	return n
}

// PlotIDs returns the reported plot ids in ascending order.
func (r BatchReport) PlotIDs() []int64 {
	ids := make([]int64, 0, len(r.Items))
	for id := range r.Items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
