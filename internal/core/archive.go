package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"

	"irrigation/internal/blob"
)

const reportPrefix = "reports"

// ReportArchiver stores batch reports as JSON documents in a blob store under
// reports/<kind>/<finished-at>.json.
type ReportArchiver struct {
	store blob.Store
}

// NewReportArchiver returns an archiver writing to store.
func NewReportArchiver(store blob.Store) *ReportArchiver {
	return &ReportArchiver{store: store}
}

// Key returns the archive key of a report.
func (a *ReportArchiver) Key(report BatchReport) string {
	stamp := report.FinishedAt.UTC().Format("20060102T150405.000000000Z")
	return path.Join(reportPrefix, report.Kind, stamp+".json")
}

// Archive writes report. Reports are write-once: archiving the same report
// twice fails with blob.ErrExists.
func (a *ReportArchiver) Archive(ctx context.Context, report BatchReport) (blob.Info, error) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode report: %w", err)
	}
	return a.store.Put(ctx, a.Key(report), bytes.NewReader(body), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"kind":      report.Kind,
			"succeeded": strconv.Itoa(report.Succeeded()),
			"failed":    strconv.Itoa(report.Failed()),
		},
	})
}

// Load reads an archived report back.
func (a *ReportArchiver) Load(ctx context.Context, key string) (BatchReport, error) {
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return BatchReport{}, err
	}
	defer func() { _ = rc.Close() }()
	var report BatchReport
	if err := json.NewDecoder(rc).Decode(&report); err != nil {
		return BatchReport{}, fmt.Errorf("decode report %s: %w", key, err)
	}
	return report, nil
}

// List returns the archived reports of kind, oldest first. An empty kind lists
// every report.
func (a *ReportArchiver) List(ctx context.Context, kind string) ([]blob.Info, error) {
	prefix := reportPrefix + "/"
	if kind != "" {
		prefix += kind + "/"
	}
	return a.store.List(ctx, prefix)
}
