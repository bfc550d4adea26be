package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"irrigation/internal/blob"
	"irrigation/internal/config"
	"irrigation/pkg/domain"
)

func TestBatchReportArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := blob.Open(ctx, blob.Config{Driver: blob.DriverMemory})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	archiver := NewReportArchiver(store)
	svc, _ := newTestService(t, WithArchiver(archiver))
	plot, trees := southSlope()
	south, _ := svc.CreatePlotWithTrees(ctx, nil, plot, trees)
	if _, err := svc.DeletePlotCascade(ctx, nil, south.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	kept, _ := svc.CreatePlotWithTrees(ctx, nil, domain.Plot{Name: "Fallow", AreaSqm: 10, OwnerID: 1}, nil)

	report, err := svc.BulkRecomputeAndPersist(ctx, []domain.Plot{south, kept})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	infos, err := archiver.List(ctx, KindRecompute)
	if err != nil || len(infos) != 1 {
		t.Fatalf("list archived: %v %v", infos, err)
	}
	if infos[0].Key != archiver.Key(report) || infos[0].Metadata["failed"] != "1" {
		t.Fatalf("unexpected archive info %+v", infos[0])
	}
	loaded, err := archiver.Load(ctx, infos[0].Key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(report, loaded, cmpopts.IgnoreFields(ItemResult{}, "Err")); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if _, err := archiver.Archive(ctx, report); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("second archive: expected ErrExists, got %v", err)
	}
}

func TestMetricsAndTraceRecordOutcomes(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	recorder := NewPrometheusMetricsRecorder(reg)
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc, _ := newTestService(t, WithMetrics(recorder), WithTracer(tracer))

	if _, err := svc.CreatePlotWithTrees(ctx, nil, domain.Plot{Name: ""}, nil); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	plot, trees := southSlope()
	if _, err := svc.CreatePlotWithTrees(ctx, nil, plot, trees); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := testutil.ToFloat64(recorder.operations.WithLabelValues(opCreatePlot, "error")); got != 1 {
		t.Fatalf("error counter = %v", got)
	}
	if got := testutil.ToFloat64(recorder.operations.WithLabelValues(opCreatePlot, "success")); got != 1 {
		t.Fatalf("success counter = %v", got)
	}

	if _, err := svc.RecomputeAll(ctx); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if got := testutil.ToFloat64(recorder.batchItems.WithLabelValues(KindRecompute, string(ItemFailed))); got != 1 {
		t.Fatalf("failed batch items = %v", got)
	}

	entries := tracer.Entries()
	if len(entries) == 0 || entries[0].Operation != opCreatePlot || entries[0].ErrorKind != "validation" {
		t.Fatalf("unexpected trace entries %+v", entries)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != len(entries) {
		t.Fatalf("wrote %d lines for %d spans", lines, len(entries))
	}
}

func TestBootstrapWiresRuntime(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Database.SQLitePath = t.TempDir() + "/runtime.db"
	cfg.Blob.Driver = string(blob.DriverMemory)
	var trace bytes.Buffer

	rt, err := Bootstrap(ctx, cfg, RuntimeOptions{TraceWriter: &trace})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer func() { _ = rt.Close() }()
	if rt.Tracer == nil || rt.Service.archive == nil {
		t.Fatalf("tracer or archiver not wired")
	}
	if _, err := rt.Service.CreateSamplePlot(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if trace.Len() == 0 {
		t.Fatalf("no trace output")
	}

	cfg.Database.Driver = "oracle"
	if _, err := Bootstrap(ctx, cfg, RuntimeOptions{}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
