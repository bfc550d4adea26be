package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"irrigation/internal/infra/persistence"
	"irrigation/internal/infra/persistence/repository"
	"irrigation/internal/infra/persistence/sqlite"
	"irrigation/internal/txn"
	"irrigation/pkg/domain"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *sqlx.DB) {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "core.db"), persistence.Options{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	coord := txn.New(db, txn.WithIsolation(sql.LevelDefault))
	return NewService(coord, opts...), db
}

func southSlope() (domain.Plot, []domain.Tree) {
	return domain.Plot{Name: "South Slope", AreaSqm: 1000, ClimateZone: "Mediterranean", OwnerID: 101},
		[]domain.Tree{
			{AgeYears: 5, SpeciesID: 1, BaseRequirement: 25.0},
			{AgeYears: 12, SpeciesID: 2, BaseRequirement: 30.0},
		}
}

func countRows(t *testing.T, db *sqlx.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.Get(&n, db.Rebind(query), args...); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

func TestCreatePlotWithTrees(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	plot, trees := southSlope()

	created, err := svc.CreatePlotWithTrees(ctx, nil, plot, trees)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 || created.TreeCount != 2 || created.Name != "South Slope" {
		t.Fatalf("unexpected plot %+v", created)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM tree WHERE plot_id = ?`, created.ID); n != 2 {
		t.Fatalf("expected 2 tree rows, got %d", n)
	}
	loaded, err := svc.GetPlot(ctx, created.ID)
	if err != nil || loaded != created {
		t.Fatalf("reload mismatch: %+v %v", loaded, err)
	}
}

func TestCreatePlotDuplicateNameLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	plot, trees := southSlope()
	if _, err := svc.CreatePlotWithTrees(ctx, nil, plot, trees); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := svc.CreatePlotWithTrees(ctx, nil, plot, trees)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "name" {
		t.Fatalf("expected name validation error, got %#v", err)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM plot WHERE name = ?`, "South Slope"); n != 1 {
		t.Fatalf("expected one plot row, got %d", n)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM tree`); n != 2 {
		t.Fatalf("failed create left trees behind: %d rows", n)
	}
}

func TestCreatePlotRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	base, trees := southSlope()

	cases := []struct {
		name  string
		plot  func(p *domain.Plot)
		trees []domain.Tree
		field string
	}{
		{"blank name", func(p *domain.Plot) { p.Name = "  " }, trees, "name"},
		{"zero area", func(p *domain.Plot) { p.AreaSqm = 0 }, trees, "area_sqm"},
		{"missing owner", func(p *domain.Plot) { p.OwnerID = 0 }, trees, "owner_id"},
		{"negative age", func(*domain.Plot) {}, []domain.Tree{trees[0], {AgeYears: -1, BaseRequirement: 10}}, "trees[1].age_years"},
		{"zero requirement", func(*domain.Plot) {}, []domain.Tree{{AgeYears: 2}}, "trees[0].base_requirement"},
	}
	for _, tc := range cases {
		p := base
		tc.plot(&p)
		_, err := svc.CreatePlotWithTrees(ctx, nil, p, tc.trees)
		var ve *domain.ValidationError
		if !errors.As(err, &ve) || ve.Field != tc.field {
			t.Fatalf("%s: expected field %s, got %#v", tc.name, tc.field, err)
		}
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM plot`); n != 0 {
		t.Fatalf("invalid input reached the store: %d plots", n)
	}
}

func TestTransferTrees(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	plot, trees := southSlope()
	south, err := svc.CreatePlotWithTrees(ctx, nil, plot, trees)
	if err != nil {
		t.Fatalf("create south: %v", err)
	}
	north, err := svc.CreatePlotWithTrees(ctx, nil, domain.Plot{Name: "North Side", AreaSqm: 400, OwnerID: 101}, nil)
	if err != nil {
		t.Fatalf("create north: %v", err)
	}
	southTrees, err := svc.ListTrees(ctx, south.ID)
	if err != nil {
		t.Fatalf("list trees: %v", err)
	}
	ids := []int64{southTrees[0].ID, southTrees[1].ID}

	if err := svc.TransferTrees(ctx, nil, south.ID, north.ID, ids); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	south, _ = svc.GetPlot(ctx, south.ID)
	north, _ = svc.GetPlot(ctx, north.ID)
	if south.TreeCount != 0 || north.TreeCount != 2 {
		t.Fatalf("counts not adjusted: south=%d north=%d", south.TreeCount, north.TreeCount)
	}
	moved, _ := svc.ListTrees(ctx, north.ID)
	if len(moved) != 2 {
		t.Fatalf("expected 2 trees on north side, got %d", len(moved))
	}
}

func TestTransferForeignTreeMovesNothing(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	plot, trees := southSlope()
	south, _ := svc.CreatePlotWithTrees(ctx, nil, plot, trees)
	north, _ := svc.CreatePlotWithTrees(ctx, nil, domain.Plot{Name: "North Side", AreaSqm: 400, OwnerID: 101}, nil)
	other, err := svc.CreatePlotWithTrees(ctx, nil, domain.Plot{Name: "Orchard", AreaSqm: 200, OwnerID: 7},
		[]domain.Tree{{AgeYears: 1, BaseRequirement: 10}})
	if err != nil {
		t.Fatalf("create other: %v", err)
	}
	southTrees, _ := svc.ListTrees(ctx, south.ID)
	otherTrees, _ := svc.ListTrees(ctx, other.ID)

	err = svc.TransferTrees(ctx, nil, south.ID, north.ID, []int64{southTrees[0].ID, otherTrees[0].ID})
	if !domain.IsBusinessRule(err) {
		t.Fatalf("expected business rule error, got %v", err)
	}
	if want := fmt.Sprintf("tree %d does not belong to plot %d", otherTrees[0].ID, south.ID); err.Error() != want {
		t.Fatalf("error should name the foreign tree: got %q want %q", err.Error(), want)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM tree WHERE plot_id = ?`, south.ID); n != 2 {
		t.Fatalf("south lost trees: %d", n)
	}
	south, _ = svc.GetPlot(ctx, south.ID)
	north, _ = svc.GetPlot(ctx, north.ID)
	if south.TreeCount != 2 || north.TreeCount != 0 {
		t.Fatalf("counts changed: south=%d north=%d", south.TreeCount, north.TreeCount)
	}

	err = svc.TransferTrees(ctx, nil, south.ID, north.ID, []int64{southTrees[0].ID, 99999})
	if !domain.IsBusinessRule(err) || !strings.Contains(err.Error(), "tree 99999 ") {
		t.Fatalf("unknown tree: expected business rule error naming 99999, got %v", err)
	}
}

func TestTransferRejectsBadArguments(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	plot, trees := southSlope()
	south, _ := svc.CreatePlotWithTrees(ctx, nil, plot, trees)
	southTrees, _ := svc.ListTrees(ctx, south.ID)

	if err := svc.TransferTrees(ctx, nil, south.ID, south.ID, []int64{southTrees[0].ID}); !domain.IsBusinessRule(err) {
		t.Fatalf("same plot: expected business rule error, got %v", err)
	}
	var ve *domain.ValidationError
	err := svc.TransferTrees(ctx, nil, south.ID, 42, []int64{southTrees[0].ID, southTrees[0].ID})
	if !errors.As(err, &ve) || ve.Field != "tree_ids" {
		t.Fatalf("duplicates: expected tree_ids validation error, got %v", err)
	}
	err = svc.TransferTrees(ctx, nil, south.ID, 4242, []int64{southTrees[0].ID})
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != domain.EntityPlot || nf.ID != 4242 {
		t.Fatalf("missing destination: expected plot not found, got %v", err)
	}
}

func TestDeletePlotCascade(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	plot, trees := southSlope()
	south, _ := svc.CreatePlotWithTrees(ctx, nil, plot, trees)
	if _, err := svc.RecordMeasurementAndRecompute(ctx, nil, south.ID, domain.Measurement{Temperature: 20}); err != nil {
		t.Fatalf("record: %v", err)
	}

	deleted, err := svc.DeletePlotCascade(ctx, nil, south.ID)
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	for _, table := range []string{"plot", "tree", "measurement", "recommendation"} {
		if n := countRows(t, db, `SELECT COUNT(*) FROM `+table); n != 0 {
			t.Fatalf("%s still has %d rows", table, n)
		}
	}
	if _, err := svc.DeletePlotCascade(ctx, nil, south.ID); !domain.IsNotFound(err) {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
}

func TestAddAndRemoveTreeKeepCount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	plot, trees := southSlope()
	south, _ := svc.CreatePlotWithTrees(ctx, nil, plot, trees)

	tree, err := svc.AddTree(ctx, nil, south.ID, domain.Tree{AgeYears: 2, SpeciesID: 3, BaseRequirement: 12})
	if err != nil || tree.PlotID != south.ID {
		t.Fatalf("add: %+v %v", tree, err)
	}
	if p, _ := svc.GetPlot(ctx, south.ID); p.TreeCount != 3 {
		t.Fatalf("count after add: %d", p.TreeCount)
	}
	if err := svc.RemoveTree(ctx, nil, tree.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if p, _ := svc.GetPlot(ctx, south.ID); p.TreeCount != 2 {
		t.Fatalf("count after remove: %d", p.TreeCount)
	}
	if err := svc.RemoveTree(ctx, nil, tree.ID); !domain.IsNotFound(err) {
		t.Fatalf("remove twice: expected not found, got %v", err)
	}
	if _, err := svc.AddTree(ctx, nil, 999, domain.Tree{AgeYears: 1, BaseRequirement: 5}); !domain.IsNotFound(err) {
		t.Fatalf("add to missing plot: expected not found, got %v", err)
	}
}

func TestUnitsNestInCallerTransaction(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	plot, trees := southSlope()

	abort := errors.New("abort")
	err := svc.Coordinator().Run(ctx, nil, "outer", func(ctx context.Context, h *txn.Handle) error {
		if _, err := svc.CreatePlotWithTrees(ctx, h, plot, trees); err != nil {
			return err
		}
		return abort
	})
	if !errors.Is(err, abort) && !domain.IsStorage(err) {
		t.Fatalf("unexpected outer error %v", err)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM plot`); n != 0 {
		t.Fatalf("outer rollback must discard nested work, found %d plots", n)
	}

	err = svc.Coordinator().Run(ctx, nil, "outer", func(ctx context.Context, h *txn.Handle) error {
		if _, err := svc.CreatePlotWithTrees(ctx, h, plot, trees); err != nil {
			return err
		}
		if _, err := svc.CreatePlotWithTrees(ctx, h, plot, trees); !domain.IsValidation(err) {
			t.Errorf("nested duplicate: expected validation error, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("outer commit: %v", err)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM tree`); n != 2 {
		t.Fatalf("expected only the first plot's trees, got %d", n)
	}
}

func TestFailedOperationIsLogged(t *testing.T) {
	obsCore, logs := observer.New(zapcore.WarnLevel)
	svc, _ := newTestService(t, WithLogger(zap.New(obsCore)))

	_, err := svc.GetPlot(context.Background(), 7)
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	entries := logs.FilterMessage("operation failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one failure log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["op"] != opGetPlot || fields["kind"] != "not_found" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestCreateSamplePlot(t *testing.T) {
	svc, _ := newTestService(t)
	p, err := svc.CreateSamplePlot(context.Background())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if p.TreeCount != 3 || p.AreaSqm != 500 || p.OwnerID != 101 {
		t.Fatalf("unexpected sample plot %+v", p)
	}
	trees, _ := repository.ListTreesByPlot(context.Background(), svc.Coordinator().DB(), p.ID)
	if len(trees) != 3 {
		t.Fatalf("expected 3 sample trees, got %d", len(trees))
	}
}

func TestTransferOneTreeToNorthSide(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	plot, trees := southSlope()
	south, err := svc.CreatePlotWithTrees(ctx, nil, plot, trees)
	if err != nil || south.TreeCount != 2 {
		t.Fatalf("create south: %+v %v", south, err)
	}
	north, err := svc.CreatePlotWithTrees(ctx, nil, domain.Plot{Name: "North Side", AreaSqm: 600, ClimateZone: "Mediterranean", OwnerID: 101}, nil)
	if err != nil {
		t.Fatalf("create north: %v", err)
	}
	southTrees, _ := svc.ListTrees(ctx, south.ID)
	moved := southTrees[1]

	if err := svc.TransferTrees(ctx, nil, south.ID, north.ID, []int64{moved.ID}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	south, _ = svc.GetPlot(ctx, south.ID)
	north, _ = svc.GetPlot(ctx, north.ID)
	if south.TreeCount != 1 || north.TreeCount != 1 {
		t.Fatalf("counts: south=%d north=%d", south.TreeCount, north.TreeCount)
	}
	got, err := repository.GetTree(ctx, svc.Coordinator().DB(), moved.ID)
	if err != nil || got.PlotID != north.ID {
		t.Fatalf("moved tree: %+v %v", got, err)
	}
}
