package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"irrigation/internal/blob/core"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("driver = %s", s.Driver())
	}
	md := map[string]string{"kind": "recompute"}
	info, err := s.Put(ctx, "reports/recompute/a.json", strings.NewReader(`{"ok":1}`), core.PutOptions{ContentType: "application/json", Metadata: md})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	md["kind"] = "mutated"
	if info.Size != 8 || info.Metadata["kind"] != "recompute" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if _, err := s.Put(ctx, "reports/recompute/a.json", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.Put(ctx, "reports/zones/b.json", strings.NewReader("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, rc, err := s.Get(ctx, "reports/recompute/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"ok":1}` || got.ContentType != "application/json" {
		t.Fatalf("get returned %q %+v", body, got)
	}

	list, err := s.List(ctx, "reports/recompute/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	all, _ := s.List(ctx, "")
	if len(all) != 2 || all[0].Key > all[1].Key {
		t.Fatalf("expected two sorted entries, got %+v", all)
	}

	ok, err := s.Delete(ctx, "reports/recompute/a.json")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, _ = s.Delete(ctx, "reports/recompute/a.json")
	if ok {
		t.Fatal("second delete must report false")
	}
	if _, _, err := s.Get(ctx, "reports/recompute/a.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
