package history_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/idiotf/entry-video-compress/internal/history"
	"github.com/idiotf/entry-video-compress/internal/testsupport"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store, err := history.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if store.Path() != filepath.Join(cfg.Paths.LogDir, history.FileName) {
		t.Fatalf("unexpected db path %q", store.Path())
	}
	return store
}

func TestRecordAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	id, err := store.Record(ctx, history.Entry{
		JobID:       "job-1",
		InputPath:   "/videos/clip.mp4",
		Status:      history.StatusDone,
		Frames:      300,
		Tiles:       12,
		Segments:    2,
		FrameRate:   29.97,
		Duration:    10.01,
		Layout:      "tiled",
		Policy:      "parallel",
		Audio:       true,
		OutputPaths: []string{"/out/clip.1.ent", "/out/clip.2.ent"},
		OutputBytes: 4096,
		StartedAt:   started,
		FinishedAt:  started.Add(1500 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected entry")
	}
	if got.JobID != "job-1" || got.Status != history.StatusDone || got.Frames != 300 || got.Tiles != 12 {
		t.Fatalf("unexpected entry %+v", got)
	}
	if got.FrameRate != 29.97 || !got.Audio || got.Fallback {
		t.Fatalf("unexpected media facts %+v", got)
	}
	if !slices.Equal(got.OutputPaths, []string{"/out/clip.1.ent", "/out/clip.2.ent"}) {
		t.Fatalf("unexpected output paths %v", got.OutputPaths)
	}
	if got.Elapsed() != 1500*time.Millisecond {
		t.Fatalf("unexpected elapsed %v", got.Elapsed())
	}

	missing, err := store.Get(ctx, id+100)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown id, got %+v (%v)", missing, err)
	}
}

func TestRecordValidates(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if _, err := store.Record(ctx, history.Entry{Status: history.StatusDone}); err == nil {
		t.Fatal("expected error without input path")
	}
	if _, err := store.Record(ctx, history.Entry{InputPath: "a.mp4", Status: "running"}); err == nil {
		t.Fatal("expected error for non-terminal status")
	}
}

func TestListNewestFirstAndPrune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []history.Status{history.StatusDone, history.StatusError, history.StatusAborted} {
		_, err := store.Record(ctx, history.Entry{
			JobID:        "job",
			InputPath:    "clip.mp4",
			Status:       status,
			ErrorMessage: string(status),
			FinishedAt:   base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 || entries[0].Status != history.StatusAborted || entries[2].Status != history.StatusDone {
		t.Fatalf("unexpected order %+v", entries)
	}
	limited, err := store.List(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected one entry with limit, got %d (%v)", len(limited), err)
	}

	removed, err := store.Prune(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 pruned, got %d", removed)
	}
	removed, err = store.Clear(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("Clear removed %d (%v)", removed, err)
	}
}

func TestLatestOutputsSkipsFailedRuns(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []history.Entry{
		{JobID: "a", InputPath: "/in/clip.mp4", Status: history.StatusDone, OutputPaths: []string{"/out/clip.1.ent", "/out/clip.2.ent"}, FinishedAt: base},
		{JobID: "b", InputPath: "/in/clip.mp4", Status: history.StatusError, ErrorMessage: "boom", FinishedAt: base.Add(time.Hour)},
		{JobID: "c", InputPath: "/in/clip.2.mp4", Status: history.StatusDone, OutputPaths: []string{"/out/clip.2.ent"}, FinishedAt: base.Add(2 * time.Hour)},
	}
	for _, entry := range records {
		if _, err := store.Record(ctx, entry); err != nil {
			t.Fatalf("Record %s: %v", entry.JobID, err)
		}
	}

	paths, err := store.LatestOutputs(ctx, "/in/clip.mp4")
	if err != nil {
		t.Fatalf("LatestOutputs: %v", err)
	}
	if !slices.Equal(paths, []string{"/out/clip.1.ent", "/out/clip.2.ent"}) {
		t.Fatalf("unexpected outputs %v", paths)
	}
	none, err := store.LatestOutputs(ctx, "/in/other.mp4")
	if err != nil || none != nil {
		t.Fatalf("expected no outputs, got %v (%v)", none, err)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), history.FileName)
	store, err := history.OpenPath(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	_, err = history.OpenPath(context.Background(), path)
	if !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
