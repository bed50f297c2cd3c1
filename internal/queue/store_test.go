package queue_test

import (
	"context"
	"testing"
	"time"

	"assetrip/internal/queue"
	"assetrip/internal/testsupport"
)

func TestNewTaskDefaultsToPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	task, err := store.NewTask(context.Background(), queue.NewTaskParams{
		OriginalFilename: "bundle.zip",
		SourcePath:       "/tmp/uploads/bundle.zip",
		FileSizeBytes:    2048,
		FileHash:         "abc123",
		SubmittedBy:      "127.0.0.1",
	})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if task.ID == "" {
		t.Fatal("expected generated task ID")
	}
	if task.Status != queue.StatusPending {
		t.Fatalf("expected pending status, got %s", task.Status)
	}
	if task.StartedAt != nil || task.CompletedAt != nil {
		t.Fatal("new task should have no started/completed timestamps")
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Fatal("expected created/updated timestamps to be set")
	}
	if task.FileHash != "abc123" || task.SubmittedBy != "127.0.0.1" {
		t.Fatalf("unexpected persisted fields: %+v", task)
	}
}

func TestNewTaskRejectsMissingFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.NewTask(context.Background(), queue.NewTaskParams{SourcePath: "/tmp/x"}); err == nil {
		t.Fatal("expected error for missing filename")
	}
	if _, err := store.NewTask(context.Background(), queue.NewTaskParams{OriginalFilename: "x.zip"}); err == nil {
		t.Fatal("expected error for missing source path")
	}
}

func TestNextPendingReturnsOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewTask(t, store, "first.zip", "/tmp/first.zip")
	time.Sleep(2 * time.Millisecond)
	testsupport.NewTask(t, store, "second.zip", "/tmp/second.zip")

	next, err := store.NextPending(ctx)
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest pending task %s, got %+v", first.ID, next)
	}

	next.SetProcessing(time.Now())
	if err := store.Update(ctx, next); err != nil {
		t.Fatalf("Update: %v", err)
	}

	after, err := store.NextPending(ctx)
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if after == nil || after.OriginalFilename != "second.zip" {
		t.Fatalf("expected second task after dequeue, got %+v", after)
	}
}

func TestNextPendingEmptyQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	next, err := store.NextPending(context.Background())
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if next != nil {
		t.Fatalf("expected nil for empty queue, got %+v", next)
	}
}

func TestUpdatePersistsLifecycleTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "game.apk", "/tmp/game.apk")
	now := time.Now()

	task.SetProcessing(now)
	if err := store.Update(ctx, task); err != nil {
		t.Fatalf("Update processing: %v", err)
	}
	reloaded, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Status != queue.StatusProcessing || reloaded.StartedAt == nil {
		t.Fatalf("expected processing with start time, got %+v", reloaded)
	}

	task.SetCompleted(now.Add(time.Minute), "/tmp/exports/"+task.ID, 4096)
	if err := store.Update(ctx, task); err != nil {
		t.Fatalf("Update completed: %v", err)
	}
	reloaded, err = store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", reloaded.Status)
	}
	if reloaded.ExportPath == "" || reloaded.ExportSizeBytes != 4096 {
		t.Fatalf("expected export metadata persisted, got %+v", reloaded)
	}
	if reloaded.CompletedAt == nil {
		t.Fatal("expected completed timestamp")
	}
	if !reloaded.IsTerminal() {
		t.Fatal("completed task should be terminal")
	}
}

func TestSetFailedRecordsErrorCode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "broken.zip", "/tmp/broken.zip")
	task.SetProcessing(time.Now())
	task.SetFailed(time.Now(), "engine_load_error", "engine rejected archive")
	if err := store.Update(ctx, task); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reloaded, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", reloaded.Status)
	}
	if reloaded.ErrorCode != "engine_load_error" || reloaded.ErrorMessage != "engine rejected archive" {
		t.Fatalf("expected error classification persisted, got %+v", reloaded)
	}
}

func TestFailInterruptedReconcilesProcessingTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	interrupted := testsupport.NewTask(t, store, "interrupted.zip", "/tmp/interrupted.zip")
	interrupted.SetProcessing(time.Now())
	if err := store.Update(ctx, interrupted); err != nil {
		t.Fatalf("Update: %v", err)
	}
	pending := testsupport.NewTask(t, store, "pending.zip", "/tmp/pending.zip")

	listed, err := store.ListInterrupted(ctx)
	if err != nil {
		t.Fatalf("ListInterrupted: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != interrupted.ID {
		t.Fatalf("expected one interrupted task, got %+v", listed)
	}

	count, err := store.FailInterrupted(ctx, "interrupted", "service restarted mid-task")
	if err != nil {
		t.Fatalf("FailInterrupted: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reconciled task, got %d", count)
	}

	reloaded, err := store.GetByID(ctx, interrupted.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Status != queue.StatusFailed || reloaded.ErrorCode != "interrupted" {
		t.Fatalf("expected failed/interrupted, got %+v", reloaded)
	}
	if reloaded.CompletedAt == nil {
		t.Fatal("expected completion timestamp on reconciled task")
	}

	untouched, err := store.GetByID(ctx, pending.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if untouched.Status != queue.StatusPending {
		t.Fatalf("pending task should be unaffected, got %s", untouched.Status)
	}
}

func TestFindByHashReturnsMostRecent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.NewTask(ctx, queue.NewTaskParams{
		OriginalFilename: "old.zip",
		SourcePath:       "/tmp/old.zip",
		FileHash:         "samehash",
	}); err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	newer, err := store.NewTask(ctx, queue.NewTaskParams{
		OriginalFilename: "new.zip",
		SourcePath:       "/tmp/new.zip",
		FileHash:         "samehash",
	})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	found, err := store.FindByHash(ctx, "samehash")
	if err != nil {
		t.Fatalf("FindByHash: %v", err)
	}
	if found == nil || found.ID != newer.ID {
		t.Fatalf("expected most recent task %s, got %+v", newer.ID, found)
	}

	missing, err := store.FindByHash(ctx, "nosuchhash")
	if err != nil {
		t.Fatalf("FindByHash: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown hash, got %+v", missing)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewTask(t, store, "a.zip", "/tmp/a.zip")
	failed := testsupport.NewTask(t, store, "b.zip", "/tmp/b.zip")
	failed.SetFailed(time.Now(), "engine_export_error", "export failed")
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(all))
	}

	onlyFailed, err := store.List(ctx, queue.StatusFailed)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(onlyFailed) != 1 || onlyFailed[0].ID != failed.ID {
		t.Fatalf("expected failed task only, got %+v", onlyFailed)
	}
}

func TestStatsCountsByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewTask(t, store, "p1.zip", "/tmp/p1.zip")
	testsupport.NewTask(t, store, "p2.zip", "/tmp/p2.zip")
	done := testsupport.NewTask(t, store, "c.zip", "/tmp/c.zip")
	done.SetCompleted(time.Now(), "/tmp/exports/c", 10)
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 2 || stats.Completed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	count, err := store.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 pending, got %d", count)
	}
}

func TestRemoveAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	keep := testsupport.NewTask(t, store, "keep.zip", "/tmp/keep.zip")
	gone := testsupport.NewTask(t, store, "gone.zip", "/tmp/gone.zip")

	removed, err := store.Remove(ctx, gone.ID)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatal("expected removal to report success")
	}
	removed, err = store.Remove(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
	if removed {
		t.Fatal("expected removal of unknown ID to report false")
	}

	done := testsupport.NewTask(t, store, "done.zip", "/tmp/done.zip")
	done.SetCompleted(time.Now(), "/tmp/exports/done", 1)
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}
	cleared, err := store.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected 1 cleared, got %d", cleared)
	}

	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != keep.ID {
		t.Fatalf("expected only kept task, got %+v", remaining)
	}
}

func TestRetentionQueriesAndCleanupLog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	old := testsupport.NewTask(t, store, "old.zip", "/tmp/old.zip")
	time.Sleep(2 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(2 * time.Millisecond)
	testsupport.NewTask(t, store, "fresh.zip", "/tmp/fresh.zip")

	stale, err := store.TasksCreatedBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("TasksCreatedBefore: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Fatalf("expected one stale task, got %+v", stale)
	}

	if err := store.RecordCleanup(ctx, queue.CleanupEntry{
		TaskID:     old.ID,
		UploadPath: old.SourcePath,
		Reason:     "retention",
	}); err != nil {
		t.Fatalf("RecordCleanup: %v", err)
	}

	// Swept tasks drop out of subsequent retention scans.
	stale, err = store.TasksCreatedBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("TasksCreatedBefore: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("expected no stale tasks after sweep, got %+v", stale)
	}

	entries, err := store.CleanupLog(ctx)
	if err != nil {
		t.Fatalf("CleanupLog: %v", err)
	}
	if len(entries) != 1 || entries[0].TaskID != old.ID || entries[0].Reason != "retention" {
		t.Fatalf("unexpected cleanup log: %+v", entries)
	}
}

func TestCheckHealthReportsHealthyDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	testsupport.NewTask(t, store, "a.zip", "/tmp/a.zip")

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("expected healthy database, got %+v", health)
	}
	if health.TotalTasks != 1 {
		t.Fatalf("expected 1 task counted, got %d", health.TotalTasks)
	}
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		input string
		want  queue.Status
		ok    bool
	}{
		{"pending", queue.StatusPending, true},
		{"  Processing ", queue.StatusProcessing, true},
		{"COMPLETED", queue.StatusCompleted, true},
		{"failed", queue.StatusFailed, true},
		{"", "", false},
		{"bogus", "", false},
	}
	for _, tc := range cases {
		got, ok := queue.ParseStatus(tc.input)
		if ok != tc.ok {
			t.Fatalf("ParseStatus(%q) ok = %v, want %v", tc.input, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("ParseStatus(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}
