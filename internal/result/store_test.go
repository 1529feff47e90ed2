package result

import (
	"testing"
	"time"
)

func storedResult(packageID string, attempt int, status Status) *WorkQueueResult {
	return &WorkQueueResult{
		SchemaVersion: SchemaVersion,
		FeatureID:     "checkout",
		PackageID:     packageID,
		Attempt:       attempt,
		PlanRevision:  1,
		Status:        status,
		StartedAt:     time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
		FinishedAt:    time.Date(2026, 8, 30, 9, 5, 0, 0, time.UTC),
	}
}

func TestStoreSaveAndLoad(t *testing.T) {
	store := NewStore(t.TempDir())

	saved := storedResult("backend", 1, StatusCompleted)
	if err := store.Save(saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load("checkout", "backend", 1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.PackageID != "backend" || loaded.Attempt != 1 || loaded.Status != StatusCompleted {
		t.Errorf("loaded = %+v", loaded)
	}
	if !loaded.StartedAt.Equal(saved.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", loaded.StartedAt, saved.StartedAt)
	}
}

func TestStoreRejectsOverwrite(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.Save(storedResult("backend", 1, StatusFailed)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(storedResult("backend", 1, StatusCompleted)); err == nil {
		t.Fatal("saving the same attempt twice should fail")
	}
	// A new attempt is a new record.
	if err := store.Save(storedResult("backend", 2, StatusCompleted)); err != nil {
		t.Fatalf("Save of attempt 2 failed: %v", err)
	}
}

func TestStoreRejectsIncompleteKey(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.Save(&WorkQueueResult{FeatureID: "checkout"}); err == nil {
		t.Fatal("expected error for record without package_id and attempt")
	}
}

func TestLoadFeatureSorted(t *testing.T) {
	store := NewStore(t.TempDir())
	for _, r := range []*WorkQueueResult{
		storedResult("frontend", 1, StatusCompleted),
		storedResult("backend", 2, StatusCompleted),
		storedResult("backend", 1, StatusFailed),
	} {
		if err := store.Save(r); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	all, err := store.LoadFeature("checkout")
	if err != nil {
		t.Fatalf("LoadFeature failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d results, want 3", len(all))
	}
	if all[0].PackageID != "backend" || all[0].Attempt != 1 {
		t.Errorf("first = %s attempt %d, want backend attempt 1", all[0].PackageID, all[0].Attempt)
	}
	if all[2].PackageID != "frontend" {
		t.Errorf("last = %s, want frontend", all[2].PackageID)
	}
}

func TestLatestPicksHighestAttempt(t *testing.T) {
	store := NewStore(t.TempDir())
	store.Save(storedResult("backend", 1, StatusFailed))
	store.Save(storedResult("backend", 2, StatusCompleted))

	latest, err := store.Latest("checkout")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest["backend"].Attempt != 2 {
		t.Errorf("latest attempt = %d, want 2", latest["backend"].Attempt)
	}
}

func TestLoadFeatureMissingDir(t *testing.T) {
	store := NewStore(t.TempDir())
	all, err := store.LoadFeature("ghost")
	if err != nil {
		t.Fatalf("LoadFeature on missing feature should not error: %v", err)
	}
	if all != nil {
		t.Errorf("expected nil results, got %v", all)
	}
}
