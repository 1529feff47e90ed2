package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store persists result records as JSON files, one per attempt, under
// {dir}/{feature_id}/. Records are immutable: saving the same
// (package, attempt) twice is rejected rather than overwritten.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// resultFileName is {package_id}.attempt-{n}.json.
func resultFileName(packageID string, attempt int) string {
	return fmt.Sprintf("%s.attempt-%d.json", packageID, attempt)
}

// Save writes one result record. The write is atomic: data lands in a
// temporary file first, then renames into place.
func (s *Store) Save(r *WorkQueueResult) error {
	if r == nil {
		return fmt.Errorf("result is nil")
	}
	if r.FeatureID == "" || r.PackageID == "" || r.Attempt < 1 {
		return fmt.Errorf("result record is missing feature_id, package_id, or attempt")
	}

	dir := filepath.Join(s.dir, r.FeatureID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create result directory: %w", err)
	}

	target := filepath.Join(dir, resultFileName(r.PackageID, r.Attempt))
	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("result for %s attempt %d already recorded", r.PackageID, r.Attempt)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads one result record.
func (s *Store) Load(featureID, packageID string, attempt int) (*WorkQueueResult, error) {
	target := filepath.Join(s.dir, featureID, resultFileName(packageID, attempt))
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read result file: %w", err)
	}
	var r WorkQueueResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &r, nil
}

// LoadFeature reads every result record of a feature, sorted by
// package id and attempt.
func (s *Store) LoadFeature(featureID string) ([]*WorkQueueResult, error) {
	dir := filepath.Join(s.dir, featureID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read result directory: %w", err)
	}

	var results []*WorkQueueResult
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read result file %s: %w", entry.Name(), err)
		}
		var r WorkQueueResult
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("unmarshal result %s: %w", entry.Name(), err)
		}
		results = append(results, &r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].PackageID != results[j].PackageID {
			return results[i].PackageID < results[j].PackageID
		}
		return results[i].Attempt < results[j].Attempt
	})
	return results, nil
}

// Latest returns, for each package of the feature, its highest-attempt
// result.
func (s *Store) Latest(featureID string) (map[string]*WorkQueueResult, error) {
	all, err := s.LoadFeature(featureID)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]*WorkQueueResult)
	for _, r := range all {
		if prev, ok := latest[r.PackageID]; !ok || r.Attempt > prev.Attempt {
			latest[r.PackageID] = r
		}
	}
	return latest, nil
}
