// Package storage keeps raw scraped menus on disk so ingestion can be
// replayed without hitting the dining site again.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fuelstack/internal/scraper"
)

// SnapshotStore provides file-based storage for scraped menus, one JSON
// file per hall and date.
type SnapshotStore struct {
	basePath string
}

// NewSnapshotStore creates a SnapshotStore and ensures the base directory exists.
func NewSnapshotStore(basePath string) (*SnapshotStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &SnapshotStore{basePath: basePath}, nil
}

// Dir returns the base directory.
func (s *SnapshotStore) Dir() string { return s.basePath }

func (s *SnapshotStore) path(hallID int64, date string) string {
	return filepath.Join(s.basePath, fmt.Sprintf("%d_%s.json", hallID, date))
}

// Save stores a scraped menu, replacing any earlier snapshot for the same day.
func (s *SnapshotStore) Save(hallID int64, date string, menu *scraper.Menu) error {
	data, err := json.MarshalIndent(menu, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal menu: %w", err)
	}

	// Write then rename so readers never see a partial file.
	tmp := s.path(hallID, date) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write menu snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path(hallID, date)); err != nil {
		return fmt.Errorf("failed to finalize menu snapshot: %w", err)
	}
	return nil
}

// Load retrieves the snapshot for a hall and date.
func (s *SnapshotStore) Load(hallID int64, date string) (*scraper.Menu, error) {
	data, err := os.ReadFile(s.path(hallID, date))
	if err != nil {
		return nil, fmt.Errorf("failed to read menu snapshot: %w", err)
	}

	var menu scraper.Menu
	if err := json.Unmarshal(data, &menu); err != nil {
		return nil, fmt.Errorf("failed to unmarshal menu snapshot: %w", err)
	}
	return &menu, nil
}

// Exists checks whether a snapshot for the hall and date exists.
func (s *SnapshotStore) Exists(hallID int64, date string) bool {
	_, err := os.Stat(s.path(hallID, date))
	return err == nil
}

// Dates lists the snapshot dates stored for a hall in ascending order.
func (s *SnapshotStore) Dates(hallID int64) ([]string, error) {
	prefix := fmt.Sprintf("%d_", hallID)
	matches, err := filepath.Glob(filepath.Join(s.basePath, prefix+"*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob snapshots: %w", err)
	}
	dates := make([]string, 0, len(matches))
	for _, m := range matches {
		dates = append(dates, strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), prefix), ".json"))
	}
	sort.Strings(dates)
	return dates, nil
}

// PruneBefore removes a hall's snapshots dated strictly before date and
// returns how many were removed.
func (s *SnapshotStore) PruneBefore(hallID int64, date string) (int, error) {
	dates, err := s.Dates(hallID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, d := range dates {
		if d >= date {
			break
		}
		if err := os.Remove(s.path(hallID, d)); err != nil {
			return removed, fmt.Errorf("failed to remove stale snapshot %s: %w", d, err)
		}
		removed++
	}
	return removed, nil
}
