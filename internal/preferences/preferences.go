// Package preferences remembers the operator's last capital and risk
// percentages so entries can omit them.
package preferences

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"order-executor/internal/types"
)

type Preferences struct {
	Capital       float64   `json:"capital"`
	SLPercent     float64   `json:"sl_percent"`
	TargetPercent float64   `json:"target_percent"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Complete reports whether all three values have been set.
func (p Preferences) Complete() bool {
	return p.Capital > 0 && p.SLPercent > 0 && p.TargetPercent > 0
}

// Store holds preferences in memory and mirrors them to a JSON file.
type Store struct {
	mu       sync.RWMutex
	prefs    Preferences
	filePath string
	now      func() time.Time
}

// Open loads preferences from filePath; a missing file yields empty values.
func Open(filePath string) (*Store, error) {
	s := &Store{filePath: filePath, now: time.Now}

	b, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	if err := json.Unmarshal(b, &s.prefs); err != nil {
		return nil, fmt.Errorf("parse preferences: %w", err)
	}
	return s, nil
}

func (s *Store) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Update applies non-zero fields of p and persists the result.
func (s *Store) Update(p Preferences) (Preferences, error) {
	if p.Capital < 0 || p.SLPercent < 0 || p.TargetPercent < 0 {
		return Preferences{}, fmt.Errorf("%w: preferences cannot be negative", types.ErrValidation)
	}
	if p.SLPercent > 100 || p.TargetPercent > 100 {
		return Preferences{}, fmt.Errorf("%w: percentages cannot exceed 100", types.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.prefs
	if p.Capital > 0 {
		next.Capital = p.Capital
	}
	if p.SLPercent > 0 {
		next.SLPercent = p.SLPercent
	}
	if p.TargetPercent > 0 {
		next.TargetPercent = p.TargetPercent
	}
	next.LastUpdated = s.now().UTC()

	if err := s.flush(next); err != nil {
		return Preferences{}, err
	}
	s.prefs = next
	return next, nil
}

// Fill copies remembered values into req wherever req leaves them unset.
func (s *Store) Fill(req *types.EntryRequest) {
	p := s.Get()
	if req.Capital == 0 {
		req.Capital = p.Capital
	}
	if req.StopLossPercent == 0 {
		req.StopLossPercent = p.SLPercent
	}
	if req.TargetPercent == 0 {
		req.TargetPercent = p.TargetPercent
	}
}

func (s *Store) flush(p Preferences) error {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if dir := filepath.Dir(s.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create preferences dir: %w", err)
		}
	}
	if err := os.WriteFile(s.filePath, b, 0o644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}
