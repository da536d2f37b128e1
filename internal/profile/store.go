// Package profile provides the in-memory behavioral profile store.
package profile

import (
	"context"
	"sync"

	"github.com/ruralpay/kite/internal/domain"
)

// MemoryStore implements domain.ProfileStore with per-user locking.
// Updates for the same user serialize; updates for different users
// never block each other.
type MemoryStore struct {
	mu       sync.RWMutex // guards the profiles map itself
	profiles map[string]*userEntry
}

type userEntry struct {
	mu      sync.Mutex // serializes updates for one user
	profile domain.UserProfile
}

// NewMemoryStore creates an empty profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*userEntry),
	}
}

// Get returns a copy of the user's profile. Unknown users get a
// zero-valued profile, which downstream scorers treat as "new user".
// Reads are idempotent: two Gets without an intervening Update return
// identical values.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	s.mu.RLock()
	entry, ok := s.profiles[userID]
	s.mu.RUnlock()

	if !ok {
		return &domain.UserProfile{UserID: userID}, nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return copyProfile(&entry.profile), nil
}

// Update folds a scored transaction into the user's profile:
// incremental mean, max/min, bounded history windows, and the
// inter-transaction interval when a prior timestamp exists.
func (s *MemoryStore) Update(ctx context.Context, userID string, tx *domain.Transaction) error {
	entry := s.entryFor(userID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	p := &entry.profile

	p.TotalCount++
	n := float64(p.TotalCount)
	p.AvgAmount = (p.AvgAmount*(n-1) + tx.Amount) / n

	if p.TotalCount == 1 {
		p.MaxAmount = tx.Amount
		p.MinAmount = tx.Amount
	} else {
		if tx.Amount > p.MaxAmount {
			p.MaxAmount = tx.Amount
		}
		if tx.Amount < p.MinAmount {
			p.MinAmount = tx.Amount
		}
	}

	ts := tx.Timestamp
	p.Hours = appendBoundedInt(p.Hours, ts.Hour(), domain.MaxHourWindow)
	p.Days = appendBoundedInt(p.Days, int(ts.Weekday()), domain.MaxDayWindow)

	if !p.LastTxTime.IsZero() {
		gap := ts.Sub(p.LastTxTime).Seconds()
		p.Intervals = appendBoundedFloat(p.Intervals, gap, domain.MaxIntervalWindow)
	}

	p.Amounts = appendBoundedFloat(p.Amounts, tx.Amount, domain.MaxAmountWindow)
	p.LastTxTime = ts

	return nil
}

// Seed installs previously persisted profile snapshots. Intended for
// startup before the store is shared; later snapshots for the same user
// replace earlier ones.
func (s *MemoryStore) Seed(profiles []*domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range profiles {
		if p == nil || p.UserID == "" {
			continue
		}
		s.profiles[p.UserID] = &userEntry{profile: *copyProfile(p)}
	}
}

// Snapshot returns a copy of the user's current profile for
// persistence, or nil when the user has no profile.
func (s *MemoryStore) Snapshot(userID string) *domain.UserProfile {
	s.mu.RLock()
	entry, ok := s.profiles[userID]
	s.mu.RUnlock()

	if !ok {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return copyProfile(&entry.profile)
}

// Len returns the number of tracked users.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

func (s *MemoryStore) entryFor(userID string) *userEntry {
	s.mu.RLock()
	entry, ok := s.profiles[userID]
	s.mu.RUnlock()
	if ok {
		return entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok = s.profiles[userID]; ok {
		return entry
	}
	entry = &userEntry{profile: domain.UserProfile{UserID: userID}}
	s.profiles[userID] = entry
	return entry
}

func copyProfile(p *domain.UserProfile) *domain.UserProfile {
	out := *p
	out.Hours = append([]int(nil), p.Hours...)
	out.Days = append([]int(nil), p.Days...)
	out.Intervals = append([]float64(nil), p.Intervals...)
	out.Amounts = append([]float64(nil), p.Amounts...)
	return &out
}

func appendBoundedInt(window []int, v, limit int) []int {
	window = append(window, v)
	if len(window) > limit {
		window = window[len(window)-limit:]
	}
	return window
}

func appendBoundedFloat(window []float64, v float64, limit int) []float64 {
	window = append(window, v)
	if len(window) > limit {
		window = window[len(window)-limit:]
	}
	return window
}
