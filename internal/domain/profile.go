package domain

import (
	"context"
	"time"
)

// Caps for the bounded history windows carried by a profile. Windows
// are FIFO-truncated so profile memory stays bounded regardless of a
// user's transaction volume.
const (
	MaxHourWindow     = 100
	MaxDayWindow      = 100
	MaxIntervalWindow = 50
	MaxAmountWindow   = 50
)

// UserProfile holds per-user rolling behavioral statistics. Profiles
// are owned exclusively by the ProfileStore and mutated only through
// its Update call.
type UserProfile struct {
	UserID string `json:"userId"`

	TotalCount int64   `json:"totalCount"`
	AvgAmount  float64 `json:"avgAmount"`
	MaxAmount  float64 `json:"maxAmount"`
	MinAmount  float64 `json:"minAmount"`

	// Bounded recent-history windows, oldest first
	Hours     []int     `json:"hours,omitempty"`     // hour-of-day, cap 100
	Days      []int     `json:"days,omitempty"`      // day-of-week, cap 100
	Intervals []float64 `json:"intervals,omitempty"` // seconds between transactions, cap 50
	Amounts   []float64 `json:"amounts,omitempty"`   // cap 50

	// Zero time means the user has never transacted.
	LastTxTime time.Time `json:"lastTxTime"`
}

// IsNew reports whether the profile has no recorded history.
func (p *UserProfile) IsNew() bool {
	return p == nil || p.TotalCount == 0
}

// ProfileStore owns per-user behavioral profiles.
//
// Get never fails for unknown users: it returns a zero-valued profile,
// which downstream scorers treat as "new user". Errors are reserved for
// storage faults, which are fatal to the single call.
//
// Update must serialize concurrent calls for the same user (no lost
// updates of the incremental average) while calls for different users
// proceed independently.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*UserProfile, error)
	Update(ctx context.Context, userID string, tx *Transaction) error
}
