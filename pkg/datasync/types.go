package datasync

import (
	"time"

	"github.com/google/uuid"
)

// Habit is one tracked habit.
type Habit struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon,omitempty"`
	Color     string    `json:"color,omitempty"`
	Archived  bool      `json:"archived,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tracker is a measurable dimension of a habit.
type Tracker struct {
	ID        uuid.UUID `json:"id"`
	HabitID   uuid.UUID `json:"habitId"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit,omitempty"`
	Goal      float64   `json:"goal,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Entry is one recorded value for a tracker on a given day.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	TrackerID uuid.UUID `json:"trackerId"`
	Date      string    `json:"date"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Aggregate is the whole of a user's habit data, moved and stored as one
// value. Sync never operates on finer granularity than this.
type Aggregate struct {
	Habits   []Habit   `json:"habits"`
	Trackers []Tracker `json:"trackers"`
	Entries  []Entry   `json:"entries"`
}

// Empty reports whether the aggregate holds no data at all.
func (a Aggregate) Empty() bool {
	return len(a.Habits) == 0 && len(a.Trackers) == 0 && len(a.Entries) == 0
}

// Clone returns a deep copy. Slices of value types, so copying the slices
// is enough.
func (a Aggregate) Clone() Aggregate {
	out := Aggregate{}
	if len(a.Habits) > 0 {
		out.Habits = make([]Habit, len(a.Habits))
		copy(out.Habits, a.Habits)
	}
	if len(a.Trackers) > 0 {
		out.Trackers = make([]Tracker, len(a.Trackers))
		copy(out.Trackers, a.Trackers)
	}
	if len(a.Entries) > 0 {
		out.Entries = make([]Entry, len(a.Entries))
		copy(out.Entries, a.Entries)
	}
	return out
}
