package periods

import "time"

// Status enumerates fiscal period states.
type Status string

const (
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
	StatusFinalized Status = "finalized"
	// StatusNone is returned by date lookups when no period covers the date.
	StatusNone Status = "none"
)

// Period is a fiscal date range gating whether postings are allowed.
// Month is nil for the year-level period.
type Period struct {
	ID        int64      `json:"id"`
	Year      int        `json:"year"`
	Month     *int       `json:"month,omitempty"`
	StartDate time.Time  `json:"start_date"`
	EndDate   time.Time  `json:"end_date"`
	Status    Status     `json:"status"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Contains reports whether d falls inside the period's date range.
func (p Period) Contains(d time.Time) bool {
	day := d.Truncate(24 * time.Hour)
	return !day.Before(p.StartDate) && !day.After(p.EndDate)
}
