package model

import "time"

// Record is the tracking state of one table row.
//
// Carrier and Code come from the source columns of the row; every other
// field lives in the refresh columns.
type Record struct {
	Carrier              string
	Code                 string
	RefreshCarrier       string
	Status               string
	LastEventTime        string
	LastEventLocation    string
	RawSnippet           string
	LastPolledAt         *time.Time
	Attempts             int
	NextEligibleAt       *time.Time
	DeliveredConfirmedAt string
	DeliveredSource      string
}

// EligibleAt reports whether the record may be polled at now.
func (r Record) EligibleAt(now time.Time) bool {
	return r.NextEligibleAt == nil || !r.NextEligibleAt.After(now)
}

// Job is the persisted cursor of a bulk refresh over one table.
//
// CursorRow is 1-based in table coordinates: row 1 is the header, so a
// fresh job starts at 2 and a finished one sits at TotalRows+2.
type Job struct {
	Table     string    `json:"table"`
	CursorRow int       `json:"cursor_row"`
	CallsMade int       `json:"calls_made"`
	StartedAt time.Time `json:"started_at"`
	TotalRows int       `json:"total_rows"`
	Done      int       `json:"done"`
	Remaining int       `json:"remaining"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobPatch holds the fields to change on a job. Nil fields are untouched.
type JobPatch struct {
	CursorRow *int
	CallsMade *int
	TotalRows *int
	Done      *int
	Remaining *int
	UpdatedAt *time.Time
}

// ThrottleState is the persisted pacing state of one carrier tag.
type ThrottleState struct {
	Tag           string    `json:"tag"`
	LastCallAt    time.Time `json:"last_call_at"`
	MinIntervalMs int       `json:"min_interval_ms"`
}

// DiagnosticEntry records one non-success remote call.
type DiagnosticEntry struct {
	ID          int64     `json:"id"`
	Time        time.Time `json:"time"`
	Carrier     string    `json:"carrier"`
	Function    string    `json:"function"`
	HTTPCode    int       `json:"http_code"`
	Tag         string    `json:"tag"`
	Code        string    `json:"code"`
	RetryAfter  *int      `json:"retry_after,omitempty"`
	BodySnippet string    `json:"body_snippet"`
}

// Trigger is a persisted recurring schedule registration.
type Trigger struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	CreatedAt time.Time     `json:"created_at"`
}
