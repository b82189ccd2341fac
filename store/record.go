package store

import "github.com/jacob-meacham/rotary-voip/callmanager"

// CallRecord is one row of the call log. Records are append-only except
// for the single terminal update that closes status/duration.
type CallRecord struct {
	ID              int64                  `db:"id"`
	Timestamp       string                 `db:"timestamp"`
	Direction       callmanager.Direction  `db:"direction"`
	Status          callmanager.CallStatus `db:"status"`
	CallerID        *string                `db:"caller_id"`
	DialedNumber    *string                `db:"dialed_number"`
	Destination     *string                `db:"destination"`
	SpeedDialCode   *string                `db:"speed_dial_code"`
	DurationSeconds int                    `db:"duration_seconds"`
	ErrorMessage    *string                `db:"error_message"`
}

// Filter narrows List results; zero-value fields are unconstrained.
type Filter struct {
	Direction *callmanager.Direction
	Status    *callmanager.CallStatus
	Limit     int
}

// DayStats is one bucket of StatsOverDays: counts by status plus total
// talk time, for one UTC calendar day.
type DayStats struct {
	Day              string
	Total            int
	Completed        int
	Missed           int
	Failed           int
	Rejected         int
	TotalTalkSeconds int
}
