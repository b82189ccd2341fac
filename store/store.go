package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jacob-meacham/rotary-voip/callmanager"
)

// Insert writes a new, non-terminal call log row and returns its
// assigned id.
func (db *DB) Insert(ctx context.Context, timestamp string, direction callmanager.Direction, callerID, dialedNumber, destination, speedDialCode *string) (int64, error) {
	res, err := db.sql.ExecContext(ctx, `
		INSERT INTO call_log (timestamp, direction, status, caller_id, dialed_number, destination, speed_dial_code, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, timestamp, direction.String(), callmanager.StatusInProgress.String(), callerID, dialedNumber, destination, speedDialCode)
	if err != nil {
		return 0, fmt.Errorf("store: insert call log: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: get inserted id: %w", err)
	}
	return id, nil
}

// CloseRecord applies the single terminal update a record ever
// receives: status, duration, and optional error message.
func (db *DB) CloseRecord(ctx context.Context, id int64, status callmanager.CallStatus, durationSeconds int, errMsg *string) error {
	res, err := db.sql.ExecContext(ctx, `
		UPDATE call_log SET status = ?, duration_seconds = ?, error_message = ? WHERE id = ?
	`, status.String(), durationSeconds, errMsg, id)
	if err != nil {
		return fmt.Errorf("store: close call log record: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("store: no call log record with id %d", id)
	}
	return nil
}

// Get retrieves one record by id.
func (db *DB) Get(ctx context.Context, id int64) (*CallRecord, error) {
	row := db.sql.QueryRowContext(ctx, `
		SELECT id, timestamp, direction, status, caller_id, dialed_number, destination, speed_dial_code, duration_seconds, error_message
		FROM call_log WHERE id = ?
	`, id)
	return scanRecord(row)
}

// List returns records matching filter, most recent first.
func (db *DB) List(ctx context.Context, filter Filter) ([]*CallRecord, error) {
	query := `
		SELECT id, timestamp, direction, status, caller_id, dialed_number, destination, speed_dial_code, duration_seconds, error_message
		FROM call_log
	`
	var conditions []string
	var args []any

	if filter.Direction != nil {
		conditions = append(conditions, "direction = ?")
		args = append(args, filter.Direction.String())
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status.String())
	}
	if len(conditions) > 0 {
		query += "WHERE " + strings.Join(conditions, " AND ") + " "
	}
	query += "ORDER BY id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list call log: %w", err)
	}
	defer rows.Close()

	var out []*CallRecord
	for rows.Next() {
		rec, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes one record by id.
func (db *DB) Delete(ctx context.Context, id int64) error {
	res, err := db.sql.ExecContext(ctx, `DELETE FROM call_log WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete call log record: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("store: no call log record with id %d", id)
	}
	return nil
}

// StatsOverDays buckets today and the n preceding UTC calendar days by
// status counts and total talk time, oldest first. Days with no records
// are omitted.
func (db *DB) StatsOverDays(ctx context.Context, n int) ([]DayStats, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT
			substr(timestamp, 1, 10) AS day,
			COUNT(*),
			COUNT(CASE WHEN status = ? THEN 1 END),
			COUNT(CASE WHEN status = ? THEN 1 END),
			COUNT(CASE WHEN status = ? THEN 1 END),
			COUNT(CASE WHEN status = ? THEN 1 END),
			COALESCE(SUM(duration_seconds), 0)
		FROM call_log
		WHERE substr(timestamp, 1, 10) >= date('now', printf('-%d days', ?))
		GROUP BY day
		ORDER BY day ASC
	`,
		callmanager.StatusCompleted.String(), callmanager.StatusMissed.String(),
		callmanager.StatusFailed.String(), callmanager.StatusRejected.String(), n)
	if err != nil {
		return nil, fmt.Errorf("store: stats over days: %w", err)
	}
	defer rows.Close()

	var out []DayStats
	for rows.Next() {
		var s DayStats
		if err := rows.Scan(&s.Day, &s.Total, &s.Completed, &s.Missed, &s.Failed, &s.Rejected, &s.TotalTalkSeconds); err != nil {
			return nil, fmt.Errorf("store: scan day stats: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row *sql.Row) (*CallRecord, error) {
	rec, direction, status, err := scanInto(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: no call log record")
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan call log record: %w", err)
	}
	rec.Direction = parseDirection(direction)
	rec.Status = parseStatus(status)
	return rec, nil
}

func scanRecordRows(rows *sql.Rows) (*CallRecord, error) {
	rec, direction, status, err := scanInto(rows)
	if err != nil {
		return nil, fmt.Errorf("store: scan call log record: %w", err)
	}
	rec.Direction = parseDirection(direction)
	rec.Status = parseStatus(status)
	return rec, nil
}

func scanInto(s rowScanner) (*CallRecord, string, string, error) {
	var rec CallRecord
	var direction, status string
	err := s.Scan(&rec.ID, &rec.Timestamp, &direction, &status, &rec.CallerID, &rec.DialedNumber, &rec.Destination, &rec.SpeedDialCode, &rec.DurationSeconds, &rec.ErrorMessage)
	return &rec, direction, status, err
}

func parseDirection(s string) callmanager.Direction {
	if s == "inbound" {
		return callmanager.Inbound
	}
	return callmanager.Outbound
}

func parseStatus(s string) callmanager.CallStatus {
	switch s {
	case "completed":
		return callmanager.StatusCompleted
	case "missed":
		return callmanager.StatusMissed
	case "failed":
		return callmanager.StatusFailed
	case "rejected":
		return callmanager.StatusRejected
	default:
		return callmanager.StatusInProgress
	}
}
