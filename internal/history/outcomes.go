package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fetchbot/internal/job"
)

// Outcome is one finished job.
type Outcome struct {
	JobID            string    `json:"job_id"`
	UserID           int64     `json:"user_id"`
	SourceURL        string    `json:"source_url"`
	Title            string    `json:"title"`
	FormatLabel      string    `json:"format_label"`
	State            job.State `json:"state"`
	ErrorKind        string    `json:"error_kind,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	BytesTransferred int64     `json:"bytes_transferred"`
	Attempts         int       `json:"attempts"`
	DeliveryID       string    `json:"delivery_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Duration is the wall time the job took.
func (o Outcome) Duration() time.Duration {
	if o.FinishedAt.IsZero() || o.CreatedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.CreatedAt)
}

// OutcomeFromSnapshot converts a terminal job snapshot.
func OutcomeFromSnapshot(snap job.Snapshot) Outcome {
	attempts := 0
	for _, n := range snap.AttemptCounts {
		attempts += n
	}
	out := Outcome{
		JobID:            snap.ID,
		UserID:           snap.UserID,
		SourceURL:        snap.SourceURL,
		Title:            snap.Title,
		FormatLabel:      snap.FormatLabel,
		State:            snap.State,
		BytesTransferred: snap.BytesTransferred,
		Attempts:         attempts,
		DeliveryID:       snap.DeliveryID,
		CreatedAt:        snap.CreatedAt,
		FinishedAt:       snap.FinishedAt,
	}
	if out.FinishedAt.IsZero() {
		out.FinishedAt = time.Now()
	}
	if snap.LastError != nil {
		out.ErrorKind = string(snap.LastError.Kind)
		out.ErrorMessage = snap.LastError.Message
	}
	return out
}

// RecordOutcome inserts or replaces the row for o.JobID.
func (s *Store) RecordOutcome(ctx context.Context, o Outcome) error {
	if o.JobID == "" {
		return fmt.Errorf("record outcome: job id is empty")
	}
	err := s.exec(ctx,
		`INSERT OR REPLACE INTO job_outcomes (
            id, user_id, source_url, title, format_label, state, error_kind, error_message,
            bytes_transferred, attempts, delivery_id, created_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.JobID,
		o.UserID,
		o.SourceURL,
		nullableString(o.Title),
		nullableString(o.FormatLabel),
		string(o.State),
		nullableString(o.ErrorKind),
		nullableString(o.ErrorMessage),
		o.BytesTransferred,
		o.Attempts,
		nullableString(o.DeliveryID),
		formatTime(o.CreatedAt),
		formatTime(o.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// Recent returns up to limit outcomes, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, source_url, title, format_label, state, error_kind, error_message,
                bytes_transferred, attempts, delivery_id, created_at, finished_at
         FROM job_outcomes ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o                                     Outcome
			title, label, kind, message, delivery sql.NullString
			state                                 string
			createdRaw, finishedRaw               sql.NullString
		)
		if err := rows.Scan(&o.JobID, &o.UserID, &o.SourceURL, &title, &label, &state, &kind, &message,
			&o.BytesTransferred, &o.Attempts, &delivery, &createdRaw, &finishedRaw); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Title = title.String
		o.FormatLabel = label.String
		o.State = job.State(state)
		o.ErrorKind = kind.String
		o.ErrorMessage = message.String
		o.DeliveryID = delivery.String
		o.CreatedAt = parseTime(createdRaw)
		o.FinishedAt = parseTime(finishedRaw)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}

// Counts returns the number of recorded outcomes per terminal state.
func (s *Store) Counts(ctx context.Context) (map[job.State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM job_outcomes GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()
	counts := make(map[job.State]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[job.State(state)] = n
	}
	return counts, rows.Err()
}
