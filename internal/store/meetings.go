package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MeetingStore persists weekly meetings.
type MeetingStore struct {
	pool *pgxpool.Pool
}

const meetingColumns = `id, user_id, week_id, title, day_of_week, sort_order, granola_note_id, granola_summary`

// ListByWeek returns all meetings of a user's week in grid order
// (day of week, then sort order).
func (s *MeetingStore) ListByWeek(ctx context.Context, userID, weekID string) ([]Meeting, error) {
	const q = `
		SELECT ` + meetingColumns + `
		FROM meetings
		WHERE user_id = $1 AND week_id = $2
		ORDER BY day_of_week, sort_order, created_at`

	rows, err := s.pool.Query(ctx, q, userID, weekID)
	if err != nil {
		return nil, fmt.Errorf("listing meetings: %w", err)
	}
	defer rows.Close()

	var meetings []Meeting
	for rows.Next() {
		var m Meeting
		if err := rows.Scan(&m.ID, &m.UserID, &m.WeekID, &m.Title, &m.DayOfWeek,
			&m.SortOrder, &m.GranolaNoteID, &m.GranolaSummary); err != nil {
			return nil, fmt.Errorf("scanning meeting: %w", err)
		}
		meetings = append(meetings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing meetings: %w", err)
	}
	return meetings, nil
}

// Get loads a single meeting scoped to its owner.
func (s *MeetingStore) Get(ctx context.Context, userID, id string) (*Meeting, error) {
	const q = `
		SELECT ` + meetingColumns + `
		FROM meetings
		WHERE user_id = $1 AND id = $2`

	var m Meeting
	err := s.pool.QueryRow(ctx, q, userID, id).Scan(&m.ID, &m.UserID, &m.WeekID,
		&m.Title, &m.DayOfWeek, &m.SortOrder, &m.GranolaNoteID, &m.GranolaSummary)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading meeting: %w", err)
	}
	return &m, nil
}

// Create inserts a meeting and fills in its generated ID.
func (s *MeetingStore) Create(ctx context.Context, m *Meeting) error {
	const q = `
		INSERT INTO meetings (user_id, week_id, title, day_of_week, sort_order)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := s.pool.QueryRow(ctx, q, m.UserID, m.WeekID, m.Title, m.DayOfWeek, m.SortOrder).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("creating meeting: %w", err)
	}
	return nil
}

// Update rewrites the user-editable fields of a meeting.
func (s *MeetingStore) Update(ctx context.Context, m *Meeting) error {
	const q = `
		UPDATE meetings SET
			title = $3,
			day_of_week = $4,
			sort_order = $5,
			updated_at = now()
		WHERE user_id = $1 AND id = $2`

	tag, err := s.pool.Exec(ctx, q, m.UserID, m.ID, m.Title, m.DayOfWeek, m.SortOrder)
	if err != nil {
		return fmt.Errorf("updating meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkNote attaches a Granola note and its summary to a meeting. This is the
// only mutation the sync engine performs.
func (s *MeetingStore) LinkNote(ctx context.Context, meetingID, noteID, summary string) error {
	const q = `
		UPDATE meetings SET
			granola_note_id = $2,
			granola_summary = $3,
			updated_at = now()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, meetingID, noteID, summary)
	if err != nil {
		return fmt.Errorf("linking note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a meeting scoped to its owner.
func (s *MeetingStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM meetings WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("deleting meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
