package granola

import (
	"context"
	"log/slog"
	"time"

	"weeknotes.app/server/internal/instrumentation"
	"weeknotes.app/server/internal/logging"
	"weeknotes.app/server/internal/store"
)

// TokenProvider yields a usable access token for a user. *OAuthManager
// satisfies it.
type TokenProvider interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

// MeetingStore is the slice of the meeting persistence the sync engine
// touches. *store.MeetingStore satisfies it.
type MeetingStore interface {
	ListByWeek(ctx context.Context, userID, weekID string) ([]store.Meeting, error)
	LinkNote(ctx context.Context, meetingID, noteID, summary string) error
}

// SyncResult reports one sync run: how many meetings got a note linked and
// how many matched pairs failed to summarize or persist.
type SyncResult struct {
	Matched int `json:"matched"`
	Failed  int `json:"failed,omitempty"`
}

// Syncer links Granola notes to the meetings of one local week.
type Syncer struct {
	tokens   TokenProvider
	sessions SessionFactory
	fetcher  *Fetcher
	meetings MeetingStore
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
}

// NewSyncer creates a Syncer.
func NewSyncer(tokens TokenProvider, sessions SessionFactory, fetcher *Fetcher, meetings MeetingStore, logger *slog.Logger, metrics *instrumentation.Metrics) *Syncer {
	return &Syncer{
		tokens:   tokens,
		sessions: sessions,
		fetcher:  fetcher,
		meetings: meetings,
		logger:   logging.WithOperation(logger, "granola.sync"),
		metrics:  metrics,
	}
}

// WeekWindow returns the UTC range covering a week's working days:
// Monday 00:00 inclusive through the following Saturday 00:00 exclusive.
func WeekWindow(weekStart time.Time) (after, before time.Time) {
	after = time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, time.UTC)
	return after, after.AddDate(0, 0, 5)
}

// Sync links remote notes to the meetings of the given week.
//
// The session connect and the local meeting fetch run concurrently; the
// remote note listing is only issued when the week actually has meetings.
// Assignment is greedy in grid order: each meeting takes the first
// unconsumed title-matching note, preferring (and stopping at) a note from
// the meeting's own calendar day; each note is consumed at most once.
// Summaries are then fetched sequentially to bound load on the summarizer,
// and each pair is persisted best-effort: one bad pair never aborts the
// rest, but failures are counted in the result.
func (s *Syncer) Sync(ctx context.Context, userID string, weekStart time.Time, weekID string) (result SyncResult, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordSyncRun(ctx, result.Matched, result.Failed, time.Since(start), err) }()

	token, err := s.tokens.AccessToken(ctx, userID)
	if err != nil {
		return SyncResult{}, err
	}

	type connectResult struct {
		sess Session
		err  error
	}
	connected := make(chan connectResult, 1)
	go func() {
		sess, err := s.sessions.Connect(ctx, token)
		connected <- connectResult{sess, err}
	}()

	meetings, meetingsErr := s.meetings.ListByWeek(ctx, userID, weekID)

	conn := <-connected
	if conn.err != nil {
		return SyncResult{}, conn.err
	}
	defer func() {
		if closeErr := conn.sess.Close(); closeErr != nil {
			s.logger.Warn("closing granola session", logging.Err(closeErr))
		}
	}()

	if meetingsErr != nil {
		return SyncResult{}, &SyncError{Err: meetingsErr}
	}
	if len(meetings) == 0 {
		return SyncResult{}, nil
	}

	after, before := WeekWindow(weekStart)
	notes, err := s.fetcher.ListNotes(ctx, conn.sess, after, before)
	if err != nil {
		return SyncResult{}, &SyncError{Err: err}
	}
	if len(notes) == 0 {
		return SyncResult{}, nil
	}

	pairs := assignNotes(meetings, notes, after)

	for _, p := range pairs {
		summary, err := s.fetcher.FetchNoteSummary(ctx, conn.sess, p.noteID)
		if err != nil {
			result.Failed++
			s.logger.Warn("summarizing matched note failed",
				logging.UserHash(userID),
				logging.Err(err))
			continue
		}
		text := summary.Summary
		if summary.SourceURL != "" {
			text += "\n\n[View in Granola](" + summary.SourceURL + ")"
		}
		if err := s.meetings.LinkNote(ctx, p.meetingID, p.noteID, text); err != nil {
			result.Failed++
			s.logger.Warn("persisting note link failed",
				logging.UserHash(userID),
				logging.Err(err))
			continue
		}
		result.Matched++
	}

	status := logging.StatusSuccess
	if result.Failed > 0 {
		status = logging.StatusError
	}
	s.logger.Info("granola sync finished",
		logging.Status(status),
		logging.UserHash(userID),
		logging.Week(after.Format("2006-01-02")),
		"meetings", len(meetings),
		"notes", len(notes),
		"matched", result.Matched,
		"failed", result.Failed)
	return result, nil
}

type notePair struct {
	meetingID string
	noteID    string
}

// assignNotes pairs meetings with notes, greedy and order-dependent by
// design: meetings in grid order, each taking the first unconsumed matching
// note, with a same-calendar-day note short-circuiting the scan. No
// backtracking, no globally optimal assignment.
func assignNotes(meetings []store.Meeting, notes []NoteListItem, monday time.Time) []notePair {
	consumed := make(map[string]bool, len(notes))
	var pairs []notePair

	for _, meeting := range meetings {
		meetingDay := monday.AddDate(0, 0, meeting.DayOfWeek-1)

		var best *NoteListItem
		for i := range notes {
			note := &notes[i]
			if consumed[note.ID] || !TitlesMatch(meeting.Title, note.Title) {
				continue
			}
			sameDay := sameUTCDay(note.CreatedAt, meetingDay)
			if sameDay || best == nil {
				best = note
				if sameDay {
					break
				}
			}
		}
		if best != nil {
			consumed[best.ID] = true
			pairs = append(pairs, notePair{meetingID: meeting.ID, noteID: best.ID})
		}
	}
	return pairs
}

func sameUTCDay(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
