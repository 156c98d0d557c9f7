package granola

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weeknotes.app/server/internal/store"
)

type stubTokens struct {
	token string
	err   error
}

func (s *stubTokens) AccessToken(context.Context, string) (string, error) {
	return s.token, s.err
}

type stubFactory struct {
	sess     Session
	err      error
	connects int
}

func (s *stubFactory) Connect(context.Context, string) (Session, error) {
	s.connects++
	return s.sess, s.err
}

type linkedNote struct {
	meetingID string
	noteID    string
	summary   string
}

type stubMeetings struct {
	meetings []store.Meeting
	listErr  error
	linkErr  error
	linked   []linkedNote
}

func (s *stubMeetings) ListByWeek(context.Context, string, string) ([]store.Meeting, error) {
	return s.meetings, s.listErr
}

func (s *stubMeetings) LinkNote(_ context.Context, meetingID, noteID, summary string) error {
	if s.linkErr != nil {
		return s.linkErr
	}
	s.linked = append(s.linked, linkedNote{meetingID, noteID, summary})
	return nil
}

// syncSession scripts the list response and per-note detail payloads.
func syncSession(listResponse string, details map[string]string) *stubSession {
	return &stubSession{
		call: func(name string, args map[string]any) (string, error) {
			switch name {
			case "search_meeting_notes":
				return listResponse, nil
			case "fetch_meeting_note":
				id, _ := args["note_id"].(string)
				detail, ok := details[id]
				if !ok {
					return "", &RemoteToolError{Tool: name, Message: "no such note"}
				}
				return detail, nil
			default:
				return "", fmt.Errorf("unknown tool: %s", name)
			}
		},
	}
}

func newTestSyncer(tokens TokenProvider, factory SessionFactory, meetings MeetingStore, summarizer Summarizer) *Syncer {
	return NewSyncer(tokens, factory, NewFetcher(summarizer, testLogger()), meetings, testLogger(), nil)
}

func monday() time.Time {
	return time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
}

func TestWeekWindow(t *testing.T) {
	// Hours and non-UTC zones on the input are discarded.
	weekStart := time.Date(2025, 1, 6, 15, 4, 5, 0, time.FixedZone("X", 3600))
	after, before := WeekWindow(weekStart)

	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), after)
	assert.Equal(t, time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC), before)
}

func TestSyncNotConnected(t *testing.T) {
	factory := &stubFactory{}
	s := newTestSyncer(&stubTokens{err: ErrNotConnected}, factory, &stubMeetings{}, &stubSummarizer{})

	_, err := s.Sync(context.Background(), "u1", monday(), "2025-01-06")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, factory.connects)
}

func TestSyncConnectFailure(t *testing.T) {
	transportErr := &TransportError{StreamableErr: errors.New("503"), SSEErr: errors.New("503")}
	s := newTestSyncer(&stubTokens{token: "tok"}, &stubFactory{err: transportErr},
		&stubMeetings{meetings: []store.Meeting{{ID: "m1", Title: "Sync", DayOfWeek: 1}}}, &stubSummarizer{})

	_, err := s.Sync(context.Background(), "u1", monday(), "2025-01-06")

	var gotErr *TransportError
	assert.ErrorAs(t, err, &gotErr)
}

func TestSyncEmptyWeekSkipsRemoteCalls(t *testing.T) {
	sess := syncSession(`[]`, nil)
	s := newTestSyncer(&stubTokens{token: "tok"}, &stubFactory{sess: sess}, &stubMeetings{}, &stubSummarizer{})

	result, err := s.Sync(context.Background(), "u1", monday(), "2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, result)
	assert.Empty(t, sess.calls, "an empty week must not hit the remote list tool")
	assert.Equal(t, 1, sess.closed)
}

func TestSyncNoRemoteNotes(t *testing.T) {
	sess := syncSession(`[]`, nil)
	meetings := &stubMeetings{meetings: []store.Meeting{{ID: "m1", Title: "Sync", DayOfWeek: 1}}}
	s := newTestSyncer(&stubTokens{token: "tok"}, &stubFactory{sess: sess}, meetings, &stubSummarizer{})

	result, err := s.Sync(context.Background(), "u1", monday(), "2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, result)
	assert.Equal(t, []string{"search_meeting_notes"}, sess.calls)
	assert.Empty(t, meetings.linked)
	assert.Equal(t, 1, sess.closed)
}

func TestSyncLinksMatchedNotes(t *testing.T) {
	list := `[
		{"id":"n1","title":"Weekly Sync","created_at":"2025-01-06T10:00:00Z"},
		{"id":"n2","title":"Design Review","created_at":"2025-01-07T14:00:00Z"}
	]`
	details := map[string]string{
		"n1": `{"summary_text":"sync notes","url":"https://notes.granola.ai/d/n1"}`,
		"n2": `{"summary_text":"review notes"}`,
	}
	sess := syncSession(list, details)
	meetings := &stubMeetings{meetings: []store.Meeting{
		{ID: "m1", Title: "Weekly Sync", DayOfWeek: 1},
		{ID: "m2", Title: "Design Review", DayOfWeek: 2},
	}}
	s := newTestSyncer(&stubTokens{token: "tok"}, &stubFactory{sess: sess}, meetings, &stubSummarizer{out: "- summary"})

	result, err := s.Sync(context.Background(), "u1", monday(), "2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Matched: 2}, result)
	require.Len(t, meetings.linked, 2)

	assert.Equal(t, "m1", meetings.linked[0].meetingID)
	assert.Equal(t, "n1", meetings.linked[0].noteID)
	assert.True(t, strings.HasSuffix(meetings.linked[0].summary, "[View in Granola](https://notes.granola.ai/d/n1)"))

	// No viewer URL in the detail payload: the summary stays bare.
	assert.Equal(t, "m2", meetings.linked[1].meetingID)
	assert.Equal(t, "- summary", meetings.linked[1].summary)

	assert.Equal(t, 1, sess.closed)
}

func TestSyncPrefersSameDayNote(t *testing.T) {
	// Two notes with the same title on different days; the meeting sits on
	// Tuesday, so the Tuesday note wins even though the Monday note comes
	// first in the listing.
	list := `[
		{"id":"mon","title":"Standup","created_at":"2025-01-06T09:00:00Z"},
		{"id":"tue","title":"Standup","created_at":"2025-01-07T09:00:00Z"}
	]`
	meetings := []store.Meeting{{ID: "m1", Title: "Standup", DayOfWeek: 2}}

	pairs := assignNotes(meetings, mustParseList(t, list), monday())
	require.Len(t, pairs, 1)
	assert.Equal(t, notePair{meetingID: "m1", noteID: "tue"}, pairs[0])
}

func TestSyncDoubleBookedDay(t *testing.T) {
	// Two same-title meetings on the same day and two same-title notes:
	// each note is consumed exactly once, in listing order.
	list := `[
		{"id":"first","title":"Standup","created_at":"2025-01-06T09:00:00Z"},
		{"id":"second","title":"Standup","created_at":"2025-01-06T17:00:00Z"}
	]`
	meetings := []store.Meeting{
		{ID: "m1", Title: "Standup", DayOfWeek: 1},
		{ID: "m2", Title: "Standup", DayOfWeek: 1},
	}

	pairs := assignNotes(meetings, mustParseList(t, list), monday())
	assert.Equal(t, []notePair{
		{meetingID: "m1", noteID: "first"},
		{meetingID: "m2", noteID: "second"},
	}, pairs)
}

func TestAssignNotesUndatedNoteStillMatches(t *testing.T) {
	notes := []NoteListItem{{ID: "n1", Title: "Retro"}}
	meetings := []store.Meeting{{ID: "m1", Title: "Retro", DayOfWeek: 5}}

	pairs := assignNotes(meetings, notes, monday())
	assert.Equal(t, []notePair{{meetingID: "m1", noteID: "n1"}}, pairs)
}

func TestSyncBestEffortPairFailures(t *testing.T) {
	// The detail fetch for n1 fails; n2 still gets linked.
	list := `[
		{"id":"n1","title":"Weekly Sync","created_at":"2025-01-06T10:00:00Z"},
		{"id":"n2","title":"Design Review","created_at":"2025-01-07T14:00:00Z"}
	]`
	details := map[string]string{
		"n2": `{"summary_text":"review notes"}`,
	}
	sess := syncSession(list, details)
	meetings := &stubMeetings{meetings: []store.Meeting{
		{ID: "m1", Title: "Weekly Sync", DayOfWeek: 1},
		{ID: "m2", Title: "Design Review", DayOfWeek: 2},
	}}
	s := newTestSyncer(&stubTokens{token: "tok"}, &stubFactory{sess: sess}, meetings, &stubSummarizer{out: "- summary"})

	result, err := s.Sync(context.Background(), "u1", monday(), "2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Matched: 1, Failed: 1}, result)
	require.Len(t, meetings.linked, 1)
	assert.Equal(t, "m2", meetings.linked[0].meetingID)
}

func TestSyncMeetingFetchFailure(t *testing.T) {
	sess := syncSession(`[]`, nil)
	meetings := &stubMeetings{listErr: errors.New("connection reset")}
	s := newTestSyncer(&stubTokens{token: "tok"}, &stubFactory{sess: sess}, meetings, &stubSummarizer{})

	_, err := s.Sync(context.Background(), "u1", monday(), "2025-01-06")

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, 1, sess.closed, "the session must be closed even when the local fetch fails")
}

func mustParseList(t *testing.T, text string) []NoteListItem {
	t.Helper()
	notes, strategy := parseNoteList(text)
	require.NotEqual(t, "none", strategy)
	return notes
}
