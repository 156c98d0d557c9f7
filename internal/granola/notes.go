package granola

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"weeknotes.app/server/internal/logging"
)

// Remote tool names. The Granola server has shipped both spellings across
// versions, so each operation tries its known names in order.
var (
	listToolNames   = []string{"search_meeting_notes", "list_meetings"}
	detailToolNames = []string{"fetch_meeting_note", "get_meetings"}
)

// noteViewerURL matches links into the provider's note viewer inside a raw
// detail payload. First match wins.
var noteViewerURL = regexp.MustCompile(`https://notes\.granola\.ai/[^\s"'<>)\]]+`)

// taggedMeeting matches the pseudo-XML list format some backend versions
// emit: repeated <meeting id="..." title="..." date="..."> tags with no
// closing structure guaranteed.
var (
	taggedMeeting = regexp.MustCompile(`<meeting\s+([^>]*)>`)
	tagAttr       = regexp.MustCompile(`(\w+)="([^"]*)"`)
	taggedSummary = regexp.MustCompile(`(?s)<summary>(.*?)</summary>`)
)

// NoteListItem is one remote note as returned by the list tool, normalized
// to a single internal representation regardless of the response shape.
// CreatedAt is the zero time when the payload carried no parseable date.
type NoteListItem struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

// NoteSummary is the summarized detail of one remote note.
type NoteSummary struct {
	Summary   string
	SourceURL string
}

// Summarizer condenses raw note text into a short synopsis.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Fetcher retrieves remote notes over an open session and summarizes their
// detail text.
type Fetcher struct {
	summarizer Summarizer
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(summarizer Summarizer, logger *slog.Logger) *Fetcher {
	return &Fetcher{summarizer: summarizer, logger: logger}
}

// ListNotes returns the remote notes created in [after, before). The remote
// response format is not contractual; parsing falls through an ordered chain
// of strategies and a completely unparseable payload yields an empty list,
// never an error. A bad listing starves the sync of matches instead of
// aborting it.
func (f *Fetcher) ListNotes(ctx context.Context, sess Session, after, before time.Time) ([]NoteListItem, error) {
	args := map[string]any{
		"created_after":  after.UTC().Format(time.RFC3339),
		"created_before": before.UTC().Format(time.RFC3339),
	}
	text, err := callFirstKnown(ctx, sess, listToolNames, args)
	if err != nil {
		return nil, err
	}

	notes, strategy := parseNoteList(text)
	f.logger.Debug("parsed remote note list",
		logging.Operation("granola.list"),
		"strategy", strategy,
		"count", len(notes))
	return notes, nil
}

// FetchNoteSummary fetches the detail payload of one note, extracts the
// provider's viewer URL and the note body, and summarizes the body. Unlike
// list parsing, summarization failures propagate: a failed summary must not
// look like a successful sync.
func (f *Fetcher) FetchNoteSummary(ctx context.Context, sess Session, noteID string) (NoteSummary, error) {
	text, err := callFirstKnown(ctx, sess, detailToolNames, map[string]any{"note_id": noteID})
	if err != nil {
		return NoteSummary{}, err
	}

	sourceURL := noteViewerURL.FindString(text)
	body := extractNoteBody(text)

	summary, err := f.summarizer.Summarize(ctx, body)
	if err != nil {
		return NoteSummary{}, fmt.Errorf("summarizing note %s: %w", noteID, err)
	}
	return NoteSummary{Summary: summary, SourceURL: sourceURL}, nil
}

// callFirstKnown invokes the first of the candidate tool names the server
// accepts, trying the next name only when the server rejects the tool
// itself (unknown tool), not when the tool ran and failed.
func callFirstKnown(ctx context.Context, sess Session, names []string, args map[string]any) (string, error) {
	var lastErr error
	for _, name := range names {
		text, err := sess.CallTool(ctx, name, args)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isUnknownTool(err) {
			return "", err
		}
	}
	return "", lastErr
}

func isUnknownTool(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unknown tool") ||
		strings.Contains(msg, "tool not found") ||
		strings.Contains(msg, "method not found")
}

// parseNoteList runs the parser chain: JSON array, JSON envelope, tagged
// text, then empty. Returns the notes and the name of the strategy that
// produced them, for observability.
func parseNoteList(text string) ([]NoteListItem, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, "empty"
	}

	if items, ok := parseJSONArray(text); ok {
		return items, "json-array"
	}
	if items, ok := parseJSONEnvelope(text); ok {
		return items, "json-envelope"
	}
	if items, ok := parseTaggedList(text); ok {
		return items, "tagged"
	}
	return nil, "none"
}

func parseJSONArray(text string) ([]NoteListItem, bool) {
	var raw []map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, false
	}
	return normalizeItems(raw), true
}

func parseJSONEnvelope(text string) ([]NoteListItem, bool) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, false
	}
	for _, field := range []string{"notes", "meetings"} {
		raw, ok := envelope[field]
		if !ok {
			continue
		}
		var items []map[string]any
		if err := json.Unmarshal(raw, &items); err != nil {
			continue
		}
		return normalizeItems(items), true
	}
	return nil, false
}

func parseTaggedList(text string) ([]NoteListItem, bool) {
	tags := taggedMeeting.FindAllStringSubmatch(text, -1)
	if len(tags) == 0 {
		return nil, false
	}
	var items []NoteListItem
	for _, tag := range tags {
		attrs := make(map[string]any)
		for _, kv := range tagAttr.FindAllStringSubmatch(tag[1], -1) {
			attrs[kv[1]] = kv[2]
		}
		if item, ok := normalizeItem(attrs); ok {
			items = append(items, item)
		}
	}
	return items, len(items) > 0
}

func normalizeItems(raw []map[string]any) []NoteListItem {
	items := make([]NoteListItem, 0, len(raw))
	for _, m := range raw {
		if item, ok := normalizeItem(m); ok {
			items = append(items, item)
		}
	}
	return items
}

// normalizeItem maps a loosely shaped note object to a NoteListItem.
// Missing titles and timestamps degrade to zero values rather than
// propagating nulls into date math downstream.
func normalizeItem(m map[string]any) (NoteListItem, bool) {
	item := NoteListItem{
		ID:    stringField(m, "id", "note_id", "document_id"),
		Title: stringField(m, "title"),
	}
	if item.ID == "" {
		return NoteListItem{}, false
	}
	item.CreatedAt = timeField(m, "created_at", "createdAt", "date", "timestamp")
	return item, true
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// timeField parses the first present timestamp field, accepting RFC 3339
// strings, date-only strings, and epoch numbers in seconds or milliseconds,
// depending on the backend version.
func timeField(m map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if ts, ok := parseTimestamp(t); ok {
				return ts
			}
		case float64:
			return epochTime(int64(t))
		case json.Number:
			if n, err := t.Int64(); err == nil {
				return epochTime(n)
			}
		}
	}
	return time.Time{}
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return epochTime(n), true
	}
	return time.Time{}, false
}

// epochTime interprets n as epoch milliseconds when it is too large to be a
// plausible epoch in seconds.
func epochTime(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// extractNoteBody pulls the free-text body out of a detail payload: a
// structured JSON field first, then a <summary> tag, then the raw text.
func extractNoteBody(text string) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		if body := stringField(obj, "summary_text", "summary", "content", "text"); body != "" {
			return body
		}
	}
	if m := taggedSummary.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}
