package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"weeknotes.app/server/internal/granola"
	"weeknotes.app/server/internal/logging"
	"weeknotes.app/server/internal/store"
)

// weekDateFormat is the wire format for week identifiers: the ISO date of
// the week's Monday.
const weekDateFormat = "2006-01-02"

// GranolaAuth is the slice of the OAuth manager the handlers use.
// *granola.OAuthManager satisfies it.
type GranolaAuth interface {
	Initiate(ctx context.Context, userID, redirectURI, state string) (string, error)
	Complete(ctx context.Context, userID, redirectURI, code string) error
	Disconnect(ctx context.Context, userID string) error
	HasConnection(ctx context.Context, userID string) (bool, error)
	AccessToken(ctx context.Context, userID string) (string, error)
}

// SyncRunner runs one week sync. *granola.Syncer satisfies it.
type SyncRunner interface {
	Sync(ctx context.Context, userID string, weekStart time.Time, weekID string) (granola.SyncResult, error)
}

// MeetingStore is the slice of meeting persistence the planner handlers use.
// *store.MeetingStore satisfies it.
type MeetingStore interface {
	ListByWeek(ctx context.Context, userID, weekID string) ([]store.Meeting, error)
	Get(ctx context.Context, userID, id string) (*store.Meeting, error)
	Create(ctx context.Context, m *store.Meeting) error
	Update(ctx context.Context, m *store.Meeting) error
	Delete(ctx context.Context, userID, id string) error
}

// meetingJSON is the API representation of a meeting.
type meetingJSON struct {
	ID             string  `json:"id"`
	WeekID         string  `json:"weekId"`
	Title          string  `json:"title"`
	DayOfWeek      int     `json:"dayOfWeek"`
	SortOrder      int     `json:"sortOrder"`
	GranolaNoteID  *string `json:"granolaNoteId,omitempty"`
	GranolaSummary *string `json:"granolaSummary,omitempty"`
}

func toMeetingJSON(m *store.Meeting) meetingJSON {
	return meetingJSON{
		ID:             m.ID,
		WeekID:         m.WeekID,
		Title:          m.Title,
		DayOfWeek:      m.DayOfWeek,
		SortOrder:      m.SortOrder,
		GranolaNoteID:  m.GranolaNoteID,
		GranolaSummary: m.GranolaSummary,
	}
}

// handleGranolaConnect starts the OAuth flow and returns the authorization
// URL for the client to open in a browser.
func (s *Server) handleGranolaConnect(c *gin.Context) {
	userID := userFrom(c)
	state := makeOAuthState(userID, s.cfg.StateSecret)

	authURL, err := s.auth.Initiate(c.Request.Context(), userID, s.cfg.RedirectURI(), state)
	if err != nil {
		s.logger.Error("oauth initiate failed", logging.Operation("granola_connect"), logging.UserHash(userID), logging.Err(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not reach granola authorization server"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorizationUrl": authURL})
}

// handleGranolaCallback finishes the OAuth flow. The browser lands here, so
// there is no bearer token; the user is recovered from the signed state and
// the response is a redirect back to the app.
func (s *Server) handleGranolaCallback(c *gin.Context) {
	if errCode := c.Query("error"); errCode != "" {
		s.logger.Warn("authorization denied", logging.Operation("granola_callback"),
			slog.String("oauth_error", errCode))
		s.redirectWithError(c, errCode)
		return
	}

	userID, err := verifyOAuthState(c.Query("state"), s.cfg.StateSecret)
	if err != nil {
		s.logger.Warn("state verification failed", logging.Operation("granola_callback"), logging.Err(err))
		s.redirectWithError(c, "invalid_state")
		return
	}

	code := c.Query("code")
	if code == "" {
		s.redirectWithError(c, "missing_code")
		return
	}

	if err := s.auth.Complete(c.Request.Context(), userID, s.cfg.RedirectURI(), code); err != nil {
		s.logger.Error("oauth completion failed", logging.Operation("granola_callback"), logging.UserHash(userID), logging.Err(err))
		s.redirectWithError(c, "connection_failed")
		return
	}

	c.Redirect(http.StatusFound, s.cfg.BaseURL+"/?granola=connected")
}

func (s *Server) redirectWithError(c *gin.Context, code string) {
	c.Redirect(http.StatusFound, s.cfg.BaseURL+"/?granola_error="+url.QueryEscape(code))
}

// handleGranolaDisconnect severs the user's Granola connection by deleting
// the stored credentials. Idempotent.
func (s *Server) handleGranolaDisconnect(c *gin.Context) {
	userID := userFrom(c)
	if err := s.auth.Disconnect(c.Request.Context(), userID); err != nil {
		s.logger.Error("disconnect failed", logging.Operation("granola_disconnect"), logging.UserHash(userID), logging.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not disconnect"})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleGranolaStatus reports whether the user has a Granola connection.
func (s *Server) handleGranolaStatus(c *gin.Context) {
	connected, err := s.auth.HasConnection(c.Request.Context(), userFrom(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read connection state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": connected})
}

type syncRequest struct {
	WeekStart string `json:"weekStart" binding:"required"`
}

// handleGranolaSync links Granola notes to the meetings of one week.
func (s *Server) handleGranolaSync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "weekStart is required"})
		return
	}
	weekStart, err := time.ParseInLocation(weekDateFormat, req.WeekStart, time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "weekStart must be a YYYY-MM-DD date"})
		return
	}

	result, err := s.syncer.Sync(c.Request.Context(), userFrom(c), weekStart, req.WeekStart)
	if err != nil {
		var transportErr *granola.TransportError
		switch {
		case errors.Is(err, granola.ErrNotConnected):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "granola_not_connected"})
		case errors.As(err, &transportErr):
			c.JSON(http.StatusBadGateway, gin.H{"error": "could not reach granola"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleGranolaTools lists the tools the Granola MCP server advertises.
// Mostly a debugging aid.
func (s *Server) handleGranolaTools(c *gin.Context) {
	ctx := c.Request.Context()
	userID := userFrom(c)

	token, err := s.auth.AccessToken(ctx, userID)
	if err != nil {
		if errors.Is(err, granola.ErrNotConnected) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "granola_not_connected"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not obtain access token"})
		return
	}

	sess, err := s.sessions.Connect(ctx, token)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not reach granola"})
		return
	}
	defer sess.Close()

	tools, err := sess.ListTools(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "tool listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools})
}

// handleListMeetings returns the meetings of one week, ordered by day and
// sort order.
func (s *Server) handleListMeetings(c *gin.Context) {
	weekID := c.Param("weekStart")
	if _, err := time.ParseInLocation(weekDateFormat, weekID, time.UTC); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "weekStart must be a YYYY-MM-DD date"})
		return
	}

	meetings, err := s.meetings.ListByWeek(c.Request.Context(), userFrom(c), weekID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list meetings"})
		return
	}

	out := make([]meetingJSON, 0, len(meetings))
	for i := range meetings {
		out = append(out, toMeetingJSON(&meetings[i]))
	}
	c.JSON(http.StatusOK, gin.H{"meetings": out})
}

type createMeetingRequest struct {
	WeekID    string `json:"weekId" binding:"required"`
	Title     string `json:"title" binding:"required"`
	DayOfWeek int    `json:"dayOfWeek" binding:"required"`
	SortOrder int    `json:"sortOrder"`
}

func (s *Server) handleCreateMeeting(c *gin.Context) {
	var req createMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "weekId, title and dayOfWeek are required"})
		return
	}
	if _, err := time.ParseInLocation(weekDateFormat, req.WeekID, time.UTC); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "weekId must be a YYYY-MM-DD date"})
		return
	}
	if req.DayOfWeek < 1 || req.DayOfWeek > 5 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dayOfWeek must be between 1 (Monday) and 5 (Friday)"})
		return
	}

	m := &store.Meeting{
		UserID:    userFrom(c),
		WeekID:    req.WeekID,
		Title:     req.Title,
		DayOfWeek: req.DayOfWeek,
		SortOrder: req.SortOrder,
	}
	if err := s.meetings.Create(c.Request.Context(), m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create meeting"})
		return
	}
	c.JSON(http.StatusCreated, toMeetingJSON(m))
}

type updateMeetingRequest struct {
	Title     *string `json:"title"`
	DayOfWeek *int    `json:"dayOfWeek"`
	SortOrder *int    `json:"sortOrder"`
}

func (s *Server) handleUpdateMeeting(c *gin.Context) {
	var req updateMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.DayOfWeek != nil && (*req.DayOfWeek < 1 || *req.DayOfWeek > 5) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dayOfWeek must be between 1 (Monday) and 5 (Friday)"})
		return
	}

	ctx := c.Request.Context()
	m, err := s.meetings.Get(ctx, userFrom(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load meeting"})
		return
	}

	if req.Title != nil {
		m.Title = *req.Title
	}
	if req.DayOfWeek != nil {
		m.DayOfWeek = *req.DayOfWeek
	}
	if req.SortOrder != nil {
		m.SortOrder = *req.SortOrder
	}

	if err := s.meetings.Update(ctx, m); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update meeting"})
		return
	}
	c.JSON(http.StatusOK, toMeetingJSON(m))
}

func (s *Server) handleDeleteMeeting(c *gin.Context) {
	err := s.meetings.Delete(c.Request.Context(), userFrom(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete meeting"})
		return
	}
	c.Status(http.StatusNoContent)
}
