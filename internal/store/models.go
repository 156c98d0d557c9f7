package store

import "time"

// Credential is the per-user Granola OAuth record. At most one exists per
// user. An empty AccessToken is the storage-level placeholder written when a
// connect flow starts; callers outside this package should rely on
// granola.OAuthManager instead of interpreting the sentinel themselves.
type Credential struct {
	UserID       string
	ClientID     string
	ClientSecret *string
	CodeVerifier *string
	AccessToken  string
	RefreshToken *string
	TokenType    string
	Scope        *string
	ExpiresAt    *time.Time
	UpdatedAt    time.Time
}

// TokenUpdate carries the fields persisted after a successful code exchange
// or token refresh.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken *string
	TokenType    string
	Scope        *string
	ExpiresAt    *time.Time
}

// Meeting is one meeting slot on the weekly grid. GranolaNoteID and
// GranolaSummary are set by the sync engine when a remote note is matched.
type Meeting struct {
	ID             string
	UserID         string
	WeekID         string
	Title          string
	DayOfWeek      int
	SortOrder      int
	GranolaNoteID  *string
	GranolaSummary *string
}
