package granola

import (
	"errors"
	"fmt"
)

// Sentinel errors for flow-state failures.
var (
	// ErrNotConnected means no usable access token exists for the user:
	// never connected, placeholder-only record, or expired with a failed
	// or impossible refresh. Callers must not distinguish these cases.
	ErrNotConnected = errors.New("granola: not connected")

	// ErrMissingState means an OAuth callback arrived without a matching
	// prior initiation (no client registration or no PKCE verifier).
	ErrMissingState = errors.New("granola: missing client registration or code verifier")
)

// DiscoveryError indicates the remote OAuth metadata was unavailable or
// malformed. The flow attempt is dead; the user must retry.
type DiscoveryError struct {
	URL string
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("granola: oauth discovery failed for %s: %v", e.URL, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// TokenExchangeError indicates the authorization code exchange was rejected.
// The user must restart the flow.
type TokenExchangeError struct {
	Err error
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("granola: token exchange failed: %v", e.Err)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// TransportError indicates neither the streamable HTTP transport nor the SSE
// fallback could open a session.
type TransportError struct {
	StreamableErr error
	SSEErr        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("granola: could not open MCP session (streamable: %v; sse: %v)",
		e.StreamableErr, e.SSEErr)
}

func (e *TransportError) Unwrap() error { return e.SSEErr }

// RemoteToolError indicates the remote tool itself returned an error payload.
type RemoteToolError struct {
	Tool    string
	Message string
}

func (e *RemoteToolError) Error() string {
	return fmt.Sprintf("granola: tool %s failed: %s", e.Tool, e.Message)
}

// SyncError wraps persistence or unexpected failures during a sync run.
// Partial local mutations already committed stay committed.
type SyncError struct {
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("granola: sync failed: %v", e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
