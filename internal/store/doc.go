// Package store provides the Postgres persistence layer for weeknotes.
//
// It wraps a pgx connection pool and exposes two stores: CredentialStore for
// per-user Granola OAuth credentials and MeetingStore for weekly meetings.
// Every statement is atomic on its own; multi-step sequences (client
// registration followed by the PKCE verifier write) are deliberately not
// wrapped in transactions, matching the recoverable-partial-state design of
// the OAuth flow.
package store
