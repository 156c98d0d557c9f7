package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialStore persists Granola OAuth credentials keyed by user ID.
type CredentialStore struct {
	pool *pgxpool.Pool
}

// Get loads the credential record for a user. Returns ErrNotFound when the
// user never started a connect flow.
func (s *CredentialStore) Get(ctx context.Context, userID string) (*Credential, error) {
	const q = `
		SELECT user_id, client_id, client_secret, code_verifier,
		       access_token, refresh_token, token_type, scope, expires_at, updated_at
		FROM granola_tokens
		WHERE user_id = $1`

	var c Credential
	err := s.pool.QueryRow(ctx, q, userID).Scan(
		&c.UserID, &c.ClientID, &c.ClientSecret, &c.CodeVerifier,
		&c.AccessToken, &c.RefreshToken, &c.TokenType, &c.Scope, &c.ExpiresAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	return &c, nil
}

// UpsertClient records a freshly registered OAuth client for the user and
// resets the access token to the not-yet-connected placeholder. Keyed on
// user_id so repeated connect attempts overwrite the previous registration.
func (s *CredentialStore) UpsertClient(ctx context.Context, userID, clientID string, clientSecret *string) error {
	const q = `
		INSERT INTO granola_tokens (user_id, client_id, client_secret, access_token, updated_at)
		VALUES ($1, $2, $3, '', now())
		ON CONFLICT (user_id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			access_token = '',
			updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, userID, clientID, clientSecret); err != nil {
		return fmt.Errorf("upserting client registration: %w", err)
	}
	return nil
}

// SaveVerifier stores the transient PKCE code verifier for the pending flow.
func (s *CredentialStore) SaveVerifier(ctx context.Context, userID, verifier string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE granola_tokens SET code_verifier = $2, updated_at = now() WHERE user_id = $1`,
		userID, verifier)
	if err != nil {
		return fmt.Errorf("saving code verifier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveTokens persists the tokens obtained from a code exchange and clears
// the PKCE verifier, completing the flow.
func (s *CredentialStore) SaveTokens(ctx context.Context, userID string, tok TokenUpdate) error {
	const q = `
		UPDATE granola_tokens SET
			access_token = $2,
			refresh_token = $3,
			token_type = $4,
			scope = $5,
			expires_at = $6,
			code_verifier = NULL,
			updated_at = now()
		WHERE user_id = $1`

	tag, err := s.pool.Exec(ctx, q, userID,
		tok.AccessToken, tok.RefreshToken, tok.TokenType, tok.Scope, tok.ExpiresAt)
	if err != nil {
		return fmt.Errorf("saving tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTokens persists a refreshed access token. The previous refresh token
// is retained by the caller passing it back when the server issued none.
func (s *CredentialStore) UpdateTokens(ctx context.Context, userID string, tok TokenUpdate) error {
	const q = `
		UPDATE granola_tokens SET
			access_token = $2,
			refresh_token = $3,
			expires_at = $4,
			updated_at = now()
		WHERE user_id = $1`

	tag, err := s.pool.Exec(ctx, q, userID, tok.AccessToken, tok.RefreshToken, tok.ExpiresAt)
	if err != nil {
		return fmt.Errorf("updating tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the credential record, disconnecting the user.
func (s *CredentialStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM granola_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return nil
}
