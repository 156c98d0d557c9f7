package granola

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"weeknotes.app/server/internal/instrumentation"
	"weeknotes.app/server/internal/logging"
	"weeknotes.app/server/internal/store"
)

// expiryMargin is the safety window before the recorded expiry at which a
// token is already treated as expired.
const expiryMargin = 60 * time.Second

// discoveryTimeout bounds every discovery, registration and token endpoint
// call so a hung authorization server cannot block a request handler.
const discoveryTimeout = 15 * time.Second

// clientName is the client_name sent during dynamic registration.
const clientName = "weeknotes"

// CredentialStore is the persistence the OAuth flow needs, keyed by user ID.
// *store.CredentialStore satisfies it.
type CredentialStore interface {
	Get(ctx context.Context, userID string) (*store.Credential, error)
	UpsertClient(ctx context.Context, userID, clientID string, clientSecret *string) error
	SaveVerifier(ctx context.Context, userID, verifier string) error
	SaveTokens(ctx context.Context, userID string, tok store.TokenUpdate) error
	UpdateTokens(ctx context.Context, userID string, tok store.TokenUpdate) error
	Delete(ctx context.Context, userID string) error
}

// OAuthManager drives the per-user OAuth flow against the authorization
// server advertised by the Granola MCP resource.
type OAuthManager struct {
	creds      CredentialStore
	mcpURL     string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	now        func() time.Time
}

// NewOAuthManager creates an OAuthManager.
func NewOAuthManager(creds CredentialStore, mcpURL string, logger *slog.Logger, metrics *instrumentation.Metrics) *OAuthManager {
	return &OAuthManager{
		creds:      creds,
		mcpURL:     mcpURL,
		httpClient: &http.Client{Timeout: discoveryTimeout},
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// registeredClient is the response to an RFC 7591 dynamic registration.
type registeredClient struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Initiate starts the connect flow for a user: discovers the authorization
// server, registers a fresh OAuth client scoped to redirectURI, persists the
// registration and a PKCE verifier, and returns the authorization URL to
// redirect the browser to. The two credential writes are sequential, not
// atomic; a crash in between leaves a client identity without a verifier,
// which Complete rejects cleanly.
func (m *OAuthManager) Initiate(ctx context.Context, userID, redirectURI, state string) (authURL string, err error) {
	defer func() { m.metrics.RecordOAuthFlow(ctx, "initiate", err) }()

	md, err := discoverAuthServer(ctx, m.httpClient, m.mcpURL)
	if err != nil {
		return "", err
	}

	reg, err := m.registerClient(ctx, md, redirectURI)
	if err != nil {
		return "", err
	}

	var secret *string
	if reg.ClientSecret != "" {
		secret = &reg.ClientSecret
	}
	if err := m.creds.UpsertClient(ctx, userID, reg.ClientID, secret); err != nil {
		return "", err
	}

	verifier := oauth2.GenerateVerifier()
	if err := m.creds.SaveVerifier(ctx, userID, verifier); err != nil {
		return "", err
	}

	conf := m.oauthConfig(md, reg.ClientID, secret, redirectURI)
	authURL = conf.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("resource", m.mcpURL),
	)

	m.logger.Info("granola oauth initiated",
		logging.Operation("granola.oauth.initiate"),
		logging.UserHash(userID))
	return authURL, nil
}

// Complete finishes the flow after the browser returns with an authorization
// code: re-discovers the authorization server, exchanges the code with PKCE
// verification, and persists the tokens (clearing the verifier).
func (m *OAuthManager) Complete(ctx context.Context, userID, redirectURI, code string) (err error) {
	defer func() { m.metrics.RecordOAuthFlow(ctx, "complete", err) }()

	md, err := discoverAuthServer(ctx, m.httpClient, m.mcpURL)
	if err != nil {
		return err
	}

	cred, err := m.creds.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMissingState
		}
		return err
	}
	if cred.ClientID == "" || cred.CodeVerifier == nil || *cred.CodeVerifier == "" {
		return ErrMissingState
	}

	conf := m.oauthConfig(md, cred.ClientID, cred.ClientSecret, redirectURI)
	tok, err := conf.Exchange(m.httpContext(ctx), code,
		oauth2.VerifierOption(*cred.CodeVerifier),
		oauth2.SetAuthURLParam("resource", m.mcpURL),
	)
	if err != nil {
		return &TokenExchangeError{Err: err}
	}

	if err := m.creds.SaveTokens(ctx, userID, tokenUpdate(tok, nil)); err != nil {
		return err
	}

	m.logger.Info("granola oauth completed",
		logging.Operation("granola.oauth.complete"),
		logging.UserHash(userID))
	return nil
}

// AccessToken returns a usable access token for the user, refreshing it when
// it is within the expiry margin and a refresh token exists. Every failure
// mode collapses to ErrNotConnected: callers cannot (and must not)
// distinguish "never connected" from "expired and refresh failed".
func (m *OAuthManager) AccessToken(ctx context.Context, userID string) (string, error) {
	cred, err := m.creds.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotConnected
		}
		return "", err
	}
	if cred.AccessToken == "" {
		// Placeholder record: a connect flow started but never finished.
		return "", ErrNotConnected
	}

	if cred.ExpiresAt == nil || m.now().Before(cred.ExpiresAt.Add(-expiryMargin)) {
		return cred.AccessToken, nil
	}

	// Expired. Without a refresh token there is nothing to try.
	if cred.RefreshToken == nil || *cred.RefreshToken == "" || cred.ClientID == "" {
		return "", ErrNotConnected
	}

	token, err := m.refresh(ctx, cred)
	m.metrics.RecordTokenRefresh(ctx, err)
	if err != nil {
		m.logger.Warn("granola token refresh failed",
			logging.Operation("granola.oauth.refresh"),
			logging.UserHash(userID),
			logging.Err(err))
		return "", ErrNotConnected
	}
	return token, nil
}

// refresh exchanges the refresh token against a freshly discovered
// authorization server and persists the result. The previous refresh token
// is retained when the server does not rotate it.
func (m *OAuthManager) refresh(ctx context.Context, cred *store.Credential) (string, error) {
	md, err := discoverAuthServer(ctx, m.httpClient, m.mcpURL)
	if err != nil {
		return "", err
	}

	conf := m.oauthConfig(md, cred.ClientID, cred.ClientSecret, "")
	tok, err := conf.TokenSource(m.httpContext(ctx), &oauth2.Token{
		RefreshToken: *cred.RefreshToken,
	}).Token()
	if err != nil {
		return "", err
	}

	if err := m.creds.UpdateTokens(ctx, cred.UserID, tokenUpdate(tok, cred.RefreshToken)); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Disconnect removes the user's credentials, severing the Granola
// connection. Idempotent: disconnecting a user who was never connected
// succeeds.
func (m *OAuthManager) Disconnect(ctx context.Context, userID string) (err error) {
	defer func() { m.metrics.RecordOAuthFlow(ctx, "disconnect", err) }()

	if err = m.creds.Delete(ctx, userID); err != nil {
		return err
	}
	m.logger.Info("granola disconnected",
		logging.Operation("granola.oauth.disconnect"),
		logging.UserHash(userID))
	return nil
}

// HasConnection reports whether the user ever completed a connect flow. It
// deliberately does not check expiry; it is a coarse signal for the UI.
func (m *OAuthManager) HasConnection(ctx context.Context, userID string) (bool, error) {
	cred, err := m.creds.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return cred.AccessToken != "", nil
}

// registerClient performs RFC 7591 dynamic client registration. A new client
// is registered on every initiation so the redirect URI always matches.
func (m *OAuthManager) registerClient(ctx context.Context, md *AuthServerMetadata, redirectURI string) (*registeredClient, error) {
	if md.RegistrationEndpoint == "" {
		return nil, &DiscoveryError{URL: md.Issuer, Err: fmt.Errorf("authorization server does not support dynamic registration")}
	}

	body, err := json.Marshal(map[string]any{
		"redirect_uris":              []string{redirectURI},
		"client_name":                clientName,
		"grant_types":                []string{"authorization_code", "refresh_token"},
		"response_types":             []string{"code"},
		"token_endpoint_auth_method": "client_secret_post",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, md.RegistrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registering client: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registering client: unexpected status %d", resp.StatusCode)
	}

	var reg registeredClient
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		return nil, fmt.Errorf("registering client: decoding response: %w", err)
	}
	if reg.ClientID == "" {
		return nil, fmt.Errorf("registering client: response has no client_id")
	}
	return &reg, nil
}

// oauthConfig builds the x/oauth2 config for the discovered endpoints. The
// token endpoint is called with credentials in the POST body, matching the
// client_secret_post auth method requested at registration.
func (m *OAuthManager) oauthConfig(md *AuthServerMetadata, clientID string, clientSecret *string, redirectURI string) *oauth2.Config {
	secret := ""
	if clientSecret != nil {
		secret = *clientSecret
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: secret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   md.AuthorizationEndpoint,
			TokenURL:  md.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// httpContext injects the bounded-timeout HTTP client into the context so
// x/oauth2 uses it for token endpoint calls.
func (m *OAuthManager) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// tokenUpdate maps an x/oauth2 token to the persisted fields. When the
// server issued no new refresh token, previousRefresh is retained.
func tokenUpdate(tok *oauth2.Token, previousRefresh *string) store.TokenUpdate {
	upd := store.TokenUpdate{
		AccessToken: tok.AccessToken,
		TokenType:   tok.Type(),
	}
	if tok.RefreshToken != "" {
		rt := tok.RefreshToken
		upd.RefreshToken = &rt
	} else {
		upd.RefreshToken = previousRefresh
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		upd.ExpiresAt = &exp
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		upd.Scope = &scope
	}
	return upd
}
