package granola

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weeknotes.app/server/internal/store"
)

// memCreds is an in-memory CredentialStore recording what the manager
// persists.
type memCreds struct {
	cred    *store.Credential
	saved   *store.TokenUpdate // last SaveTokens payload
	upd     *store.TokenUpdate // last UpdateTokens payload
	deleted int
	delErr  error
}

func (m *memCreds) Get(context.Context, string) (*store.Credential, error) {
	if m.cred == nil {
		return nil, store.ErrNotFound
	}
	c := *m.cred
	return &c, nil
}

func (m *memCreds) UpsertClient(_ context.Context, userID, clientID string, clientSecret *string) error {
	m.cred = &store.Credential{UserID: userID, ClientID: clientID, ClientSecret: clientSecret}
	return nil
}

func (m *memCreds) SaveVerifier(_ context.Context, _ string, verifier string) error {
	m.cred.CodeVerifier = &verifier
	return nil
}

func (m *memCreds) SaveTokens(_ context.Context, _ string, tok store.TokenUpdate) error {
	m.saved = &tok
	m.cred.AccessToken = tok.AccessToken
	m.cred.RefreshToken = tok.RefreshToken
	m.cred.CodeVerifier = nil
	return nil
}

func (m *memCreds) UpdateTokens(_ context.Context, _ string, tok store.TokenUpdate) error {
	m.upd = &tok
	m.cred.AccessToken = tok.AccessToken
	m.cred.RefreshToken = tok.RefreshToken
	return nil
}

func (m *memCreds) Delete(context.Context, string) error {
	if m.delErr != nil {
		return m.delErr
	}
	m.deleted++
	m.cred = nil
	return nil
}

// authServer is a scriptable OAuth authorization server plus the MCP
// resource's protected-resource metadata, all on one httptest server.
type authServer struct {
	*httptest.Server
	tokenResponse map[string]any
	tokenStatus   int
	lastTokenForm url.Values
	requests      int
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()
	as := &authServer{
		tokenStatus: http.StatusOK,
		tokenResponse: map[string]any{
			"access_token":  "fresh-token",
			"token_type":    "Bearer",
			"refresh_token": "fresh-refresh",
			"expires_in":    3600,
			"scope":         "notes",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-protected-resource/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"resource":              as.URL + "/mcp",
			"authorization_servers": []string{as.URL},
		})
	})
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"issuer":                 as.URL,
			"authorization_endpoint": as.URL + "/authorize",
			"token_endpoint":         as.URL + "/token",
			"registration_endpoint":  as.URL + "/register",
		})
	})
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "weeknotes", req["client_name"])
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]any{"client_id": "test-client", "client_secret": "test-secret"})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		as.lastTokenForm = r.PostForm
		if as.tokenStatus != http.StatusOK {
			w.WriteHeader(as.tokenStatus)
			writeJSON(w, map[string]any{"error": "invalid_grant"})
			return
		}
		writeJSON(w, as.tokenResponse)
	})

	as.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		as.requests++
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(as.Close)
	return as
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestManager(as *authServer, creds CredentialStore) *OAuthManager {
	return NewOAuthManager(creds, as.URL+"/mcp", testLogger(), nil)
}

func TestInitiate(t *testing.T) {
	as := newAuthServer(t)
	creds := &memCreds{}
	m := newTestManager(as, creds)

	authURL, err := m.Initiate(context.Background(), "u1", "https://app.example/auth/granola/callback", "signed-state")
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "test-client", q.Get("client_id"))
	assert.Equal(t, "signed-state", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "https://app.example/auth/granola/callback", q.Get("redirect_uri"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, as.URL+"/mcp", q.Get("resource"))

	require.NotNil(t, creds.cred)
	assert.Equal(t, "test-client", creds.cred.ClientID)
	require.NotNil(t, creds.cred.CodeVerifier)
	assert.NotEmpty(t, *creds.cred.CodeVerifier)
	assert.Empty(t, creds.cred.AccessToken)
}

func TestComplete(t *testing.T) {
	as := newAuthServer(t)
	verifier := "stored-verifier-stored-verifier-stored-verifier"
	secret := "test-secret"
	creds := &memCreds{cred: &store.Credential{
		UserID:       "u1",
		ClientID:     "test-client",
		ClientSecret: &secret,
		CodeVerifier: &verifier,
	}}
	m := newTestManager(as, creds)

	err := m.Complete(context.Background(), "u1", "https://app.example/auth/granola/callback", "auth-code")
	require.NoError(t, err)

	form := as.lastTokenForm
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "auth-code", form.Get("code"))
	assert.Equal(t, verifier, form.Get("code_verifier"))
	assert.Equal(t, "test-client", form.Get("client_id"))
	assert.Equal(t, as.URL+"/mcp", form.Get("resource"))

	require.NotNil(t, creds.saved)
	assert.Equal(t, "fresh-token", creds.saved.AccessToken)
	assert.Equal(t, "Bearer", creds.saved.TokenType)
	require.NotNil(t, creds.saved.RefreshToken)
	assert.Equal(t, "fresh-refresh", *creds.saved.RefreshToken)
	require.NotNil(t, creds.saved.Scope)
	assert.Equal(t, "notes", *creds.saved.Scope)
	require.NotNil(t, creds.saved.ExpiresAt)
	assert.Nil(t, creds.cred.CodeVerifier)
}

func TestCompleteMissingState(t *testing.T) {
	as := newAuthServer(t)

	t.Run("no credential record", func(t *testing.T) {
		m := newTestManager(as, &memCreds{})
		err := m.Complete(context.Background(), "u1", "https://app.example/cb", "code")
		assert.ErrorIs(t, err, ErrMissingState)
	})

	t.Run("client without verifier", func(t *testing.T) {
		m := newTestManager(as, &memCreds{cred: &store.Credential{UserID: "u1", ClientID: "test-client"}})
		err := m.Complete(context.Background(), "u1", "https://app.example/cb", "code")
		assert.ErrorIs(t, err, ErrMissingState)
	})
}

func TestCompleteExchangeFailure(t *testing.T) {
	as := newAuthServer(t)
	as.tokenStatus = http.StatusBadRequest
	verifier := "stored-verifier-stored-verifier-stored-verifier"
	creds := &memCreds{cred: &store.Credential{UserID: "u1", ClientID: "test-client", CodeVerifier: &verifier}}
	m := newTestManager(as, creds)

	err := m.Complete(context.Background(), "u1", "https://app.example/cb", "bad-code")

	var exchangeErr *TokenExchangeError
	assert.ErrorAs(t, err, &exchangeErr)
	assert.Nil(t, creds.saved)
}

func TestAccessToken(t *testing.T) {
	refresh := "old-refresh"
	future := time.Now().Add(time.Hour)
	soon := time.Now().Add(30 * time.Second) // inside the 60s margin

	t.Run("never connected", func(t *testing.T) {
		as := newAuthServer(t)
		m := newTestManager(as, &memCreds{})

		_, err := m.AccessToken(context.Background(), "u1")
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.Zero(t, as.requests, "must not hit the network")
	})

	t.Run("placeholder from unfinished connect", func(t *testing.T) {
		as := newAuthServer(t)
		m := newTestManager(as, &memCreds{cred: &store.Credential{UserID: "u1", ClientID: "test-client"}})

		_, err := m.AccessToken(context.Background(), "u1")
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.Zero(t, as.requests)
	})

	t.Run("valid token returned without network", func(t *testing.T) {
		as := newAuthServer(t)
		m := newTestManager(as, &memCreds{cred: &store.Credential{
			UserID: "u1", ClientID: "test-client", AccessToken: "live-token", ExpiresAt: &future,
		}})

		token, err := m.AccessToken(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "live-token", token)
		assert.Zero(t, as.requests)
	})

	t.Run("no recorded expiry treated as valid", func(t *testing.T) {
		as := newAuthServer(t)
		m := newTestManager(as, &memCreds{cred: &store.Credential{
			UserID: "u1", ClientID: "test-client", AccessToken: "live-token",
		}})

		token, err := m.AccessToken(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "live-token", token)
		assert.Zero(t, as.requests)
	})

	t.Run("expired without refresh token", func(t *testing.T) {
		as := newAuthServer(t)
		m := newTestManager(as, &memCreds{cred: &store.Credential{
			UserID: "u1", ClientID: "test-client", AccessToken: "stale", ExpiresAt: &soon,
		}})

		_, err := m.AccessToken(context.Background(), "u1")
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.Zero(t, as.requests, "nothing to try, so no network")
	})

	t.Run("expired with refresh token refreshes and persists", func(t *testing.T) {
		as := newAuthServer(t)
		creds := &memCreds{cred: &store.Credential{
			UserID: "u1", ClientID: "test-client", AccessToken: "stale",
			RefreshToken: &refresh, ExpiresAt: &soon,
		}}
		m := newTestManager(as, creds)

		token, err := m.AccessToken(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "fresh-token", token)

		assert.Equal(t, "refresh_token", as.lastTokenForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", as.lastTokenForm.Get("refresh_token"))

		require.NotNil(t, creds.upd)
		assert.Equal(t, "fresh-token", creds.upd.AccessToken)
		require.NotNil(t, creds.upd.RefreshToken)
		assert.Equal(t, "fresh-refresh", *creds.upd.RefreshToken)
	})

	t.Run("refresh without rotation keeps old refresh token", func(t *testing.T) {
		as := newAuthServer(t)
		as.tokenResponse = map[string]any{
			"access_token": "fresh-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		creds := &memCreds{cred: &store.Credential{
			UserID: "u1", ClientID: "test-client", AccessToken: "stale",
			RefreshToken: &refresh, ExpiresAt: &soon,
		}}
		m := newTestManager(as, creds)

		_, err := m.AccessToken(context.Background(), "u1")
		require.NoError(t, err)

		require.NotNil(t, creds.upd)
		require.NotNil(t, creds.upd.RefreshToken)
		assert.Equal(t, "old-refresh", *creds.upd.RefreshToken)
	})

	t.Run("refresh failure collapses to not connected", func(t *testing.T) {
		as := newAuthServer(t)
		as.tokenStatus = http.StatusBadRequest
		m := newTestManager(as, &memCreds{cred: &store.Credential{
			UserID: "u1", ClientID: "test-client", AccessToken: "stale",
			RefreshToken: &refresh, ExpiresAt: &soon,
		}})

		_, err := m.AccessToken(context.Background(), "u1")
		assert.ErrorIs(t, err, ErrNotConnected)
	})
}

func TestHasConnection(t *testing.T) {
	as := newAuthServer(t)

	tests := []struct {
		name string
		cred *store.Credential
		want bool
	}{
		{name: "no record", cred: nil, want: false},
		{name: "placeholder only", cred: &store.Credential{UserID: "u1", ClientID: "c"}, want: false},
		{name: "has token", cred: &store.Credential{UserID: "u1", ClientID: "c", AccessToken: "tok"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(as, &memCreds{cred: tt.cred})
			got, err := m.HasConnection(context.Background(), "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDisconnect(t *testing.T) {
	as := newAuthServer(t)

	t.Run("removes credentials", func(t *testing.T) {
		creds := &memCreds{cred: &store.Credential{UserID: "u1", AccessToken: "tok"}}
		m := newTestManager(as, creds)

		require.NoError(t, m.Disconnect(context.Background(), "u1"))
		assert.Equal(t, 1, creds.deleted)

		got, err := m.HasConnection(context.Background(), "u1")
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("never connected is not an error", func(t *testing.T) {
		creds := &memCreds{}
		m := newTestManager(as, creds)

		require.NoError(t, m.Disconnect(context.Background(), "u1"))
		assert.Equal(t, 1, creds.deleted)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		creds := &memCreds{delErr: errors.New("connection refused")}
		m := newTestManager(as, creds)

		assert.Error(t, m.Disconnect(context.Background(), "u1"))
	})
}

func TestInitiateWithoutRegistrationEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	var ts *httptest.Server
	mux.HandleFunc("/.well-known/oauth-protected-resource/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"authorization_servers": []string{ts.URL}})
	})
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"issuer":                 ts.URL,
			"authorization_endpoint": ts.URL + "/authorize",
			"token_endpoint":         ts.URL + "/token",
		})
	})
	ts = httptest.NewServer(mux)
	defer ts.Close()

	m := NewOAuthManager(&memCreds{}, ts.URL+"/mcp", testLogger(), nil)
	_, err := m.Initiate(context.Background(), "u1", "https://app.example/cb", "state")

	var discErr *DiscoveryError
	require.ErrorAs(t, err, &discErr)
	assert.True(t, strings.Contains(discErr.Error(), "registration"))
}
