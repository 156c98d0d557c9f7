package granola

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ProtectedResourceMetadata is the subset of OAuth 2.0 Protected Resource
// Metadata (RFC 9728) this client needs.
type ProtectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
}

// AuthServerMetadata is the subset of OAuth 2.0 Authorization Server
// Metadata (RFC 8414) this client needs.
type AuthServerMetadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	RegistrationEndpoint  string   `json:"registration_endpoint"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
}

// discoverAuthServer resolves the authorization server for the MCP resource:
// protected-resource metadata first, then the advertised server's own
// metadata. Performed fresh on every flow step; nothing is cached.
func discoverAuthServer(ctx context.Context, httpClient *http.Client, mcpURL string) (*AuthServerMetadata, error) {
	resource, err := url.Parse(mcpURL)
	if err != nil {
		return nil, &DiscoveryError{URL: mcpURL, Err: fmt.Errorf("invalid resource URL: %w", err)}
	}

	var prm ProtectedResourceMetadata
	if err := fetchWellKnown(ctx, httpClient, resource, "oauth-protected-resource", &prm); err != nil {
		return nil, &DiscoveryError{URL: mcpURL, Err: err}
	}
	if len(prm.AuthorizationServers) == 0 {
		return nil, &DiscoveryError{URL: mcpURL, Err: fmt.Errorf("resource metadata advertises no authorization server")}
	}

	authServer, err := url.Parse(prm.AuthorizationServers[0])
	if err != nil {
		return nil, &DiscoveryError{URL: prm.AuthorizationServers[0], Err: fmt.Errorf("invalid authorization server URL: %w", err)}
	}

	var md AuthServerMetadata
	if err := fetchWellKnown(ctx, httpClient, authServer, "oauth-authorization-server", &md); err != nil {
		return nil, &DiscoveryError{URL: authServer.String(), Err: err}
	}
	if md.AuthorizationEndpoint == "" || md.TokenEndpoint == "" {
		return nil, &DiscoveryError{URL: authServer.String(), Err: fmt.Errorf("authorization server metadata is incomplete")}
	}
	return &md, nil
}

// fetchWellKnown fetches a well-known metadata document. Per RFC 8414 the
// path-aware form is tried first when the base URL has a path component,
// falling back to the document at the origin root.
func fetchWellKnown(ctx context.Context, httpClient *http.Client, base *url.URL, name string, out any) error {
	origin := base.Scheme + "://" + base.Host

	candidates := []string{origin + "/.well-known/" + name}
	if p := strings.TrimSuffix(base.Path, "/"); p != "" && p != "/" {
		candidates = []string{
			origin + "/.well-known/" + name + p,
			origin + "/.well-known/" + name,
		}
	}

	var lastErr error
	for _, u := range candidates {
		if err := getJSON(ctx, httpClient, u, out); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func getJSON(ctx context.Context, httpClient *http.Client, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", u, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decoding response: %w", u, err)
	}
	return nil
}
