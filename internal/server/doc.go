// Package server exposes the weeknotes HTTP API: planner CRUD for meetings,
// the Granola connect/callback/status/sync/tools endpoints, health probes
// and the Prometheus metrics endpoint.
//
// Requests are authenticated with static bearer tokens mapped to user IDs in
// the configuration. The OAuth callback is the one unauthenticated entry
// point: it recovers the initiating user from the HMAC-signed state
// parameter instead.
package server
