// Package granola implements the Granola meeting-notes integration: OAuth 2.0
// with dynamic client registration and PKCE, an MCP client session over a
// streamable HTTP transport with an SSE fallback, defensive parsing of the
// remote tool responses, fuzzy title matching, and the week sync engine that
// links remote notes to local meetings.
//
// The package is the only part of the server with protocol state. Everything
// it needs from the outside comes in as explicit dependencies: the credential
// and meeting stores, the summarizer, and the user identity on every call.
package granola
