// Package server wires the journaling components together and exposes them
// over HTTP.
//
// ServerContext owns one instance of each component (configuration store,
// Google libraries, bootstrapper, authorization manager, access checker and
// journal gateway) and is handed by reference to HTTP handlers, MCP tools
// and CLI commands.
//
// NewRouter serves the browser UI's REST API:
//
//	GET  /api/status         configuration, bootstrap and session summary
//	PUT  /api/config         merge and apply new credentials
//	POST /api/login          sign in, blocks until the provider answers
//	GET  /api/login/pending  authorization URL of the pending login
//	GET  /api/profile        userinfo of the signed-in user
//	POST /api/access         allow-list check
//	POST /api/images         upload one image (allow-listed users only)
//	POST /api/memories       append a memory (allow-listed users only)
//
// plus the OAuth callback, the health probes and, optionally, MCP over
// streamable HTTP. Component errors map to HTTP statuses and stable error
// codes in errors.go.
//
// MetricsServer exposes Prometheus metrics on a separate port.
package server
