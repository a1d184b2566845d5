// Package config holds the Google credentials the rest of the application
// reads: OAuth client ID, API key, spreadsheet ID and an optional Drive
// folder ID.
//
// A Store is set by the surrounding application (settings file, flags or the
// REST API) and can be replaced at any time. IsConfigured applies a length
// heuristic only; it does not contact Google.
package config
