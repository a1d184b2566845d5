// Package cmd implements the command-line interface for memorylane.
//
// This package provides the following commands:
//   - serve: Start the MCP server and the journal HTTP API
//   - login: Sign in with Google and store the token locally
//   - status: Show configuration, library and sign-in status
//   - check-access: Check an email against the allow-list sheet
//   - profile: Show the signed-in Google profile
//   - upload: Upload an image to Google Drive
//   - append: Append a memory to the journal sheet
//   - config: Show or change the settings file
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
//
// Settings are read from a TOML file (see --settings), overridden by
// GOOGLE_* environment variables and finally by flags.
package cmd
