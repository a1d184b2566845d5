// Package google wraps the two Google client libraries the application
// depends on.
//
// APIClient loads the Drive and Sheets discovery documents, holds the
// access token (persisted in the user cache directory) and performs the
// Drive upload, Sheets read/append and userinfo calls. Requests are rate
// limited per service.
//
// IdentityClient runs the OAuth 2.0 authorization code flow with PKCE.
// Token clients created from it deliver results asynchronously through a
// callback, either after the browser redirect reaches CallbackHandler or
// after a silent refresh.
package google
