// Package auth wraps the identity client's token flow behind a single
// Login operation that either stores a fresh access token or fails with a
// typed error: ErrNotConfigured, ErrNotLoaded, ErrAuthorization (as an
// *AuthorizationError carrying the provider payload) or ErrLoginSuperseded.
package auth
