// Package bootstrap brings up the Google API client and identity libraries.
//
// A Loader waits for both libraries to become reachable (one readiness
// future per library, polled every 500ms for at most 20 attempts), then
// initializes each once the configuration is valid. The wait shares one
// deadline of PollInterval * MaxAttempts, so a stalled reachability check
// cannot stretch it, and initialization has its own InitTimeout. It never hangs: a
// timeout, an invalid configuration or an initialization failure all end
// in degraded readiness, and the failure surfaces later when an operation
// is attempted.
package bootstrap
