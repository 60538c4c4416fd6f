// Package power is the core of stripgate: it turns "switch outlet N of the
// strip at address A on or off" into device calls.
//
// It is made of three parts:
//
//   - SessionCache keeps one long-lived Session per strip address. The
//     first request for an address connects and refreshes; later requests
//     share the same Session. Entries are never evicted.
//   - Retry runs an action up to RetryPolicy.MaxAttempts times with a fixed
//     delay between attempts, returning the last error unchanged.
//   - Controller combines the two. Each attempt fetches the session,
//     refreshes it, validates the 1-based outlet number and switches the
//     outlet. Refresh and switch for one address run under a per-address
//     lock so concurrent requests to the same strip cannot interleave.
//
// The device protocol sits behind the Connector, Session and Outlet
// interfaces. KasaConnector implements them over internal/kasa.
//
// Errors:
//   - ErrDeviceIO wraps every transport failure and is retried.
//   - ErrInvalidOutlet (via *OutletIndexError) is a caller error and by
//     default is not retried.
package power
