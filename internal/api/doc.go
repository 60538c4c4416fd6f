// Package api implements the HTTP REST API and WebSocket server for stripgate.
//
// This package provides:
//   - POST /power/on/{address}/{outlet} and /power/off/{address}/{outlet}
//   - GET /power/{address} for a refreshed view of a whole strip
//   - GET /audit for the command history, when auditing is enabled
//   - GET /ws, a WebSocket stream of outlet events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Security
//
// Every route except /health requires the X-Api-Key header to equal the
// configured key. Failures answer 401 {"detail":"Unauthorized"} before the
// path is parsed or a strip is contacted. The WebSocket endpoint also
// accepts the key as the api_key query parameter.
//
// # WebSocket
//
// Clients choose what to receive with subscribe/unsubscribe frames, or with
// channel and address query parameters on the upgrade request:
//
//	{"type":"subscribe","id":"1","channels":["outlet.state_changed"],"addresses":["10.0.0.5"]}
//
// The hub answers with a "subscription" frame listing the current channels
// and addresses, then sends "event" frames carrying an OutletEvent.
//
// # Errors
//
// Error bodies are {"detail": "..."}. An out-of-range outlet number is 400
// "Invalid plug number", a non-numeric one is 422, and any other failure is
// a 500 carrying the error text.
package api
