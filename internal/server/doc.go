// Package server exposes the relay over HTTP.
//
// The chat listener serves GET /ws/{username}: it upgrades the request with
// the configured WebSocket transport and hands the connection to the router
// for the rest of its life. The ops handler serves /health, /roster and the
// Prometheus endpoint on a separate port.
package server
