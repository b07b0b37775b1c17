// Package connection implements the transport adapters around the relay.
//
// Server side, each accepted WebSocket is wrapped in a Conn:
//   - gorilla/websocket adapter (default)
//   - gobwas/ws adapter (lower allocation, raw frames)
//
// Both serialize writes, bound them with a deadline, answer pings and track the
// time of the last inbound frame for the heartbeat sweeper. A close frame from
// the peer surfaces as ErrClosed; anything else ends the connection as a failure.
//
// Client side, Client dials the relay for the console tool and end-to-end tests.
package connection
