// Package heartbeat implements the liveness sweeper.
//
// The sweeper:
//   - Walks every registered session on a fixed interval
//   - Disconnects sessions with no inbound frame within the idle timeout
//   - Pings the rest with bounded concurrency and a per-ping timeout
//   - Never announces a departure; an expired session counts as a failure
package heartbeat
