// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Live sessions and admission outcomes
//   - Evictions split by graceful close and failure
//   - Routed messages by kind, dropped private messages, offline recipients
//   - Send failures and presence buffer depth
//   - Presence journal inserts and errors
//
// Values are read from component Stats() at scrape time; nothing is
// incremented on the hot path.
package metrics
