// Package writer implements the presence journal writer.
//
// The writer drains presence events from the router's buffer and appends them
// to PostgreSQL in batches. Inserts are idempotent per (session, kind), so a
// retried flush never duplicates rows.
package writer
