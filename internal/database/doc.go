// Package database provides the PostgreSQL pool for the presence journal.
//
// The journal is optional. When enabled, presence events (join, leave, fail,
// replace) are appended to the presence_events table by the writer package.
package database
