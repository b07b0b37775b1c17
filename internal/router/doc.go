// Package router admits client connections and dispatches their messages.
//
// Every admitted session gets a join notice broadcast to all sessions and a
// roster snapshot. Inbound messages are either broadcast as public messages
// or delivered privately to one identity. A failed send disconnects only the
// failing recipient.
//
// Presence changes (join, leave, fail, replace) are published to an optional
// GrowableBuffer that the journal writer drains.
package router
