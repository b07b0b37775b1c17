// Package message defines the wire types exchanged between the relay and its clients.
//
// Outbound kinds and their JSON fields:
//   - system:       message, time
//   - user_list:    users, time
//   - private:      sender, message, time
//   - private_sent: recipient, message, time
//   - public:       username, message, time
//   - error:        message, time
//
// Every outbound message also carries "type". Timestamps are wall-clock HH:MM:SS
// taken from an injected Clock at dispatch time.
//
// Inbound client messages are {"type"?, "to"?, "message"}; any type other than
// "private" is treated as public.
package message
