// Package broadcast fans device events out to connected viewers.
//
// The Hub holds a set of Subscribers. Publish marshals an event once and
// hands the same bytes to every subscriber attached at that moment; a
// subscriber whose delivery fails is dropped from the set and never blocks
// or fails the publisher.
//
// WebSocket viewers attach through Hub.ServeWS. Each connection gets a
// bounded send buffer drained by a write pump, and a read pump that answers
// two client requests:
//
//	{"type":"refresh_request"} -> {"type":"snapshot","devices":[...]} to that client only
//	{"type":"ping"}            -> {"type":"pong"}
//
// Other message types are ignored.
package broadcast
