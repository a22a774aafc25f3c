// Package streams keeps the stream table of one hop.
//
// A Map holds every stream the hop knows about, open or closed, allocates
// stream ids, and picks the next stream to send from. Scheduling is
// round-robin: each stream carries a priority stamp, and taking a message
// from a stream re-stamps it behind every other stream.
//
// Streams closed locally are kept as half-streams until the peer's END
// arrives, so anything the peer sends in the meantime is still checked.
package streams
