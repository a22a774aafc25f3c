// Package circuit pumps cells through one circuit.
//
// A running circuit is a small, fixed set of goroutines:
//
//   - the forward reactor reads inbound cells, removes their layers and hands
//     each message to the stream reactor of its hop, to the backward reactor
//     (circuit SENDMEs) or to the circuit message handler;
//   - the backward reactor owns the outbound sink. It seals and writes the
//     messages stream reactors offer it, applies SENDMEs to the congestion
//     controllers and runs the padding controller;
//   - one stream reactor per hop owns that hop's stream table and schedules
//     its streams round-robin.
//
// The Reactor composes them, serves a Handle and a ShutdownHandle, and tears
// everything down when any of them stops. The hop list is the only state
// shared under a lock; it is never held across a channel operation.
package circuit
