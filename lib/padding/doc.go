// Package padding runs the per-hop padding machines of a circuit.
//
// A Machine is a small probabilistic state machine: trigger events (traffic
// sent or received, timers, blocking) move it between states, and entering a
// state can schedule an action (send padding, start blocking) after a
// randomly sampled delay. A Runtime runs the machines of one hop behind the
// Backend interface. The Controller aggregates the backends of every hop,
// reports traffic to them and merges their wakeups into a single Timer.
package padding
