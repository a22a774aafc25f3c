// Package link provides an in-memory cell link between two endpoints. It
// stands in for the secured channel to the first hop in tests and in the
// simulator.
package link
