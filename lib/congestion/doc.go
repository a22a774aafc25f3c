// Package congestion implements per-hop congestion control for a circuit.
//
// # Components
//
//   - CongestionWindow: the window value, its bounds, and the full/non-full flag.
//   - RTTEstimator: N-EWMA and minimum round trip time, fed by SENDMEs.
//   - BDPEstimator: bandwidth-delay product from cwnd and RTT, or from the
//     outbound queue when the RTT clock is stalled.
//   - Vegas: the proposal 324 algorithm with slow start and steady state.
//   - FixedWindow: the legacy SENDME window algorithm.
//   - Controller: glues one algorithm to its estimators, validates SENDME
//     authentication tags, and tracks the receive side SENDME cadence.
//
// # Thread Safety
//
// Nothing in this package locks. A Controller belongs to a hop, and the hop
// list in package circuit serialises access to it.
package congestion
