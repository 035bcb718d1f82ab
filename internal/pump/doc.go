// Package pump derives synthetic pump sensors from the entity graph.
//
// Variable-speed pool pumps report little telemetry of their own, so the
// interesting values are estimated: the speed a pump should be running
// at follows from which of its associated circuits are active, and flow
// and electrical draw follow from per-class estimation curves over the
// commanded speed.
//
// The curves are approximations fitted to typical drive behaviour, not
// measurements. They are monotonic over their domain, clamp at the top,
// and read 0 below the motor's minimum operating point.
package pump
