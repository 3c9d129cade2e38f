// Package sim provides the discrete-event simulation kernel that the bridge
// drives.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - event.go: Events, their ordering key (Time, Priority, Seq) and handles
//   - engine.go: The event loop, cancellation tombstones and Advance
//   - process.go: Processes as explicit Handler continuations
//
// world.go builds on the kernel: demands arrive, hold capacity on a
// Resource for a duration, queue FIFO when capacity is short, and can be
// granted capacity by an external Plan. snapshot.go is the immutable view
// a planner sees.
//
// # Architecture
//
// Sub-packages layer the optimization loop on top:
//   - sim/optimize/: Models, solver backends and model templates
//   - sim/pool/: Bounded admission of concurrent solves
//   - sim/bridge/: The per-session replan state machine
//   - sim/workload/: Seeded demand generation
//   - sim/trace/: Replan decision records
//
// # Determinism
//
// Simulated time is an int64 tick count. Two runs over the same events
// dispatch them in the same order; wall-clock solve time never moves the
// clock.
package sim
