// Package sim provides the shared vocabulary of the contact-center simulator:
// performance measures, the per-measure statistics registry, and the
// partitioned random-number streams every replication draws from.
//
// # Reading Guide
//
// Start with these files to understand the statistics side:
//   - measure.go: PerformanceMeasure catalog, estimation types and grid dimensions
//   - grid.go: Registry of per-measure matrices of tallies, addressed by (row, column)
//   - rng.go: SimulationKey and PartitionedRNG (one stream per subsystem and replication)
//
// # Architecture
//
// The sim package defines the catalog and bridge interfaces; the simulator
// itself lives in sub-packages:
//   - sim/stat/: Tally and RatioTally with Student and delta-method intervals
//   - sim/window/: Sliding windows of per-checked-period counts
//   - sim/dialer/: Outbound dialing policies (DIALONE, DIALXFREE, DIAL2XFREE, ...)
//   - sim/agentsmove/: Service-level driven routing flags for blended groups
//   - sim/stopping/: Sequential stopping condition on a confidence interval
//   - sim/engine/: Event loop, replications, experiment bundle loading
//   - sim/trace/: Decision trace recording
//   - sim/telemetry/: Prometheus collectors for dialer, routing and stopping
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - Grid: matrix of probes for one measure
//   - StatisticsProvider: what the stopping condition reads from the engine
package sim
