// Package dynamo provides the core primitives of the coherence engine.
//
// The package defines the state owned by one simulated volume and the
// contracts shared by every stage of the tick pipeline:
//
//   - [Params]: engine configuration, validated once at initialisation
//   - [Ensemble]: the fixed-size particle ensemble (positions, velocities)
//   - [Grid]: the G³ lattice with double-buffered density and coherence
//   - [Topology]: neighbour lookup policy used by every grid stencil
//   - typed errors: [ConfigurationError], [NumericalInstabilityError],
//     [AlgorithmDivergenceWarning], [BoundaryViolation]
//
// # Buffers
//
// Grid writers always target the back buffers; [Grid.Commit] swaps them in
// one step, so readers of the front buffers only ever observe the fully
// committed state of the previous tick.
//
// # Thread Safety
//
// Ensemble and Grid are NOT thread-safe. They are owned by a single
// simulation loop; [ParallelFor] is only used for loops that write disjoint
// cells of a back buffer.
package dynamo
