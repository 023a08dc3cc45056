// Package analysis provides read-only diagnostics over committed simulation
// state. Nothing here mutates particles or grids.
//
//   - [ConvergenceTracker]: plateau detection over a rolling window of a
//     scalar summary
//   - [DetectPeaks]: local density maxima above a noise floor
//   - [MeasureSpacingRatios]: pairwise peak distances normalised by the
//     smallest one, with the fraction that falls near a power of φ
//   - [FreeEnergy]: ℱ = ℒ − S/β of the normalised density
//   - [PowerSpectrum]: shell-averaged power of the density contrast
//
// # Spacing ratios
//
// Ratios are measured, never assumed: a run reports how many ratios sit near
// φⁿ next to the full distribution, so a clustering of ratios near φ can be
// told apart from chance.
package analysis
