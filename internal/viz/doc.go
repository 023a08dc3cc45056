// Package viz provides terminal views of a running coherence simulation.
//
// [Monitor] is a Bubble Tea model that steps a [sim.Simulator] and shows its
// diagnostics live: the density projection on a Braille [Canvas], the peak
// density and free energy histories, and the convergence status. [Plot]
// renders a recorded diagnostics series for the plot command.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	S     - Single step while paused
//	+/-   - Ticks per frame
//	T     - Cycle color themes
//	?     - Show help overlay
//	Q     - Quit
package viz
