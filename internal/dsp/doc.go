// Package dsp implements the signal-processing primitives of the analysis:
// Butterworth design and zero-phase filtering in second-order sections,
// windowed-sinc FIR design, polyphase resampling, Welch spectra, causal FIR
// filtering, and moving-average smoothing.
//
// Conventions follow the usual scientific-computing defaults: normalized
// frequencies are fractions of the Nyquist rate, zero-phase filters extend
// the input with an odd reflection and start from steady-state initial
// conditions.
package dsp
