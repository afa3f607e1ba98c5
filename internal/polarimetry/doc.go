// Package polarimetry implements the differential polarimetric combiner:
// modulation-cycle selection over time-ordered collapsed frames, the
// double-difference and double-ratio Stokes algebra, and the Mueller-matrix
// building blocks used for instrumental-polarization correction.
package polarimetry
