// Package imageproc implements the pixel-level operations the stage
// transforms are built from: window cutouts, centroiding, subpixel shifts,
// frame-quality metrics, and NaN-tolerant cube reducers.
//
// All operations treat NaN as "masked": reducers exclude NaN per pixel
// instead of propagating it across the collapsed pixel, and shifts pad
// borders with NaN so masked regions stay masked.
package imageproc
