// Package printing holds the pure computations behind printer billing:
// counter resolution, supply levels, consumption forecasts and usage
// heatmaps. Nothing here performs I/O.
package printing
