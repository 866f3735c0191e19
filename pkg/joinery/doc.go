// Package joinery computes interlocking slot ("wafel") joints for flat
// panels that cross each other.
//
// Each panel is a planar outline given as vertices plus boundary edges. A
// vertical edge marks where a perpendicular member passes through a panel.
// Where such an edge is long enough, the panel outline is opened at the two
// boundary vertices nearest to the edge ends and a notch is stitched in: the
// lower output is cut from the bottom up to the midpoint, the upper output
// from the top down to it, so that two panels slide into each other.
package joinery
