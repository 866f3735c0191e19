// Package kernel defines the solid kernel the preview path extrudes cut
// panels with. Implementations turn a flat outline with holes into a plate
// and tessellate it; the rest of the system only sees Solid and Mesh.
package kernel

import "gonum.org/v1/gonum/spatial/r2"

// Loop is a closed polygon in the plate plane. The last point connects back
// to the first.
type Loop []r2.Vec

// Solid is an opaque handle to a kernel solid.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel extrudes plates and meshes them.
type Kernel interface {
	// Plate extrudes outline minus holes to the given thickness,
	// centred on z=0.
	Plate(outline Loop, holes []Loop, thickness float64) (Solid, error)

	// ToMesh tessellates s. cells is the resolution along the longest
	// axis; 0 selects the implementation default.
	ToMesh(s Solid, cells int) (*Mesh, error)
}
