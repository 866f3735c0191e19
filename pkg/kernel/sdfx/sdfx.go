// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library.
package sdfx

import (
	"fmt"

	"github.com/chazu/wafel/pkg/fault"
	"github.com/chazu/wafel/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

// defaultMeshCells controls marching cubes tessellation resolution.
const defaultMeshCells = 200

// sdfxSolid wraps an sdf.SDF3 to implement kernel.Solid.
type sdfxSolid struct {
	s sdf.SDF3
}

// BoundingBox returns the axis-aligned bounding box.
func (s *sdfxSolid) BoundingBox() (min, max [3]float64) {
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct{}

// New returns a new SdfxKernel.
func New() *SdfxKernel {
	return &SdfxKernel{}
}

func polygon(l kernel.Loop) (sdf.SDF2, error) {
	if len(l) < 3 {
		return nil, fault.Shape("loop", "need at least 3 points, got %d", len(l))
	}
	pts := make([]v2.Vec, len(l))
	for i, p := range l {
		pts[i] = v2.Vec{X: p.X, Y: p.Y}
	}
	return sdf.Polygon2D(pts)
}

// Plate extrudes outline minus holes. sdf.Extrude3D extends
// thickness/2 to either side of z=0.
func (k *SdfxKernel) Plate(outline kernel.Loop, holes []kernel.Loop, thickness float64) (kernel.Solid, error) {
	if thickness <= 0 {
		return nil, fault.Shape("thickness", "must be positive, got %g", thickness)
	}
	s, err := polygon(outline)
	if err != nil {
		return nil, fmt.Errorf("sdfx: outline: %w", err)
	}
	cut := make([]sdf.SDF2, 0, len(holes))
	for i, h := range holes {
		hs, err := polygon(h)
		if err != nil {
			return nil, fmt.Errorf("sdfx: hole %d: %w", i, err)
		}
		cut = append(cut, hs)
	}
	if len(cut) > 0 {
		s = sdf.Difference2D(s, sdf.Union2D(cut...))
	}
	return &sdfxSolid{s: sdf.Extrude3D(s, thickness)}, nil
}

// ToMesh converts a solid to a triangle mesh using marching cubes.
func (k *SdfxKernel) ToMesh(s kernel.Solid, cells int) (*kernel.Mesh, error) {
	solid, ok := s.(*sdfxSolid)
	if !ok {
		return nil, fmt.Errorf("sdfx: foreign solid %T", s)
	}
	if cells <= 0 {
		cells = defaultMeshCells
	}

	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(solid.s, renderer)

	numVerts := len(triangles) * 3
	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	indices := make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		n := tri.Normal()
		for j := 0; j < 3; j++ {
			v := tri[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, float32(n.X), float32(n.Y), float32(n.Z))
			indices = append(indices, uint32(i*3+j))
		}
	}

	return &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}, nil
}
