// Package tessellate turns cut panel outlines into solid meshes using a
// solid kernel. One mesh is produced per panel.
package tessellate

import (
	"fmt"
	"math"
	"sort"

	"github.com/chazu/wafel/pkg/geom"
	"github.com/chazu/wafel/pkg/joinery"
	"github.com/chazu/wafel/pkg/kernel"
	"github.com/chazu/wafel/pkg/logx"
	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Plate is one cut outline to extrude, in world coordinates.
type Plate struct {
	Name    string
	Outline joinery.Outline
	Center  r3.Vec
	Normal  r3.Vec
}

// Plates picks the upper or lower outline of every panel in r. names is
// indexed by the panel's input index; missing names fall back to the index.
func Plates(r *joinery.Result, names []string, lower bool) []Plate {
	out := make([]Plate, 0, len(r.Panels))
	for _, p := range r.Panels {
		name := fmt.Sprintf("panel-%d", p.Index)
		if p.Index < len(names) && names[p.Index] != "" {
			name = names[p.Index]
		}
		o := p.Upper
		if lower {
			o = p.Lower
		}
		out = append(out, Plate{Name: name, Outline: o, Center: p.Center, Normal: p.Normal})
	}
	return out
}

// frame is an orthonormal basis on a plate's plane.
type frame struct {
	origin, u, v, n r3.Vec
}

func newFrame(origin, normal r3.Vec) frame {
	rot := geom.AlignZ(normal)
	return frame{
		origin: origin,
		u:      rot.Rotate(r3.Vec{X: 1}),
		v:      rot.Rotate(r3.Vec{Y: 1}),
		n:      rot.Rotate(geom.Up),
	}
}

func (f frame) local(p r3.Vec) r2.Vec {
	d := r3.Sub(p, f.origin)
	return r2.Vec{X: r3.Dot(d, f.u), Y: r3.Dot(d, f.v)}
}

func (f frame) world(x, y, z float64) r3.Vec {
	return r3.Add(f.origin, r3.Add(r3.Scale(x, f.u), r3.Add(r3.Scale(y, f.v), r3.Scale(z, f.n))))
}

// Tessellate extrudes every plate to thickness and meshes it. Plates whose
// normal is undefined or whose outline forms no loop are skipped with a
// warning.
func Tessellate(k kernel.Kernel, plates []Plate, thickness float64, cells int) ([]*kernel.Mesh, error) {
	var meshes []*kernel.Mesh
	for _, p := range plates {
		m, err := tessellatePlate(k, p, thickness, cells)
		if err != nil {
			return nil, fmt.Errorf("tessellate: plate %s: %w", p.Name, err)
		}
		if m != nil {
			meshes = append(meshes, m)
		}
	}
	return meshes, nil
}

func tessellatePlate(k kernel.Kernel, p Plate, thickness float64, cells int) (*kernel.Mesh, error) {
	if r3.Norm(p.Normal) < geom.Eps {
		logx.Logger().Warn("tessellate: skipping plate without a plane", "plate", p.Name)
		return nil, nil
	}
	f := newFrame(p.Center, r3.Unit(p.Normal))

	var flat []kernel.Loop
	for _, idx := range Loops(p.Outline) {
		l := make(kernel.Loop, len(idx))
		for i, vi := range idx {
			l[i] = f.local(p.Outline.Vertices[vi])
		}
		flat = append(flat, l)
	}
	if len(flat) == 0 {
		logx.Logger().Warn("tessellate: skipping plate without a closed outline", "plate", p.Name)
		return nil, nil
	}
	// The largest loop bounds the plate; the rest are cut out of it.
	sort.SliceStable(flat, func(i, j int) bool {
		return math.Abs(area(flat[i])) > math.Abs(area(flat[j]))
	})

	solid, err := k.Plate(flat[0], flat[1:], thickness)
	if err != nil {
		return nil, err
	}
	m, err := k.ToMesh(solid, cells)
	if err != nil {
		return nil, err
	}
	toWorld(m, f)
	m.Panel = p.Name
	logx.Logger().Debug("tessellate: plate meshed", "plate", p.Name,
		"loops", len(flat), "triangles", m.TriangleCount())
	return m, nil
}

// toWorld moves a mesh built in frame f back into world space.
func toWorld(m *kernel.Mesh, f frame) {
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		w := f.world(float64(m.Vertices[i]), float64(m.Vertices[i+1]), float64(m.Vertices[i+2]))
		m.Vertices[i], m.Vertices[i+1], m.Vertices[i+2] = float32(w.X), float32(w.Y), float32(w.Z)
	}
	for i := 0; i+2 < len(m.Normals); i += 3 {
		w := r3.Sub(f.world(float64(m.Normals[i]), float64(m.Normals[i+1]), float64(m.Normals[i+2])), f.origin)
		x, y, z := float32(w.X), float32(w.Y), float32(w.Z)
		if l := math32.Sqrt(x*x + y*y + z*z); l > 0 {
			x, y, z = x/l, y/l, z/l
		}
		m.Normals[i], m.Normals[i+1], m.Normals[i+2] = x, y, z
	}
}

// area is the signed shoelace area of l.
func area(l kernel.Loop) float64 {
	var a float64
	for i := range l {
		p, q := l[i], l[(i+1)%len(l)]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}

// Loops chains the edges of o into vertex-index loops. Each edge is walked
// once; duplicate edges are ignored. Chains that do not close are kept as
// long as they have three or more vertices, and loops shorter than that are
// dropped.
func Loops(o joinery.Outline) [][]int {
	type key [2]int
	norm := func(a, b int) key {
		if a > b {
			a, b = b, a
		}
		return key{a, b}
	}

	adj := make(map[int][]int)
	seen := make(map[key]bool)
	var order []joinery.Edge
	for _, e := range o.Edges {
		if e[0] == e[1] || seen[norm(e[0], e[1])] {
			continue
		}
		seen[norm(e[0], e[1])] = true
		order = append(order, e)
		adj[e[0]] = append(adj[e[0]], e[1])
		adj[e[1]] = append(adj[e[1]], e[0])
	}

	used := make(map[key]bool)
	var loops [][]int
	for _, e := range order {
		if used[norm(e[0], e[1])] {
			continue
		}
		used[norm(e[0], e[1])] = true
		start, cur := e[0], e[1]
		loop := []int{start}
		for cur != start {
			loop = append(loop, cur)
			next := -1
			for _, n := range adj[cur] {
				if !used[norm(cur, n)] {
					next = n
					break
				}
			}
			if next < 0 {
				break
			}
			used[norm(cur, next)] = true
			cur = next
		}
		if len(loop) >= 3 {
			loops = append(loops, loop)
		}
	}
	return loops
}
