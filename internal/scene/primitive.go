package scene

import (
	"fmt"
	"sort"
	"strings"
)

type primitive struct {
	name     string
	vertices int
	faces    int
}

// Mesh counts match the default primitive settings of common DCC tools.
var primitives = map[string]primitive{
	"CUBE":     {name: "Cube", vertices: 8, faces: 6},
	"SPHERE":   {name: "Sphere", vertices: 482, faces: 512},
	"CYLINDER": {name: "Cylinder", vertices: 64, faces: 34},
	"PLANE":    {name: "Plane", vertices: 4, faces: 1},
}

// PrimitiveTypes returns the accepted primitive names, sorted.
func PrimitiveTypes() []string {
	out := make([]string, 0, len(primitives))
	for k := range primitives {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CreatePrimitive adds a mesh primitive and makes it active. kind is matched
// case-insensitively. When name is empty the primitive's default name is
// used; either way a numeric suffix is added if the name is taken.
func (s *Scene) CreatePrimitive(kind string, location, rotation, scale Vec3, name string) (*Object, error) {
	p, ok := primitives[strings.ToUpper(kind)]
	if !ok {
		return nil, fmt.Errorf("Unknown object type: %s", kind)
	}

	obj := s.Add(&Object{
		Name:      p.name,
		Type:      TypeMesh,
		Primitive: strings.ToUpper(kind),
		Location:  location,
		Rotation:  rotation,
		Scale:     scale,
		Visible:   true,
		Vertices:  p.vertices,
		Faces:     p.faces,
	})
	if name != "" {
		s.Rename(obj, name)
	}
	return obj, nil
}

// Import adds a mesh loaded from path. The caller supplies mesh counts when
// it knows them.
func (s *Scene) Import(name, path string, location Vec3) *Object {
	return s.Add(&Object{
		Name:     name,
		Type:     TypeMesh,
		Location: location,
		Scale:    Vec3{1, 1, 1},
		Visible:  true,
		Source:   path,
	})
}
