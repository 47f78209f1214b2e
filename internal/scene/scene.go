// Package scene is the in-memory host model that commands operate on.
//
// A Scene is deliberately not safe for concurrent use. The server only ever
// touches it from tasks running on the executor's owner context.
package scene

import (
	"fmt"
	"strings"
)

// Object types.
const (
	TypeMesh   = "MESH"
	TypeCamera = "CAMERA"
	TypeLight  = "LIGHT"
	TypeEmpty  = "EMPTY"
)

// Default render engine of a new scene.
const DefaultRenderEngine = "BLENDER_EEVEE"

// Vec3 is an x, y, z triple.
type Vec3 [3]float64

// Slice returns v as a slice, the shape used on the wire.
func (v Vec3) Slice() []float64 {
	return []float64{v[0], v[1], v[2]}
}

// VecFrom converts a three element slice to a Vec3.
func VecFrom(s []float64) Vec3 {
	var v Vec3
	copy(v[:], s)
	return v
}

// NotFoundError reports a missing object.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Object '%s' not found", e.Name)
}

// Object is one entry in the scene.
type Object struct {
	Name      string
	Type      string
	Primitive string
	Location  Vec3
	Rotation  Vec3
	Scale     Vec3
	Visible   bool
	Vertices  int
	Faces     int
	Materials []string

	// Source is the file an imported object was loaded from.
	Source string
}

// Material is a named surface description shared between objects.
type Material struct {
	Name      string
	BaseColor [4]float64

	// Maps holds image textures by map kind (diffuse, normal, rough, ...).
	Maps map[string]string
}

// World holds the environment lighting.
type World struct {
	HDRI     string
	Strength float64
}

// Scene is the host state manipulated by commands.
type Scene struct {
	Name         string
	FrameCurrent int
	FrameStart   int
	FrameEnd     int
	RenderEngine string

	camera    string
	active    string
	objects   map[string]*Object
	order     []string
	materials map[string]*Material
	world     World
}

// New returns a scene holding a camera and a light.
func New() *Scene {
	s := &Scene{
		Name:         "Scene",
		FrameCurrent: 1,
		FrameStart:   1,
		FrameEnd:     250,
		RenderEngine: DefaultRenderEngine,
		objects:      make(map[string]*Object),
		materials:    make(map[string]*Material),
		world:        World{Strength: 1},
	}

	s.Add(&Object{
		Name:     "Camera",
		Type:     TypeCamera,
		Location: Vec3{7.3589, -6.9258, 4.9583},
		Rotation: Vec3{1.1093, 0, 0.8149},
		Scale:    Vec3{1, 1, 1},
		Visible:  true,
	})
	s.Add(&Object{
		Name:     "Light",
		Type:     TypeLight,
		Location: Vec3{4.0762, 1.0055, 5.9039},
		Rotation: Vec3{0.6503, 0.0552, 1.8666},
		Scale:    Vec3{1, 1, 1},
		Visible:  true,
	})
	s.camera = "Camera"
	s.active = ""
	return s
}

// Object returns the object called name.
func (s *Scene) Object(name string) (*Object, error) {
	obj, ok := s.objects[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return obj, nil
}

// Objects returns all objects in creation order.
func (s *Scene) Objects() []*Object {
	out := make([]*Object, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.objects[name])
	}
	return out
}

// Len returns the number of objects.
func (s *Scene) Len() int {
	return len(s.order)
}

// Add inserts obj, renaming it if its name is taken, and makes it active.
func (s *Scene) Add(obj *Object) *Object {
	obj.Name = s.uniqueName(obj.Name)
	s.objects[obj.Name] = obj
	s.order = append(s.order, obj.Name)
	s.active = obj.Name
	return obj
}

// Rename changes obj's name and returns the name actually used.
func (s *Scene) Rename(obj *Object, name string) string {
	if name == "" || name == obj.Name {
		return obj.Name
	}
	old := obj.Name
	delete(s.objects, old)
	obj.Name = s.uniqueName(name)
	s.objects[obj.Name] = obj
	for i, n := range s.order {
		if n == old {
			s.order[i] = obj.Name
		}
	}
	if s.active == old {
		s.active = obj.Name
	}
	if s.camera == old {
		s.camera = obj.Name
	}
	return obj.Name
}

// Delete removes the object called name.
func (s *Scene) Delete(name string) error {
	if _, ok := s.objects[name]; !ok {
		return &NotFoundError{Name: name}
	}
	delete(s.objects, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.active == name {
		s.active = ""
	}
	if s.camera == name {
		s.camera = ""
	}
	return nil
}

// Active returns the name of the active object, or "".
func (s *Scene) Active() string {
	return s.active
}

// Camera returns the name of the scene camera, or "".
func (s *Scene) Camera() string {
	return s.camera
}

// SetCamera makes the named camera object the scene camera.
func (s *Scene) SetCamera(name string) error {
	obj, err := s.Object(name)
	if err != nil {
		return err
	}
	if obj.Type != TypeCamera {
		return fmt.Errorf("Object '%s' is not a camera", name)
	}
	s.camera = name
	return nil
}

// Material returns the material called name, if any.
func (s *Scene) Material(name string) (*Material, bool) {
	m, ok := s.materials[name]
	return m, ok
}

// EnsureMaterial returns the material called name, creating it if needed.
func (s *Scene) EnsureMaterial(name string) *Material {
	if m, ok := s.materials[name]; ok {
		return m
	}
	m := &Material{
		Name:      name,
		BaseColor: [4]float64{0.8, 0.8, 0.8, 1},
		Maps:      make(map[string]string),
	}
	s.materials[name] = m
	return m
}

// Materials returns the number of materials.
func (s *Scene) Materials() int {
	return len(s.materials)
}

// AssignMaterial puts material in the first slot of the named object.
func (s *Scene) AssignMaterial(objectName, material string) error {
	obj, err := s.Object(objectName)
	if err != nil {
		return err
	}
	if obj.Type != TypeMesh {
		return fmt.Errorf("Object '%s' of type %s cannot hold materials", objectName, obj.Type)
	}
	if _, ok := s.materials[material]; !ok {
		return fmt.Errorf("Material '%s' not found", material)
	}
	if len(obj.Materials) > 0 {
		obj.Materials[0] = material
	} else {
		obj.Materials = append(obj.Materials, material)
	}
	return nil
}

// World returns the environment settings.
func (s *Scene) World() World {
	return s.world
}

// SetWorldHDRI lights the scene with the image at path.
func (s *Scene) SetWorldHDRI(path string, strength float64) {
	if strength <= 0 {
		strength = 1
	}
	s.world = World{HDRI: path, Strength: strength}
}

func (s *Scene) uniqueName(base string) string {
	if base == "" {
		base = "Object"
	}
	if _, taken := s.objects[base]; !taken {
		return base
	}
	stem := base
	if i := strings.LastIndexByte(base, '.'); i > 0 && isDigits(base[i+1:]) {
		stem = base[:i]
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s.%03d", stem, n)
		if _, taken := s.objects[candidate]; !taken {
			return candidate
		}
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
