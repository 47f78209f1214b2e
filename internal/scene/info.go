package scene

// Info summarizes the scene.
type Info struct {
	SceneName    string       `json:"scene_name"`
	FrameCurrent int          `json:"frame_current"`
	FrameStart   int          `json:"frame_start"`
	FrameEnd     int          `json:"frame_end"`
	Objects      []ObjectInfo `json:"objects"`
	Camera       *string      `json:"camera"`
	RenderEngine string       `json:"render_engine"`
	World        *WorldInfo   `json:"world,omitempty"`
}

// WorldInfo describes environment lighting when an HDRI is set.
type WorldInfo struct {
	HDRI     string  `json:"hdri"`
	Strength float64 `json:"strength"`
}

// ObjectInfo describes one object. Mesh counts and materials are present
// only for meshes.
type ObjectInfo struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Location  []float64 `json:"location"`
	Rotation  []float64 `json:"rotation"`
	Scale     []float64 `json:"scale"`
	Visible   bool      `json:"visible"`
	Active    bool      `json:"active"`
	Vertices  *int      `json:"vertices,omitempty"`
	Faces     *int      `json:"faces,omitempty"`
	Materials []string  `json:"materials,omitempty"`
	Source    string    `json:"source,omitempty"`
}

// Info returns a summary of the scene and every object in it.
func (s *Scene) Info() Info {
	info := Info{
		SceneName:    s.Name,
		FrameCurrent: s.FrameCurrent,
		FrameStart:   s.FrameStart,
		FrameEnd:     s.FrameEnd,
		Objects:      make([]ObjectInfo, 0, len(s.order)),
		RenderEngine: s.RenderEngine,
	}
	for _, obj := range s.Objects() {
		info.Objects = append(info.Objects, s.describe(obj, false))
	}
	if s.camera != "" {
		name := s.camera
		info.Camera = &name
	}
	if s.world.HDRI != "" {
		info.World = &WorldInfo{HDRI: s.world.HDRI, Strength: s.world.Strength}
	}
	return info
}

// Describe returns the detailed view of one object, including materials.
func (s *Scene) Describe(name string) (ObjectInfo, error) {
	obj, err := s.Object(name)
	if err != nil {
		return ObjectInfo{}, err
	}
	return s.describe(obj, true), nil
}

func (s *Scene) describe(obj *Object, withMaterials bool) ObjectInfo {
	info := ObjectInfo{
		Name:     obj.Name,
		Type:     obj.Type,
		Location: obj.Location.Slice(),
		Rotation: obj.Rotation.Slice(),
		Scale:    obj.Scale.Slice(),
		Visible:  obj.Visible,
		Active:   obj.Name == s.active,
		Source:   obj.Source,
	}
	if obj.Type == TypeMesh {
		vertices, faces := obj.Vertices, obj.Faces
		info.Vertices = &vertices
		info.Faces = &faces
		if withMaterials {
			info.Materials = append([]string(nil), obj.Materials...)
		}
	}
	return info
}
