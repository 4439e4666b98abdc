package scene

import (
	"errors"
	"fmt"
	"slices"
)

// ErrNotFound is returned when a named object, material, layer, attribute,
// node or image does not exist.
var ErrNotFound = errors.New("not found")

// ArtifactKind names the kind of data-block an Artifact refers to.
type ArtifactKind string

const (
	ArtifactUVLayer   ArtifactKind = "uv_layer"
	ArtifactAttribute ArtifactKind = "attribute"
	ArtifactNode      ArtifactKind = "node"
	ArtifactImage     ArtifactKind = "image"
)

// Artifact addresses one named data-block. Owner is the object or material
// it lives on, or "" for images.
type Artifact struct {
	Kind  ArtifactKind
	Owner string
	Name  string
}

func (a Artifact) String() string {
	if a.Owner == "" {
		return fmt.Sprintf("%s %q", a.Kind, a.Name)
	}
	return fmt.Sprintf("%s %q on %q", a.Kind, a.Name, a.Owner)
}

// ObjectNames returns the names of all objects in scene order.
func (s *Scene) ObjectNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.objects))
	for i, o := range s.objects {
		names[i] = o.Name
	}
	return names
}

// Object returns a deep copy of the named object.
func (s *Scene) Object(name string) (*Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o := s.object(name)
	if o == nil {
		return nil, false
	}
	return o.clone(), true
}

// Material returns a deep copy of the named material.
func (s *Scene) Material(name string) (*Material, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.material(name)
	if m == nil {
		return nil, false
	}
	cp := *m
	cp.Nodes = slices.Clone(m.Nodes)
	if m.Inputs != nil {
		cp.Inputs = make(map[string]float64, len(m.Inputs))
		for k, v := range m.Inputs {
			cp.Inputs[k] = v
		}
	}
	return &cp, true
}

// Images returns a copy of the scene's image list.
func (s *Scene) Images() []Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Image, len(s.images))
	for i, img := range s.images {
		out[i] = *img
	}
	return out
}

// AddUVLayer appends a copy of the object's active layer shifted by (du, dv)
// and, when bake is set, makes it the layer the renderer reads. A bake layer
// the object already had is remembered and comes back when the new layer is
// removed.
func (s *Scene) AddUVLayer(object, name string, du, dv float64, bake bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.object(object)
	if o == nil {
		return fmt.Errorf("object %q: %w", object, ErrNotFound)
	}
	if o.layer(name) != nil {
		return fmt.Errorf("object %q already has uv layer %q", object, name)
	}
	active := o.ActiveLayer()
	if active == nil {
		return fmt.Errorf("object %q has no uv layer to copy", object)
	}
	coords := make([]UV, len(active.Coords))
	for i, c := range active.Coords {
		coords[i] = UV{U: c.U + du, V: c.V + dv}
	}
	o.UVLayers = append(o.UVLayers, &UVLayer{Name: name, Coords: coords})
	if bake {
		if o.BakeUV != "" {
			if s.restore == nil {
				s.restore = map[string]string{}
			}
			s.restore[object] = o.BakeUV
		}
		o.BakeUV = name
	}
	return nil
}

// RemoveUVLayer deletes a layer. If BakeUV pointed at it, BakeUV goes back to
// the layer it replaced, or to the active layer when there was none.
func (s *Scene) RemoveUVLayer(object, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeUVLayer(object, name)
}

func (s *Scene) removeUVLayer(object, name string) error {
	o := s.object(object)
	if o == nil {
		return fmt.Errorf("object %q: %w", object, ErrNotFound)
	}
	i := slices.IndexFunc(o.UVLayers, func(l *UVLayer) bool { return l.Name == name })
	if i < 0 {
		return fmt.Errorf("uv layer %q on %q: %w", name, object, ErrNotFound)
	}
	o.UVLayers = slices.Delete(o.UVLayers, i, i+1)
	if o.ActiveUV >= len(o.UVLayers) && o.ActiveUV > 0 {
		o.ActiveUV = len(o.UVLayers) - 1
	}
	if o.BakeUV == name {
		o.BakeUV = ""
		if prev, ok := s.restore[object]; ok {
			if o.layer(prev) != nil {
				o.BakeUV = prev
			}
			delete(s.restore, object)
			if len(s.restore) == 0 {
				s.restore = nil
			}
		}
	}
	return nil
}

// SetBakeUV points the renderer at a layer of the object. An empty name
// falls back to the active layer.
func (s *Scene) SetBakeUV(object, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.object(object)
	if o == nil {
		return fmt.Errorf("object %q: %w", object, ErrNotFound)
	}
	if name != "" && o.layer(name) == nil {
		return fmt.Errorf("uv layer %q on %q: %w", name, object, ErrNotFound)
	}
	o.BakeUV = name
	return nil
}

// AddAttribute adds a named mesh attribute to an object.
func (s *Scene) AddAttribute(object, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.object(object)
	if o == nil {
		return fmt.Errorf("object %q: %w", object, ErrNotFound)
	}
	if slices.Contains(o.Attributes, name) {
		return fmt.Errorf("object %q already has attribute %q", object, name)
	}
	o.Attributes = append(o.Attributes, name)
	return nil
}

// RemoveAttribute deletes a mesh attribute.
func (s *Scene) RemoveAttribute(object, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeAttribute(object, name)
}

func (s *Scene) removeAttribute(object, name string) error {
	o := s.object(object)
	if o == nil {
		return fmt.Errorf("object %q: %w", object, ErrNotFound)
	}
	i := slices.Index(o.Attributes, name)
	if i < 0 {
		return fmt.Errorf("attribute %q on %q: %w", name, object, ErrNotFound)
	}
	o.Attributes = slices.Delete(o.Attributes, i, i+1)
	return nil
}

// AddNode adds a named node to a material's graph.
func (s *Scene) AddNode(material, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.material(material)
	if m == nil {
		return fmt.Errorf("material %q: %w", material, ErrNotFound)
	}
	if slices.Contains(m.Nodes, name) {
		return fmt.Errorf("material %q already has node %q", material, name)
	}
	m.Nodes = append(m.Nodes, name)
	return nil
}

// RemoveNode deletes a node from a material's graph.
func (s *Scene) RemoveNode(material, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeNode(material, name)
}

func (s *Scene) removeNode(material, name string) error {
	m := s.material(material)
	if m == nil {
		return fmt.Errorf("material %q: %w", material, ErrNotFound)
	}
	i := slices.Index(m.Nodes, name)
	if i < 0 {
		return fmt.Errorf("node %q in %q: %w", name, material, ErrNotFound)
	}
	m.Nodes = slices.Delete(m.Nodes, i, i+1)
	return nil
}

// AddImage registers a new image data-block.
func (s *Scene) AddImage(img Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image(img.Name) != nil {
		return fmt.Errorf("image %q already exists", img.Name)
	}
	cp := img
	s.images = append(s.images, &cp)
	return nil
}

// RemoveImage deletes an image data-block.
func (s *Scene) RemoveImage(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeImage(name)
}

func (s *Scene) removeImage(name string) error {
	i := slices.IndexFunc(s.images, func(img *Image) bool { return img.Name == name })
	if i < 0 {
		return fmt.Errorf("image %q: %w", name, ErrNotFound)
	}
	s.images = slices.Delete(s.images, i, i+1)
	return nil
}

// Find returns every layer, attribute, node and image whose name satisfies
// match, objects first, then materials, then images.
func (s *Scene) Find(match func(name string) bool) []Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Artifact
	for _, o := range s.objects {
		for _, l := range o.UVLayers {
			if match(l.Name) {
				out = append(out, Artifact{Kind: ArtifactUVLayer, Owner: o.Name, Name: l.Name})
			}
		}
		for _, a := range o.Attributes {
			if match(a) {
				out = append(out, Artifact{Kind: ArtifactAttribute, Owner: o.Name, Name: a})
			}
		}
	}
	for _, m := range s.materials {
		for _, n := range m.Nodes {
			if match(n) {
				out = append(out, Artifact{Kind: ArtifactNode, Owner: m.Name, Name: n})
			}
		}
	}
	for _, img := range s.images {
		if match(img.Name) {
			out = append(out, Artifact{Kind: ArtifactImage, Name: img.Name})
		}
	}
	return out
}

// Remove deletes the data-block an Artifact addresses.
func (s *Scene) Remove(a Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch a.Kind {
	case ArtifactUVLayer:
		return s.removeUVLayer(a.Owner, a.Name)
	case ArtifactAttribute:
		return s.removeAttribute(a.Owner, a.Name)
	case ArtifactNode:
		return s.removeNode(a.Owner, a.Name)
	case ArtifactImage:
		return s.removeImage(a.Name)
	}
	return fmt.Errorf("unknown artifact kind %q", a.Kind)
}

func (s *Scene) object(name string) *Object {
	for _, o := range s.objects {
		if o.Name == name {
			return o
		}
	}
	return nil
}

func (s *Scene) material(name string) *Material {
	for _, m := range s.materials {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func (s *Scene) image(name string) *Image {
	for _, img := range s.images {
		if img.Name == name {
			return img
		}
	}
	return nil
}

// ActiveLayer returns the object's active UV layer, or nil when it has none.
func (o *Object) ActiveLayer() *UVLayer {
	if o.ActiveUV < 0 || o.ActiveUV >= len(o.UVLayers) {
		return nil
	}
	return o.UVLayers[o.ActiveUV]
}

// HasUVs reports whether the object has at least one coordinate to bake with.
func (o *Object) HasUVs() bool {
	l := o.ActiveLayer()
	return l != nil && len(l.Coords) > 0
}

func (o *Object) layer(name string) *UVLayer {
	for _, l := range o.UVLayers {
		if l.Name == name {
			return l
		}
	}
	return nil
}

func (o *Object) clone() *Object {
	cp := *o
	cp.Materials = slices.Clone(o.Materials)
	cp.Attributes = slices.Clone(o.Attributes)
	cp.UVLayers = make([]*UVLayer, len(o.UVLayers))
	for i, l := range o.UVLayers {
		cp.UVLayers[i] = &UVLayer{Name: l.Name, Coords: slices.Clone(l.Coords)}
	}
	return &cp
}
