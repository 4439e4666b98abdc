package scene

import "encoding/json"

// fields holds the members of a JSON object the scene does not model, so a
// scene written back keeps everything it was loaded with.
type fields map[string]json.RawMessage

// splitFields decodes raw into v and returns the members v left out.
func splitFields(raw []byte, v any) (fields, error) {
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	var all fields
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}
	known, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var modeled fields
	if err := json.Unmarshal(known, &modeled); err != nil {
		return nil, err
	}
	for k := range modeled {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// joinFields encodes v and adds back the extra members. Modeled members win.
func joinFields(v any, extra fields) ([]byte, error) {
	known, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return known, err
	}
	var out fields
	if err := json.Unmarshal(known, &out); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := out[k]; !ok {
			out[k] = raw
		}
	}
	return json.Marshal(out)
}

type (
	objectJSON    Object
	materialJSON  Material
	imageJSON     Image
	sceneFileJSON sceneFile
)

func (o *Object) UnmarshalJSON(raw []byte) (err error) {
	o.extra, err = splitFields(raw, (*objectJSON)(o))
	return err
}

func (o Object) MarshalJSON() ([]byte, error) {
	return joinFields(objectJSON(o), o.extra)
}

func (m *Material) UnmarshalJSON(raw []byte) (err error) {
	m.extra, err = splitFields(raw, (*materialJSON)(m))
	return err
}

func (m Material) MarshalJSON() ([]byte, error) {
	return joinFields(materialJSON(m), m.extra)
}

func (img *Image) UnmarshalJSON(raw []byte) (err error) {
	img.extra, err = splitFields(raw, (*imageJSON)(img))
	return err
}

func (img Image) MarshalJSON() ([]byte, error) {
	return joinFields(imageJSON(img), img.extra)
}

func (f *sceneFile) UnmarshalJSON(raw []byte) (err error) {
	f.extra, err = splitFields(raw, (*sceneFileJSON)(f))
	return err
}

func (f sceneFile) MarshalJSON() ([]byte, error) {
	return joinFields(sceneFileJSON(f), f.extra)
}
