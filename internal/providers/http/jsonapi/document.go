package jsonapi

import (
	"github.com/bytedance/sonic"
)

var api = sonic.Config{
	UseNumber:   true,
	SortMapKeys: true,
}.Froze()

// Document is a JSON:API envelope. Accessors never fail; a missing or
// wrongly typed member reads as absent.
type Document struct {
	json Object
}

// Parse decodes data into a Document. It returns nil, not an error, when the
// bytes are not a JSON object with a "data" member.
func Parse(data []byte) *Document {
	if len(data) == 0 {
		return nil
	}

	var root any
	if err := api.Unmarshal(data, &root); err != nil {
		return nil
	}
	obj, ok := root.(map[string]any)
	if !ok {
		return nil
	}
	if _, ok := obj["data"]; !ok {
		return nil
	}
	return &Document{json: obj}
}

// NewDocument wraps an already decoded object
func NewDocument(obj Object) *Document {
	if obj == nil {
		obj = Object{}
	}
	return &Document{json: obj}
}

// FromResource builds a document whose primary data is r
func FromResource(r *Resource) *Document {
	return &Document{json: Object{"data": r.JSON()}}
}

// FromResources builds a document whose primary data is a list
func FromResources(rs []*Resource) *Document {
	data := make(Array, 0, len(rs))
	for _, r := range rs {
		data = append(data, r.JSON())
	}
	return &Document{json: Object{"data": data}}
}

// JSON returns the underlying object
func (d *Document) JSON() Object {
	if d == nil {
		return nil
	}
	return d.json
}

// Get returns a top-level member
func (d *Document) Get(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.json[key]
	return v, ok
}

// Resource returns the primary data when it is a single resource
func (d *Document) Resource() *Resource {
	v, _ := d.Get("data")
	obj, ok := ObjectOf(v)
	if !ok {
		return nil
	}
	return NewResourceFromJSON(obj)
}

// Resources returns the primary data when it is a list of resources
func (d *Document) Resources() []*Resource {
	v, _ := d.Get("data")
	objs, ok := ObjectArray(v)
	if !ok {
		return nil
	}
	return wrap(objs)
}

// Included returns the compound document's included resources
func (d *Document) Included() []*Resource {
	v, _ := d.Get("included")
	objs, ok := ObjectArray(v)
	if !ok {
		return nil
	}
	return wrap(objs)
}

// Find returns the included resource with the given identity
func (d *Document) Find(id, typ string) *Resource {
	for _, r := range d.Included() {
		rid, rtype := r.Identity()
		if rid == id && rtype == typ {
			return r
		}
	}
	return nil
}

// Links returns the top-level links object
func (d *Document) Links() Object {
	v, _ := d.Get("links")
	o, _ := ObjectOf(v)
	return o
}

// Meta returns the top-level meta object
func (d *Document) Meta() Object {
	v, _ := d.Get("meta")
	o, _ := ObjectOf(v)
	return o
}

// Errors returns the error objects, or an empty slice
func (d *Document) Errors() []Object {
	v, _ := d.Get("errors")
	objs, ok := ObjectArray(v)
	if !ok {
		return []Object{}
	}
	return objs
}

// MarshalJSON encodes the document with sonic
func (d *Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return api.Marshal(d.json)
}

func wrap(objs []Object) []*Resource {
	out := make([]*Resource, 0, len(objs))
	for _, o := range objs {
		out = append(out, NewResourceFromJSON(o))
	}
	return out
}
