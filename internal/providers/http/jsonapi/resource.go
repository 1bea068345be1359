package jsonapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

var (
	ErrNotResource      = errors.New("not a JSON:API resource")
	ErrWrongType        = errors.New("unexpected resource type")
	ErrMissingAttribute = errors.New("missing attribute")
)

// Resource is one resource object
type Resource struct {
	json Object
}

// ResourceOption configures NewResource
type ResourceOption func(Object)

// WithID sets the resource id
func WithID(id int64) ResourceOption {
	return func(o Object) { o["id"] = id }
}

// WithAttributes sets the attributes object
func WithAttributes(attrs Object) ResourceOption {
	return func(o Object) { o["attributes"] = attrs }
}

// WithRelationship adds a named relationship
func WithRelationship(name string, doc *Document) ResourceOption {
	return func(o Object) {
		rels, _ := o["relationships"].(map[string]any)
		if rels == nil {
			rels = Object{}
			o["relationships"] = rels
		}
		rels[name] = doc.JSON()
	}
}

// NewResource builds a resource of the given type
func NewResource(typ string, opts ...ResourceOption) *Resource {
	obj := Object{"type": typ}
	for _, opt := range opts {
		opt(obj)
	}
	return &Resource{json: obj}
}

// NewResourceFromJSON wraps a decoded resource object
func NewResourceFromJSON(obj Object) *Resource {
	if obj == nil {
		obj = Object{}
	}
	return &Resource{json: obj}
}

// JSON returns the underlying object
func (r *Resource) JSON() Object {
	if r == nil {
		return nil
	}
	return r.json
}

// Get returns a top-level member of the resource object
func (r *Resource) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.json[key]
	return v, ok
}

// ID returns the id as an integer. Both JSON numbers and numeric strings
// are accepted.
func (r *Resource) ID() (int64, bool) {
	v, ok := r.Get("id")
	if !ok {
		return 0, false
	}
	return Int(v)
}

// IDString returns the id in its canonical string form
func (r *Resource) IDString() (string, bool) {
	v, ok := r.Get("id")
	if !ok {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	}
	if n, ok := Int(v); ok {
		return strconv.FormatInt(n, 10), true
	}
	return "", false
}

// Type returns the type discriminator
func (r *Resource) Type() (string, bool) {
	v, _ := r.Get("type")
	return String(v)
}

// Identity returns the (id, type) pair used to match relationships
func (r *Resource) Identity() (string, string) {
	id, _ := r.IDString()
	typ, _ := r.Type()
	return id, typ
}

// Attributes returns the attributes object
func (r *Resource) Attributes() Object {
	v, _ := r.Get("attributes")
	o, _ := ObjectOf(v)
	return o
}

// Attribute returns one attribute
func (r *Resource) Attribute(key string) (any, bool) {
	attrs := r.Attributes()
	if attrs == nil {
		return nil, false
	}
	v, ok := attrs[key]
	return v, ok
}

// AttributeAs returns an attribute converted to T. Numeric, string and bool
// targets go through the package coercions; other types need an exact match.
func AttributeAs[T any](r *Resource, key string) (T, bool) {
	var zero T

	v, ok := r.Attribute(key)
	if !ok || v == nil {
		return zero, false
	}

	var out any
	switch any(zero).(type) {
	case string:
		out, ok = String(v)
	case int64:
		out, ok = Int(v)
	case int:
		var n int64
		n, ok = Int(v)
		out = int(n)
	case float64:
		out, ok = Float(v)
	case bool:
		out, ok = Bool(v)
	default:
		t, ok := v.(T)
		return t, ok
	}
	if !ok {
		return zero, false
	}
	return out.(T), true
}

// RequireAttribute returns an attribute or ErrMissingAttribute
func (r *Resource) RequireAttribute(key string) (any, error) {
	v, ok := r.Attribute(key)
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingAttribute, key)
	}
	return v, nil
}

// ExpectType checks the resource discriminator
func (r *Resource) ExpectType(typ string) error {
	got, ok := r.Type()
	if !ok {
		return ErrNotResource
	}
	if got != typ {
		return fmt.Errorf("%w: %s", ErrWrongType, got)
	}
	return nil
}

// Links returns the resource links object
func (r *Resource) Links() Object {
	v, _ := r.Get("links")
	o, _ := ObjectOf(v)
	return o
}

// Meta returns the resource meta object
func (r *Resource) Meta() Object {
	v, _ := r.Get("meta")
	o, _ := ObjectOf(v)
	return o
}

// Relationships maps relationship names to their linkage documents
func (r *Resource) Relationships() map[string]*Document {
	v, _ := r.Get("relationships")
	rels, ok := ObjectOf(v)
	if !ok {
		return nil
	}
	out := make(map[string]*Document, len(rels))
	for name, raw := range rels {
		if obj, ok := ObjectOf(raw); ok {
			out[name] = NewDocument(obj)
		}
	}
	return out
}

// Relationship returns one relationship's linkage document
func (r *Resource) Relationship(name string) *Document {
	return r.Relationships()[name]
}

// RelatedResources resolves every relationship linkage against doc's
// included resources. Linkage without a type is matched using the
// relationship name; unmatched linkage is skipped.
func (r *Resource) RelatedResources(doc *Document) []*Resource {
	rels := r.Relationships()
	if len(rels) == 0 || doc == nil {
		return nil
	}

	names := make([]string, 0, len(rels))
	for name := range rels {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []*Resource
	for _, name := range names {
		for _, link := range linkage(rels[name]) {
			id, typ := link.Identity()
			if id == "" {
				continue
			}
			if typ == "" {
				typ = name
			}
			if found := doc.Find(id, typ); found != nil {
				out = append(out, found)
			}
		}
	}
	return out
}

func linkage(rel *Document) []*Resource {
	if one := rel.Resource(); one != nil {
		return []*Resource{one}
	}
	return rel.Resources()
}

// MarshalJSON encodes the resource object
func (r *Resource) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return api.Marshal(r.json)
}
