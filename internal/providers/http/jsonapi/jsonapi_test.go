package jsonapi

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetBody = `{"data":{"id":"1","type":"widget","attributes":{"name":"foo"}}}`

const compoundBody = `{
  "data": {
    "id": 10,
    "type": "article",
    "attributes": {"title": "Rails is Omakase", "views": "1024", "published": true, "rating": 4.5},
    "relationships": {
      "author": {"data": {"id": "9", "type": "people"}},
      "comments": {"data": [{"id": "5", "type": "comments"}, {"id": "12", "type": "comments"}]},
      "tag": {"data": {"id": "3"}},
      "editor": {"data": {"id": "404", "type": "people"}}
    },
    "links": {"self": "http://example.com/articles/10"}
  },
  "included": [
    {"id": "9", "type": "people", "attributes": {"name": "Dan"}},
    {"id": "5", "type": "comments", "attributes": {"body": "First!"}},
    {"id": "12", "type": "comments", "attributes": {"body": "I like XML better"}},
    {"id": "3", "type": "tag", "attributes": {"label": "ruby"}}
  ],
  "meta": {"count": 1},
  "links": {"self": "http://example.com/articles"}
}`

func TestParseDiscriminatesEnvelopes(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"single resource", widgetBody, true},
		{"null data", `{"data": null}`, true},
		{"list data", `{"data": []}`, true},
		{"no data key", `{"errors": [{"title": "nope"}]}`, false},
		{"array root", `[{"data": {}}]`, false},
		{"not json", `<html></html>`, false},
		{"empty", ``, false},
		{"png bytes", "\x89PNG\r\n\x1a\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Parse([]byte(tt.body))
			if tt.ok {
				assert.NotNil(t, doc)
			} else {
				assert.Nil(t, doc)
			}
		})
	}
}

func TestWidgetScenario(t *testing.T) {
	doc := Parse([]byte(widgetBody))
	require.NotNil(t, doc)

	res := doc.Resource()
	require.NotNil(t, res)

	id, ok := res.ID()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	typ, ok := res.Type()
	require.True(t, ok)
	assert.Equal(t, "widget", typ)

	name, ok := res.Attribute("name")
	require.True(t, ok)
	assert.Equal(t, "foo", name)
	assert.Nil(t, doc.Resources())
}

func TestRoundTripReproducesValues(t *testing.T) {
	original := NewResource("widget",
		WithID(42),
		WithAttributes(Object{"name": "gear", "teeth": 12}),
	)

	encoded, err := json.Marshal(FromResource(original))
	require.NoError(t, err)

	doc := Parse(encoded)
	require.NotNil(t, doc)
	res := doc.Resource()

	id, ok := res.ID()
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	typ, _ := res.Type()
	assert.Equal(t, "widget", typ)

	name, ok := AttributeAs[string](res, "name")
	require.True(t, ok)
	assert.Equal(t, "gear", name)

	teeth, ok := AttributeAs[int](res, "teeth")
	require.True(t, ok)
	assert.Equal(t, 12, teeth)
}

func TestRelatedResources(t *testing.T) {
	doc := Parse([]byte(compoundBody))
	require.NotNil(t, doc)

	article := doc.Resource()
	related := article.RelatedResources(doc)
	require.Len(t, related, 4)

	var identities [][2]string
	for _, r := range related {
		id, typ := r.Identity()
		identities = append(identities, [2]string{id, typ})
	}
	assert.Equal(t, [][2]string{
		{"9", "people"},
		{"5", "comments"},
		{"12", "comments"},
		{"3", "tag"},
	}, identities)
}

func TestRelatedResourcesWithoutIncluded(t *testing.T) {
	doc := Parse([]byte(`{"data":{"id":"1","type":"a","relationships":{"b":{"data":{"id":"2","type":"b"}}}}}`))
	require.NotNil(t, doc)

	assert.Empty(t, doc.Resource().RelatedResources(doc))
	assert.Empty(t, doc.Included())
	assert.Nil(t, doc.Resource().RelatedResources(nil))
}

func TestDocumentMembers(t *testing.T) {
	doc := Parse([]byte(compoundBody))
	require.NotNil(t, doc)

	assert.Equal(t, "http://example.com/articles", doc.Links()["self"])
	assert.Equal(t, json.Number("1"), doc.Meta()["count"])
	assert.Empty(t, doc.Errors())
	assert.Len(t, doc.Included(), 4)

	article := doc.Resource()
	assert.Equal(t, "http://example.com/articles/10", article.Links()["self"])
	assert.Nil(t, article.Meta())

	author := article.Relationship("author")
	require.NotNil(t, author)
	id, _ := author.Resource().IDString()
	assert.Equal(t, "9", id)
	assert.Nil(t, article.Relationship("missing"))

	idStr, ok := article.IDString()
	require.True(t, ok)
	assert.Equal(t, "10", idStr)
}

func TestAbsentTolerantAccessors(t *testing.T) {
	res := NewResourceFromJSON(Object{"id": true, "type": 7, "attributes": "nope", "relationships": []any{}})

	_, ok := res.ID()
	assert.False(t, ok)
	_, ok = res.Type()
	assert.False(t, ok)
	assert.Nil(t, res.Attributes())
	_, ok = res.Attribute("x")
	assert.False(t, ok)
	assert.Nil(t, res.Relationships())

	huge := Parse([]byte(`{"data":{"id":"1e30","type":"widget"}}`))
	require.NotNil(t, huge)
	_, ok = huge.Resource().ID()
	assert.False(t, ok)

	var nilDoc *Document
	assert.Nil(t, nilDoc.Resource())
	assert.Empty(t, nilDoc.Errors())
}

func TestAttributeAsCoercions(t *testing.T) {
	doc := Parse([]byte(compoundBody))
	article := doc.Resource()

	views, ok := AttributeAs[int64](article, "views")
	require.True(t, ok)
	assert.Equal(t, int64(1024), views)

	published, ok := AttributeAs[bool](article, "published")
	require.True(t, ok)
	assert.True(t, published)

	rating, ok := AttributeAs[float64](article, "rating")
	require.True(t, ok)
	assert.InDelta(t, 4.5, rating, 1e-9)

	_, ok = AttributeAs[int64](article, "title")
	assert.False(t, ok)

	_, ok = AttributeAs[Object](article, "title")
	assert.False(t, ok)
}

func TestResourceChecks(t *testing.T) {
	res := NewResource("widget", WithAttributes(Object{"name": "foo"}))

	assert.NoError(t, res.ExpectType("widget"))
	assert.ErrorIs(t, res.ExpectType("gadget"), ErrWrongType)
	assert.ErrorIs(t, NewResourceFromJSON(nil).ExpectType("widget"), ErrNotResource)

	_, err := res.RequireAttribute("size")
	assert.ErrorIs(t, err, ErrMissingAttribute)
	v, err := res.RequireAttribute("name")
	require.NoError(t, err)
	assert.Equal(t, "foo", v)
}

func TestRelationshipBuilder(t *testing.T) {
	owner := NewResource("people", WithID(9))
	res := NewResource("widget", WithID(1), WithRelationship("owner", FromResource(owner)))

	doc := FromResources([]*Resource{res})
	encoded, err := doc.MarshalJSON()
	require.NoError(t, err)

	parsed := Parse(encoded)
	require.NotNil(t, parsed)
	require.Len(t, parsed.Resources(), 1)

	rel := parsed.Resources()[0].Relationship("owner")
	require.NotNil(t, rel)
	id, ok := rel.Resource().ID()
	require.True(t, ok)
	assert.Equal(t, int64(9), id)
}

func TestCoercions(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		_, ok := String("")
		assert.False(t, ok)
		s, ok := String("x")
		assert.True(t, ok)
		assert.Equal(t, "x", s)
		_, ok = String(1)
		assert.False(t, ok)
	})

	t.Run("int", func(t *testing.T) {
		tests := []struct {
			in   any
			want int64
			ok   bool
		}{
			{json.Number("12"), 12, true},
			{"34", 34, true},
			{" 56 ", 56, true},
			{float64(7), 7, true},
			{7.5, 0, false},
			{"abc", 0, false},
			{nil, 0, false},
			{"1e3", 1000, true},
			{"1e30", 0, false},
			{json.Number("-1e30"), 0, false},
			{json.Number("9223372036854775808"), 0, false},
			{1e30, 0, false},
			{-1e19, 0, false},
			{math.Inf(1), 0, false},
			{math.NaN(), 0, false},
		}
		for _, tt := range tests {
			got, ok := Int(tt.in)
			assert.Equal(t, tt.ok, ok, "%v", tt.in)
			assert.Equal(t, tt.want, got, "%v", tt.in)
		}
	})

	t.Run("bool", func(t *testing.T) {
		for _, truthy := range []any{true, "yes", "True", "1", "  t", json.Number("2")} {
			b, ok := Bool(truthy)
			assert.True(t, ok)
			assert.True(t, b, "%v", truthy)
		}
		for _, falsy := range []any{false, "no", "0", "false", ""} {
			b, ok := Bool(falsy)
			assert.True(t, ok)
			assert.False(t, b, "%v", falsy)
		}
		_, ok := Bool(Object{})
		assert.False(t, ok)
	})

	t.Run("containers", func(t *testing.T) {
		_, ok := ObjectOf(Array{})
		assert.False(t, ok)
		_, ok = ArrayOf(Array{1})
		assert.True(t, ok)
		_, ok = ObjectArray(Array{Object{}, 1})
		assert.False(t, ok)
		objs, ok := ObjectArray(Array{Object{"a": 1}})
		assert.True(t, ok)
		assert.Len(t, objs, 1)
	})
}
