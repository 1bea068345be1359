/*
Package jsonapi navigates JSON:API documents without a schema.

A body is decoded once with sonic (numbers kept as json.Number) and read
through accessors that report absence instead of failing:

	doc := jsonapi.Parse(body)
	if doc == nil {
		// not an envelope, deliver raw bytes
	}
	widget := doc.Resource()
	name, _ := jsonapi.AttributeAs[string](widget, "name")
	owners := widget.RelatedResources(doc)

Resource identity is the (id, type) pair. Ids may arrive as numbers or
numeric strings.
*/
package jsonapi
