package controller

import (
	"bytes"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/tidwall/gjson"
)

const unknownErrorMessage = "An unknown error occurred"

// maxDetail caps detail text lifted from an HTML error page
const maxDetail = 280

var textPolicy = bluemonday.StrictPolicy()

// errorMessage pulls a human readable title and detail out of an error
// body. JSON envelopes are tried first, then HTML pages; anything else gets
// the generic message.
func errorMessage(body []byte) (title, detail string) {
	if title, detail, ok := jsonMessage(body); ok {
		return title, detail
	}
	if title, detail, ok := htmlMessage(body); ok {
		return title, detail
	}
	return unknownErrorMessage, ""
}

func jsonMessage(body []byte) (string, string, bool) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return "", "", false
	}

	first := gjson.GetBytes(body, "errors.0")
	if first.IsObject() {
		title := strings.TrimSpace(first.Get("title").String())
		detail := strings.TrimSpace(first.Get("detail").String())
		if title == "" && detail != "" {
			title, detail = detail, ""
		}
		if title != "" {
			return title, detail, true
		}
	}

	legacy := gjson.GetBytes(body, "error")
	switch {
	case legacy.IsArray():
		if s := legacy.Get("0"); s.Type == gjson.String && s.String() != "" {
			return s.String(), "", true
		}
	case legacy.Type == gjson.String && legacy.String() != "":
		return legacy.String(), "", true
	}
	return "", "", false
}

func htmlMessage(body []byte) (string, string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return "", "", false
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(trimmed))
	if err != nil {
		return "", "", false
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		return "", "", false
	}

	markup, err := doc.Find("body").Html()
	if err != nil {
		return title, "", true
	}
	text := strings.Join(strings.Fields(html.UnescapeString(textPolicy.Sanitize(markup))), " ")
	text = strings.TrimSpace(strings.TrimPrefix(text, title))
	if runes := []rune(text); len(runes) > maxDetail {
		text = strings.TrimSpace(string(runes[:maxDetail])) + "…"
	}
	return title, text, true
}
