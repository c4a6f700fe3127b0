package procheck

import (
	"github.com/PuerkitoBio/goquery"
)

// FormState is the complete set of form fields the server expects echoed
// back on the next postback, hidden view-state fields included. It is a
// plain value, owned by exactly one Client, and is always replaced
// wholesale by the fields of the latest response, never merged.
type FormState map[string]string

func (s FormState) Clone() FormState {
	out := make(FormState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ExtractFormFields pulls every postable field out of a document:
// hidden/text/password/search inputs, checked checkboxes and radios, and
// selects (the explicitly selected option, else the first one, which is
// what a browser would submit).
func ExtractFormFields(doc *goquery.Document) FormState {
	fields := FormState{}

	doc.Find("input").Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		if name == "" {
			return
		}

		switch input.AttrOr("type", "text") {
		case "hidden", "text", "password", "search":
			fields[name] = input.AttrOr("value", "")
		case "checkbox", "radio":
			if _, checked := input.Attr("checked"); checked {
				fields[name] = input.AttrOr("value", "")
			}
		}
	})

	doc.Find("select").Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", "")
		if name == "" {
			return
		}
		selected := sel.Find("option[selected]")
		if selected.Length() > 0 {
			fields[name] = selected.First().AttrOr("value", "")
			return
		}
		first := sel.Find("option").First()
		if first.Length() > 0 {
			fields[name] = first.AttrOr("value", "")
		}
	})

	return fields
}
