// Package parser extracts the testable surface of an HTML document: title,
// links, forms and interactive elements.
package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// interactiveSelectors are queried in order; an element matched by an
// earlier selector is not reported again.
var interactiveSelectors = []struct {
	query string
	kind  string
}{
	{"a[href]", KindLink},
	{"button", KindButton},
	{"input[type='button']", KindInput},
	{"input[type='submit']", KindInput},
	{"[role='button']", KindButton},
}

const (
	fieldQuery  = `input:not([type="submit"]):not([type="button"]):not([type="reset"]), select, textarea`
	submitQuery = `input[type='submit'], button[type='submit'], button:not([type])`
)

// Parse reads an HTML document and extracts its structure. Malformed markup
// is tolerated the way browsers tolerate it.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return FromSelection(doc.Selection), nil
}

// ParseString is Parse for an in-memory document.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// FromSelection extracts structure from an already parsed document.
func FromSelection(root *goquery.Selection) *Document {
	d := &Document{
		Title:    strings.TrimSpace(root.Find("title").First().Text()),
		Links:    make([]Link, 0),
		Forms:    make([]Form, 0),
		Elements: make([]Element, 0),
	}

	if base, ok := root.Find("base[href]").First().Attr("href"); ok {
		d.Base = strings.TrimSpace(base)
	}

	root.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		link := Link{
			Href: href,
			Text: collapseSpace(s.Text()),
		}
		if rel, ok := s.Attr("rel"); ok {
			link.Rel = rel
			link.NoFollow = strings.Contains(strings.ToLower(rel), "nofollow")
		}
		d.Links = append(d.Links, link)
	})

	root.Find("form").Each(func(i int, s *goquery.Selection) {
		d.Forms = append(d.Forms, parseForm(i, s))
	})

	d.Elements = parseElements(root)
	return d
}

func parseForm(index int, s *goquery.Selection) Form {
	form := Form{
		Action:  strings.TrimSpace(s.AttrOr("action", "")),
		Method:  normalizeMethod(s.AttrOr("method", "")),
		Enctype: s.AttrOr("enctype", "application/x-www-form-urlencoded"),
		ID:      s.AttrOr("id", ""),
		Name:    s.AttrOr("name", ""),
		Fields:  make([]Field, 0),
	}

	if form.ID != "" {
		form.Selector = "#" + form.ID
	} else {
		form.Selector = fmt.Sprintf("form:nth-of-type(%d)", index+1)
	}

	s.Find(fieldQuery).Each(func(i int, in *goquery.Selection) {
		form.Fields = append(form.Fields, parseField(form.Selector, in))
	})

	if btn := s.Find(submitQuery).First(); btn.Length() > 0 {
		if id := btn.AttrOr("id", ""); id != "" {
			form.SubmitButton = form.Selector + " #" + id
		} else {
			form.SubmitButton = form.Selector + " " + submitQuery
		}
	}

	form.Kind = DetectFormKind(form)
	return form
}

func parseField(formSelector string, s *goquery.Selection) Field {
	f := Field{
		Name:        s.AttrOr("name", ""),
		ID:          s.AttrOr("id", ""),
		Placeholder: s.AttrOr("placeholder", ""),
	}

	switch {
	case s.Is("textarea"):
		f.Type = "textarea"
		f.Value = strings.TrimSpace(s.Text())
	case s.Is("select"):
		f.Type = "select"
		f.Value = s.Find("option").First().AttrOr("value", "")
	default:
		f.Type = strings.ToLower(s.AttrOr("type", "text"))
		if f.Type == "" {
			f.Type = "text"
		}
		f.Value = s.AttrOr("value", "")
	}

	_, f.Required = s.Attr("required")
	_, f.Disabled = s.Attr("disabled")

	switch {
	case f.ID != "":
		f.Selector = formSelector + " #" + f.ID
	case f.Name != "":
		f.Selector = fmt.Sprintf("%s [name='%s']", formSelector, f.Name)
	default:
		f.Selector = fmt.Sprintf("%s %s[type='%s']", formSelector, goquery.NodeName(s), f.Type)
	}

	return f
}

func parseElements(root *goquery.Selection) []Element {
	elements := make([]Element, 0)
	seen := make(map[*html.Node]struct{})

	for _, sel := range interactiveSelectors {
		root.Find(sel.query).Each(func(i int, s *goquery.Selection) {
			node := s.Get(0)
			if _, dup := seen[node]; dup {
				return
			}
			seen[node] = struct{}{}

			id := s.AttrOr("id", "")
			class := strings.Join(strings.Fields(s.AttrOr("class", "")), " ")

			el := Element{
				Kind: sel.kind,
				Text: collapseSpace(s.Text()),
				Attributes: map[string]string{
					"id":    id,
					"class": class,
					"href":  s.AttrOr("href", ""),
					"type":  s.AttrOr("type", ""),
				},
				Visible: likelyVisible(s),
			}
			if el.Text == "" {
				el.Text = s.AttrOr("value", s.AttrOr("aria-label", ""))
			}

			switch {
			case id != "":
				el.Selector = "#" + id
			case class != "":
				el.Selector = "." + strings.ReplaceAll(class, " ", ".")
			default:
				el.Selector = sel.query
			}

			elements = append(elements, el)
		})
	}

	return elements
}

// likelyVisible approximates visibility from markup alone. A rendering
// fetcher replaces it with the computed value.
func likelyVisible(s *goquery.Selection) bool {
	for n := s; n.Length() > 0 && !n.Is("body"); n = n.Parent() {
		if _, hidden := n.Attr("hidden"); hidden {
			return false
		}
		if strings.EqualFold(n.AttrOr("aria-hidden", ""), "true") {
			return false
		}
		style := strings.ToLower(strings.ReplaceAll(n.AttrOr("style", ""), " ", ""))
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return !strings.EqualFold(s.AttrOr("type", ""), "hidden")
}

func normalizeMethod(m string) string {
	if strings.EqualFold(strings.TrimSpace(m), "post") {
		return "POST"
	}
	return "GET"
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
