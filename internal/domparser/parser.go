package domparser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/formsnapper/backend/internal/analysis"
)

// Parser extracts form fields from raw HTML without any model call. It reads
// element attributes, associated labels and ARIA roles only, so it works on
// any page but never produces values.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// ExtractFields walks every input, select and textarea on the page and
// returns a descriptor per fillable field plus the label of the detected
// submit button, if any.
func (p *Parser) ExtractFields(html string) ([]analysis.FieldDescriptor, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, ""
	}

	var fields []analysis.FieldDescriptor

	doc.Find("input, select, textarea").Each(func(i int, s *goquery.Selection) {
		fieldType := fieldTypeOf(s)
		if fieldType == "" {
			return
		}

		field := analysis.FieldDescriptor{
			Selector: selectorFor(s, i),
			Type:     fieldType,
			Label:    labelFor(doc, s),
			Required: isRequired(s),
		}

		if goquery.NodeName(s) == "select" {
			s.Find("option").Each(func(_ int, opt *goquery.Selection) {
				text := strings.TrimSpace(opt.Text())
				if text != "" {
					field.Options = append(field.Options, text)
				}
			})
		}

		if field.Label == "" {
			field.Label = fmt.Sprintf("Field %d", len(fields)+1)
		}
		fields = append(fields, field)
	})

	return fields, p.findSubmitButton(doc)
}

// CleanHTML strips scripts, styles and page chrome and collapses whitespace,
// so structure prompts carry only the content that matters.
func (p *Parser) CleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	doc.Find("script, style, noscript, nav, footer, aside, iframe, svg").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	cleaned, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(cleaned) == "" {
		return html
	}

	return strings.TrimSpace(whitespaceRe.ReplaceAllString(cleaned, " "))
}

// fieldTypeOf maps an element to a semantic field type, or "" for elements
// that are not fillable (hidden inputs, buttons).
func fieldTypeOf(s *goquery.Selection) string {
	switch goquery.NodeName(s) {
	case "select":
		return "select"
	case "textarea":
		return "textarea"
	}

	inputType := strings.ToLower(s.AttrOr("type", "text"))
	switch inputType {
	case "hidden", "submit", "button", "reset", "image":
		return ""
	case "checkbox", "radio", "email", "tel", "url", "number", "date", "password", "file":
		return inputType
	default:
		return "text"
	}
}

// selectorFor builds an opaque locator for the element, preferring stable
// attributes over positional fallbacks.
func selectorFor(s *goquery.Selection, index int) string {
	if id, ok := s.Attr("id"); ok && id != "" {
		return "#" + id
	}
	if name, ok := s.Attr("name"); ok && name != "" {
		return fmt.Sprintf("%s[name=%q]", goquery.NodeName(s), name)
	}
	return fmt.Sprintf("%s:nth-of-type(%d)", goquery.NodeName(s), index+1)
}

// labelFor resolves a human label: <label for>, wrapping <label>, aria-label,
// placeholder, then the name attribute, in that order.
func labelFor(doc *goquery.Document, s *goquery.Selection) string {
	if id, ok := s.Attr("id"); ok && id != "" {
		label := doc.Find(fmt.Sprintf("label[for=%q]", id)).First()
		if text := cleanText(label.Text()); text != "" {
			return text
		}
	}

	if wrapping := s.Closest("label"); wrapping.Length() > 0 {
		if text := cleanText(wrapping.Text()); text != "" {
			return text
		}
	}

	if aria := strings.TrimSpace(s.AttrOr("aria-label", "")); aria != "" {
		return aria
	}
	if placeholder := strings.TrimSpace(s.AttrOr("placeholder", "")); placeholder != "" {
		return placeholder
	}
	if name := strings.TrimSpace(s.AttrOr("name", "")); name != "" {
		return humanizeName(name)
	}

	return ""
}

func isRequired(s *goquery.Selection) bool {
	if _, ok := s.Attr("required"); ok {
		return true
	}
	return s.AttrOr("aria-required", "") == "true"
}

func (p *Parser) findSubmitButton(doc *goquery.Document) string {
	candidates := doc.Find(`button[type="submit"], input[type="submit"], button:not([type]), [role="button"]`)

	found := ""
	candidates.EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := cleanText(s.Text())
		if text == "" {
			text = strings.TrimSpace(s.AttrOr("value", ""))
		}
		if text != "" {
			found = text
			return false
		}
		return true
	})

	return found
}

func cleanText(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// humanizeName turns attribute names like "first_name" or "firstName" into
// readable labels.
func humanizeName(name string) string {
	replaced := strings.NewReplacer("_", " ", "-", " ", "[", " ", "]", " ").Replace(name)

	var out strings.Builder
	for i, r := range replaced {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(replaced[i-1])
			if prev >= 'a' && prev <= 'z' {
				out.WriteRune(' ')
			}
		}
		out.WriteRune(r)
	}

	return strings.TrimSpace(whitespaceRe.ReplaceAllString(out.String(), " "))
}
