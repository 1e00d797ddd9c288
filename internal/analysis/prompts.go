package analysis

import (
	"fmt"
	"strings"

	"github.com/formsnapper/backend/internal/inference"
)

type structureOutput struct {
	FormPurpose  string            `json:"formPurpose"`
	SubmitButton string            `json:"submitButton"`
	Fields       []FieldDescriptor `json:"fields"`
}

type valuesOutput struct {
	Values []FieldValue `json:"values"`
}

type singlePassOutput struct {
	FormPurpose  string            `json:"formPurpose"`
	SubmitButton string            `json:"submitButton"`
	Fields       []FieldDescriptor `json:"fields"`
}

var structureSchema = inference.MustCompileSchema("structure.json", `{
	"type": "object",
	"required": ["fields"],
	"properties": {
		"formPurpose": {"type": "string"},
		"submitButton": {"type": "string"},
		"fields": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["selector", "label"],
				"properties": {
					"selector": {"type": "string"},
					"type": {"type": "string"},
					"label": {"type": "string"},
					"required": {"type": "boolean"},
					"options": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}
}`)

var valuesSchema = inference.MustCompileSchema("values.json", `{
	"type": "object",
	"required": ["values"],
	"properties": {
		"values": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["label", "value"],
				"properties": {
					"label": {"type": "string"},
					"value": {"type": "string"}
				}
			}
		}
	}
}`)

var singlePassSchema = structureSchema

const structureInstructions = `You are a form analysis expert. Identify every fillable field in the given page.

For each field report:
- selector: a CSS selector that locates the element
- type: text, email, tel, number, date, password, checkbox, radio, select, textarea or file
- label: the human-readable label a user would see
- required: whether the field is mandatory
- options: the choices, for select/radio fields only

Also report formPurpose (one sentence) and submitButton (the visible label of the button that submits the form).

Return ONLY JSON:
{"formPurpose": "...", "submitButton": "...", "fields": [{"selector": "...", "type": "...", "label": "...", "required": false, "options": []}]}`

const valuesInstructions = `You are a form filling assistant. Using the user's documents and instructions, determine the value for each form field.

Rules:
- Answer every field by its exact label.
- Use only information found in the provided context.
- If the context does not answer a field, use the exact value "CANNOT_ANSWER".

Return ONLY JSON:
{"values": [{"label": "...", "value": "..."}]}`

const singlePassInstructions = `You are a form analysis expert. Identify every fillable field in the given page and, where the user's context answers it, fill in its value.

For each field report selector, type, label, required, options (for select/radio) and value. Use "CANNOT_ANSWER" as the value when the context does not answer a field.

Also report formPurpose (one sentence) and submitButton (the visible label of the button that submits the form).

Return ONLY JSON:
{"formPurpose": "...", "submitButton": "...", "fields": [{"selector": "...", "type": "...", "label": "...", "required": false, "options": [], "value": "..."}]}`

func structurePrompt(input StructureInput) string {
	var b strings.Builder
	b.WriteString(structureInstructions)
	b.WriteString("\n\n")

	if len(input.PageContext) > 0 {
		b.WriteString("Page context:\n")
		for key, value := range input.PageContext {
			fmt.Fprintf(&b, "- %s: %s\n", key, value)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Page content:\n%s", input.PageContent)
	return b.String()
}

func valuesPrompt(input ValuesInput) string {
	var b strings.Builder
	b.WriteString(valuesInstructions)
	b.WriteString("\n\n")

	if input.KnowledgeBase != "" {
		fmt.Fprintf(&b, "User documents:\n%s\n\n", input.KnowledgeBase)
	}
	if input.CustomInstructions != "" {
		fmt.Fprintf(&b, "User instructions:\n%s\n\n", input.CustomInstructions)
	}

	b.WriteString("Form fields:\n")
	for _, field := range input.Fields {
		fmt.Fprintf(&b, "- %s (%s)", field.Label, field.Type)
		if field.Required {
			b.WriteString(" [required]")
		}
		if len(field.Options) > 0 {
			fmt.Fprintf(&b, " options: %s", strings.Join(field.Options, ", "))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func singlePassPrompt(req Request, pageContent string) string {
	var b strings.Builder
	b.WriteString(singlePassInstructions)
	b.WriteString("\n\n")

	if req.KnowledgeBase != "" {
		fmt.Fprintf(&b, "User documents:\n%s\n\n", req.KnowledgeBase)
	}
	if req.CustomInstructions != "" {
		fmt.Fprintf(&b, "User instructions:\n%s\n\n", req.CustomInstructions)
	}

	fmt.Fprintf(&b, "Page content:\n%s", pageContent)
	return b.String()
}
