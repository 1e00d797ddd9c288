package analysis

// ValueUnanswerable marks a field the model could not answer from the
// available context. It is stored verbatim as the field's value.
const ValueUnanswerable = "CANNOT_ANSWER"

// Tier identifies which extraction strategy produced a result.
type Tier int

const (
	TierHybrid        Tier = 1
	TierManualSplit   Tier = 2
	TierDeterministic Tier = 3
)

func (t Tier) String() string {
	switch t {
	case TierHybrid:
		return "hybrid"
	case TierManualSplit:
		return "manual-split"
	case TierDeterministic:
		return "deterministic"
	default:
		return "unknown"
	}
}

// Request carries everything an analysis needs. Treated as immutable; the
// analyzer never writes to it.
type Request struct {
	URL                string
	PageContent        string
	KnowledgeBase      string
	CustomInstructions string
	PageContext        map[string]string
}

// FieldDescriptor describes one fillable form field. Label is the join key
// between the structure and value stages.
type FieldDescriptor struct {
	Selector string   `json:"selector"`
	Type     string   `json:"type"`
	Label    string   `json:"label"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
	Value    string   `json:"value,omitempty"`
}

// FieldValue maps a field label to the value extracted for it.
type FieldValue struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Result struct {
	Fields       []FieldDescriptor `json:"fields"`
	FormPurpose  string            `json:"formPurpose"`
	SubmitButton string            `json:"submitButton,omitempty"`
	Tier         Tier              `json:"tier"`
	Mode         string            `json:"mode"`
	Confidence   float64           `json:"confidence"`
}

// StructureInput is everything Stage 1 is allowed to see. It deliberately
// has no knowledge-base or custom-instruction fields: page structure is
// detected without user data, so this payload is safe for any provider.
type StructureInput struct {
	PageContent string
	PageContext map[string]string
}

// ValuesInput is the Stage 2 payload. Raw HTML never appears here; only the
// descriptor labels and types, alongside the user's private context.
type ValuesInput struct {
	Fields             []FieldDescriptor
	KnowledgeBase      string
	CustomInstructions string
}

// FieldExtractor is the deterministic, model-free extraction boundary.
type FieldExtractor interface {
	ExtractFields(html string) ([]FieldDescriptor, string)
}

// Sanitizer bounds Stage-1 payloads by stripping non-form markup.
type Sanitizer interface {
	CleanHTML(html string) string
}

// ProgressFunc receives analysis lifecycle events for streaming to clients.
type ProgressFunc func(event string, detail map[string]any)
