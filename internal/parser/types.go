package parser

// Document is the structural content of one HTML page.
type Document struct {
	Title string
	// Base is the href of the first <base> element, if any.
	Base     string
	Links    []Link
	Forms    []Form
	Elements []Element
}

// Link is an anchor with an href. Href is the raw attribute value.
type Link struct {
	Href     string `json:"href" yaml:"href"`
	Text     string `json:"text,omitempty" yaml:"text,omitempty"`
	Rel      string `json:"rel,omitempty" yaml:"rel,omitempty"`
	NoFollow bool   `json:"nofollow,omitempty" yaml:"nofollow,omitempty"`
}

// Form represents an HTML form. Action is the raw attribute value; empty
// means the form submits to the page itself.
type Form struct {
	Action       string   `json:"action" yaml:"action"`
	Method       string   `json:"method" yaml:"method"`
	Enctype      string   `json:"enctype,omitempty" yaml:"enctype,omitempty"`
	ID           string   `json:"id,omitempty" yaml:"id,omitempty"`
	Name         string   `json:"name,omitempty" yaml:"name,omitempty"`
	Selector     string   `json:"selector" yaml:"selector"`
	SubmitButton string   `json:"submit_button,omitempty" yaml:"submit_button,omitempty"`
	Fields       []Field  `json:"fields" yaml:"fields"`
	Kind         FormKind `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// Field is a fillable control of a form.
type Field struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Value       string `json:"value,omitempty" yaml:"value,omitempty"`
	Placeholder string `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Selector    string `json:"selector" yaml:"selector"`
	Required    bool   `json:"required" yaml:"required"`
	Disabled    bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Element kinds.
const (
	KindLink   = "link"
	KindButton = "button"
	KindInput  = "input"
)

// Element is an interactive element a user could act on.
type Element struct {
	Kind       string            `json:"kind" yaml:"kind"`
	Selector   string            `json:"selector" yaml:"selector"`
	Text       string            `json:"text,omitempty" yaml:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Visible    bool              `json:"visible" yaml:"visible"`
}
