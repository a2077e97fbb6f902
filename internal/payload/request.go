package payload

import "strings"

type Kind string

const (
	KindText        Kind = "text"
	KindMedia       Kind = "media"
	KindInteractive Kind = "interactive"
	KindReaction    Kind = "reaction"
	KindTemplate    Kind = "template"
)

// Request is a high level send request. Exactly one of Message, Media,
// Interactive, Reaction or Template must be set.
type Request struct {
	To          string       `json:"to" validate:"required"`
	Message     string       `json:"message,omitempty"`
	PreviewURL  bool         `json:"previewUrl,omitempty"`
	Media       *Media       `json:"media,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Reaction    *Reaction    `json:"reaction,omitempty"`
	Template    *Template    `json:"template,omitempty"`
}

type Media struct {
	Kind     string `json:"kind"` // image, video, audio, document or sticker
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type Interactive struct {
	Type              string        `json:"type"` // button, list, product or product_list
	Header            string        `json:"header,omitempty"`
	Body              string        `json:"body,omitempty"`
	Footer            string        `json:"footer,omitempty"`
	Buttons           []ReplyButton `json:"buttons,omitempty"`
	ButtonText        string        `json:"buttonText,omitempty"`
	Sections          []Section     `json:"sections,omitempty"`
	CatalogID         string        `json:"catalogId,omitempty"`
	ProductRetailerID string        `json:"productRetailerId,omitempty"`
}

type ReplyButton struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Section struct {
	Title              string   `json:"title,omitempty"`
	Rows               []Row    `json:"rows,omitempty"`
	ProductRetailerIDs []string `json:"productRetailerIds,omitempty"`
}

type Row struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type Reaction struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type Template struct {
	Name         string           `json:"name"`
	Language     string           `json:"language,omitempty"`
	HeaderParams []Parameter      `json:"headerParams,omitempty"`
	BodyParams   []Parameter      `json:"bodyParams,omitempty"`
	Buttons      []TemplateButton `json:"buttons,omitempty"`
}

const (
	ButtonURL        = "URL"
	ButtonQuickReply = "QUICK_REPLY"
	ButtonFlow       = "FLOW"
)

type TemplateButton struct {
	SubType    string      `json:"subType"`
	Index      int         `json:"index"`
	Text       string      `json:"text,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

func (b TemplateButton) IsFlow() bool {
	return strings.EqualFold(b.SubType, ButtonFlow)
}

// TextParams turns plain values into text parameters.
func TextParams(values ...string) []Parameter {
	if len(values) == 0 {
		return nil
	}
	out := make([]Parameter, 0, len(values))
	for _, v := range values {
		out = append(out, Parameter{Type: "text", Text: v})
	}
	return out
}

// Kind reports which content kind is set, or "" when none or several are.
func (r Request) Kind() Kind {
	kinds := r.kinds()
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

func (r Request) kinds() []Kind {
	var out []Kind
	if r.Message != "" {
		out = append(out, KindText)
	}
	if r.Media != nil {
		out = append(out, KindMedia)
	}
	if r.Interactive != nil {
		out = append(out, KindInteractive)
	}
	if r.Reaction != nil {
		out = append(out, KindReaction)
	}
	if r.Template != nil {
		out = append(out, KindTemplate)
	}
	return out
}
