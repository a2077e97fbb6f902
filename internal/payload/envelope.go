package payload

// Envelope is the body posted to the provider's /messages edge. Exactly one
// of the content fields is set, matching Type.
type Envelope struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`

	Text *Text `json:"text,omitempty"`

	Image    *MediaObject `json:"image,omitempty"`
	Video    *MediaObject `json:"video,omitempty"`
	Audio    *MediaObject `json:"audio,omitempty"`
	Document *MediaObject `json:"document,omitempty"`
	Sticker  *MediaObject `json:"sticker,omitempty"`

	Interactive *InteractiveObject `json:"interactive,omitempty"`
	Reaction    *ReactionObject    `json:"reaction,omitempty"`
	Template    *TemplateObject    `json:"template,omitempty"`
}

type Text struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type MediaObject struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type ReactionObject struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type InteractiveObject struct {
	Type   string             `json:"type"`
	Header *InteractiveHeader `json:"header,omitempty"`
	Body   *InteractiveText   `json:"body,omitempty"`
	Footer *InteractiveText   `json:"footer,omitempty"`
	Action InteractiveAction  `json:"action"`
}

type InteractiveHeader struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	Image    *MediaObject `json:"image,omitempty"`
	Video    *MediaObject `json:"video,omitempty"`
	Document *MediaObject `json:"document,omitempty"`
}

type InteractiveText struct {
	Text string `json:"text"`
}

type InteractiveAction struct {
	Button            string               `json:"button,omitempty"`
	Buttons           []InteractiveButton  `json:"buttons,omitempty"`
	Sections          []InteractiveSection `json:"sections,omitempty"`
	CatalogID         string               `json:"catalog_id,omitempty"`
	ProductRetailerID string               `json:"product_retailer_id,omitempty"`
}

type InteractiveButton struct {
	Type  string     `json:"type"`
	Reply ReplyTitle `json:"reply"`
}

type ReplyTitle struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type InteractiveSection struct {
	Title        string        `json:"title,omitempty"`
	Rows         []SectionRow  `json:"rows,omitempty"`
	ProductItems []ProductItem `json:"product_items,omitempty"`
}

type SectionRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type ProductItem struct {
	ProductRetailerID string `json:"product_retailer_id"`
}

type TemplateObject struct {
	Name       string      `json:"name"`
	Language   Language    `json:"language"`
	Components []Component `json:"components,omitempty"`
}

type Language struct {
	Code string `json:"code"`
}

type Component struct {
	Type       string      `json:"type"`
	SubType    string      `json:"sub_type,omitempty"`
	Index      *int        `json:"index,omitempty"`
	Parameters []Parameter `json:"parameters"`
}

type Parameter struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	Payload  string       `json:"payload,omitempty"`
	Image    *MediaObject `json:"image,omitempty"`
	Video    *MediaObject `json:"video,omitempty"`
	Document *MediaObject `json:"document,omitempty"`
	Action   *FlowAction  `json:"action,omitempty"`
}

// FlowAction is the ACTION parameter of a FLOW template button.
type FlowAction struct {
	FlowToken         string         `json:"flow_token,omitempty"`
	FlowID            string         `json:"flow_id,omitempty"`
	FlowCTA           string         `json:"flow_cta,omitempty"`
	FlowAction        string         `json:"flow_action,omitempty"`
	FlowName          string         `json:"flow_name,omitempty"`
	FlowRedirectURL   string         `json:"flow_redirect_url,omitempty"`
	FlowActionData    map[string]any `json:"flow_action_data,omitempty"`
	FlowActionPayload map[string]any `json:"flow_action_payload,omitempty"`

	// NavigateScreen is folded into FlowActionData by the flow token manager.
	NavigateScreen string `json:"-"`
}

// SendResponse is the provider reply to a successful send.
type SendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Contacts []struct {
		Input string `json:"input,omitempty"`
		WaID  string `json:"wa_id,omitempty"`
	} `json:"contacts,omitempty"`
}

func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

func (r *SendResponse) ContactID() string {
	if r == nil || len(r.Contacts) == 0 {
		return ""
	}
	return r.Contacts[0].WaID
}
