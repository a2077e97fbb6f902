package payload

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidRequest = errors.New("invalid send request")

const (
	DefaultLanguage  = "en_US"
	maxReplyButtons  = 3
	messagingProduct = "whatsapp"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Build turns a send request into the provider envelope. It performs no I/O.
func Build(req Request) (*Envelope, error) {
	kinds := req.kinds()
	switch len(kinds) {
	case 0:
		return nil, invalid("one of message, media, interactive, reaction or template is required")
	case 1:
	default:
		return nil, invalid("only one content kind may be set, got %v", kinds)
	}

	env := &Envelope{
		MessagingProduct: messagingProduct,
		RecipientType:    "individual",
		To:               req.To,
	}

	var err error
	switch kinds[0] {
	case KindText:
		env.Type = "text"
		env.Text = &Text{Body: req.Message, PreviewURL: req.PreviewURL}
	case KindMedia:
		err = buildMedia(env, req.Media)
	case KindInteractive:
		env.Type = "interactive"
		env.Interactive, err = buildInteractive(req.Interactive)
	case KindReaction:
		if strings.TrimSpace(req.Reaction.MessageID) == "" {
			return nil, invalid("reaction.messageId is required")
		}
		env.Type = "reaction"
		env.Reaction = &ReactionObject{MessageID: req.Reaction.MessageID, Emoji: req.Reaction.Emoji}
	case KindTemplate:
		env.Type = "template"
		env.Template, err = buildTemplate(req.Template)
	}
	if err != nil {
		return nil, err
	}
	return env, nil
}

func buildMedia(env *Envelope, m *Media) error {
	kind := strings.ToLower(strings.TrimSpace(m.Kind))
	if m.ID == "" && m.Link == "" {
		return invalid("media requires an id or a link")
	}

	obj := &MediaObject{ID: m.ID}
	if m.ID == "" {
		obj.Link = m.Link
	}

	switch kind {
	case "image", "video":
		obj.Caption = m.Caption
	case "document":
		obj.Caption = m.Caption
		obj.Filename = m.Filename
	case "audio", "sticker":
	default:
		return invalid("unsupported media kind %q", m.Kind)
	}

	env.Type = kind
	switch kind {
	case "image":
		env.Image = obj
	case "video":
		env.Video = obj
	case "audio":
		env.Audio = obj
	case "document":
		env.Document = obj
	case "sticker":
		env.Sticker = obj
	}
	return nil
}

func buildInteractive(in *Interactive) (*InteractiveObject, error) {
	out := &InteractiveObject{Type: in.Type}
	if in.Body != "" {
		out.Body = &InteractiveText{Text: in.Body}
	}
	if in.Footer != "" {
		out.Footer = &InteractiveText{Text: in.Footer}
	}
	if in.Header != "" {
		out.Header = &InteractiveHeader{Type: "text", Text: in.Header}
	}

	if in.Type != "product" && out.Body == nil {
		return nil, invalid("interactive %s requires a body", in.Type)
	}

	switch in.Type {
	case "button":
		if len(in.Buttons) == 0 || len(in.Buttons) > maxReplyButtons {
			return nil, invalid("interactive button requires 1 to %d buttons, got %d", maxReplyButtons, len(in.Buttons))
		}
		for i, b := range in.Buttons {
			if b.ID == "" || b.Title == "" {
				return nil, invalid("button %d requires id and title", i)
			}
			out.Action.Buttons = append(out.Action.Buttons, InteractiveButton{
				Type:  "reply",
				Reply: ReplyTitle{ID: b.ID, Title: b.Title},
			})
		}

	case "list":
		if in.ButtonText == "" {
			return nil, invalid("interactive list requires buttonText")
		}
		if len(in.Sections) == 0 {
			return nil, invalid("interactive list requires at least one section")
		}
		out.Action.Button = in.ButtonText
		for i, s := range in.Sections {
			if len(s.Rows) == 0 {
				return nil, invalid("list section %d has no rows", i)
			}
			sec := InteractiveSection{Title: s.Title}
			for _, r := range s.Rows {
				if r.ID == "" || r.Title == "" {
					return nil, invalid("list section %d has a row without id or title", i)
				}
				sec.Rows = append(sec.Rows, SectionRow{ID: r.ID, Title: r.Title, Description: r.Description})
			}
			out.Action.Sections = append(out.Action.Sections, sec)
		}

	case "product":
		if in.CatalogID == "" || in.ProductRetailerID == "" {
			return nil, invalid("interactive product requires catalogId and productRetailerId")
		}
		out.Action.CatalogID = in.CatalogID
		out.Action.ProductRetailerID = in.ProductRetailerID

	case "product_list":
		if in.CatalogID == "" {
			return nil, invalid("interactive product_list requires catalogId")
		}
		if len(in.Sections) == 0 {
			return nil, invalid("interactive product_list requires at least one section")
		}
		if out.Header == nil {
			if in.Sections[0].Title == "" {
				return nil, invalid("interactive product_list requires a header or a titled first section")
			}
			out.Header = &InteractiveHeader{Type: "text", Text: in.Sections[0].Title}
		}
		out.Action.CatalogID = in.CatalogID
		for i, s := range in.Sections {
			if len(s.ProductRetailerIDs) == 0 {
				return nil, invalid("product_list section %d has no products", i)
			}
			sec := InteractiveSection{Title: s.Title}
			for _, id := range s.ProductRetailerIDs {
				sec.ProductItems = append(sec.ProductItems, ProductItem{ProductRetailerID: id})
			}
			out.Action.Sections = append(out.Action.Sections, sec)
		}

	default:
		return nil, invalid("unsupported interactive type %q", in.Type)
	}
	return out, nil
}

func buildTemplate(t *Template) (*TemplateObject, error) {
	if strings.TrimSpace(t.Name) == "" {
		return nil, invalid("template name is required")
	}
	lang := t.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	out := &TemplateObject{Name: t.Name, Language: Language{Code: lang}}

	if len(t.HeaderParams) > 0 {
		out.Components = append(out.Components, Component{Type: "header", Parameters: t.HeaderParams})
	}
	if len(t.BodyParams) > 0 {
		out.Components = append(out.Components, Component{Type: "body", Parameters: t.BodyParams})
	}
	for _, b := range t.Buttons {
		if len(b.Parameters) == 0 {
			continue
		}
		index := b.Index
		out.Components = append(out.Components, Component{
			Type:       "button",
			SubType:    strings.ToLower(b.SubType),
			Index:      &index,
			Parameters: b.Parameters,
		})
	}
	return out, nil
}
