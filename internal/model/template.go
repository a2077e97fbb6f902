package model

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Template struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Language     string          `json:"language"`
	Category     string          `json:"category,omitempty"`
	Status       string          `json:"status,omitempty"`
	Body         string          `json:"body,omitempty"`
	Components   json.RawMessage `json:"components,omitempty"`
	Variables    []string        `json:"variables,omitempty"`
	FlowDefaults []FlowDefault   `json:"flowDefaults,omitempty"`
	SyncedAt     *time.Time      `json:"syncedAt,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// FlowDefault holds the action parameters last seen for one FLOW button of a
// template.
type FlowDefault struct {
	Index           int            `json:"index"`
	Text            string         `json:"text,omitempty"`
	FlowID          string         `json:"flowId,omitempty"`
	FlowCTA         string         `json:"flowCta,omitempty"`
	FlowAction      string         `json:"flowAction,omitempty"`
	FlowName        string         `json:"flowName,omitempty"`
	FlowRedirectURL string         `json:"flowRedirectUrl,omitempty"`
	FlowToken       string         `json:"flowToken,omitempty"`
	NavigateScreen  string         `json:"navigateScreen,omitempty"`
	FlowActionData  map[string]any `json:"flowActionData,omitempty"`
}

// FlowTokenUsage records a token attached to an outgoing FLOW button.
type FlowTokenUsage struct {
	Index      int       `json:"index"`
	Text       string    `json:"text,omitempty"`
	Token      string    `json:"token"`
	AssignedAt time.Time `json:"assignedAt"`
}

// registered template component, as returned by the message_templates edge
type registeredComponent struct {
	Type    string `json:"type"`
	Format  string `json:"format,omitempty"`
	Text    string `json:"text,omitempty"`
	Buttons []struct {
		Type           string `json:"type"`
		Text           string `json:"text"`
		FlowID         any    `json:"flow_id,omitempty"`
		FlowName       string `json:"flow_name,omitempty"`
		FlowAction     string `json:"flow_action,omitempty"`
		NavigateScreen string `json:"navigate_screen,omitempty"`
	} `json:"buttons,omitempty"`
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// ExtractVariables returns the distinct placeholder names in order of
// appearance, e.g. "Hi {{1}}, see {{trip_name}}" -> ["1", "trip_name"].
func ExtractVariables(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, m[1])
	}
	return out
}

// ParseRegisteredComponents extracts the body text and the FLOW buttons of a
// registered template's components.
func ParseRegisteredComponents(raw json.RawMessage) (body string, flows []FlowDefault, err error) {
	if len(raw) == 0 {
		return "", nil, nil
	}
	var comps []registeredComponent
	if err := json.Unmarshal(raw, &comps); err != nil {
		return "", nil, err
	}
	for _, c := range comps {
		switch strings.ToUpper(c.Type) {
		case "BODY":
			body = c.Text
		case "BUTTONS":
			for i, b := range c.Buttons {
				if !strings.EqualFold(b.Type, "FLOW") {
					continue
				}
				flows = append(flows, FlowDefault{
					Index:          i,
					Text:           b.Text,
					FlowID:         flowIDString(b.FlowID),
					FlowName:       b.FlowName,
					FlowAction:     b.FlowAction,
					NavigateScreen: b.NavigateScreen,
				})
			}
		}
	}
	return body, flows, nil
}

func flowIDString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}
