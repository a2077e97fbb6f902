package model

import (
	"strings"
	"time"
)

type Session struct {
	ID              string         `json:"id"`
	PhoneNumber     string         `json:"phoneNumber,omitempty"`
	ContactID       string         `json:"contactId,omitempty"`
	FlowToken       string         `json:"flowToken,omitempty"`
	Context         SessionContext `json:"context"`
	LastInteraction time.Time      `json:"lastInteraction"`
	Archived        bool           `json:"archived"`
	ExpiresAt       *time.Time     `json:"expiresAt,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// MaxFlowTokenHistory bounds SessionContext.FlowTokens; older tokens are
// dropped first.
const MaxFlowTokenHistory = 20

// SessionContext is the conversation state accumulated across turns.
type SessionContext struct {
	Tags          []string       `json:"tags,omitempty"`
	FlowTokens    []string       `json:"flowTokens,omitempty"`
	LastFlowToken string         `json:"lastFlowToken,omitempty"`
	LastScreen    string         `json:"lastScreen,omitempty"`
	LastAction    string         `json:"lastAction,omitempty"`
	LastMessage   string         `json:"lastMessage,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// ContextPatch describes an additive change to a SessionContext. Nil scalar
// fields leave the current value untouched.
type ContextPatch struct {
	Tags          []string       `json:"tags,omitempty"`
	FlowTokens    []string       `json:"flowTokens,omitempty"`
	LastFlowToken *string        `json:"lastFlowToken,omitempty"`
	LastScreen    *string        `json:"lastScreen,omitempty"`
	LastAction    *string        `json:"lastAction,omitempty"`
	LastMessage   *string        `json:"lastMessage,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

func (p ContextPatch) IsEmpty() bool {
	return len(p.Tags) == 0 && len(p.FlowTokens) == 0 &&
		p.LastFlowToken == nil && p.LastScreen == nil && p.LastAction == nil && p.LastMessage == nil &&
		len(p.Extra) == 0
}

func (c SessionContext) Merge(p ContextPatch) SessionContext {
	out := c
	out.Tags = UnionStrings(c.Tags, p.Tags)
	out.FlowTokens = UnionStrings(c.FlowTokens, p.FlowTokens)
	if n := len(out.FlowTokens); n > MaxFlowTokenHistory {
		out.FlowTokens = out.FlowTokens[n-MaxFlowTokenHistory:]
	}
	if p.LastFlowToken != nil {
		out.LastFlowToken = *p.LastFlowToken
	}
	if p.LastScreen != nil {
		out.LastScreen = *p.LastScreen
	}
	if p.LastAction != nil {
		out.LastAction = *p.LastAction
	}
	if p.LastMessage != nil {
		out.LastMessage = *p.LastMessage
	}
	if len(p.Extra) > 0 {
		extra := make(map[string]any, len(c.Extra)+len(p.Extra))
		for k, v := range c.Extra {
			extra[k] = v
		}
		for k, v := range p.Extra {
			extra[k] = v
		}
		out.Extra = extra
	}
	return out
}

// UnionStrings appends the trimmed, non-empty values of add that are not
// already in base. Comparison is case-sensitive and base order is preserved.
func UnionStrings(base, add []string) []string {
	if len(add) == 0 {
		return base
	}
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, v := range base {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, v := range add {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func StringPtr(s string) *string {
	return &s
}
