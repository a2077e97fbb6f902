// Package flowtoken completes FLOW template buttons with a session token and
// the action parameters learned from earlier sends and template syncs.
package flowtoken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nrednav/cuid2"
	"github.com/patrickmn/go-cache"

	"github.com/rushabhsmehta/tour-messaging/internal/model"
	"github.com/rushabhsmehta/tour-messaging/internal/payload"
	"github.com/rushabhsmehta/tour-messaging/internal/repo"
)

const autoTokenPrefix = "auto_flow_token_"

type TemplateStore interface {
	GetTemplate(ctx context.Context, name, language string) (model.Template, error)
	SaveFlowDefaults(ctx context.Context, name, language string, defaults []model.FlowDefault) error
}

type Manager struct {
	store     TemplateStore
	templates *cache.Cache
	now       func() time.Time
	newSuffix func() string
}

func NewManager(store TemplateStore, cacheTTL time.Duration) *Manager {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Manager{
		store:     store,
		templates: cache.New(cacheTTL, 2*cacheTTL),
		now:       time.Now,
		newSuffix: cuid2.Generate,
	}
}

// IsAutoToken reports whether token was generated by the manager.
func IsAutoToken(token string) bool {
	return strings.HasPrefix(token, autoTokenPrefix)
}

func (m *Manager) generateToken() string {
	return fmt.Sprintf("%s%d_%s", autoTokenPrefix, m.now().UnixMilli(), m.newSuffix())
}

// cached is what the template cache holds for one name and language.
type cached struct {
	language string
	defaults []model.FlowDefault
}

// Complete fills in every FLOW button of tpl in place and returns the tokens
// attached to them. Store failures are logged and leave the caller supplied
// values untouched.
func (m *Manager) Complete(ctx context.Context, tpl *payload.Template) []model.FlowTokenUsage {
	if tpl == nil || strings.TrimSpace(tpl.Name) == "" {
		return nil
	}

	known, readOK := m.lookup(ctx, tpl.Name, tpl.Language)

	if !hasFlowButton(tpl.Buttons) {
		for _, d := range known.defaults {
			tpl.Buttons = append(tpl.Buttons, payload.TemplateButton{
				SubType: payload.ButtonFlow,
				Index:   d.Index,
				Text:    d.Text,
			})
		}
	}

	now := m.now().UTC()
	learned := cloneDefaults(known.defaults)
	var usages []model.FlowTokenUsage

	for i := range tpl.Buttons {
		btn := &tpl.Buttons[i]
		if !btn.IsFlow() {
			continue
		}
		btn.SubType = payload.ButtonFlow
		action := actionParameter(btn)
		supplied := fromAction(btn, action)

		def, found := findDefault(known.defaults, btn.Index, btn.Text)
		if found {
			backfill(action, def)
		}
		if action.FlowActionData == nil && action.NavigateScreen != "" {
			action.FlowActionData = map[string]any{"screen": action.NavigateScreen}
		}
		if action.FlowToken == "" {
			action.FlowToken = m.generateToken()
		}

		learned = upsertDefault(learned, supplied)
		usages = append(usages, model.FlowTokenUsage{
			Index:      btn.Index,
			Text:       btn.Text,
			Token:      action.FlowToken,
			AssignedAt: now,
		})
	}

	if readOK && snapshot(learned) != snapshot(known.defaults) {
		lang := known.language
		if lang == "" {
			lang = languageOrDefault(tpl.Language)
		}
		if err := m.store.SaveFlowDefaults(ctx, tpl.Name, lang, learned); err != nil {
			slog.Warn("save flow defaults failed", "template", tpl.Name, "err", err)
		} else {
			m.templates.SetDefault(cacheKey(tpl.Name, tpl.Language), cached{language: lang, defaults: learned})
		}
	}
	return usages
}

// Forget drops the cached defaults of a template, e.g. after a sync.
func (m *Manager) Forget(name, language string) {
	m.templates.Delete(cacheKey(name, language))
	m.templates.Delete(cacheKey(name, ""))
}

func (m *Manager) lookup(ctx context.Context, name, language string) (cached, bool) {
	key := cacheKey(name, language)
	if v, ok := m.templates.Get(key); ok {
		return v.(cached), true
	}
	tpl, err := m.store.GetTemplate(ctx, name, languageOrDefault(language))
	switch {
	case errors.Is(err, repo.ErrNotFound):
		c := cached{}
		m.templates.SetDefault(key, c)
		return c, true
	case err != nil:
		slog.Warn("load template for flow defaults failed", "template", name, "err", err)
		return cached{}, false
	}
	c := cached{language: tpl.Language, defaults: tpl.FlowDefaults}
	m.templates.SetDefault(key, c)
	return c, true
}

func cacheKey(name, language string) string {
	return name + "|" + language
}

func languageOrDefault(language string) string {
	if language == "" {
		return payload.DefaultLanguage
	}
	return language
}

func hasFlowButton(buttons []payload.TemplateButton) bool {
	for _, b := range buttons {
		if b.IsFlow() {
			return true
		}
	}
	return false
}

// actionParameter returns the button's ACTION parameter, adding one when the
// caller did not supply it.
func actionParameter(btn *payload.TemplateButton) *payload.FlowAction {
	for i := range btn.Parameters {
		p := &btn.Parameters[i]
		if strings.EqualFold(p.Type, "action") {
			if p.Action == nil {
				p.Action = &payload.FlowAction{}
			}
			p.Type = "action"
			return p.Action
		}
	}
	btn.Parameters = append(btn.Parameters, payload.Parameter{Type: "action", Action: &payload.FlowAction{}})
	return btn.Parameters[len(btn.Parameters)-1].Action
}

// fromAction captures the values the caller supplied for a button. Generated
// tokens are never remembered.
func fromAction(btn *payload.TemplateButton, a *payload.FlowAction) model.FlowDefault {
	d := model.FlowDefault{
		Index:           btn.Index,
		Text:            btn.Text,
		FlowID:          a.FlowID,
		FlowCTA:         a.FlowCTA,
		FlowAction:      a.FlowAction,
		FlowName:        a.FlowName,
		FlowRedirectURL: a.FlowRedirectURL,
		NavigateScreen:  a.NavigateScreen,
		FlowActionData:  a.FlowActionData,
	}
	if a.FlowToken != "" && !IsAutoToken(a.FlowToken) {
		d.FlowToken = a.FlowToken
	}
	if d.FlowActionData == nil && a.FlowActionPayload != nil {
		d.FlowActionData = a.FlowActionPayload
	}
	return d
}

func findDefault(defaults []model.FlowDefault, index int, text string) (model.FlowDefault, bool) {
	for _, d := range defaults {
		if d.Index == index {
			return d, true
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return model.FlowDefault{}, false
	}
	for _, d := range defaults {
		if strings.EqualFold(strings.TrimSpace(d.Text), text) {
			return d, true
		}
	}
	return model.FlowDefault{}, false
}

// backfill copies cached values into empty action fields. Caller values win.
func backfill(a *payload.FlowAction, d model.FlowDefault) {
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&a.FlowToken, d.FlowToken)
	fill(&a.FlowID, d.FlowID)
	fill(&a.FlowCTA, d.FlowCTA)
	fill(&a.FlowAction, d.FlowAction)
	fill(&a.FlowName, d.FlowName)
	fill(&a.FlowRedirectURL, d.FlowRedirectURL)
	fill(&a.NavigateScreen, d.NavigateScreen)
	if a.FlowActionData == nil && a.FlowActionPayload == nil && len(d.FlowActionData) > 0 {
		a.FlowActionData = d.FlowActionData
	}
}

// upsertDefault merges the non-empty fields of observed into the default with
// the same index, appending a new entry when there is none.
func upsertDefault(defaults []model.FlowDefault, observed model.FlowDefault) []model.FlowDefault {
	for i := range defaults {
		if defaults[i].Index != observed.Index {
			continue
		}
		d := &defaults[i]
		set := func(dst *string, v string) {
			if v != "" {
				*dst = v
			}
		}
		set(&d.Text, observed.Text)
		set(&d.FlowID, observed.FlowID)
		set(&d.FlowCTA, observed.FlowCTA)
		set(&d.FlowAction, observed.FlowAction)
		set(&d.FlowName, observed.FlowName)
		set(&d.FlowRedirectURL, observed.FlowRedirectURL)
		set(&d.FlowToken, observed.FlowToken)
		set(&d.NavigateScreen, observed.NavigateScreen)
		if len(observed.FlowActionData) > 0 {
			d.FlowActionData = observed.FlowActionData
		}
		return defaults
	}
	if !hasParameters(observed) {
		return defaults
	}
	return append(defaults, observed)
}

// hasParameters reports whether d carries anything beyond the button label.
func hasParameters(d model.FlowDefault) bool {
	return d.FlowID != "" || d.FlowCTA != "" || d.FlowAction != "" || d.FlowName != "" ||
		d.FlowRedirectURL != "" || d.FlowToken != "" || d.NavigateScreen != "" || len(d.FlowActionData) > 0
}

func cloneDefaults(in []model.FlowDefault) []model.FlowDefault {
	if in == nil {
		return nil
	}
	out := make([]model.FlowDefault, len(in))
	copy(out, in)
	return out
}

func snapshot(defaults []model.FlowDefault) string {
	if len(defaults) == 0 {
		return ""
	}
	b, err := json.Marshal(defaults)
	if err != nil {
		return ""
	}
	return string(b)
}
