package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rushabhsmehta/tour-messaging/internal/client"
	"github.com/rushabhsmehta/tour-messaging/internal/model"
	"github.com/rushabhsmehta/tour-messaging/internal/repo"
)

type TemplateSource interface {
	ListTemplates(ctx context.Context) ([]client.RegisteredTemplate, error)
}

type TemplateWriter interface {
	GetTemplate(ctx context.Context, name, language string) (model.Template, error)
	UpsertTemplate(ctx context.Context, t *model.Template) error
}

type TemplateCache interface {
	Forget(name, language string)
}

// TemplateSync copies the templates registered with the provider into the
// local template table.
type TemplateSync struct {
	source TemplateSource
	store  TemplateWriter
	cache  TemplateCache
	now    func() time.Time
}

func NewTemplateSync(source TemplateSource, store TemplateWriter, cache TemplateCache) *TemplateSync {
	return &TemplateSync{source: source, store: store, cache: cache, now: time.Now}
}

// Sync returns the number of templates written. A template that cannot be
// parsed or stored is skipped.
func (s *TemplateSync) Sync(ctx context.Context) (int, error) {
	registered, err := s.source.ListTemplates(ctx)
	if err != nil && len(registered) == 0 {
		return 0, fmt.Errorf("list templates: %w", err)
	}
	if err != nil {
		slog.Warn("template listing incomplete", "fetched", len(registered), "err", err)
	}

	syncedAt := s.now().UTC()
	written := 0
	for _, rt := range registered {
		body, flows, perr := model.ParseRegisteredComponents(rt.Components)
		if perr != nil {
			slog.Warn("skip template with unreadable components", "template", rt.Name, "err", perr)
			continue
		}
		t := &model.Template{
			ID:           rt.ID,
			Name:         rt.Name,
			Language:     rt.Language,
			Category:     rt.Category,
			Status:       rt.Status,
			Body:         body,
			Components:   rt.Components,
			Variables:    model.ExtractVariables(body),
			FlowDefaults: s.mergeLearned(ctx, rt, flows),
			SyncedAt:     &syncedAt,
		}
		if werr := s.store.UpsertTemplate(ctx, t); werr != nil {
			slog.Warn("store template failed", "template", rt.Name, "language", rt.Language, "err", werr)
			continue
		}
		if s.cache != nil {
			s.cache.Forget(rt.Name, rt.Language)
		}
		written++
	}
	slog.Info("templates synced", "fetched", len(registered), "written", written)
	return written, err
}

// mergeLearned keeps the parameters learned from earlier sends for buttons
// the registration does not describe, e.g. the CTA and the last token.
func (s *TemplateSync) mergeLearned(ctx context.Context, rt client.RegisteredTemplate, registered []model.FlowDefault) []model.FlowDefault {
	existing, err := s.store.GetTemplate(ctx, rt.Name, rt.Language)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			slog.Warn("load template for merge failed", "template", rt.Name, "err", err)
		}
		return registered
	}
	if existing.Language != rt.Language || len(registered) == 0 {
		return registered
	}

	out := make([]model.FlowDefault, 0, len(registered))
	for _, r := range registered {
		for _, e := range existing.FlowDefaults {
			if e.Index != r.Index {
				continue
			}
			if r.FlowCTA == "" {
				r.FlowCTA = e.FlowCTA
			}
			if r.FlowToken == "" {
				r.FlowToken = e.FlowToken
			}
			if r.FlowRedirectURL == "" {
				r.FlowRedirectURL = e.FlowRedirectURL
			}
			if r.FlowActionData == nil {
				r.FlowActionData = e.FlowActionData
			}
			if r.FlowAction == "" {
				r.FlowAction = e.FlowAction
			}
			break
		}
		out = append(out, r)
	}
	return out
}
