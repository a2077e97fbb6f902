package service

import (
	"context"

	"github.com/rushabhsmehta/tour-messaging/internal/automation"
	"github.com/rushabhsmehta/tour-messaging/internal/payload"
)

// AutomationSender lets the automation engine send templates through the
// dispatcher.
type AutomationSender struct {
	dispatcher *Dispatcher
}

func NewAutomationSender(d *Dispatcher) *AutomationSender {
	return &AutomationSender{dispatcher: d}
}

func (s *AutomationSender) SendTemplate(ctx context.Context, req automation.TemplateSend) (automation.TemplateResult, error) {
	tpl := req.Template
	res, err := s.dispatcher.Send(ctx, SendRequest{
		Request:      payload.Request{To: req.To, Template: &tpl},
		AutomationID: req.AutomationID,
		Causation:    req.Causation,
	})
	if err != nil {
		return automation.TemplateResult{Error: err.Error()}, err
	}
	return automation.TemplateResult{
		Success:   res.Success,
		MessageID: res.MessageID,
		Error:     res.Error,
	}, nil
}
