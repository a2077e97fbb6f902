package automation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rushabhsmehta/tour-messaging/internal/payload"
)

var validate = validator.New()

type templateConfig struct {
	TemplateName string                   `json:"templateName" validate:"required"`
	Language     string                   `json:"language"`
	To           string                   `json:"to"`
	HeaderParams []string                 `json:"headerParams"`
	BodyParams   []string                 `json:"bodyParams"`
	Buttons      []payload.TemplateButton `json:"buttons" validate:"dive"`
}

type webhookConfig struct {
	URL     string            `json:"url"     validate:"required,url"`
	Method  string            `json:"method"  validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers map[string]string `json:"headers"`
}

type tagConfig struct {
	Tags []string `json:"tags" validate:"required,min=1,dive,required"`
}

// decodeConfig parses and validates an action configuration. Configurations
// are only checked when an automation fires.
func decodeConfig(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode action config: %w", err)
	}
	if w, ok := dst.(*webhookConfig); ok {
		w.Method = strings.ToUpper(strings.TrimSpace(w.Method))
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid action config: %w", err)
	}
	return nil
}
