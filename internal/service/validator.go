package service

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/models"
)

const submissionSchema = `{
	"type": "object",
	"required": ["title", "message", "recipient", "type"],
	"properties": {
		"title":          {"type": "string", "minLength": 1, "maxLength": 255},
		"message":        {"type": "string", "minLength": 1, "maxLength": 10000},
		"recipient":      {"type": "string", "minLength": 1, "maxLength": 255},
		"recipientEmail": {"type": "string", "format": "email"},
		"organizationId": {"type": "string", "maxLength": 64},
		"type":           {"type": "string", "enum": ["EMAIL", "SMS", "PUSH", "IN_APP"]},
		"maxRetries":     {"type": "integer", "minimum": 0, "maximum": 10}
	}
}`

// SubmissionValidator checks incoming notification requests against the JSON
// schema plus the cross-field rules the schema cannot express.
type SubmissionValidator struct {
	schema *gojsonschema.Schema
}

func NewSubmissionValidator() (*SubmissionValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(submissionSchema))
	if err != nil {
		return nil, fmt.Errorf("compile submission schema: %w", err)
	}
	return &SubmissionValidator{schema: schema}, nil
}

// Validate checks a raw submission document.
func (v *SubmissionValidator) Validate(document []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return errors.Permanent(errors.ErrCodeValidationFailed, "submission is not valid JSON", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return errors.Permanentf(errors.ErrCodeValidationFailed,
			"submission rejected: %s", strings.Join(details, "; "))
	}
	return nil
}

// ValidateNotification applies the cross-field rules on a decoded request.
func (v *SubmissionValidator) ValidateNotification(n *models.Notification) error {
	if !models.ValidChannel(string(n.Type)) {
		return errors.Permanentf(errors.ErrCodeValidationFailed, "unknown channel %q", n.Type)
	}
	if n.Type == models.ChannelEmail && strings.TrimSpace(n.RecipientEmail) == "" {
		return errors.Permanent(errors.ErrCodeValidationFailed,
			"recipientEmail is required for EMAIL notifications", nil)
	}
	return nil
}
