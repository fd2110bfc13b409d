package sender

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"
)

// sesAPI is the slice of the SES client the sender uses.
type sesAPI interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// SESEmailSender delivers EMAIL notifications through Amazon SES.
type SESEmailSender struct {
	client sesAPI
	from   string
	logger logger.Logger
}

func NewSESEmailSender(client sesAPI, from string, log logger.Logger) *SESEmailSender {
	return &SESEmailSender{
		client: client,
		from:   from,
		logger: log.WithFields(map[string]interface{}{"sender": "ses"}),
	}
}

func (s *SESEmailSender) SupportedChannel() models.Channel {
	return models.ChannelEmail
}

func (s *SESEmailSender) IsAvailable() bool {
	return s.client != nil && s.from != ""
}

func (s *SESEmailSender) Send(ctx context.Context, n *models.Notification) (*SendResult, error) {
	if strings.TrimSpace(n.RecipientEmail) == "" {
		return nil, errors.Permanent(errors.ErrCodeRecipientMissing,
			"notification has no recipient email address", nil)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{n.RecipientEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(n.Title)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(BuildEmailContent(n.Title, n.Message))},
			},
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return nil, classifySESError(err)
	}

	s.logger.Info("email delivered", map[string]interface{}{
		"notificationId": n.ID,
		"providerId":     aws.ToString(out.MessageId),
	})

	return &SendResult{
		ProviderID:   aws.ToString(out.MessageId),
		ProviderName: "ses",
		SentAt:       time.Now().UTC(),
	}, nil
}

func classifySESError(err error) error {
	var rejected *types.MessageRejected
	if stderrors.As(err, &rejected) {
		return errors.Permanent(errors.ErrCodePermanentFailure, "SES rejected the message", err)
	}
	var domainNotVerified *types.MailFromDomainNotVerifiedException
	if stderrors.As(err, &domainNotVerified) {
		return errors.Permanent(errors.ErrCodeAuthenticationFail, "SES sending domain not verified", err)
	}
	return errors.Transient(errors.ErrCodeProviderError, "SES send failed", err)
}
