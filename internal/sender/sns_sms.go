package sender

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"
)

// snsAPI is the slice of the SNS client the sender uses.
type snsAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// SNSSMSSender delivers SMS notifications through Amazon SNS. The recipient
// field is expected to hold an E.164 phone number.
type SNSSMSSender struct {
	client   snsAPI
	senderID string
	logger   logger.Logger
}

func NewSNSSMSSender(client snsAPI, senderID string, log logger.Logger) *SNSSMSSender {
	return &SNSSMSSender{
		client:   client,
		senderID: senderID,
		logger:   log.WithFields(map[string]interface{}{"sender": "sns"}),
	}
}

func (s *SNSSMSSender) SupportedChannel() models.Channel {
	return models.ChannelSMS
}

func (s *SNSSMSSender) IsAvailable() bool {
	return s.client != nil
}

func (s *SNSSMSSender) Send(ctx context.Context, n *models.Notification) (*SendResult, error) {
	phone := strings.TrimSpace(n.Recipient)
	if phone == "" {
		return nil, errors.Permanent(errors.ErrCodeRecipientMissing,
			"notification has no recipient phone number", nil)
	}
	if !strings.HasPrefix(phone, "+") {
		return nil, errors.Permanentf(errors.ErrCodeRecipientMissing,
			"recipient %q is not an E.164 phone number", phone)
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(fmt.Sprintf("%s: %s", n.Title, n.Message)),
	}
	if s.senderID != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(s.senderID),
			},
		}
	}

	out, err := s.client.Publish(ctx, input)
	if err != nil {
		return nil, classifySNSError(err)
	}

	s.logger.Info("sms delivered", map[string]interface{}{
		"notificationId": n.ID,
		"providerId":     aws.ToString(out.MessageId),
	})

	return &SendResult{
		ProviderID:   aws.ToString(out.MessageId),
		ProviderName: "sns",
		SentAt:       time.Now().UTC(),
	}, nil
}

func classifySNSError(err error) error {
	var invalid *types.InvalidParameterException
	if stderrors.As(err, &invalid) {
		return errors.Permanent(errors.ErrCodePermanentFailure, "SNS rejected the publish parameters", err)
	}
	var authErr *types.AuthorizationErrorException
	if stderrors.As(err, &authErr) {
		return errors.Permanent(errors.ErrCodeAuthenticationFail, "SNS authorization failed", err)
	}
	return errors.Transient(errors.ErrCodeProviderError, "SNS publish failed", err)
}
