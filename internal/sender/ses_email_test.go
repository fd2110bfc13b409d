package sender

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
)

type fakeSES struct {
	input *ses.SendEmailInput
	out   *ses.SendEmailOutput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	f.input = input
	return f.out, f.err
}

func TestSESSendSuccess(t *testing.T) {
	api := &fakeSES{out: &ses.SendEmailOutput{MessageId: aws.String("ses-123")}}
	s := NewSESEmailSender(api, "noreply@example.com", logger.NewNoOpLogger())

	res, err := s.Send(context.Background(), emailNotification())
	require.NoError(t, err)
	assert.Equal(t, "ses-123", res.ProviderID)
	assert.Equal(t, "ses", res.ProviderName)

	require.NotNil(t, api.input)
	assert.Equal(t, "noreply@example.com", aws.ToString(api.input.Source))
	assert.Equal(t, []string{"user@example.com"}, api.input.Destination.ToAddresses)
}

func TestSESRejectionIsPermanent(t *testing.T) {
	api := &fakeSES{err: &types.MessageRejected{}}
	s := NewSESEmailSender(api, "noreply@example.com", logger.NewNoOpLogger())

	_, err := s.Send(context.Background(), emailNotification())
	assert.True(t, errors.IsPermanent(err))
	assert.Equal(t, errors.ErrCodePermanentFailure, errors.CodeOf(err))
}

func TestSESGenericFailureIsTransient(t *testing.T) {
	api := &fakeSES{err: stderrors.New("throttling: rate exceeded")}
	s := NewSESEmailSender(api, "noreply@example.com", logger.NewNoOpLogger())

	_, err := s.Send(context.Background(), emailNotification())
	assert.True(t, errors.IsTransient(err))
}

func TestSESMissingRecipientIsPermanent(t *testing.T) {
	api := &fakeSES{}
	s := NewSESEmailSender(api, "noreply@example.com", logger.NewNoOpLogger())

	n := emailNotification()
	n.RecipientEmail = ""
	_, err := s.Send(context.Background(), n)
	assert.True(t, errors.IsPermanent(err))
	assert.Nil(t, api.input)
}
