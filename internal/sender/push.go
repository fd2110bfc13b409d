package sender

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"strings"
	"time"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/http"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"
)

// PushSender delivers PUSH notifications through an HTTP gateway. The
// recipient field holds the device token.
type PushSender struct {
	client     *http.Client
	gatewayURL string
	apiKey     string
	logger     logger.Logger
}

func NewPushSender(client *http.Client, gatewayURL, apiKey string, log logger.Logger) *PushSender {
	return &PushSender{
		client:     client,
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		logger:     log.WithFields(map[string]interface{}{"sender": "push"}),
	}
}

func (s *PushSender) SupportedChannel() models.Channel {
	return models.ChannelPush
}

func (s *PushSender) IsAvailable() bool {
	return s.client != nil && s.gatewayURL != ""
}

type pushRequest struct {
	DeviceToken string `json:"deviceToken"`
	Title       string `json:"title"`
	Body        string `json:"body"`
}

type pushResponse struct {
	MessageID string `json:"messageId"`
}

func (s *PushSender) Send(ctx context.Context, n *models.Notification) (*SendResult, error) {
	token := strings.TrimSpace(n.Recipient)
	if token == "" {
		return nil, errors.Permanent(errors.ErrCodeRecipientMissing,
			"notification has no device token", nil)
	}

	body, err := json.Marshal(pushRequest{
		DeviceToken: token,
		Title:       n.Title,
		Body:        n.Message,
	})
	if err != nil {
		return nil, errors.Permanent(errors.ErrCodeValidationFailed, "push payload marshal failed", err)
	}

	req, err := nethttp.NewRequest(nethttp.MethodPost, s.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Permanent(errors.ErrCodeValidationFailed, "invalid push gateway request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.DoWithContext(ctx, req)
	if err != nil {
		var netErr net.Error
		if stderrors.As(err, &netErr) && netErr.Timeout() {
			return nil, errors.Transient(errors.ErrCodeProviderTimeout, "push gateway timed out", err)
		}
		return nil, errors.Transient(errors.ErrCodeProviderError, "push gateway unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == nethttp.StatusOK || resp.StatusCode == nethttp.StatusAccepted:
		// fallthrough to decode
	case resp.StatusCode == nethttp.StatusUnauthorized || resp.StatusCode == nethttp.StatusForbidden:
		return nil, errors.Permanentf(errors.ErrCodeAuthenticationFail,
			"push gateway rejected credentials (status %d)", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, errors.Permanentf(errors.ErrCodePermanentFailure,
			"push gateway rejected request (status %d)", resp.StatusCode)
	default:
		return nil, errors.Transientf(errors.ErrCodeProviderError,
			"push gateway error (status %d)", resp.StatusCode)
	}

	var out pushResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		// Delivery succeeded; a malformed response body only costs the id.
		out.MessageID = fmt.Sprintf("push-%d", time.Now().UnixNano())
	}

	s.logger.Info("push delivered", map[string]interface{}{
		"notificationId": n.ID,
		"providerId":     out.MessageID,
	})

	return &SendResult{
		ProviderID:   out.MessageID,
		ProviderName: "push-gateway",
		SentAt:       time.Now().UTC(),
	}, nil
}
