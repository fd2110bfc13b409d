package sender

import (
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"
)

// Registry maps channels to senders. The mapping is built once at
// construction and never mutated, so lookups are safe from any goroutine.
type Registry struct {
	senders map[models.Channel]Sender
	logger  logger.Logger
}

func NewRegistry(log logger.Logger, senders ...Sender) *Registry {
	byChannel := make(map[models.Channel]Sender, len(senders))
	for _, s := range senders {
		channel := s.SupportedChannel()
		if _, dup := byChannel[channel]; dup {
			log.Warn("duplicate sender registration ignored", map[string]interface{}{
				"channel": string(channel),
			})
			continue
		}
		byChannel[channel] = s
		log.Info("sender registered", map[string]interface{}{
			"channel":   string(channel),
			"available": s.IsAvailable(),
		})
	}
	return &Registry{senders: byChannel, logger: log}
}

// GetSender returns the sender for a channel, or false when no sender is
// registered or the registered one reports itself unavailable.
func (r *Registry) GetSender(channel models.Channel) (Sender, bool) {
	s, ok := r.senders[channel]
	if !ok || !s.IsAvailable() {
		return nil, false
	}
	return s, true
}

// Channels lists the channels with a registered sender, available or not.
func (r *Registry) Channels() []models.Channel {
	out := make([]models.Channel, 0, len(r.senders))
	for channel := range r.senders {
		out = append(out, channel)
	}
	return out
}
