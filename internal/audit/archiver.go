// Package audit archives the event stream into Elasticsearch for long-term
// querying. The stream itself stays the source of truth; the archiver is a
// read-side projection and can lag or restart without affecting dispatch.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/messaging"
	"notification-dispatch/internal/messaging/queue"
)

// indexer is the slice of the Elasticsearch API the archiver uses.
type indexer interface {
	Do(ctx context.Context, req esapi.Request) (*esapi.Response, error)
}

// ESIndexer adapts the elasticsearch client to the indexer interface.
type ESIndexer struct {
	transport esapi.Transport
}

func NewESIndexer(transport esapi.Transport) *ESIndexer {
	return &ESIndexer{transport: transport}
}

func (t *ESIndexer) Do(ctx context.Context, req esapi.Request) (*esapi.Response, error) {
	return req.Do(ctx, t.transport)
}

// Archiver consumes the events topic and writes each event as one document.
type Archiver struct {
	es     indexer
	index  string
	logger logger.Logger
}

func NewArchiver(es indexer, index string, log logger.Logger) *Archiver {
	return &Archiver{
		es:     es,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "audit_archiver"}),
	}
}

// Handle indexes one event. Indexing failures leave the message unacked so
// the event is retried instead of lost.
func (a *Archiver) Handle(ctx context.Context, d *queue.Delivery) error {
	var event messaging.Event
	if err := json.Unmarshal(d.Payload, &event); err != nil {
		a.logger.WithError(err).Error("dropping malformed event", map[string]interface{}{
			"messageId": d.MessageID,
		})
		return d.Ack(ctx)
	}

	doc, err := json.Marshal(event)
	if err != nil {
		a.logger.WithError(err).Error("dropping unserializable event", map[string]interface{}{
			"notificationId": event.NotificationID,
		})
		return d.Ack(ctx)
	}

	// One deterministic document per stream entry keeps redeliveries from
	// producing duplicates.
	docID := fmt.Sprintf("%s-%s-%d", d.Topic, d.MessageID, d.Partition)

	req := esapi.IndexRequest{
		Index:      a.index,
		DocumentID: docID,
		Body:       bytes.NewReader(doc),
	}
	res, err := a.es.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("index event %s: %w", event.NotificationID, err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.IsError() {
		return fmt.Errorf("index event %s: %s", event.NotificationID, res.Status())
	}

	a.logger.Debug("event archived", map[string]interface{}{
		"notificationId": event.NotificationID,
		"eventType":      string(event.EventType),
	})
	return d.Ack(ctx)
}
