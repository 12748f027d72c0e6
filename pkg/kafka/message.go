package kafka

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string
}

func newIncomingMessage(msg kafka.Message) *IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &IncomingMessage{
		Key:       string(msg.Key),
		Value:     msg.Value,
		Headers:   headers,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Topic:     msg.Topic,
	}
}

// ParseRunRequest decodes a reconciliation.requested message. The tenant falls back
// to the tenant_id header when the body omits it.
func (m *IncomingMessage) ParseRunRequest() (*models.RunRequest, error) {
	var req models.RunRequest
	if err := json.Unmarshal(m.Value, &req); err != nil {
		return nil, errors.Wrap(err, "invalid run request payload")
	}
	if req.TenantID == "" {
		req.TenantID = m.Headers[HeaderTenantID]
	}
	if strings.TrimSpace(req.WorkspaceID) == "" {
		return nil, errors.New("run request has no workspace_id")
	}
	return &req, nil
}
