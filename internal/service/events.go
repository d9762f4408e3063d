package service

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Event subjects published by the evaluation pipeline. Consumers (the UI
// layer, notification fan-out) subscribe outside this service.
const (
	SubjectEvaluationCompleted = "stepflow.evaluation.completed"
	SubjectEvaluationFailed    = "stepflow.evaluation.failed"
)

// EventPublisher emits best-effort notifications about evaluation outcomes.
type EventPublisher interface {
	Publish(subject string, payload interface{}) error
}

// NewNATSPublisher wraps a NATS connection as an EventPublisher.
func NewNATSPublisher(conn *nats.Conn) EventPublisher {
	return &natsPublisher{conn: conn}
}

type natsPublisher struct {
	conn *nats.Conn
}

func (p *natsPublisher) Publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	return p.conn.Publish(subject, data)
}
