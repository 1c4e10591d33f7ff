package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/canonical"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
)

const (
	TypePlanCreated = "plan.created"
	TypePlanRefined = "plan.refined"
)

// Event announces a plan that has already been committed to the context store.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Key        models.ContextKey `json:"key"`
	Record     models.PlanRecord `json:"record"`
	OccurredAt time.Time         `json:"occurredAt"`
}

func NewEvent(typ string, key models.ContextKey, rec models.PlanRecord) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Key:        key,
		Record:     rec.Clone(),
		OccurredAt: time.Now().UTC(),
	}
}

// Envelope is the canonical wire form shared by Kafka messages and S3 objects.
func (e Event) Envelope() ([]byte, error) {
	return canonical.Marshal(e)
}

// Publisher accepts committed plan events without blocking the caller.
type Publisher interface {
	Publish(ev Event) bool
}

// Producer is the subset of a message producer the dispatcher needs.
type Producer interface {
	Produce(ctx context.Context, key []byte, value []byte) (producedAt time.Time, err error)
	Close() error
}

// Archiver stores an event envelope and returns where it was written.
type Archiver interface {
	Archive(ctx context.Context, ev Event, body []byte) (string, error)
}
