package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
)

// Event is one decoded message of the snapshot topic: either a snapshot to
// store or the removal of an entity.
type Event struct {
	Snapshot *models.EntitySnapshot
	Deleted  bool
	EntityID uuid.UUID
}

// envelope is the JSON shape of a message value. A snapshot carrying
// "deleted": true removes the entity instead of storing it.
type envelope struct {
	models.EntitySnapshot
	Deleted bool `json:"deleted,omitempty"`
}

// DecodeMessage decodes a topic message. An empty value is a Kafka tombstone
// whose key holds the entity id.
func DecodeMessage(msg kafka.Message) (*Event, error) {
	if len(bytes.TrimSpace(msg.Value)) == 0 {
		id, err := uuid.ParseBytes(bytes.TrimSpace(msg.Key))
		if err != nil {
			return nil, fmt.Errorf("%w: tombstone key %q is not an entity id", apperrors.ErrInvalidArgument, msg.Key)
		}
		return &Event{Deleted: true, EntityID: id}, nil
	}

	var env envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, fmt.Errorf("%w: failed to decode snapshot: %v", apperrors.ErrInvalidArgument, err)
	}
	if env.ID == uuid.Nil {
		return nil, apperrors.InvalidArgument("snapshot id", "is missing")
	}

	if env.Deleted {
		return &Event{Deleted: true, EntityID: env.ID}, nil
	}
	snapshot := env.EntitySnapshot
	return &Event{Snapshot: &snapshot, EntityID: env.ID}, nil
}
