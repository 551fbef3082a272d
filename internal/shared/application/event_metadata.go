package application

import (
	"github.com/google/uuid"

	"github.com/subtrackhq/subtrack/internal/shared/domain"
)

// NewEventMetadata creates metadata for events raised on behalf of a user.
// A fresh correlation ID is generated; the causation ID equals the
// correlation ID for the first event in a chain.
func NewEventMetadata(userID uuid.UUID) domain.EventMetadata {
	correlationID := uuid.New()
	return domain.EventMetadata{
		CorrelationID: correlationID,
		CausationID:   correlationID,
		UserID:        userID,
	}
}

// ApplyEventMetadata attaches metadata to every event that supports it.
func ApplyEventMetadata(events []domain.DomainEvent, metadata domain.EventMetadata) {
	type metadataSetter interface {
		SetMetadata(domain.EventMetadata)
	}

	for _, event := range events {
		if setter, ok := event.(metadataSetter); ok {
			setter.SetMetadata(metadata)
		}
	}
}
