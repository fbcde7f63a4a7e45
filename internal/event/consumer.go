package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/recordsearch/pkg/kafka"

	"github.com/utafrali/recordsearch/internal/domain"
	"github.com/utafrali/recordsearch/internal/service"
)

// Kafka topics for record mutations in the canonical store.
const (
	TopicRecordUpserted = "platform.record.upserted"
	TopicRecordDeleted  = "platform.record.deleted"
)

// RecordDeletedData is the payload of a record.deleted event.
type RecordDeletedData struct {
	ID         string `json:"id"`
	EntityName string `json:"entityName"`
	EntityType string `json:"entityType"`
}

// Consumer feeds record-mutation events into the trusted index write path.
type Consumer struct {
	searchService *service.Service
	logger        *slog.Logger
}

// NewConsumer creates an event consumer for the search service.
func NewConsumer(searchService *service.Service, logger *slog.Logger) *Consumer {
	return &Consumer{
		searchService: searchService,
		logger:        logger,
	}
}

// Handle dispatches a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicRecordUpserted:
		return c.handleRecordUpserted(ctx, event)
	case TopicRecordDeleted:
		return c.handleRecordDeleted(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handleRecordUpserted indexes the mutated record.
func (c *Consumer) handleRecordUpserted(ctx context.Context, event *pkgkafka.Event) error {
	var record domain.Record
	if err := json.Unmarshal(event.Data, &record); err != nil {
		return fmt.Errorf("unmarshal record.upserted data: %w", err)
	}

	if err := c.searchService.UpsertRecord(ctx, record); err != nil {
		return fmt.Errorf("index record from upserted event: %w", err)
	}

	c.logger.InfoContext(ctx, "indexed record from upserted event",
		slog.String("record_id", record.StringField("id")),
		slog.String("entity_name", record.StringField("entityName")),
	)

	return nil
}

// handleRecordDeleted removes the record from its indices.
func (c *Consumer) handleRecordDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data RecordDeletedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal record.deleted data: %w", err)
	}

	if err := c.searchService.DeleteRecord(ctx, data.EntityName, data.EntityType, data.ID); err != nil {
		return fmt.Errorf("delete record from deleted event: %w", err)
	}

	c.logger.InfoContext(ctx, "deleted record from deleted event",
		slog.String("record_id", data.ID),
	)

	return nil
}
