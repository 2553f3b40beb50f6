// Package events carries document creation events from Kafka to the creation
// trigger, and publishes them for records created by this service's tooling.
package events

import (
	"time"

	"github.com/gartstein/companytrigger/internal/company/models"
	"github.com/gartstein/companytrigger/internal/company/store"
	"github.com/google/uuid"
)

type EventType string

const (
	CompanyCreated EventType = "company_created"
)

// TimestampLayout is the ISO-8601 form used for event timestamps, with
// millisecond precision and a Z suffix for UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Resource names the document an event refers to.
type Resource struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// Event is the wire envelope of a document creation notification.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp string         `json:"timestamp"`
	Resource  Resource       `json:"resource"`
	Value     map[string]any `json:"value"`
}

// NewCompanyCreated builds the creation event of a company record.
func NewCompanyCreated(id string, value map[string]any, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      CompanyCreated,
		Timestamp: at.UTC().Format(TimestampLayout),
		Resource:  Resource{Collection: models.CompaniesCollection, ID: id},
		Value:     value,
	}
}

// Ref returns the store reference of the event's document.
func (ev Event) Ref() store.Ref {
	return store.Ref{Collection: ev.Resource.Collection, ID: ev.Resource.ID}
}

// Snapshot returns the document as it was at creation time.
func (ev Event) Snapshot() *store.Snapshot {
	return &store.Snapshot{Ref: ev.Ref(), Exists: true, Data: ev.Value}
}

// Context returns the delivery metadata passed to the handler.
func (ev Event) Context() models.EventContext {
	return models.EventContext{EventID: ev.ID, Timestamp: ev.Timestamp}
}

// IsCompanyCreation reports whether the event should reach the creation trigger.
func (ev Event) IsCompanyCreation() bool {
	return ev.Type == CompanyCreated && ev.Resource.Collection == models.CompaniesCollection
}
