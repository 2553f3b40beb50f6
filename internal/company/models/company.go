// Package models defines the document layout of company records and the
// aggregate counter record, as seen by the creation trigger.
package models

import (
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Collection and document names.
const (
	CompaniesCollection = "companies"
	CountsCollection    = "counts"
	CountsCompaniesDoc  = "companies"
)

// Field names as stored in the document store.
const (
	FieldName            = "name"
	FieldNameInLowerCase = "nameInLowerCase"
	FieldCreatedAt       = "createdAt"
	FieldTotalCount      = "totalCount"
)

// Company is a record of the companies collection.
type Company struct {
	// ID is the opaque document key.
	ID string
	// Name is set by the creator before the trigger runs.
	Name string
	// NameInLowerCase is derived from Name by the trigger.
	NameInLowerCase string
	// CreatedAt is the notification time of the creation event.
	CreatedAt *timestamppb.Timestamp
}

// CompanyChanges holds the derived fields written back to a company record.
type CompanyChanges struct {
	NameInLowerCase string
	CreatedAt       *timestamppb.Timestamp
}

// Fields returns the changes as a partial-update field map.
func (c CompanyChanges) Fields() map[string]any {
	return map[string]any{
		FieldNameInLowerCase: c.NameInLowerCase,
		FieldCreatedAt:       c.CreatedAt,
	}
}

// EventContext carries the delivery metadata of a trigger invocation.
type EventContext struct {
	// EventID identifies the delivery; redeliveries reuse it.
	EventID string
	// Timestamp is the ISO-8601 notification time of the event.
	Timestamp string
}
