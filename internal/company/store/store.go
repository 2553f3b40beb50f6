// Package store defines the document-store operations the creation trigger
// depends on, and an in-memory implementation of them.
package store

import (
	"context"
	"path"
)

// Ref identifies a single document by collection and key.
type Ref struct {
	Collection string
	ID         string
}

// String returns the slash separated document path, e.g. "counts/companies".
func (r Ref) String() string {
	return path.Join(r.Collection, r.ID)
}

// Snapshot is a point-in-time read of a document.
type Snapshot struct {
	Ref    Ref
	Exists bool
	Data   map[string]any
}

// String returns the string value of field, if present and a string.
func (s *Snapshot) String(field string) (string, bool) {
	if s == nil || s.Data == nil {
		return "", false
	}
	v, ok := s.Data[field].(string)
	return v, ok
}

// Increment is a write directive that atomically adds By to a numeric field.
// A field that does not exist yet is created with the value By.
type Increment struct {
	By int64
}

// Store is the subset of a document store used by the trigger and its tooling.
type Store interface {
	// Get reads a document. A missing document is reported through
	// Snapshot.Exists, not as an error.
	Get(ctx context.Context, ref Ref) (*Snapshot, error)
	// Create writes a new document, replacing any previous content.
	Create(ctx context.Context, ref Ref, fields map[string]any) error
	// Update changes only the named fields of an existing document.
	Update(ctx context.Context, ref Ref, fields map[string]any) error
	// SetMerge creates the document if absent and applies fields to it,
	// leaving all other fields untouched.
	SetMerge(ctx context.Context, ref Ref, fields map[string]any) error
	// Delete removes a document.
	Delete(ctx context.Context, ref Ref) error
}
