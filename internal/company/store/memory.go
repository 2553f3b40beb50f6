package store

import (
	"context"
	"fmt"
	"maps"
	"sync"

	e "github.com/gartstein/companytrigger/internal/company/errors"
)

// Memory is an in-process document store. All operations are serialized by a
// single mutex, so Increment directives never lose updates.
type Memory struct {
	mu   sync.Mutex
	docs map[Ref]map[string]any
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[Ref]map[string]any)}
}

func (m *Memory) Get(ctx context.Context, ref Ref) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[ref]
	if !ok {
		return &Snapshot{Ref: ref}, nil
	}
	return &Snapshot{Ref: ref, Exists: true, Data: maps.Clone(doc)}, nil
}

func (m *Memory) Create(ctx context.Context, ref Ref, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := make(map[string]any, len(fields))
	apply(doc, fields)
	m.docs[ref] = doc
	return nil
}

func (m *Memory) Update(ctx context.Context, ref Ref, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[ref]
	if !ok {
		return fmt.Errorf("%w: %s", e.ErrNotFound, ref)
	}
	apply(doc, fields)
	return nil
}

func (m *Memory) SetMerge(ctx context.Context, ref Ref, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[ref]
	if !ok {
		doc = make(map[string]any, len(fields))
		m.docs[ref] = doc
	}
	apply(doc, fields)
	return nil
}

func (m *Memory) Delete(ctx context.Context, ref Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.docs, ref)
	return nil
}

// apply writes fields into doc, resolving Increment directives against the
// current value. Callers must hold the store lock.
func apply(doc map[string]any, fields map[string]any) {
	for k, v := range fields {
		inc, ok := v.(Increment)
		if !ok {
			doc[k] = v
			continue
		}
		switch cur := doc[k].(type) {
		case nil:
			doc[k] = inc.By
		case int64:
			doc[k] = cur + inc.By
		case int:
			doc[k] = int64(cur) + inc.By
		case float64:
			doc[k] = cur + float64(inc.By)
		default:
			// Non-numeric values are replaced, as document stores do.
			doc[k] = inc.By
		}
	}
}
