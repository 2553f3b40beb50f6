// Package controller implements the company creation trigger: it derives
// nameInLowerCase and createdAt for a newly created company record and
// increments the aggregate company counter.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	e "github.com/gartstein/companytrigger/internal/company/errors"
	"github.com/gartstein/companytrigger/internal/company/metrics"
	"github.com/gartstein/companytrigger/internal/company/models"
	"github.com/gartstein/companytrigger/internal/company/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// CountsRef is the singleton aggregate counter for companies.
var CountsRef = store.Ref{Collection: models.CountsCollection, ID: models.CountsCompaniesDoc}

// Repository defines the document-store operations the handler needs.
type Repository interface {
	Get(ctx context.Context, ref store.Ref) (*store.Snapshot, error)
	Update(ctx context.Context, ref store.Ref, fields map[string]any) error
	SetMerge(ctx context.Context, ref store.Ref, fields map[string]any) error
}

// CompanyCreateHandler reacts to the creation of a company record.
// It holds no state between invocations and is safe for concurrent use.
type CompanyCreateHandler struct {
	repo   Repository
	logger *zap.Logger
}

// NewCompanyCreateHandler constructs a CompanyCreateHandler.
func NewCompanyCreateHandler(repo Repository, logger *zap.Logger) *CompanyCreateHandler {
	return &CompanyCreateHandler{
		repo:   repo,
		logger: logger.Named("company_create_handler"),
	}
}

// Handle sets createdAt and nameInLowerCase on the created record, if it still
// exists, and increments counts/companies.totalCount. Both writes run
// concurrently and Handle returns only after both have finished.
//
// Handle does not retry. A redelivered event increments the counter again.
func (h *CompanyCreateHandler) Handle(ctx context.Context, snap *store.Snapshot, evCtx models.EventContext) (err error) {
	start := time.Now()
	defer func() {
		metrics.HandlerDuration.Observe(time.Since(start).Seconds())
		metrics.Invocations.WithLabelValues(outcome(err)).Inc()
	}()

	changes, err := deriveChanges(snap, evCtx)
	if err != nil {
		return err
	}

	current, err := h.repo.Get(ctx, snap.Ref)
	if err != nil {
		h.logger.Error("Failed to read created company",
			zap.Error(err),
			zap.String("company", snap.Ref.String()),
		)
		return fmt.Errorf("%w: %w", e.ErrReadFailure, err)
	}

	// No WithContext: a failing write must not cancel the other one.
	var g errgroup.Group
	if current.Exists {
		g.Go(func() error {
			return h.repo.Update(ctx, snap.Ref, changes.Fields())
		})
	} else {
		metrics.RecordUpdatesSkipped.Inc()
		h.logger.Debug("Company no longer exists, skipping update",
			zap.String("company", snap.Ref.String()),
			zap.String("event_id", evCtx.EventID),
		)
	}
	g.Go(func() error {
		return h.repo.SetMerge(ctx, CountsRef, map[string]any{
			models.FieldTotalCount: store.Increment{By: 1},
		})
	})

	if err := g.Wait(); err != nil {
		h.logger.Error("Failed to apply company creation writes",
			zap.Error(err),
			zap.String("company", snap.Ref.String()),
			zap.String("event_id", evCtx.EventID),
		)
		return fmt.Errorf("%w: %w", e.ErrWriteFailure, err)
	}
	return nil
}

// deriveChanges computes the derived fields from the snapshot and event time.
func deriveChanges(snap *store.Snapshot, evCtx models.EventContext) (models.CompanyChanges, error) {
	if snap == nil {
		return models.CompanyChanges{}, fmt.Errorf("%w: nil snapshot", e.ErrInvalidInput)
	}
	createdAt, err := ParseEventTime(evCtx.Timestamp)
	if err != nil {
		return models.CompanyChanges{}, err
	}
	name, ok := snap.String(models.FieldName)
	if !ok {
		return models.CompanyChanges{}, fmt.Errorf("%w: %s has no string %s", e.ErrInvalidInput, snap.Ref, models.FieldName)
	}
	return models.CompanyChanges{
		NameInLowerCase: strings.ToLower(name),
		CreatedAt:       createdAt,
	}, nil
}

// ParseEventTime converts an ISO-8601 event timestamp to the store timestamp type.
func ParseEventTime(ts string) (*timestamppb.Timestamp, error) {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: event timestamp %q: %w", e.ErrInvalidInput, ts, err)
	}
	return timestamppb.New(t), nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, e.ErrInvalidInput):
		return metrics.OutcomeInvalidInput
	case errors.Is(err, e.ErrReadFailure):
		return metrics.OutcomeReadFailure
	default:
		return metrics.OutcomeWriteFailure
	}
}
