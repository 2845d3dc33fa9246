package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lanecrest/lanecrest/internal/shared"
)

// maxAttempts bounds how often a reservation is retried after a
// unique-constraint conflict on insert.
const maxAttempts = 3

// ErrExhausted is returned when every allocation attempt collided.
var ErrExhausted = fmt.Errorf("sequence: allocation attempts exhausted: %w", shared.ErrConflict)

// Metrics receives allocator instrumentation events.
type Metrics interface {
	SequenceRetry()
}

// Allocator issues quote numbers. The atomic counter path is authoritative;
// the scan fallback only engages when the counter table is unavailable and
// callers must then expect uniqueness conflicts at insert time.
type Allocator struct {
	repo    Repository
	logger  *slog.Logger
	metrics Metrics
}

// NewAllocator constructs an Allocator.
func NewAllocator(repo Repository, logger *slog.Logger, metrics Metrics) *Allocator {
	return &Allocator{repo: repo, logger: logger, metrics: metrics}
}

// Allocate returns the next number for the tenant/scope at the given time.
// The returned number has passed the advisory uniqueness check; the
// datastore's unique constraint remains the source of truth.
func (a *Allocator) Allocate(ctx context.Context, tenantID uuid.UUID, scope string, format Format, at time.Time) (string, error) {
	if !format.Reset.Valid() {
		return "", fmt.Errorf("sequence: reset policy %q: %w", format.Reset, shared.ErrValidation)
	}

	seq, err := a.repo.NextSeq(ctx, tenantID, scope, format.Reset.Period(at))
	if err != nil {
		if !isUndefinedTable(err) {
			return "", fmt.Errorf("next seq: %w", err)
		}
		// Degraded path: read-then-write over assigned numbers.
		a.logger.Warn("sequence counter unavailable, using scan fallback",
			slog.String("tenant_id", tenantID.String()), slog.String("scope", scope))
		max, scanErr := a.repo.ScanMax(ctx, tenantID, format.PrefixPattern(at))
		if scanErr != nil {
			return "", fmt.Errorf("scan fallback: %w", scanErr)
		}
		seq = max + 1
	}

	number := format.Preview(seq, at)
	unique, err := a.repo.IsUnique(ctx, tenantID, number)
	if err != nil {
		return "", fmt.Errorf("uniqueness check: %w", err)
	}
	if !unique {
		return "", fmt.Errorf("sequence: number %s already assigned: %w", number, shared.ErrConflict)
	}
	return number, nil
}

// PreviewNext renders the number the next allocation would produce without
// advancing the counter. Informational only; a concurrent allocation can
// claim the previewed number at any moment.
func (a *Allocator) PreviewNext(ctx context.Context, tenantID uuid.UUID, scope string, format Format, at time.Time) (string, error) {
	if !format.Reset.Valid() {
		return "", fmt.Errorf("sequence: reset policy %q: %w", format.Reset, shared.ErrValidation)
	}
	seq, err := a.repo.PeekSeq(ctx, tenantID, scope, format.Reset.Period(at))
	if err != nil {
		return "", fmt.Errorf("peek seq: %w", err)
	}
	return format.Preview(seq+1, at), nil
}

// CheckAvailability reports whether the number is still unassigned for the
// tenant. Advisory; the unique constraint remains the source of truth.
func (a *Allocator) CheckAvailability(ctx context.Context, tenantID uuid.UUID, number string) (bool, error) {
	unique, err := a.repo.IsUnique(ctx, tenantID, number)
	if err != nil {
		return false, fmt.Errorf("uniqueness check: %w", err)
	}
	return unique, nil
}

// Reserve allocates a number and hands it to insert, retrying with a fresh
// allocation when the insert reports a uniqueness conflict.
func (a *Allocator) Reserve(ctx context.Context, tenantID uuid.UUID, scope string, format Format, at time.Time, insert func(number string) error) (string, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		number, err := a.Allocate(ctx, tenantID, scope, format, at)
		if err != nil {
			if isConflict(err) && attempt < maxAttempts {
				a.retry(attempt, err)
				continue
			}
			return "", err
		}

		err = insert(number)
		if err == nil {
			return number, nil
		}
		if !isConflict(err) && !shared.IsUniqueViolation(err) {
			return "", err
		}
		if attempt < maxAttempts {
			a.retry(attempt, err)
		}
	}
	return "", ErrExhausted
}

func (a *Allocator) retry(attempt int, err error) {
	if a.metrics != nil {
		a.metrics.SequenceRetry()
	}
	a.logger.Warn("quote number collision, retrying",
		slog.Int("attempt", attempt), slog.Any("error", err))
}

func isConflict(err error) bool {
	return err != nil && (shared.IsUniqueViolation(err) || errors.Is(err, shared.ErrConflict))
}
