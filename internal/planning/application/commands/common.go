package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	notificationApp "github.com/felixgeelhaar/tempo/internal/notification/application"
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	sharedApplication "github.com/felixgeelhaar/tempo/internal/shared/application"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/lock"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/tempo/pkg/observability"
	"github.com/google/uuid"
)

// CalendarMirror copies a plan's windows to an external calendar. It
// handles its own failures.
type CalendarMirror interface {
	MirrorPlan(ctx context.Context, plan *domain.Plan)
}

// Notifier sends best-effort nudges.
type Notifier interface {
	Notify(ctx context.Context, msg notificationApp.Message)
}

// Clock returns the current time. Handlers use time.Now when nil.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

func locationOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// planDate is the calendar day of at in loc, or of date when set.
func planDate(date, at time.Time, loc *time.Location) time.Time {
	if !date.IsZero() {
		return domain.NormalizeDate(date)
	}
	return domain.NormalizeDate(at.In(loc))
}

// acquirePlan serializes writers of one plan. A wait that runs out is a
// retryable concurrent modification.
func acquirePlan(ctx context.Context, locker lock.Locker, metrics observability.Metrics, userID uuid.UUID, date time.Time) (func(), error) {
	if locker == nil {
		return func() {}, nil
	}
	release, err := locker.Acquire(ctx, lock.PlanKey(userID.String(), date))
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			metrics.Counter(observability.MetricLockConflicts, 1)
			return nil, fmt.Errorf("%w: %v", domain.ErrConcurrentModification, err)
		}
		return nil, err
	}
	return release, nil
}

// saveEvents writes the plan's pending events to the outbox in the
// current unit of work.
func saveEvents(ctx context.Context, repo outbox.Repository, plan *domain.Plan, userID uuid.UUID) error {
	events := plan.DomainEvents()
	if len(events) == 0 {
		return nil
	}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, userID))

	msgs, err := outbox.FromEvents(events)
	if err != nil {
		return err
	}
	if err := repo.SaveBatch(ctx, msgs); err != nil {
		return err
	}
	plan.ClearDomainEvents()
	return nil
}

func loadPlan(ctx context.Context, repo domain.PlanRepository, userID uuid.UUID, date time.Time) (*domain.Plan, error) {
	plan, err := repo.FindByUserAndDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlanNotFound, date.Format(time.DateOnly))
	}
	return plan, nil
}
