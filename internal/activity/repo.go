package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2beens/healthtracker/internal/kvstore"
	"github.com/2beens/healthtracker/internal/telemetry/tracing"
)

const (
	statsKeyPrefix      = "healthTracker_stats_"
	activitiesKeyPrefix = "healthTracker_activities_"
)

// Repo reads and writes the dashboard records of one profile.
type Repo struct {
	store kvstore.Store
}

func NewRepo(store kvstore.Store) *Repo {
	return &Repo{
		store: store,
	}
}

// Stats returns the stored stats, found is false when there is no record yet.
func (r *Repo) Stats(ctx context.Context, email string) (_ Stats, found bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "activityRepo.stats")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var stats Stats
	found, err = r.get(ctx, statsKeyPrefix+email, &stats)
	return stats, found, err
}

func (r *Repo) SaveStats(ctx context.Context, email string, stats Stats) error {
	return r.set(ctx, statsKeyPrefix+email, stats)
}

func (r *Repo) Activities(ctx context.Context, email string) (_ []Activity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "activityRepo.activities")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	activities := make([]Activity, 0)
	if _, err := r.get(ctx, activitiesKeyPrefix+email, &activities); err != nil {
		return nil, err
	}
	if activities == nil {
		activities = make([]Activity, 0)
	}
	return activities, nil
}

func (r *Repo) SaveActivities(ctx context.Context, email string, activities []Activity) error {
	return r.set(ctx, activitiesKeyPrefix+email, activities)
}

func (r *Repo) get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: read %s: %w", ErrStorageUnavailable, key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: decode %s: %w", ErrStorageUnavailable, key, err)
	}
	return true, nil
}

func (r *Repo) set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStorageUnavailable, key, err)
	}
	return nil
}
