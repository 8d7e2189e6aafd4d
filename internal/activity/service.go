package activity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/2beens/healthtracker/internal/kvstore"
	"github.com/2beens/healthtracker/internal/session"
)

var (
	ErrUnknownAction      = errors.New("unknown dashboard action")
	ErrStorageUnavailable = errors.New("activity storage unavailable")
)

type Service struct {
	// quick actions are read-modify-write on the profile records
	mutex sync.Mutex

	// ability to inject the clock (for unit testing)
	Clock func() time.Time
}

func NewService() *Service {
	return &Service{
		Clock: time.Now,
	}
}

// Dashboard loads the stats and feed of the signed in account. Without stored stats
// all counters start at zero and the weight is the one from the profile.
func (s *Service) Dashboard(ctx context.Context, store kvstore.Store, current session.Session) (Dashboard, error) {
	repo := NewRepo(store)
	stats, err := s.stats(ctx, repo, current)
	if err != nil {
		return Dashboard{}, err
	}

	activities, err := repo.Activities(ctx, current.Email)
	if err != nil {
		return Dashboard{}, err
	}

	return Dashboard{
		Stats:      stats,
		Activities: activities,
	}, nil
}

// Apply runs a quick action: it updates the stats and prepends the matching activity to the feed.
func (s *Service) Apply(ctx context.Context, store kvstore.Store, current session.Session, action Action) (Dashboard, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return Dashboard{}, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	repo := NewRepo(store)
	stats, err := s.stats(ctx, repo, current)
	if err != nil {
		return Dashboard{}, err
	}
	activities, err := repo.Activities(ctx, current.Email)
	if err != nil {
		return Dashboard{}, err
	}

	newActivity := action.apply(&stats, s.Clock().UTC())
	activities = prepend(activities, newActivity)

	if err := repo.SaveStats(ctx, current.Email, stats); err != nil {
		return Dashboard{}, err
	}
	if err := repo.SaveActivities(ctx, current.Email, activities); err != nil {
		return Dashboard{}, err
	}

	return Dashboard{
		Stats:      stats,
		Activities: activities,
	}, nil
}

func (s *Service) stats(ctx context.Context, repo *Repo, current session.Session) (Stats, error) {
	stats, found, err := repo.Stats(ctx, current.Email)
	if err != nil {
		return Stats{}, err
	}
	if !found {
		return Stats{Weight: current.CurrentWeight}, nil
	}
	return stats, nil
}
