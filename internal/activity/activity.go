// Package activity keeps the per-account dashboard: stat counters and a short feed
// of recent activities, stored next to the session records of the profile.
package activity

import (
	"fmt"
	"strconv"
	"time"
)

const (
	// MaxFeedSize is how many activities the feed keeps, newest first.
	MaxFeedSize = 10

	mealCalories = 300
	weightStep   = 0.5
)

type Type string

const (
	TypeWorkout   Type = "workout"
	TypeNutrition Type = "nutrition"
	TypeProgress  Type = "progress"
	TypeWater     Type = "water"
)

type Stats struct {
	Workouts int     `json:"workouts"`
	Calories int     `json:"calories"`
	Weight   float64 `json:"weight"`
	Water    int     `json:"water"`
}

type Activity struct {
	Type        Type      `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

type Dashboard struct {
	Stats      Stats      `json:"stats"`
	Activities []Activity `json:"activities"`
}

// Action is one of the dashboard quick actions.
type Action string

const (
	ActionWorkout Action = "workout"
	ActionMeal    Action = "meal"
	ActionWeight  Action = "weight"
	ActionWater   Action = "water"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionWorkout, ActionMeal, ActionWeight, ActionWater:
		return a, nil
	}
	return "", fmt.Errorf("%w: [%s]", ErrUnknownAction, s)
}

// apply updates the stats for the action and describes what happened.
func (a Action) apply(stats *Stats, now time.Time) Activity {
	switch a {
	case ActionWorkout:
		stats.Workouts++
		return Activity{
			Type:        TypeWorkout,
			Title:       "Started New Workout",
			Description: "Session in progress...",
			Timestamp:   now,
		}
	case ActionMeal:
		stats.Calories += mealCalories
		return Activity{
			Type:        TypeNutrition,
			Title:       "Logged Meal",
			Description: fmt.Sprintf("%d calories added", mealCalories),
			Timestamp:   now,
		}
	case ActionWeight:
		stats.Weight += weightStep
		return Activity{
			Type:        TypeProgress,
			Title:       "Weight Updated",
			Description: fmt.Sprintf("New weight: %s kg", strconv.FormatFloat(stats.Weight, 'f', -1, 64)),
			Timestamp:   now,
		}
	case ActionWater:
		stats.Water++
		return Activity{
			Type:        TypeWater,
			Title:       "Drank Water",
			Description: fmt.Sprintf("Total: %d cups today", stats.Water),
			Timestamp:   now,
		}
	}
	panic(fmt.Sprintf("unhandled dashboard action %q", a))
}

// prepend adds the activity to the front of the feed and trims it to MaxFeedSize.
func prepend(feed []Activity, a Activity) []Activity {
	updated := make([]Activity, 0, MaxFeedSize)
	updated = append(updated, a)
	updated = append(updated, feed...)
	if len(updated) > MaxFeedSize {
		updated = updated[:MaxFeedSize]
	}
	return updated
}
