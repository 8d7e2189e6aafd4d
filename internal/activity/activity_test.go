package activity

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParseAction(t *testing.T) {
	for _, s := range []string{"workout", "meal", "weight", "water"} {
		a, err := ParseAction(s)
		require.NoError(t, err)
		assert.Equal(t, Action(s), a)
	}

	_, err := ParseAction("nap")
	assert.ErrorIs(t, err, ErrUnknownAction)
	_, err = ParseAction("")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestAction_Apply(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	stats := Stats{Workouts: 2, Calories: 1000, Weight: 75, Water: 5}

	a := ActionWorkout.apply(&stats, now)
	assert.Equal(t, 3, stats.Workouts)
	assert.Equal(t, Activity{Type: TypeWorkout, Title: "Started New Workout", Description: "Session in progress...", Timestamp: now}, a)

	a = ActionMeal.apply(&stats, now)
	assert.Equal(t, 1300, stats.Calories)
	assert.Equal(t, TypeNutrition, a.Type)
	assert.Equal(t, "Logged Meal", a.Title)
	assert.Equal(t, "300 calories added", a.Description)

	a = ActionWeight.apply(&stats, now)
	assert.Equal(t, 75.5, stats.Weight)
	assert.Equal(t, TypeProgress, a.Type)
	assert.Equal(t, "Weight Updated", a.Title)
	assert.Equal(t, "New weight: 75.5 kg", a.Description)

	a = ActionWeight.apply(&stats, now)
	assert.Equal(t, "New weight: 76 kg", a.Description)

	a = ActionWater.apply(&stats, now)
	assert.Equal(t, 6, stats.Water)
	assert.Equal(t, TypeWater, a.Type)
	assert.Equal(t, "Drank Water", a.Title)
	assert.Equal(t, "Total: 6 cups today", a.Description)
}

func TestPrepend_KeepsTenNewest(t *testing.T) {
	var feed []Activity
	for i := 0; i < 15; i++ {
		feed = prepend(feed, Activity{Title: fmt.Sprintf("a%d", i)})
		assert.LessOrEqual(t, len(feed), MaxFeedSize)
	}

	require.Len(t, feed, MaxFeedSize)
	assert.Equal(t, "a14", feed[0].Title)
	assert.Equal(t, "a5", feed[MaxFeedSize-1].Title)
}
