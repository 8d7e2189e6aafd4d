//go:build integration

package test

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/2beens/healthtracker/internal/kvstore"
	"github.com/2beens/healthtracker/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registerAnn = `{
	"email": "ann@example.com",
	"password": "Secret123!",
	"confirmPassword": "Secret123!",
	"fullName": "Ann"
}`

type sessionResponse struct {
	IsAuthenticated  bool             `json:"isAuthenticated"`
	Session          *session.Session `json:"session"`
	PasswordStrength string           `json:"passwordStrength"`
}

func (s *IntegrationTestSuite) kvEntry(key string) ([]byte, bool) {
	t := s.T()
	var value []byte
	err := s.DB.QueryRow(`SELECT value FROM kv_entry WHERE key = $1`, key).Scan(&value)
	if err != nil {
		require.ErrorContains(t, err, "no rows")
		return nil, false
	}
	return value, true
}

func (s *IntegrationTestSuite) TestSessionLifecycle() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := s.newProfile(ctx)
	namespace := kvstore.ProfileNamespace(client.profileID)

	resp, body := client.do(ctx, "GET", "/a/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"isAuthenticated":false,"session":null}`, body)

	resp, body = client.do(ctx, "POST", "/a/register", registerAnn)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	var registered sessionResponse
	require.NoError(t, json.Unmarshal([]byte(body), &registered))
	require.NotNil(t, registered.Session)
	assert.Equal(t, "ann@example.com", registered.Session.Email)
	assert.Equal(t, session.DefaultDailyCalorieGoal, registered.Session.DailyCalorieGoal)
	assert.Equal(t, session.DefaultDailyWaterGoal, registered.Session.DailyWaterGoal)
	assert.Equal(t, session.FitnessLevelBeginner, registered.Session.FitnessLevel)
	assert.Equal(t, "strong", registered.PasswordStrength)

	// both records landed in postgres, and the stored credential is not the secret
	catalog, ok := s.kvEntry(namespace + "::" + session.CatalogKey)
	require.True(t, ok)
	assert.Contains(t, string(catalog), `"ann@example.com"`)
	assert.NotContains(t, string(catalog), "Secret123!")
	assert.Contains(t, string(catalog), `"credentialScheme":"bcrypt"`)
	_, ok = s.kvEntry(namespace + "::" + session.SessionKey)
	require.True(t, ok)

	resp, body = client.do(ctx, "POST", "/a/register", registerAnn)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, body)

	resp, body = client.do(ctx, "PUT", "/a/profile", `{"currentWeight": 64.5, "fitnessLevel": "intermediate"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, `"currentWeight":64.5`)
	assert.Contains(t, body, `"fitnessLevel":"intermediate"`)

	resp, _ = client.do(ctx, "POST", "/a/logout", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, ok = s.kvEntry(namespace + "::" + session.SessionKey)
	assert.False(t, ok)

	// signing out twice is fine
	resp, _ = client.do(ctx, "POST", "/a/logout", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = client.do(ctx, "PUT", "/a/profile", `{"currentWeight": 70}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = client.do(ctx, "POST", "/a/login", `{"email":"ann@example.com","password":"wrong-secret"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = client.do(ctx, "POST", "/a/login", `{"email":"nobody@example.com","password":"Secret123!"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = client.do(ctx, "POST", "/a/login", `{"email":"ann@example.com","password":"Secret123!"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, `"currentWeight":64.5`)
}

func (s *IntegrationTestSuite) TestDashboardAndChat() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := s.newProfile(ctx)

	resp, _ := client.do(ctx, "GET", "/dashboard", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := client.do(ctx, "POST", "/a/register", registerAnn)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	resp, body = client.do(ctx, "POST", "/dashboard/actions/workout", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	resp, body = client.do(ctx, "GET", "/dashboard", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, `"workouts":1`)

	resp, body = client.do(ctx, "POST", "/chat", `{"message":"what should I eat after a workout"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, `"topic":"workout"`)
}

func (s *IntegrationTestSuite) TestProfilesAreIsolated() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := s.newProfile(ctx)
	second := s.newProfile(ctx)
	require.NotEqual(t, first.profileID, second.profileID)

	resp, body := first.do(ctx, "POST", "/a/register", registerAnn)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	resp, _ = second.do(ctx, "POST", "/a/login", `{"email":"ann@example.com","password":"Secret123!"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = second.do(ctx, "GET", "/a/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"isAuthenticated":false,"session":null}`, body)
}

func (s *IntegrationTestSuite) TestLoginRateLimit() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := s.newProfile(ctx)
	// register and login share one limit per client ip, leave a clean slate for the other tests
	defer func() {
		require.NoError(t, s.redisClient.FlushDB(context.Background()).Err())
	}()

	limited := false
	for i := 0; i <= testLoginRateLimitPerMin; i++ {
		resp, _ := client.do(ctx, "POST", "/a/login", `{"email":"ann@example.com","password":"guess"}`)
		if resp.StatusCode == http.StatusTooEarly {
			limited = true
			break
		}
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	assert.True(t, limited)
}
