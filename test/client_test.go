//go:build integration

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/2beens/healthtracker/internal/middleware"
	"github.com/2beens/healthtracker/internal/misc"

	"github.com/stretchr/testify/require"
)

// profileClient talks to the running server as one browser profile.
type profileClient struct {
	t          *testing.T
	httpClient *http.Client
	profileID  string
	token      string
}

func (s *IntegrationTestSuite) newProfile(ctx context.Context) *profileClient {
	t := s.T()
	c := &profileClient{t: t, httpClient: s.httpClient}

	resp, body := c.do(ctx, "POST", "/profile/new", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	var profile misc.NewProfileResponse
	require.NoError(t, json.Unmarshal([]byte(body), &profile))
	require.NotEmpty(t, profile.Token)
	c.profileID = profile.ProfileID
	c.token = profile.Token
	return c
}

func (c *profileClient) do(ctx context.Context, method, path, body string) (*http.Response, string) {
	c.t.Helper()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s%s", serverEndpoint, path), reqBody)
	require.NoError(c.t, err)
	req.Header.Set("User-Agent", "test-agent")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(middleware.ProfileTokenHeader, c.token)
	}

	resp, err := c.httpClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, strings.TrimSpace(string(respBytes))
}
