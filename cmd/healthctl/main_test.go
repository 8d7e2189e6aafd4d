package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/2beens/healthtracker/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubPasswords feeds the given answers to the password prompt, in order.
func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	original := readPassword
	t.Cleanup(func() { readPassword = original })

	readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more passwords")
		}
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
}

func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--db", dbPath, "--scheme", session.CredentialSchemePlain}, args...))
	err := root.Execute()
	return stdout.String(), err
}

func TestHealthctl_SessionLifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "healthtracker.db")

	out, err := run(t, dbPath, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "not signed in\n", out)

	stubPasswords(t, "Secret123!", "Secret123!")
	out, err = run(t, dbPath, "register", "--email", "ana@example.com", "--name", "Ana")
	require.NoError(t, err)
	assert.Equal(t, "registered ana@example.com (password strength: strong)\n", out)

	// the session survives a new process
	out, err = run(t, dbPath, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "email:          ana@example.com\n")
	assert.Contains(t, out, "calorie goal:   2500\n")
	assert.Contains(t, out, "water goal:     8\n")
	assert.Contains(t, out, "fitness level:  beginner\n")

	out, err = run(t, dbPath, "update-profile", "--weight", "71.5", "--fitness-level", "advanced")
	require.NoError(t, err)
	assert.Contains(t, out, "weight:         71.5\n")
	assert.Contains(t, out, "fitness level:  advanced\n")
	assert.Contains(t, out, "name:           Ana\n")

	out, err = run(t, dbPath, "logout")
	require.NoError(t, err)
	assert.Equal(t, "signed out\n", out)

	out, err = run(t, dbPath, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "not signed in\n", out)

	stubPasswords(t, "wrong-secret")
	_, err = run(t, dbPath, "login", "--email", "ana@example.com")
	assert.ErrorIs(t, err, session.ErrInvalidCredentials)

	stubPasswords(t, "Secret123!")
	out, err = run(t, dbPath, "login", "--email", "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "signed in as ana@example.com\n", out)

	out, err = run(t, dbPath, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "weight:         71.5\n")
}

func TestHealthctl_RegisterRejections(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "healthtracker.db")

	stubPasswords(t, "Secret123!", "Other123!")
	_, err := run(t, dbPath, "register", "--email", "ana@example.com", "--name", "Ana")
	assert.ErrorIs(t, err, session.ErrInvalidRequest)

	stubPasswords(t, "short", "short")
	_, err = run(t, dbPath, "register", "--email", "ana@example.com", "--name", "Ana")
	assert.ErrorIs(t, err, session.ErrInvalidRequest)

	stubPasswords(t, "Secret123!", "Secret123!")
	_, err = run(t, dbPath, "register", "--email", "ana@example.com", "--name", "Ana")
	require.NoError(t, err)

	stubPasswords(t, "Secret123!", "Secret123!")
	_, err = run(t, dbPath, "register", "--email", "ana@example.com", "--name", "Ana Again")
	assert.ErrorIs(t, err, session.ErrDuplicateAccount)
}

func TestHealthctl_UpdateProfileNeedsSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "healthtracker.db")

	_, err := run(t, dbPath, "update-profile", "--weight", "80")
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)

	_, err = run(t, dbPath, "update-profile", "--fitness-level", "elite")
	assert.ErrorIs(t, err, session.ErrInvalidRequest)
}

func TestHealthctl_UpdateProfileRejectsNonFiniteWeight(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "healthtracker.db")

	stubPasswords(t, "Secret123!", "Secret123!")
	_, err := run(t, dbPath, "register", "--email", "ana@example.com", "--name", "Ana")
	require.NoError(t, err)

	for _, weight := range []string{"NaN", "+Inf", "-Inf"} {
		_, err = run(t, dbPath, "update-profile", "--weight", weight)
		assert.ErrorIs(t, err, session.ErrInvalidRequest, weight)
		assert.NotErrorIs(t, err, session.ErrStorageUnavailable, weight)
	}

	out, err := run(t, dbPath, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "weight:         0\n")
}

func TestHealthctl_UnknownScheme(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "x.db"), "--scheme", "rot13", "logout"})
	assert.Error(t, root.Execute())
}
