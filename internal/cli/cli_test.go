package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Help(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{nil, {"-h"}, {"--help"}, {"help"}} {
		out := &bytes.Buffer{}

		cmd, shouldExit, err := Parse(args, out)

		require.NoError(t, err)
		assert.True(t, shouldExit)
		assert.Nil(t, cmd)
		assert.Contains(t, out.String(), "Usage:")
	}
}

func TestParse_Run(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	args := []string{"run",
		"-scene", "scene.json",
		"-output", "bakes",
		"-job", "hero, villain,",
		"-log-format", "JSON",
		"-log-level", "Debug",
		"-healthcheck-port", "8081",
		"jobs/",
	}

	// --- Act ---
	cmd, shouldExit, err := Parse(args, &bytes.Buffer{})

	// --- Assert ---
	require.NoError(t, err)
	assert.False(t, shouldExit)
	require.NotNil(t, cmd)
	assert.Equal(t, CommandRun, cmd.Name)
	assert.Equal(t, "jobs/", cmd.Config.JobPath)
	assert.Equal(t, "scene.json", cmd.Config.ScenePath)
	assert.Equal(t, "bakes", cmd.Config.OutputRoot)
	assert.Equal(t, []string{"hero", "villain"}, cmd.Config.Jobs)
	assert.Equal(t, "json", cmd.Config.LogFormat)
	assert.Equal(t, "debug", cmd.Config.LogLevel)
	assert.Equal(t, 8081, cmd.Config.HealthcheckPort)
}

func TestParse_RunWithoutJobPathPrintsUsage(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	cmd, shouldExit, err := Parse([]string{"run", "-scene", "scene.json"}, out)

	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cmd)
	assert.Contains(t, out.String(), "-healthcheck-port")
}

func TestParse_CleanupNeedsNoJobPath(t *testing.T) {
	t.Parallel()

	cmd, shouldExit, err := Parse([]string{"cleanup", "-scene", "scene.json", "-jobs", "jobs/"}, &bytes.Buffer{})

	require.NoError(t, err)
	assert.False(t, shouldExit)
	assert.Equal(t, CommandCleanup, cmd.Name)
	assert.Equal(t, "jobs/", cmd.Config.JobPath)
	assert.Equal(t, "scene.json", cmd.Config.ScenePath)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown command", args: []string{"bake"}, want: `unknown command "bake"`},
		{name: "unknown flag", args: []string{"run", "-bogus"}, want: "flag provided but not defined: -bogus"},
		{name: "log format", args: []string{"status", "-log-format", "xml"}, want: "invalid log-format"},
		{name: "log level", args: []string{"status", "-log-level", "loud"}, want: "invalid log-level"},
		{name: "missing scene", args: []string{"run", "jobs/"}, want: "ScenePath is a required"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := Parse(tc.args, &bytes.Buffer{})

			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr), "got %v", err)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.want)
		})
	}
}
