package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	api "github.com/fyrsmithlabs/taskstack/internal/http"
	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"github.com/fyrsmithlabs/taskstack/internal/manager"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startController(t *testing.T) (*manager.Manager, string) {
	t.Helper()
	tm, err := manager.New(nil, manager.WithRobotState(kinematics.NewTestState()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tm.Close() })

	srv, err := api.NewServer(tm, zap.NewNop(), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return tm, ts.URL
}

// resetFlags restores every flag to its default so runs do not leak state
// through the package-level command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--server", server}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHealth(t *testing.T) {
	_, url := startController(t)

	out, err := execute(t, url, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Tasks:      0")
	assert.Contains(t, out, "Server URL: "+url)
}

func TestTasks(t *testing.T) {
	ctx := context.Background()
	tm, url := startController(t)

	out, err := execute(t, url, "tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No tasks registered.")

	_, err = execute(t, url, "tasks", "set", "j1", "-p", "1", "--active", "--monitored",
		"--def", "TDefJntConfig link1 0", "--dyn", "TDynFirstOrder 1")
	require.NoError(t, err)

	tasks, err := tm.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, uint(1), tasks[0].Priority)
	assert.True(t, tasks[0].Active)
	assert.Equal(t, []string{"TDefJntConfig", "link1", "0"}, tasks[0].Definition)

	out, err = execute(t, url, "tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "j1")
	assert.Contains(t, out, "TDynFirstOrder 1")

	t.Run("toggles", func(t *testing.T) {
		_, err := execute(t, url, "tasks", "deactivate", "j1")
		require.NoError(t, err)
		_, err = execute(t, url, "tasks", "demonitor", "j1")
		require.NoError(t, err)
		tasks, err := tm.ListTasks(ctx)
		require.NoError(t, err)
		assert.False(t, tasks[0].Active)
		assert.False(t, tasks[0].Monitored)

		_, err = execute(t, url, "levels", "activate", "1")
		require.NoError(t, err)
		tasks, err = tm.ListTasks(ctx)
		require.NoError(t, err)
		assert.True(t, tasks[0].Active)
	})

	t.Run("flags do not leak between runs", func(t *testing.T) {
		_, err := execute(t, url, "tasks", "set", "home", "--def", "TDefFullPose", "--dyn", "TDynFirstOrder 1")
		require.NoError(t, err)
		tasks, err := tm.ListTasks(ctx)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, "home", tasks[0].Name)
		assert.False(t, tasks[0].Active)
	})

	t.Run("remove", func(t *testing.T) {
		_, err := execute(t, url, "tasks", "rm")
		require.Error(t, err)

		_, err = execute(t, url, "tasks", "rm", "ghost")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status -2")

		_, err = execute(t, url, "levels", "rm", "1")
		require.NoError(t, err)
		_, err = execute(t, url, "tasks", "rm", "--all")
		require.NoError(t, err)
		tasks, err := tm.ListTasks(ctx)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})
}

func TestTasks_RejectsBadInput(t *testing.T) {
	_, url := startController(t)

	_, err := execute(t, url, "tasks", "set", "x", "--dyn", "TDynFirstOrder 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "def")

	_, err = execute(t, url, "levels", "activate", "-1")
	require.Error(t, err)

	_, err = execute(t, url, "tasks", "set", "x", "--def", "TDefNope", "--dyn", "TDynFirstOrder 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status -1")
}

func TestPrimitives(t *testing.T) {
	ctx := context.Background()
	tm, url := startController(t)

	_, err := execute(t, url, "primitives", "set", "floor", "--kind", "plane", "--params", "0 0 2 0",
		"--visible", "--color", "0.2,0.8,0.2,1")
	require.NoError(t, err)

	prims, err := tm.ListPrimitives(ctx)
	require.NoError(t, err)
	require.Len(t, prims, 1)

	out, err := execute(t, url, "prims", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "floor")
	assert.Contains(t, out, "plane")
	assert.Contains(t, out, "world")

	_, err = execute(t, url, "primitives", "set", "bad", "--kind", "sphere", "--params", "1 x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--params")

	_, err = execute(t, url, "render")
	require.NoError(t, err)

	_, err = execute(t, url, "primitives", "rm", "floor")
	require.NoError(t, err)
	_, err = execute(t, url, "primitives", "rm", "--all")
	require.NoError(t, err)
}

func TestMeasures(t *testing.T) {
	_, url := startController(t)

	out, err := execute(t, url, "measures")
	require.NoError(t, err)
	assert.Contains(t, out, "No monitored tasks.")

	_, err = execute(t, url, "tasks", "set", "j1", "--active", "--monitored",
		"--def", "TDefJntConfig link1 0", "--dyn", "TDynFirstOrder 1")
	require.NoError(t, err)

	out, err = execute(t, url, "measures")
	require.NoError(t, err)
	assert.Contains(t, out, "j1")
	assert.Contains(t, out, "0.3")
}

func TestStackApply(t *testing.T) {
	ctx := context.Background()
	tm, url := startController(t)

	path := filepath.Join(t.TempDir(), "stack.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[task]]
name = "home"
active = true
definition = ["TDefFullPose"]
dynamics = ["TDynFirstOrder", "1"]
`), 0o600))

	out, err := execute(t, url, "stack", "apply", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Stack applied")

	tasks, err := tm.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	rootCmd.SetIn(strings.NewReader("replace = true\n"))
	t.Cleanup(func() { rootCmd.SetIn(nil) })
	_, err = execute(t, url, "stack", "apply", "-")
	require.NoError(t, err)
	tasks, err = tm.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = execute(t, url, "stack", "apply", filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestParseFloats(t *testing.T) {
	got, err := parseFloats("1, 2 3.5")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3.5}, got)

	got, err = parseFloats("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseFloats("1 two")
	assert.Error(t, err)
}
