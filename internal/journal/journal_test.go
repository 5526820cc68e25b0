package journal

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usher-cli/usher/internal/steps"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndShowRoundTrip(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()

	report := steps.Report{
		Results: []steps.StepResult{
			{Command: "maw ws create --random", Success: true, Stdout: "Creating workspace 'frost-castle'"},
			{Command: "stakes stake --agent a workspace://p/frost-castle", Success: false, Stderr: "contended"},
		},
		Remaining: []string{"echo skipped"},
	}

	runID, err := j.Record(ctx, "start", "bd-1", "a", report)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	run, rows, err := j.Show(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "start", run.Command)
	assert.Equal(t, "bd-1", run.Bead)
	assert.Equal(t, "a", run.Agent)
	assert.True(t, run.Halted)
	assert.Equal(t, 2, run.StepCount)

	require.Len(t, rows, 2)
	assert.True(t, rows[0].Success)
	assert.Contains(t, rows[0].Stdout, "frost-castle")
	assert.False(t, rows[1].Success)
	assert.Equal(t, "contended", rows[1].Stderr)
}

func TestListNewestFirst(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := j.Record(ctx, "cleanup", "", "a", steps.Report{Remaining: []string{}})
		require.NoError(t, err)
	}

	runs, err := j.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, "cleanup", r.Command)
		assert.False(t, r.Halted)
	}
}

func TestShowUnknownRun(t *testing.T) {
	j := openTest(t)

	_, _, err := j.Show(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such run")
}

func TestOutputTruncated(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()

	long := strings.Repeat("x", outputCap*2)
	runID, err := j.Record(ctx, "merge", "", "a", steps.Report{
		Results:   []steps.StepResult{{Command: "noisy", Success: true, Stdout: long}},
		Remaining: []string{},
	})
	require.NoError(t, err)

	_, rows, err := j.Show(ctx, runID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Stdout, outputCap)
}
