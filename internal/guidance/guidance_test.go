package guidance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usher-cli/usher/internal/errs"
	"github.com/usher-cli/usher/internal/steps"
)

func sample() *Guidance {
	g := New("finish")
	g.SnapshotAt = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	g.Bead = "bd-1"
	g.Workspace = "ws1"
	g.Review = "cr-12"
	g.AddSteps("maw ws merge ws1 --destroy", "bd close bd-1")
	g.Diagnostic("review approved by p-security")
	g.Advise("merge and close out bd-1")
	g.SetFreshness(120, "usher finish bd-1")
	return g
}

func TestNewDefaults(t *testing.T) {
	g := New("review")
	assert.Equal(t, Schema, g.Schema)
	assert.Equal(t, StatusReady, g.Status)
	assert.Equal(t, DefaultValidForSec, g.ValidForSec)
	assert.False(t, g.SnapshotAt.IsZero())
	assert.NotNil(t, g.Steps)
	assert.NotNil(t, g.Diagnostics)
}

func TestBlockedSetsStatusAndDiagnostic(t *testing.T) {
	g := New("merge").Blocked("default workspace is stale")
	assert.Equal(t, StatusBlocked, g.Status)
	assert.Equal(t, []string{"default workspace is stale"}, g.Diagnostics)
}

func TestValidateFailsClosed(t *testing.T) {
	g := sample()
	g.Workspace = "ws1; rm -rf /"
	_, err := Render(g, FormatText)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))

	g = sample()
	g.Bead = "$(boom)"
	_, err = Render(g, FormatJSON)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))

	g = sample()
	g.Review = "cr-"
	_, err = Render(g, FormatColor)
	require.Error(t, err)
}

func TestRenderJSONSchemaAndFields(t *testing.T) {
	out, err := Render(sample(), FormatJSON)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "protocol-guidance.v1", decoded["schema"])
	assert.Equal(t, "finish", decoded["command"])
	assert.Equal(t, "ready", decoded["status"])
	assert.Equal(t, "bd-1", decoded["bead"])
	assert.Equal(t, "ws1", decoded["workspace"])
	assert.Equal(t, "cr-12", decoded["review"])
	assert.Equal(t, "usher finish bd-1", decoded["revalidate_cmd"])
	assert.Equal(t, float64(120), decoded["valid_for_sec"])
	assert.Equal(t, false, decoded["executed"])
	assert.Len(t, decoded["steps"], 2)
	assert.Len(t, decoded["diagnostics"], 1)
}

func TestRenderTextShowsEveryPopulatedField(t *testing.T) {
	out, err := Render(sample(), FormatText)
	require.NoError(t, err)

	for _, want := range []string{
		"finish", "ready", "2026-08-28T12:00:00Z", "valid 120s",
		"usher finish bd-1", "bd-1", "ws1", "cr-12",
		"maw ws merge ws1 --destroy", "bd close bd-1",
		"review approved by p-security", "merge and close out bd-1",
	} {
		assert.Contains(t, out, want)
	}
}

func TestRenderColorShowsEveryPopulatedField(t *testing.T) {
	out, err := Render(sample(), FormatColor)
	require.NoError(t, err)
	for _, want := range []string{
		"finish", "ready", "bd-1", "ws1", "cr-12",
		"maw ws merge ws1 --destroy",
		"review approved by p-security", "merge and close out bd-1",
	} {
		assert.Contains(t, out, want)
	}
}

func TestRenderExecutedShowsReportInsteadOfSteps(t *testing.T) {
	g := sample()
	g.AttachReport(steps.Report{
		Results: []steps.StepResult{
			{Command: "maw ws merge ws1 --destroy", Success: true, Stdout: "merged"},
			{Command: "bd close bd-1", Success: false, Stderr: "tracker offline"},
		},
		Remaining: []string{"yell send 'merge completed: ws1'"},
	})

	out, err := Render(g, FormatText)
	require.NoError(t, err)
	assert.Contains(t, out, "Executed")
	assert.Contains(t, out, "[ok] maw ws merge ws1 --destroy")
	assert.Contains(t, out, "[FAILED] bd close bd-1")
	assert.Contains(t, out, "tracker offline")
	assert.Contains(t, out, "Not executed")
	assert.Contains(t, out, "yell send 'merge completed: ws1'")
	assert.NotContains(t, out, "Steps        :")
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"": FormatText, "text": FormatText, "json": FormatJSON, "color": FormatColor, "JSON": FormatJSON,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("yaml")
	assert.Error(t, err)
}
