package harness

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redfish-harness/internal/output"
)

func sampleReport() *Report {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &Report{
		RunID:      "5f0c6d4e-3b59-4a39-9d1b-3f1f7a9f86a1",
		Endpoint:   "https://bmc.example:2443",
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Results: []Result{
			{Name: CheckServiceAvailability, Status: StatusPassed, Duration: 12 * time.Millisecond, Observed: "RedfishVersion 1.17.0"},
			{Name: CheckAuthentication, Status: StatusFailed, Duration: time.Second, Message: "session creation failed"},
			{Name: CheckTokenValidation, Status: StatusSkipped, Message: "authentication failed"},
		},
	}
}

func TestReportCounts(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, 1, r.Failed())
	assert.Equal(t, 1, r.Skipped())

	res, ok := r.Result(CheckAuthentication)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, res.Status)

	_, ok = r.Result(CheckPowerControl)
	assert.False(t, ok)
}

func TestReportRenderText(t *testing.T) {
	var buf bytes.Buffer
	f := output.New(output.FormatText)
	f.SetWriter(&buf)
	require.NoError(t, f.Output(sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "Run 5f0c6d4e-3b59-4a39-9d1b-3f1f7a9f86a1 against https://bmc.example:2443")
	assert.Contains(t, out, "CHECK")
	assert.Contains(t, out, "RedfishVersion 1.17.0")
	assert.Contains(t, out, "FAILED: 1 passed, 1 failed, 1 skipped in 1.5s")
}

func TestReportRenderTextPassed(t *testing.T) {
	r := sampleReport()
	r.Results = r.Results[:1]
	r.Passed = true

	var buf bytes.Buffer
	require.NoError(t, r.RenderText(&buf))
	assert.Contains(t, buf.String(), "PASSED: 1 passed, 0 failed, 0 skipped")
}

func TestReportJSON(t *testing.T) {
	var buf bytes.Buffer
	f := output.New(output.FormatJSON)
	f.SetWriter(&buf)
	require.NoError(t, f.Output(sampleReport()))

	var decoded struct {
		RunID   string `json:"run_id"`
		Passed  bool   `json:"passed"`
		Results []struct {
			Name       string `json:"name"`
			Status     string `json:"status"`
			DurationMS int64  `json:"duration_ms"`
			Observed   string `json:"observed"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, "5f0c6d4e-3b59-4a39-9d1b-3f1f7a9f86a1", decoded.RunID)
	assert.False(t, decoded.Passed)
	require.Len(t, decoded.Results, 3)
	assert.Equal(t, "service_availability", decoded.Results[0].Name)
	assert.Equal(t, int64(12), decoded.Results[0].DurationMS)
	assert.Equal(t, "skipped", decoded.Results[2].Status)
}

func TestReportYAML(t *testing.T) {
	var buf bytes.Buffer
	f := output.New(output.FormatYAML)
	f.SetWriter(&buf)
	require.NoError(t, f.Output(sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "run_id: 5f0c6d4e-3b59-4a39-9d1b-3f1f7a9f86a1")
	assert.Contains(t, out, "duration_ms: 1000")
	assert.Contains(t, out, "status: skipped")
	assert.NotContains(t, out, "duration: ")
}
