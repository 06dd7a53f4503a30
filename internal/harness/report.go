package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// Status is the outcome of one check
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result is the outcome of one check
type Result struct {
	Name     string        `json:"name" yaml:"name"`
	Status   Status        `json:"status" yaml:"status"`
	Duration time.Duration `json:"-" yaml:"-"`
	Message  string        `json:"message,omitempty" yaml:"message,omitempty"`
	Observed string        `json:"observed,omitempty" yaml:"observed,omitempty"`
}

type encodedResult struct {
	Name       string `json:"name" yaml:"name"`
	Status     Status `json:"status" yaml:"status"`
	DurationMS int64  `json:"duration_ms" yaml:"duration_ms"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
	Observed   string `json:"observed,omitempty" yaml:"observed,omitempty"`
}

func (r Result) encoded() encodedResult {
	return encodedResult{
		Name:       r.Name,
		Status:     r.Status,
		DurationMS: r.Duration.Milliseconds(),
		Message:    r.Message,
		Observed:   r.Observed,
	}
}

// MarshalJSON reports the duration in milliseconds
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.encoded())
}

// MarshalYAML reports the duration in milliseconds
func (r Result) MarshalYAML() (interface{}, error) {
	return r.encoded(), nil
}

// Report collects the results of one harness run
type Report struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	Endpoint   string    `json:"endpoint" yaml:"endpoint"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Results    []Result  `json:"results" yaml:"results"`
	Passed     bool      `json:"passed" yaml:"passed"`
}

// Failed returns the number of failed results
func (r *Report) Failed() int {
	return r.count(StatusFailed)
}

// Skipped returns the number of skipped results
func (r *Report) Skipped() int {
	return r.count(StatusSkipped)
}

// Result returns the result for the named check
func (r *Report) Result(name string) (Result, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return Result{}, false
}

func (r *Report) count(status Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// RenderText writes the report as a table followed by a summary line
func (r *Report) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "Run %s against %s\n\n", r.RunID, r.Endpoint)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHECK\tSTATUS\tDURATION\tOBSERVED\tMESSAGE")
	for _, res := range r.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			res.Name,
			res.Status,
			res.Duration.Round(time.Millisecond),
			dash(res.Observed),
			dash(res.Message),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	verdict := "PASSED"
	if !r.Passed {
		verdict = "FAILED"
	}
	passed := len(r.Results) - r.Failed() - r.Skipped()
	_, err := fmt.Fprintf(w, "\n%s: %d passed, %d failed, %d skipped in %s\n",
		verdict, passed, r.Failed(), r.Skipped(), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	return err
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
