package bench

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
	"github.com/fyrsmithlabs/voxnotes/internal/extraction"
)

// Extractor is the strategy under test.
type Extractor interface {
	Extract(ctx context.Context, transcript string, active []entity.Entity) (entity.ExtractionResult, error)
	Mode() extraction.Mode
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Case     Case            `json:"case"`
	Got      []entity.Type   `json:"got"`
	Strategy entity.Strategy `json:"strategy,omitempty"`
	Elapsed  time.Duration   `json:"elapsedNs"`
	Passed   bool            `json:"passed"`
	Err      error           `json:"-"`
	Error    string          `json:"error,omitempty"`
}

// Report summarizes a run.
type Report struct {
	Mode    extraction.Mode `json:"mode"`
	Results []CaseResult    `json:"results"`
	Passed  int             `json:"passed"`
	Failed  int             `json:"failed"`
	Elapsed time.Duration   `json:"elapsedNs"`
}

// Runner runs cases against one extractor. Each case sees an empty store.
type Runner struct {
	ex     Extractor
	logger *zap.Logger
}

// NewRunner returns a runner. logger may be nil.
func NewRunner(ex Extractor, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{ex: ex, logger: logger}
}

// Run executes cases in order. A failing extraction fails its case only;
// Run returns an error when ctx ends first.
func (r *Runner) Run(ctx context.Context, cases []Case) (Report, error) {
	rep := Report{Mode: r.ex.Mode()}
	start := time.Now()
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		res := r.runCase(ctx, c)
		if res.Passed {
			rep.Passed++
		} else {
			rep.Failed++
		}
		rep.Results = append(rep.Results, res)
	}
	rep.Elapsed = time.Since(start)
	r.logger.Info("benchmark finished",
		zap.String("mode", string(rep.Mode)),
		zap.Int("passed", rep.Passed),
		zap.Int("failed", rep.Failed),
		zap.Duration("elapsed", rep.Elapsed))
	return rep, nil
}

func (r *Runner) runCase(ctx context.Context, c Case) CaseResult {
	start := time.Now()
	result, err := r.ex.Extract(ctx, c.Transcript, nil)
	res := CaseResult{Case: c, Elapsed: time.Since(start), Err: err}
	if err != nil {
		res.Error = err.Error()
		r.logger.Debug("benchmark case errored", zap.String("case", c.Name), zap.Error(err))
		return res
	}
	res.Strategy = result.Strategy
	for _, e := range result.Entities {
		res.Got = append(res.Got, e.Type)
	}
	res.Passed = sameTypes(c.Expect, res.Got)
	return res
}

// sameTypes compares types as multisets.
func sameTypes(want, got []entity.Type) bool {
	if len(want) != len(got) {
		return false
	}
	a, b := slices.Clone(want), slices.Clone(got)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// ByCategory returns passed and total counts per category.
func (rep Report) ByCategory() map[string][2]int {
	out := make(map[string][2]int)
	for _, res := range rep.Results {
		counts := out[res.Case.Category]
		if res.Passed {
			counts[0]++
		}
		counts[1]++
		out[res.Case.Category] = counts
	}
	return out
}

// WriteText writes a per-case table followed by a summary line.
func (rep Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RESULT\tCATEGORY\tCASE\tEXPECTED\tGOT\tSTRATEGY\tTIME")
	for _, res := range rep.Results {
		status := "PASS"
		got := joinTypes(res.Got)
		if !res.Passed {
			status = "FAIL"
		}
		if res.Err != nil {
			got = "error: " + res.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			status, res.Case.Category, res.Case.Name,
			joinTypes(res.Case.Expect), got, res.Strategy,
			res.Elapsed.Round(time.Microsecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	total := rep.Passed + rep.Failed
	_, err := fmt.Fprintf(w, "\n%d/%d passed (%s) in %s, mode %s\n",
		rep.Passed, total, percent(rep.Passed, total), rep.Elapsed.Round(time.Millisecond), rep.Mode)
	return err
}

func joinTypes(types []entity.Type) string {
	if len(types) == 0 {
		return "-"
	}
	s := make([]string, len(types))
	for i, t := range types {
		s[i] = string(t)
	}
	return strings.Join(s, ",")
}

func percent(n, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.0f%%", float64(n)*100/float64(total))
}
