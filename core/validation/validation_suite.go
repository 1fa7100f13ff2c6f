package validation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"srdash/core"
)

// StepStatus is the outcome of one suite step.
type StepStatus int

const (
	StepPassed StepStatus = iota
	StepFailed
	StepWarning
	StepSkipped
)

func (s StepStatus) String() string {
	switch s {
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Step is one executed check.
type Step struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// SuiteResult collects every step. Success is false only when a step
// failed; warnings do not fail the suite.
type SuiteResult struct {
	Steps    []Step
	Passed   int
	Failed   int
	Warnings int
	Skipped  int
	Duration time.Duration
	Success  bool
}

// FirstError returns the error of the first failed step.
func (r SuiteResult) FirstError() error {
	for _, s := range r.Steps {
		if s.Status == StepFailed && s.Error != nil {
			return s.Error
		}
	}
	return nil
}

// Summary is a one-line description of the result.
func (r SuiteResult) Summary() string {
	verdict := "Passed"
	if !r.Success {
		verdict = "Failed"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Validation %s: %d/%d checks passed", verdict, r.Passed, len(r.Steps))
	if r.Failed > 0 {
		fmt.Fprintf(&sb, ", %d failed", r.Failed)
	}
	if r.Warnings > 0 {
		fmt.Fprintf(&sb, ", %d warnings", r.Warnings)
	}
	fmt.Fprintf(&sb, " (took %v)", r.Duration.Round(time.Millisecond))
	return sb.String()
}

// Suite runs the startup checks in order and prints coloured progress.
type Suite struct {
	cfg          *core.Config
	config       *ConfigValidator
	connectivity *ConnectivityChecker
	output       io.Writer
	timeout      time.Duration
	showProgress bool
	failFast     bool
}

// NewSuite builds the suite for cfg.
func NewSuite(cfg *core.Config, envPath string) *Suite {
	return &Suite{
		cfg:          cfg,
		config:       NewConfigValidator(cfg, envPath),
		connectivity: NewConnectivityChecker(core.GetHTTPClient(cfg, 10*time.Second)),
		output:       os.Stdout,
		timeout:      10 * time.Second,
		showProgress: true,
	}
}

// WithOutput redirects progress output.
func (s *Suite) WithOutput(w io.Writer) *Suite {
	s.output = w
	return s
}

// WithShowProgress toggles progress output.
func (s *Suite) WithShowProgress(show bool) *Suite {
	s.showProgress = show
	return s
}

// WithFailFast stops at the first failed step.
func (s *Suite) WithFailFast(failFast bool) *Suite {
	s.failFast = failFast
	return s
}

// WithTimeout bounds the backend probe.
func (s *Suite) WithTimeout(timeout time.Duration) *Suite {
	s.timeout = timeout
	return s
}

// WithConnectivityChecker replaces the backend prober.
func (s *Suite) WithConnectivityChecker(c *ConnectivityChecker) *Suite {
	s.connectivity = c
	return s
}

type check struct {
	name string
	fn   func() Result
}

func (s *Suite) configChecks() []check {
	return []check{
		{"Configuration Source", s.config.CheckConfigSource},
		{"Backend URL", s.config.CheckBackendURL},
		{"Dashboard Access", s.config.CheckDashboardAuth},
		{"Pipeline Presets", s.config.CheckPipelines},
		{"History Storage", s.config.CheckHistoryStorage},
	}
}

// Validate runs the configuration checks and then probes the backend. An
// unreachable backend only warns: the simulations run without it.
func (s *Suite) Validate(ctx context.Context) SuiteResult {
	return s.run(ctx, "Dashboard Configuration Validation", true)
}

// ValidateQuick runs the configuration checks only.
func (s *Suite) ValidateQuick() SuiteResult {
	return s.run(context.Background(), "Quick Configuration Check", false)
}

func (s *Suite) run(ctx context.Context, title string, probe bool) SuiteResult {
	begin := time.Now()
	if s.showProgress {
		s.printHeader(title)
	}

	var steps []Step
	stopped := false
	for _, c := range s.configChecks() {
		step := s.runStep(c.name, c.fn)
		steps = append(steps, step)
		if s.failFast && step.Status == StepFailed {
			stopped = true
			break
		}
	}

	if probe && !stopped {
		if failed(steps) {
			steps = append(steps, s.skip("Backend Connectivity", "Skipped due to configuration errors"))
		} else {
			steps = append(steps, s.runStep("Backend Connectivity", func() Result {
				probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
				defer cancel()
				r := s.connectivity.CheckBackend(probeCtx, s.cfg.APIURL)
				return Result{Valid: true, Warning: !r.Healthy, Message: r.Message, Error: r.Error}
			}))
		}
	}

	result := buildResult(steps, time.Since(begin))
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func failed(steps []Step) bool {
	for _, st := range steps {
		if st.Status == StepFailed {
			return true
		}
	}
	return false
}

func (s *Suite) runStep(name string, fn func() Result) Step {
	if s.showProgress {
		fmt.Fprintf(s.output, "  ◌ %s...", name)
	}
	begin := time.Now()
	r := fn()
	step := Step{Name: name, Message: r.Message, Error: r.Error, Latency: time.Since(begin)}
	switch {
	case !r.Valid:
		step.Status = StepFailed
	case r.Warning:
		step.Status = StepWarning
	default:
		step.Status = StepPassed
	}
	if s.showProgress {
		s.printStep(step)
	}
	return step
}

func (s *Suite) skip(name, msg string) Step {
	step := Step{Name: name, Status: StepSkipped, Message: msg}
	if s.showProgress {
		s.printStep(step)
	}
	return step
}

func buildResult(steps []Step, d time.Duration) SuiteResult {
	r := SuiteResult{Steps: steps, Duration: d, Success: true}
	for _, st := range steps {
		switch st.Status {
		case StepPassed:
			r.Passed++
		case StepFailed:
			r.Failed++
			r.Success = false
		case StepWarning:
			r.Warnings++
		case StepSkipped:
			r.Skipped++
		}
	}
	return r
}

func (s *Suite) printHeader(title string) {
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

func (s *Suite) printStep(step Step) {
	icon, clr := "?", color.New(color.FgWhite)
	switch step.Status {
	case StepPassed:
		icon, clr = "✓", color.New(color.FgGreen)
	case StepFailed:
		icon, clr = "✗", color.New(color.FgRed)
	case StepWarning:
		icon, clr = "!", color.New(color.FgYellow)
	case StepSkipped:
		icon, clr = "○", color.New(color.FgHiBlack)
	}

	fmt.Fprint(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Status == StepFailed && step.Error != nil {
		color.New(color.FgRed).Fprintf(s.output, "    └─ %s\n", step.Error)
	}
	if step.Status == StepWarning && step.Error != nil {
		var cfgErr *core.ConfigError
		if errors.As(step.Error, &cfgErr) && cfgErr.Action != "" {
			color.New(color.FgYellow).Fprintf(s.output, "    └─ %s\n", cfgErr.Action)
		}
	}
}

func (s *Suite) printSummary(r SuiteResult) {
	fmt.Fprintln(s.output)
	if r.Success {
		c := color.New(color.FgGreen, color.Bold)
		c.Fprint(s.output, "━━━ Validation Passed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d checks passed, %d warnings, %v)",
			r.Passed, len(r.Steps), r.Warnings, r.Duration.Round(time.Millisecond))
		c.Fprintln(s.output, " ━━━")
	} else {
		c := color.New(color.FgRed, color.Bold)
		c.Fprint(s.output, "━━━ Validation Failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)", r.Passed, r.Failed)
		c.Fprintln(s.output, " ━━━")
	}
	fmt.Fprintln(s.output)
}
