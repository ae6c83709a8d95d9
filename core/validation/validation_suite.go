package validation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"postforge/core"
)

// ValidationStep is one startup check and its outcome.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// StepStatus is the outcome of a validation step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the lowercase status name.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
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

// SuiteResult aggregates all steps.
type SuiteResult struct {
	Steps       []ValidationStep
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// ValidationSuite runs the startup checks for a loaded configuration and
// prints colored progress.
//
// Example:
//
//	result := validation.NewValidationSuite(cfg).Validate(ctx)
//	if !result.Success {
//	    os.Exit(core.ExitCodeConfigError)
//	}
type ValidationSuite struct {
	cfg          *core.Config
	output       io.Writer
	envPath      string
	httpClient   *http.Client
	checkNetwork bool
	showProgress bool
}

// NewValidationSuite creates a suite writing to stdout.
func NewValidationSuite(cfg *core.Config) *ValidationSuite {
	return &ValidationSuite{
		cfg:          cfg,
		output:       os.Stdout,
		envPath:      ".env",
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		showProgress: true,
	}
}

// WithOutput redirects progress output.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithEnvPath sets the .env path to look for.
func (s *ValidationSuite) WithEnvPath(path string) *ValidationSuite {
	s.envPath = path
	return s
}

// WithNetworkChecks enables the text endpoint reachability check.
func (s *ValidationSuite) WithNetworkChecks(client *http.Client) *ValidationSuite {
	s.checkNetwork = true
	if client != nil {
		s.httpClient = client
	}
	return s
}

// WithShowProgress toggles progress output.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

type check struct {
	name string
	fn   func(ctx context.Context) (StepStatus, string, error)
}

// Validate runs every check in order.
func (s *ValidationSuite) Validate(ctx context.Context) SuiteResult {
	start := time.Now()
	if s.showProgress {
		s.printHeader("postforge configuration check")
	}

	checks := []check{
		{"Environment file", s.checkEnvFile},
		{"Text provider", s.checkTextProvider},
		{"Image providers", s.checkImageProviders},
		{"Output directory", s.checkOutputDir},
		{"Database directory", s.checkDatabaseDir},
		{"Render engine", s.checkRenderEngine},
	}
	if s.checkNetwork {
		checks = append(checks, check{"Text endpoint reachability", s.checkTextEndpoint})
	}

	steps := make([]ValidationStep, 0, len(checks))
	for _, c := range checks {
		stepStart := time.Now()
		status, msg, err := c.fn(ctx)
		step := ValidationStep{Name: c.name, Status: status, Message: msg, Error: err, Latency: time.Since(stepStart)}
		steps = append(steps, step)
		if s.showProgress {
			s.printStep(step)
		}
	}

	result := buildResult(steps, start)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func (s *ValidationSuite) checkEnvFile(context.Context) (StepStatus, string, error) {
	if err := CheckFileExists(s.envPath); err != nil {
		return StepWarning, "not found, using process environment", nil
	}
	return StepPassed, s.envPath, nil
}

func (s *ValidationSuite) checkTextProvider(context.Context) (StepStatus, string, error) {
	if s.cfg.TextBaseURL != "" {
		if err := ValidateEndpointURL(s.cfg.TextBaseURL); err != nil {
			return StepFailed, "TEXT_BASE_URL is invalid", err
		}
	}
	if s.cfg.OpenAIAPIKey == "" && s.cfg.TextBaseURL == "" {
		return StepFailed, "no credentials", core.ErrMissingAuth("text generation", "OPENAI_API_KEY")
	}
	return StepPassed, "models: " + strings.Join(s.cfg.TextModels, ", "), nil
}

func (s *ValidationSuite) checkImageProviders(context.Context) (StepStatus, string, error) {
	if !s.cfg.HasImageProvider() {
		return StepWarning, "none configured, posts will render without images", nil
	}
	if err := s.cfg.ValidateImageProviders(); err != nil {
		return StepFailed, s.cfg.ImageProviderList(), err
	}
	return StepPassed, s.cfg.ImageProviderList(), nil
}

func (s *ValidationSuite) checkOutputDir(context.Context) (StepStatus, string, error) {
	if err := CheckDirWritable(s.cfg.OutputDir); err != nil {
		return StepFailed, s.cfg.OutputDir, err
	}
	return StepPassed, s.cfg.OutputDir, nil
}

func (s *ValidationSuite) checkDatabaseDir(context.Context) (StepStatus, string, error) {
	dir := filepath.Dir(s.cfg.DatabasePath)
	if err := CheckDirWritable(dir); err != nil {
		return StepFailed, dir, err
	}
	return StepPassed, s.cfg.DatabasePath, nil
}

func (s *ValidationSuite) checkRenderEngine(context.Context) (StepStatus, string, error) {
	if s.cfg.DefaultEngine != string(core.EngineBrowser) {
		return StepPassed, s.cfg.DefaultEngine, nil
	}
	path, err := FindChrome(s.cfg.ChromePath)
	if err != nil {
		return StepWarning, "browser engine selected but Chrome was not found", err
	}
	return StepPassed, "browser via " + path, nil
}

func (s *ValidationSuite) checkTextEndpoint(ctx context.Context) (StepStatus, string, error) {
	base := s.cfg.TextBaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/models", nil)
	if err != nil {
		return StepFailed, base, err
	}
	if s.cfg.OpenAIAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.OpenAIAPIKey)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return StepFailed, base, err
	}
	defer resp.Body.Close()

	msg := fmt.Sprintf("%s (HTTP %d, %v)", base, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return StepFailed, msg, fmt.Errorf("credentials rejected")
	case resp.StatusCode >= 500:
		return StepWarning, msg, nil
	default:
		return StepPassed, msg, nil
	}
}

func buildResult(steps []ValidationStep, start time.Time) SuiteResult {
	result := SuiteResult{Steps: steps, Duration: time.Since(start), Success: true}
	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}
	return result
}

func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

func (s *ValidationSuite) printStep(step ValidationStep) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon, clr = "✓", color.New(color.FgGreen)
	case StepFailed:
		icon, clr = "✗", color.New(color.FgRed)
	case StepWarning:
		icon, clr = "!", color.New(color.FgYellow)
	default:
		icon, clr = "○", color.New(color.FgHiBlack)
	}

	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Error != nil && step.Status != StepPassed {
		clr.Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *ValidationSuite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)
	if result.Success {
		ok := color.New(color.FgGreen, color.Bold)
		ok.Fprintf(s.output, "━━━ Configuration OK ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d warnings in %v)",
			result.PassedSteps, result.Warnings, result.Duration.Round(time.Millisecond))
		ok.Fprintln(s.output, " ━━━")
	} else {
		fail := color.New(color.FgRed, color.Bold)
		fail.Fprintf(s.output, "━━━ Configuration invalid ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		fail.Fprintln(s.output, " ━━━")
	}
	fmt.Fprintln(s.output)
}

// FirstError returns the first failed step's error, or nil.
func (r SuiteResult) FirstError() error {
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			return step.Error
		}
	}
	return nil
}
