package aggregator

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-reporter/types"
	"github.com/ethereum/go-ethereum/log"
)

const (
	// DefaultSlowTestThreshold marks a test as slow past this many milliseconds.
	DefaultSlowTestThreshold = 1000.0

	// DefaultMaxSlowTests caps the slowest-test list in the report.
	DefaultMaxSlowTests = 10
)

// Aggregator turns raw runner reports into normalized ones. It is stateless
// across runs; every Aggregate call builds a fresh report.
type Aggregator struct {
	log               log.Logger
	projectDir        string
	environment       string
	buildID           string
	ci                bool
	slowTestThreshold float64
	maxSlowTests      int
	defaultCategory   types.TestCategory
	categoryPatterns  map[types.TestCategory][]string
	thresholds        types.CoverageThresholds
}

// Config holds configuration for creating a new aggregator
type Config struct {
	Log         log.Logger
	ProjectDir  string // where the version manifest and git worktree live
	Environment string // environment name stamped into build metadata
	BuildID     string
	CI          bool

	// SlowTestThreshold is in milliseconds; zero means the default.
	SlowTestThreshold float64
	// MaxSlowTests caps the slowest-test list; zero means the default.
	MaxSlowTests int

	// DefaultCategory is assigned when no pattern matches a suite path.
	DefaultCategory types.TestCategory
	// CategoryPatterns adds custom substring matches ahead of the built-in
	// path heuristics.
	CategoryPatterns map[types.TestCategory][]string

	Thresholds types.CoverageThresholds
}

// New creates a new aggregator instance
func New(cfg Config) *Aggregator {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = "."
	}
	if cfg.SlowTestThreshold <= 0 {
		cfg.SlowTestThreshold = DefaultSlowTestThreshold
	}
	if cfg.MaxSlowTests <= 0 {
		cfg.MaxSlowTests = DefaultMaxSlowTests
	}
	if cfg.DefaultCategory == "" {
		cfg.DefaultCategory = types.CategoryUnknown
	}

	return &Aggregator{
		log:               cfg.Log,
		projectDir:        cfg.ProjectDir,
		environment:       cfg.Environment,
		buildID:           cfg.BuildID,
		ci:                cfg.CI,
		slowTestThreshold: cfg.SlowTestThreshold,
		maxSlowTests:      cfg.MaxSlowTests,
		defaultCategory:   cfg.DefaultCategory,
		categoryPatterns:  cfg.CategoryPatterns,
		thresholds:        cfg.Thresholds,
	}
}

// Aggregate normalizes one raw report. Metadata collection failures degrade
// to defaults; only malformed input or an internal panic makes this fail,
// and then always as an AggregationError.
func (a *Aggregator) Aggregate(raw *types.RawExecutionReport, startTime time.Time) (report *types.NormalizedReport, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			a.log.Error("Panic during aggregation", "error", rec)
			report = nil
			err = NewAggregationError(fmt.Errorf("runtime error: %v", rec))
		}
	}()

	if raw == nil {
		return nil, NewAggregationError(fmt.Errorf("raw report is nil"))
	}

	suites := make([]types.NormalizedSuite, 0, len(raw.TestResults))
	for _, rawSuite := range raw.TestResults {
		suites = append(suites, a.normalizeSuite(rawSuite))
	}

	coverage := a.buildCoverageData(raw.CoverageMap, suites)
	perf, warnings := a.buildPerformanceMetrics(suites, coverage)
	warnings = append(warnings, a.coverageWarnings(coverage)...)

	report = &types.NormalizedReport{
		Summary:            a.buildSummary(raw, startTime),
		SuiteResults:       suites,
		CoverageData:       coverage,
		PerformanceMetrics: perf,
		BuildMetadata:      a.collectBuildMetadata(),
		Errors:             a.collectExecutionErrors(suites),
		Warnings:           warnings,
	}
	a.log.Debug("Aggregated report",
		"suites", len(suites),
		"total", report.Summary.Total,
		"failed", report.Summary.Failed,
		"warnings", len(report.Warnings))
	return report, nil
}

// buildSummary computes the top-level counters. Pass rate guards the zero
// denominator so an empty run reports 0, not NaN.
func (a *Aggregator) buildSummary(raw *types.RawExecutionReport, startTime time.Time) types.ReportSummary {
	passRate := 0.0
	if raw.NumTotalTests > 0 {
		passRate = float64(raw.NumPassedTests) / float64(raw.NumTotalTests) * 100
	}

	now := time.Now()
	return types.ReportSummary{
		Total:         raw.NumTotalTests,
		Passed:        raw.NumPassedTests,
		Failed:        raw.NumFailedTests,
		Skipped:       raw.NumPendingTests,
		Todo:          raw.NumTodoTests,
		PassRate:      passRate,
		ExecutionTime: now.Sub(startTime),
		StartTime:     startTime,
		EndTime:       now,
	}
}

// normalizeSuite converts one raw suite, deriving its display name, status,
// category and failure details.
func (a *Aggregator) normalizeSuite(raw types.RawSuiteResult) types.NormalizedSuite {
	tests := make([]types.NormalizedTestCase, 0, len(raw.TestResults))
	var failureDetails []string
	for _, tc := range raw.TestResults {
		normalized := types.NormalizedTestCase{
			Name:            tc.Title,
			FullName:        tc.FullName,
			Status:          types.ParseTestStatus(tc.Status),
			Duration:        tc.DurationMillis(),
			FailureMessages: append([]string(nil), tc.FailureMessages...),
			AncestorTitles:  append([]string(nil), tc.AncestorTitles...),
		}
		if normalized.Status == types.TestStatusFailed {
			failureDetails = append(failureDetails, tc.FailureMessages...)
		}
		tests = append(tests, normalized)
	}

	return types.NormalizedSuite{
		Name:     suiteNameFromPath(raw.TestFilePath),
		FilePath: raw.TestFilePath,
		Status:   deriveSuiteStatus(tests),
		// Clock skew can make this zero or negative; passed through as-is.
		Duration:       float64(raw.EndTime - raw.StartTime),
		Tests:          tests,
		Category:       a.CategorizeSuite(raw.TestFilePath),
		ErrorMessage:   raw.FailureMessage,
		FailureDetails: failureDetails,
	}
}

// deriveSuiteStatus applies the status priority: any failure marks the suite
// FAILED, else any pass marks it PASSED, else any skip-like test marks it
// SKIPPED, else PENDING.
func deriveSuiteStatus(tests []types.NormalizedTestCase) types.TestStatus {
	var anyPassed, anySkipped bool
	for _, tc := range tests {
		switch tc.Status {
		case types.TestStatusFailed:
			return types.TestStatusFailed
		case types.TestStatusPassed:
			anyPassed = true
		case types.TestStatusSkipped, types.TestStatusPending:
			anySkipped = true
		}
	}
	if anyPassed {
		return types.TestStatusPassed
	}
	if anySkipped {
		return types.TestStatusSkipped
	}
	return types.TestStatusPending
}

// suiteNameFromPath derives a display name from the suite file: base name
// with the extension and test-file markers stripped.
func suiteNameFromPath(path string) string {
	name := filepath.Base(strings.ReplaceAll(path, "\\", "/"))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	for _, marker := range []string{".test", ".spec"} {
		name = strings.TrimSuffix(name, marker)
	}
	return name
}

// collectExecutionErrors emits one EXECUTION_ERROR per failed suite that
// carries a top-level failure message.
func (a *Aggregator) collectExecutionErrors(suites []types.NormalizedSuite) []types.RunError {
	var errs []types.RunError
	for _, suite := range suites {
		if suite.Status != types.TestStatusFailed || suite.ErrorMessage == "" {
			continue
		}
		errs = append(errs, types.RunError{
			Type:      types.ErrorTypeExecution,
			Message:   suite.ErrorMessage,
			Timestamp: time.Now(),
			Source:    suite.FilePath,
		})
	}
	return errs
}
