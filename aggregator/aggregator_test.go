package aggregator

import (
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-reporter/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	return New(Config{
		Log:        log.New(),
		ProjectDir: t.TempDir(),
	})
}

func TestAggregateNilReport(t *testing.T) {
	agg := newTestAggregator(t)

	report, err := agg.Aggregate(nil, time.Now())
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, IsAggregationError(err))
}

func TestAggregateEmptyReport(t *testing.T) {
	agg := newTestAggregator(t)

	report, err := agg.Aggregate(&types.RawExecutionReport{}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Zero(t, report.Summary.Total)
	assert.Zero(t, report.Summary.PassRate, "empty run must report 0, not NaN")
	assert.NotNil(t, report.CoverageData)
	assert.Zero(t, report.CoverageData.Overall.Lines.Percentage)
	assert.Empty(t, report.SuiteResults)
	assert.Zero(t, report.PerformanceMetrics.AverageTestDuration)
}

func TestAggregateSummaryPassRate(t *testing.T) {
	agg := newTestAggregator(t)

	raw := &types.RawExecutionReport{
		NumTotalTests:  6,
		NumPassedTests: 5,
		NumFailedTests: 1,
	}
	report, err := agg.Aggregate(raw, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 6, report.Summary.Total)
	assert.Equal(t, 5, report.Summary.Passed)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.InDelta(t, 83.33, report.Summary.PassRate, 0.01)
}

func TestAggregateExecutionTime(t *testing.T) {
	agg := newTestAggregator(t)

	start := time.Now().Add(-2 * time.Second)
	report, err := agg.Aggregate(&types.RawExecutionReport{}, start)
	require.NoError(t, err)

	assert.Equal(t, start, report.Summary.StartTime)
	assert.GreaterOrEqual(t, report.Summary.ExecutionTime, 2*time.Second)
	assert.False(t, report.Summary.EndTime.Before(report.Summary.StartTime))
}

func TestDeriveSuiteStatus(t *testing.T) {
	mk := func(statuses ...types.TestStatus) []types.NormalizedTestCase {
		tests := make([]types.NormalizedTestCase, len(statuses))
		for i, s := range statuses {
			tests[i] = types.NormalizedTestCase{Status: s}
		}
		return tests
	}

	tests := []struct {
		name     string
		cases    []types.NormalizedTestCase
		expected types.TestStatus
	}{
		{"all passed", mk(types.TestStatusPassed, types.TestStatusPassed), types.TestStatusPassed},
		{"one failure outranks many passes", mk(types.TestStatusPassed, types.TestStatusPassed, types.TestStatusFailed), types.TestStatusFailed},
		{"failure outranks skips", mk(types.TestStatusSkipped, types.TestStatusFailed), types.TestStatusFailed},
		{"pass outranks skips", mk(types.TestStatusPassed, types.TestStatusSkipped), types.TestStatusPassed},
		{"pass outranks pending", mk(types.TestStatusPassed, types.TestStatusPending), types.TestStatusPassed},
		{"only skipped", mk(types.TestStatusSkipped), types.TestStatusSkipped},
		{"only pending", mk(types.TestStatusPending), types.TestStatusSkipped},
		{"only todo", mk(types.TestStatusTodo), types.TestStatusPending},
		{"no tests", nil, types.TestStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, deriveSuiteStatus(tt.cases))
		})
	}
}

func TestAggregateNormalizesSuites(t *testing.T) {
	agg := newTestAggregator(t)

	dur := 80.0
	raw := &types.RawExecutionReport{
		NumTotalTests:  2,
		NumPassedTests: 1,
		NumFailedTests: 1,
		TestResults: []types.RawSuiteResult{
			{
				TestFilePath:    "/src/__tests__/unit/Checkout.test.ts",
				StartTime:       2000,
				EndTime:         1500,
				FailureMessage:  "1 test failed",
				NumPassingTests: 1,
				NumFailingTests: 1,
				TestResults: []types.RawTestCaseResult{
					{
						Title:    "adds items",
						FullName: "Checkout adds items",
						Status:   "passed",
						Duration: &dur,
					},
					{
						Title:           "rejects empty cart",
						FullName:        "Checkout rejects empty cart",
						Status:          "failed",
						FailureMessages: []string{"expected error, got nil"},
						AncestorTitles:  []string{"Checkout"},
					},
				},
			},
		},
	}

	report, err := agg.Aggregate(raw, time.Now())
	require.NoError(t, err)
	require.Len(t, report.SuiteResults, 1)

	suite := report.SuiteResults[0]
	assert.Equal(t, "Checkout", suite.Name)
	assert.Equal(t, "/src/__tests__/unit/Checkout.test.ts", suite.FilePath)
	assert.Equal(t, types.TestStatusFailed, suite.Status)
	assert.Equal(t, types.CategoryUnit, suite.Category)
	assert.Equal(t, "1 test failed", suite.ErrorMessage)
	assert.Equal(t, []string{"expected error, got nil"}, suite.FailureDetails)
	assert.Equal(t, -500.0, suite.Duration, "clock skew passes through unclamped")

	require.Len(t, suite.Tests, 2)
	assert.Equal(t, 80.0, suite.Tests[0].Duration)
	assert.Equal(t, types.TestStatusPassed, suite.Tests[0].Status)
	assert.Zero(t, suite.Tests[1].Duration, "missing duration reads as zero")
	assert.Equal(t, types.TestStatusFailed, suite.Tests[1].Status)
}

func TestAggregateCollectsExecutionErrors(t *testing.T) {
	agg := newTestAggregator(t)

	raw := &types.RawExecutionReport{
		TestResults: []types.RawSuiteResult{
			{
				TestFilePath:   "/tests/integration/api.integration.ts",
				FailureMessage: "connection refused",
				TestResults:    []types.RawTestCaseResult{{Title: "fetches", Status: "failed"}},
			},
			{
				TestFilePath:   "/tests/unit/ok.unit.ts",
				FailureMessage: "leftover message",
				TestResults:    []types.RawTestCaseResult{{Title: "works", Status: "passed"}},
			},
			{
				TestFilePath: "/tests/unit/silent.unit.ts",
				TestResults:  []types.RawTestCaseResult{{Title: "breaks", Status: "failed"}},
			},
		},
	}

	report, err := agg.Aggregate(raw, time.Now())
	require.NoError(t, err)

	require.Len(t, report.Errors, 1, "only failed suites with a message produce errors")
	assert.Equal(t, types.ErrorTypeExecution, report.Errors[0].Type)
	assert.Equal(t, "connection refused", report.Errors[0].Message)
	assert.Equal(t, "/tests/integration/api.integration.ts", report.Errors[0].Source)
}

func TestSuiteNameFromPath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/src/__tests__/unit/Foo.test.ts", "Foo"},
		{"/src/components/Bar.spec.tsx", "Bar"},
		{"baz.js", "baz"},
		{`C:\project\tests\Qux.test.ts`, "Qux"},
		{"/deep/path/plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, suiteNameFromPath(tt.path))
		})
	}
}

func TestAggregateUnknownStatusFailsOpen(t *testing.T) {
	agg := newTestAggregator(t)

	raw := &types.RawExecutionReport{
		TestResults: []types.RawSuiteResult{
			{
				TestFilePath: "/tests/unit/odd.unit.ts",
				TestResults:  []types.RawTestCaseResult{{Title: "odd", Status: "exploded"}},
			},
		},
	}

	report, err := agg.Aggregate(raw, time.Now())
	require.NoError(t, err)
	require.Len(t, report.SuiteResults, 1)
	assert.Equal(t, types.TestStatusPending, report.SuiteResults[0].Tests[0].Status)
}
