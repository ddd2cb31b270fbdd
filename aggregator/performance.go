package aggregator

import (
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

// buildPerformanceMetrics flattens every test case across suites, computes
// the run-wide and per-category timing stats, and emits one SLOW_TEST
// warning per case over the threshold. The slowest-test list is sorted
// descending and capped; the stable sort keeps encounter order for ties.
func (a *Aggregator) buildPerformanceMetrics(suites []types.NormalizedSuite, coverage *types.CoverageData) (types.PerformanceMetrics, []types.RunWarning) {
	type categoryAccum struct {
		duration float64
		tests    int
		passed   int
	}

	var (
		slow       []types.SlowTest
		warnings   []types.RunWarning
		totalDur   float64
		totalTests int
	)
	perCategory := make(map[types.TestCategory]*categoryAccum)

	for _, suite := range suites {
		acc := perCategory[suite.Category]
		if acc == nil {
			acc = &categoryAccum{}
			perCategory[suite.Category] = acc
		}

		for _, tc := range suite.Tests {
			totalDur += tc.Duration
			totalTests++
			acc.duration += tc.Duration
			acc.tests++
			if tc.Status == types.TestStatusPassed {
				acc.passed++
			}

			if tc.Duration <= a.slowTestThreshold {
				continue
			}
			name := tc.FullName
			if name == "" {
				name = tc.Name
			}
			slow = append(slow, types.SlowTest{
				Name:     name,
				FilePath: suite.FilePath,
				Duration: tc.Duration,
				Category: suite.Category,
			})
			warnings = append(warnings, types.RunWarning{
				Type:      types.WarningTypeSlowTest,
				Message:   fmt.Sprintf("slow test %q took %.0fms (threshold %.0fms)", name, tc.Duration, a.slowTestThreshold),
				Timestamp: time.Now(),
				Source:    suite.FilePath,
			})
		}
	}

	sort.SliceStable(slow, func(i, j int) bool { return slow[i].Duration > slow[j].Duration })
	if len(slow) > a.maxSlowTests {
		slow = slow[:a.maxSlowTests]
	}

	avg := 0.0
	if totalTests > 0 {
		avg = totalDur / float64(totalTests)
	}

	categories := make(map[types.TestCategory]types.CategoryPerformanceMetrics, len(perCategory))
	for category, acc := range perCategory {
		perf := types.CategoryPerformanceMetrics{}
		if acc.tests > 0 {
			perf.AverageDuration = acc.duration / float64(acc.tests)
			perf.PassRate = float64(acc.passed) / float64(acc.tests) * 100
		}
		if coverage != nil {
			if metrics, ok := coverage.Categories[category]; ok {
				perf.Coverage = metrics.Lines.Percentage
			}
		}
		categories[category] = perf
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return types.PerformanceMetrics{
		AverageTestDuration: avg,
		SlowestTests:        slow,
		Memory: types.MemorySnapshot{
			HeapAllocBytes: mem.HeapAlloc,
			HeapSysBytes:   mem.HeapSys,
			StackInUse:     mem.StackInuse,
			NumGC:          mem.NumGC,
		},
		Categories: categories,
	}, warnings
}

// coverageWarnings emits one LOW_COVERAGE warning per overall metric that
// falls below a configured threshold. Zero thresholds disable the check.
func (a *Aggregator) coverageWarnings(coverage *types.CoverageData) []types.RunWarning {
	if coverage == nil {
		return nil
	}

	checks := []struct {
		name      string
		threshold float64
		metric    types.CoverageMetric
	}{
		{"lines", a.thresholds.Lines, coverage.Overall.Lines},
		{"functions", a.thresholds.Functions, coverage.Overall.Functions},
		{"branches", a.thresholds.Branches, coverage.Overall.Branches},
		{"statements", a.thresholds.Statements, coverage.Overall.Statements},
	}

	var warnings []types.RunWarning
	for _, check := range checks {
		if check.threshold <= 0 || check.metric.Percentage >= check.threshold {
			continue
		}
		warnings = append(warnings, types.RunWarning{
			Type: types.WarningTypeLowCoverage,
			Message: fmt.Sprintf("%s coverage %.2f%% is below the %.2f%% threshold",
				check.name, check.metric.Percentage, check.threshold),
			Timestamp: time.Now(),
		})
	}
	return warnings
}
