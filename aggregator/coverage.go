package aggregator

import (
	"github.com/ethereum-optimism/infra/op-reporter/types"
)

// buildCoverageData computes per-file metrics from the raw hit maps and rolls
// them up into overall and per-category totals. Rollups sum total/covered
// counts and recompute percentages at the end; averaging percentages would
// weight small files the same as large ones.
//
// Suites whose file path appears in the coverage map get their own metrics
// attached in place.
func (a *Aggregator) buildCoverageData(coverageMap map[string]types.RawFileCoverage, suites []types.NormalizedSuite) *types.CoverageData {
	data := &types.CoverageData{
		Files:      make(map[string]types.CoverageMetrics, len(coverageMap)),
		Categories: make(map[types.TestCategory]types.CoverageMetrics),
		Thresholds: a.thresholds,
	}

	var overall types.CoverageMetrics
	categoryTotals := make(map[types.TestCategory]*types.CoverageMetrics)

	for path, raw := range coverageMap {
		metrics := fileCoverageMetrics(raw)
		data.Files[path] = metrics
		addMetrics(&overall, metrics)

		category := a.CategorizeSuite(path)
		bucket, ok := categoryTotals[category]
		if !ok {
			bucket = &types.CoverageMetrics{}
			categoryTotals[category] = bucket
		}
		addMetrics(bucket, metrics)
	}

	recomputePercentages(&overall)
	data.Overall = overall
	for category, bucket := range categoryTotals {
		recomputePercentages(bucket)
		data.Categories[category] = *bucket
	}

	for i := range suites {
		if metrics, ok := data.Files[suites[i].FilePath]; ok {
			m := metrics
			suites[i].Coverage = &m
		}
	}
	return data
}

// fileCoverageMetrics converts one file's raw hit maps. A hit count above
// zero marks the entry covered. Files without a line map reuse the statement
// counts for the line metric.
func fileCoverageMetrics(raw types.RawFileCoverage) types.CoverageMetrics {
	sTotal, sCovered := countHits(raw.StatementHits)
	fTotal, fCovered := countHits(raw.FunctionHits)
	bTotal, bCovered := countBranchHits(raw.BranchHits)
	lTotal, lCovered := countHits(raw.LineHits)
	if len(raw.LineHits) == 0 {
		lTotal, lCovered = sTotal, sCovered
	}

	return types.CoverageMetrics{
		Lines:      newCoverageMetric(lTotal, lCovered),
		Functions:  newCoverageMetric(fTotal, fCovered),
		Branches:   newCoverageMetric(bTotal, bCovered),
		Statements: newCoverageMetric(sTotal, sCovered),
	}
}

func newCoverageMetric(total, covered int) types.CoverageMetric {
	return types.CoverageMetric{
		Total:      total,
		Covered:    covered,
		Percentage: coveragePercentage(total, covered),
	}
}

func countHits(hits map[string]int) (total, covered int) {
	for _, count := range hits {
		total++
		if count > 0 {
			covered++
		}
	}
	return total, covered
}

// countBranchHits flattens the per-branch-point hit arrays; every array
// element is one branch.
func countBranchHits(branches map[string][]int) (total, covered int) {
	for _, counts := range branches {
		for _, count := range counts {
			total++
			if count > 0 {
				covered++
			}
		}
	}
	return total, covered
}

// coveragePercentage guards the zero denominator: no entries means 0, never NaN.
func coveragePercentage(total, covered int) float64 {
	if total == 0 {
		return 0
	}
	return float64(covered) / float64(total) * 100
}

func addMetrics(dst *types.CoverageMetrics, src types.CoverageMetrics) {
	dst.Lines.Total += src.Lines.Total
	dst.Lines.Covered += src.Lines.Covered
	dst.Functions.Total += src.Functions.Total
	dst.Functions.Covered += src.Functions.Covered
	dst.Branches.Total += src.Branches.Total
	dst.Branches.Covered += src.Branches.Covered
	dst.Statements.Total += src.Statements.Total
	dst.Statements.Covered += src.Statements.Covered
}

func recomputePercentages(m *types.CoverageMetrics) {
	m.Lines.Percentage = coveragePercentage(m.Lines.Total, m.Lines.Covered)
	m.Functions.Percentage = coveragePercentage(m.Functions.Total, m.Functions.Covered)
	m.Branches.Percentage = coveragePercentage(m.Branches.Total, m.Branches.Covered)
	m.Statements.Percentage = coveragePercentage(m.Statements.Total, m.Statements.Covered)
}
