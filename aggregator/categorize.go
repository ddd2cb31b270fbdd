package aggregator

import (
	"strings"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

// CategorizeSuite assigns a category from the suite's file path. Custom
// patterns run first in category declaration order, then the built-in path
// heuristics; unmatched paths get the configured default. The first matching
// rule wins, nothing re-evaluates after a match.
func (a *Aggregator) CategorizeSuite(filePath string) types.TestCategory {
	path := normalizePath(filePath)

	for _, category := range types.Categories() {
		for _, pattern := range a.categoryPatterns[category] {
			if pattern != "" && strings.Contains(path, strings.ToLower(pattern)) {
				return category
			}
		}
	}

	switch {
	case strings.Contains(path, "/unit/"), strings.Contains(path, ".unit."),
		hasBareTestMarker(path) && !strings.Contains(path, "integration") && !strings.Contains(path, "e2e"):
		return types.CategoryUnit
	case strings.Contains(path, "/integration/"), strings.Contains(path, ".integration."):
		return types.CategoryIntegration
	case strings.Contains(path, "/e2e/"), strings.Contains(path, ".e2e."), strings.Contains(path, "end-to-end"):
		return types.CategoryE2E
	case strings.Contains(path, "/performance/"), strings.Contains(path, ".performance."), strings.Contains(path, "benchmark"):
		return types.CategoryPerformance
	}
	return a.defaultCategory
}

// normalizePath lowercases and converts Windows separators so pattern
// matching sees one canonical shape.
func normalizePath(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
}

// hasBareTestMarker matches only paths ending at the marker itself,
// trailing dot included; "foo.test.ts" does not match.
func hasBareTestMarker(p string) bool {
	return strings.HasSuffix(p, ".test.") || strings.HasSuffix(p, ".spec.")
}
