package chunker

import (
	"path/filepath"
	"strings"

	"github.com/src-d/enry/v2"
)

// Tier is a file priority level. Lower values are analyzed first.
type Tier int

// Priority tiers, highest priority first.
const (
	// TierCore is application source code.
	TierCore Tier = iota + 1

	// TierConfig is configuration and setup files.
	TierConfig

	// TierTests is tests and documentation.
	TierTests

	// TierVendor is generated and vendored content.
	TierVendor

	tierCount = 4
)

// Description returns a human-readable label for the tier.
func (t Tier) Description() string {
	switch t {
	case TierCore:
		return "core application code"
	case TierConfig:
		return "configuration and setup files"
	case TierTests:
		return "tests and documentation"
	case TierVendor:
		return "generated and vendor files"
	default:
		return "mixed files"
	}
}

// coreExtensions are extensions always treated as application code. The
// language lookup below covers the long tail; this set keeps the common
// cases off the slower path.
var coreExtensions = map[string]struct{}{
	".py": {}, ".js": {}, ".ts": {}, ".jsx": {}, ".tsx": {},
	".go": {}, ".java": {}, ".rs": {}, ".rb": {}, ".c": {},
	".h": {}, ".cc": {}, ".cpp": {}, ".cs": {}, ".php": {},
	".swift": {}, ".kt": {}, ".scala": {},
}

// configExtensions are extensions treated as configuration.
var configExtensions = map[string]struct{}{
	".yaml": {}, ".yml": {}, ".json": {}, ".toml": {},
	".ini": {}, ".env": {}, ".cfg": {}, ".conf": {},
}

// generatedSuffixes mark minified/lockfile/derived artifacts.
var generatedSuffixes = []string{".lock", ".min.js", ".min.css", ".map", ".pb.go"}

// classifyFile buckets a file into its priority tier by name convention and
// language detection. Vendor checks run first: a vendored source file is
// still vendor.
func classifyFile(path string) Tier {
	name := strings.ToLower(filepath.Base(path))

	if enry.IsVendor(path) || isGeneratedName(name) {
		return TierVendor
	}

	if isTestName(name) || enry.IsDocumentation(path) || strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".txt") {
		return TierTests
	}

	ext := strings.ToLower(filepath.Ext(name))

	if _, ok := coreExtensions[ext]; ok {
		return TierCore
	}

	if _, ok := configExtensions[ext]; ok {
		return TierConfig
	}

	if enry.IsConfiguration(path) || enry.IsDotFile(path) {
		return TierConfig
	}

	if lang := enry.GetLanguage(filepath.Base(path), nil); lang != "" {
		return TierCore
	}

	return TierConfig
}

// isTestName matches the common test-file naming conventions across
// ecosystems (_test.go, test_x.py, x.spec.ts, x.test.js).
func isTestName(name string) bool {
	return strings.Contains(name, "_test.") ||
		strings.HasPrefix(name, "test_") ||
		strings.Contains(name, ".test.") ||
		strings.Contains(name, ".spec.")
}

func isGeneratedName(name string) bool {
	for _, suffix := range generatedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}

	return false
}
