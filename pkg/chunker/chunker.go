// Package chunker partitions file sets and log files into priority-ordered,
// size-bounded chunks so large inputs can be processed incrementally, most
// important content first.
package chunker

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ballast-dev/ballast/pkg/throttle"
	"github.com/ballast-dev/ballast/pkg/units"
)

// Default planning thresholds.
const (
	// DefaultMaxFilesPerChunk caps files per chunk and doubles as the
	// file-count threshold for the chunking decision.
	DefaultMaxFilesPerChunk = 50

	// DefaultQualityMaxFiles is the stricter threshold for expensive
	// operation kinds.
	DefaultQualityMaxFiles = 20

	// DefaultMaxChunkBytes caps the aggregate byte size of one chunk.
	DefaultMaxChunkBytes = 5 * units.MiB

	// DefaultMaxChunks bounds how many chunks a plan emits; lower tiers
	// are silently truncated beyond it.
	DefaultMaxChunks = 5
)

// OpKind labels the operation a plan is being made for. Expensive kinds
// chunk at a stricter file-count threshold.
type OpKind string

// Operation kinds.
const (
	KindAnalyze OpKind = "analyze"
	KindQuality OpKind = "quality"
)

// Chunk is a bounded subset of a file-set batch.
type Chunk struct {
	// ID is the 1-based position within the batch, in emit order.
	ID int

	// Members are the file paths in this chunk.
	Members []string

	// Tier is the priority tier all members share (lower = more important).
	Tier Tier

	// SizeBytes is the aggregate size of the members.
	SizeBytes int64

	// Description says what kind of content the chunk holds.
	Description string

	// TotalChunks is the batch size, back-filled once the plan is final.
	TotalChunks int
}

// Config holds planner thresholds. Zero values use defaults.
type Config struct {
	MaxFilesPerChunk int
	QualityMaxFiles  int
	MaxChunkBytes    int64

	LogChunkLines    int
	LogOverlapLines  int
	LogSizeThreshold int64
}

func (c Config) withDefaults() Config {
	if c.MaxFilesPerChunk <= 0 {
		c.MaxFilesPerChunk = DefaultMaxFilesPerChunk
	}

	if c.QualityMaxFiles <= 0 {
		c.QualityMaxFiles = DefaultQualityMaxFiles
	}

	if c.MaxChunkBytes <= 0 {
		c.MaxChunkBytes = DefaultMaxChunkBytes
	}

	if c.LogChunkLines <= 0 {
		c.LogChunkLines = DefaultLogChunkLines
	}

	if c.LogOverlapLines < 0 {
		c.LogOverlapLines = 0
	} else if c.LogOverlapLines == 0 {
		c.LogOverlapLines = DefaultLogOverlapLines
	}

	if c.LogSizeThreshold <= 0 {
		c.LogSizeThreshold = DefaultLogSizeThreshold
	}

	return c
}

// Planner builds chunk plans for file sets and log files.
type Planner struct {
	cfg      Config
	logger   *slog.Logger
	throttle *throttle.Throttler
}

// NewPlanner creates a planner. Logger and throttler may be nil.
func NewPlanner(cfg Config, throttler *throttle.Throttler, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Planner{cfg: cfg.withDefaults(), logger: logger, throttle: throttler}
}

// maxFilesFor returns the chunking-decision threshold for an operation kind.
func (p *Planner) maxFilesFor(kind OpKind) int {
	if kind == KindQuality {
		return p.cfg.QualityMaxFiles
	}

	return p.cfg.MaxFilesPerChunk
}

// ShouldChunk reports whether the file set is large enough to need chunking:
// more files than the per-kind threshold, or aggregate size beyond the chunk
// byte cap. Directory sizes are sampled one level deep rather than walked
// recursively, so the decision itself stays cheap; the scan short-circuits
// as soon as the cap is exceeded.
func (p *Planner) ShouldChunk(paths []string, kind OpKind) bool {
	if len(paths) > p.maxFilesFor(kind) {
		return true
	}

	var total int64

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		if !info.IsDir() {
			total += info.Size()
			if total > p.cfg.MaxChunkBytes {
				return true
			}

			continue
		}

		entries, readErr := os.ReadDir(path)
		if readErr != nil {
			continue
		}

		for _, entry := range entries {
			childInfo, infoErr := entry.Info()
			if infoErr != nil || childInfo.IsDir() {
				continue
			}

			total += childInfo.Size()
			if total > p.cfg.MaxChunkBytes {
				return true
			}
		}
	}

	return total > p.cfg.MaxChunkBytes
}

// Plan returns the chunk plan for a file set. An input within limits yields
// exactly one chunk holding the full (expanded) set, so callers never
// special-case "no chunking" separately from "one chunk."
func (p *Planner) Plan(paths []string, kind OpKind, maxChunks int) []Chunk {
	chunks, _ := p.PlanBatch(paths, kind, maxChunks)

	return chunks
}

// PlanBatch is Plan plus a truncation flag: true when lower-priority chunks
// were dropped at the chunk cap.
func (p *Planner) PlanBatch(paths []string, kind OpKind, maxChunks int) ([]Chunk, bool) {
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}

	if !p.ShouldChunk(paths, kind) {
		return p.singleChunk(paths), false
	}

	return p.planChunks(paths, maxChunks)
}

// PlanChunks partitions the expanded file set into priority-ordered chunks,
// bounded by both the file-count cap and the byte-size cap. Tiers are emitted
// in priority order so a caller that only processes the first maxChunks
// chunks sees the most important files; lower tiers truncate silently.
func (p *Planner) PlanChunks(paths []string, maxChunks int) []Chunk {
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}

	chunks, _ := p.planChunks(paths, maxChunks)

	return chunks
}

func (p *Planner) planChunks(paths []string, maxChunks int) ([]Chunk, bool) {
	tiers := p.classify(paths)

	var chunks []Chunk

	for _, tier := range []Tier{TierCore, TierConfig, TierTests, TierVendor} {
		files := tiers[tier]
		if len(files) == 0 {
			continue
		}

		chunks = append(chunks, p.packTier(tier, files)...)
	}

	truncated := len(chunks) > maxChunks
	if truncated {
		p.logger.Info("chunk plan truncated",
			"planned", len(chunks),
			"max_chunks", maxChunks)

		chunks = chunks[:maxChunks]
	}

	for i := range chunks {
		chunks[i].ID = i + 1
		chunks[i].TotalChunks = len(chunks)
	}

	return chunks, truncated
}

// packTier greedily packs one tier's files into chunks, starting a new chunk
// whenever adding a file would exceed either cap.
func (p *Planner) packTier(tier Tier, files []string) []Chunk {
	var packed []Chunk

	current := Chunk{Tier: tier, Description: tier.Description()}

	for _, file := range files {
		size := fileSize(file)

		full := len(current.Members) >= p.cfg.MaxFilesPerChunk ||
			(len(current.Members) > 0 && current.SizeBytes+size > p.cfg.MaxChunkBytes)
		if full {
			packed = append(packed, current)
			current = Chunk{Tier: tier, Description: tier.Description()}
		}

		current.Members = append(current.Members, file)
		current.SizeBytes += size
	}

	if len(current.Members) > 0 {
		packed = append(packed, current)
	}

	return packed
}

// singleChunk expands the input into one chunk covering everything.
func (p *Planner) singleChunk(paths []string) []Chunk {
	files := p.expand(paths)

	var size int64
	for _, file := range files {
		size += fileSize(file)
	}

	return []Chunk{{
		ID:          1,
		Members:     files,
		Tier:        TierCore,
		SizeBytes:   size,
		Description: "full file set",
		TotalChunks: 1,
	}}
}

// classify expands directories and buckets every file into its priority tier,
// yielding to the scheduler at the configured scan frequency.
func (p *Planner) classify(paths []string) map[Tier][]string {
	tiers := make(map[Tier][]string, tierCount)

	scanned := 0
	for _, file := range p.expand(paths) {
		tier := classifyFile(file)
		tiers[tier] = append(tiers[tier], file)

		scanned++
		if p.throttle != nil && scanned%p.throttle.ScanYieldEvery() == 0 {
			p.throttle.YieldIfNeeded()
		}
	}

	return tiers
}

// expand resolves directories to their contained files, preserving input
// order. Missing paths are kept as-is so downstream operations can report
// them; unreadable directories are skipped.
func (p *Planner) expand(paths []string) []string {
	var files []string

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			files = append(files, path)

			continue
		}

		walkErr := filepath.WalkDir(path, func(child string, entry os.DirEntry, err error) error {
			if err != nil || entry.IsDir() {
				return nil //nolint:nilerr // skip unreadable subtrees, keep walking
			}

			files = append(files, child)

			return nil
		})
		if walkErr != nil {
			p.logger.Warn("directory walk failed", "path", path, "error", walkErr)
		}
	}

	return files
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}

	return info.Size()
}
