package chunker

import (
	"bufio"
	"fmt"
	"os"
	"regexp"

	"github.com/ballast-dev/ballast/pkg/units"
)

// Log chunking defaults. Logs chunk more aggressively than code: the content
// is dense and a single file can dwarf a whole source tree.
const (
	// DefaultLogChunkLines is the line-count window per log chunk.
	DefaultLogChunkLines = 10000

	// DefaultLogOverlapLines is how many boundary lines consecutive
	// windows share, so an event spanning a boundary is lost to neither.
	DefaultLogOverlapLines = 100

	// DefaultLogSizeThreshold is the file size above which a log is
	// chunked.
	DefaultLogSizeThreshold = 2 * units.MiB
)

// LogChunk is one line window of a log file. Windows are emitted in
// ascending line order.
type LogChunk struct {
	// ID is the 1-based window position.
	ID int

	// Path is the source log file.
	Path string

	// StartLine and EndLine are 1-indexed inclusive bounds.
	StartLine int
	EndLine   int

	// Content is the window's text.
	Content string

	// StartStamp and EndStamp are timestamps extracted from the first and
	// last lines of the window, empty when none matched.
	StartStamp string
	EndStamp   string

	// SizeBytes is the window's byte length.
	SizeBytes int64

	// TotalChunks is the batch size, back-filled once all windows exist.
	TotalChunks int
}

// timestampPatterns cover the common log timestamp layouts, checked in order.
var timestampPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`),     // ISO 8601
	regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`),     // YYYY-MM-DD HH:MM:SS
	regexp.MustCompile(`\d{2}/\d{2}/\d{4} \d{2}:\d{2}:\d{2}`),     // MM/DD/YYYY HH:MM:SS
	regexp.MustCompile(`[A-Z][a-z]{2} {1,2}\d{1,2} \d{2}:\d{2}:\d{2}`), // syslog MMM DD HH:MM:SS
}

// ShouldChunkLog reports whether the log file exceeds the size threshold.
func (p *Planner) ShouldChunkLog(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	return info.Size() > p.cfg.LogSizeThreshold
}

// PlanLogChunks splits a log file into fixed line-count windows with the
// configured overlap between consecutive windows. A file within the window
// size yields exactly one chunk covering every line. Each window is tagged
// with any timestamp found on its first and last lines so consumers can
// report a time range per chunk.
func (p *Planner) PlanLogChunks(path string) ([]LogChunk, error) {
	lines, err := p.readLines(path)
	if err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	if len(lines) == 0 {
		return nil, nil
	}

	windowSize := p.cfg.LogChunkLines
	overlap := p.cfg.LogOverlapLines

	if overlap >= windowSize {
		// A window must advance; clamp pathological overlap configs.
		overlap = windowSize - 1
	}

	var chunks []LogChunk

	start := 0
	for start < len(lines) {
		end := min(start+windowSize, len(lines))

		content := joinLines(lines[start:end])
		chunks = append(chunks, LogChunk{
			Path:       path,
			StartLine:  start + 1,
			EndLine:    end,
			Content:    content,
			StartStamp: extractTimestamp(lines[start]),
			EndStamp:   extractTimestamp(lines[end-1]),
			SizeBytes:  int64(len(content)),
		})

		if end == len(lines) {
			break
		}

		start = end - overlap
	}

	for i := range chunks {
		chunks[i].ID = i + 1
		chunks[i].TotalChunks = len(chunks)
	}

	p.logger.Info("log chunk plan built",
		"path", path,
		"lines", len(lines),
		"chunks", len(chunks),
		"overlap_lines", overlap)

	return chunks, nil
}

// extractTimestamp returns the first recognized timestamp in the line.
func extractTimestamp(line string) string {
	for _, pattern := range timestampPatterns {
		if match := pattern.FindString(line); match != "" {
			return match
		}
	}

	return ""
}

// readLines reads a file into lines (newlines stripped), yielding to the
// scheduler at the configured scan frequency so huge logs do not monopolize
// the process while being loaded.
func (p *Planner) readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	defer f.Close()

	var lines []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*units.KiB), 4*units.MiB)

	for scanner.Scan() {
		lines = append(lines, scanner.Text())

		if p.throttle != nil && len(lines)%p.throttle.ScanYieldEvery() == 0 {
			p.throttle.YieldIfNeeded()
		}
	}

	if scanErr := scanner.Err(); scanErr != nil {
		return nil, fmt.Errorf("scan %s: %w", path, scanErr)
	}

	return lines, nil
}

func joinLines(lines []string) string {
	size := 0
	for _, line := range lines {
		size += len(line) + 1
	}

	buf := make([]byte, 0, size)
	for _, line := range lines {
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	return string(buf)
}
