package chunker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLog writes n numbered lines and returns the file path.
func writeLog(t *testing.T, lines []string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	return path
}

func numberedLines(n int) []string {
	lines := make([]string, n)
	for i := range n {
		lines[i] = fmt.Sprintf("line %06d", i+1)
	}

	return lines
}

func TestPlanLogChunks_SmallFileSingleChunk(t *testing.T) {
	t.Parallel()

	planner := NewPlanner(Config{LogChunkLines: 100}, nil, nil)
	path := writeLog(t, numberedLines(40))

	chunks, err := planner.PlanLogChunks(path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, 1, chunks[0].ID)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 40, chunks[0].EndLine)
	assert.Equal(t, 1, chunks[0].TotalChunks)
}

func TestPlanLogChunks_OverlapIsExact(t *testing.T) {
	t.Parallel()

	planner := NewPlanner(Config{LogChunkLines: 100, LogOverlapLines: 10}, nil, nil)
	path := writeLog(t, numberedLines(250))

	chunks, err := planner.PlanLogChunks(path)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev, curr := chunks[i-1], chunks[i]

		// Consecutive windows share exactly the configured overlap.
		shared := prev.EndLine - curr.StartLine + 1
		assert.Equal(t, 10, shared, "chunks %d and %d", prev.ID, curr.ID)

		// Ascending line order.
		assert.Greater(t, curr.StartLine, prev.StartLine)
	}

	// Union covers the whole file.
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 250, chunks[len(chunks)-1].EndLine)
}

func TestPlanLogChunks_CoverageHasNoGaps(t *testing.T) {
	t.Parallel()

	planner := NewPlanner(Config{LogChunkLines: 64, LogOverlapLines: 8}, nil, nil)
	path := writeLog(t, numberedLines(500))

	chunks, err := planner.PlanLogChunks(path)
	require.NoError(t, err)

	covered := make([]bool, 501)

	for _, chunk := range chunks {
		for line := chunk.StartLine; line <= chunk.EndLine; line++ {
			covered[line] = true
		}
	}

	for line := 1; line <= 500; line++ {
		assert.True(t, covered[line], "line %d not covered", line)
	}
}

func TestPlanLogChunks_TimestampExtraction(t *testing.T) {
	t.Parallel()

	lines := []string{
		"2025-03-01 08:00:00 INFO boot",
		"plain line without a stamp",
		"2025-03-01 08:05:12 WARN wobble",
	}

	planner := NewPlanner(Config{LogChunkLines: 100}, nil, nil)
	path := writeLog(t, lines)

	chunks, err := planner.PlanLogChunks(path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, "2025-03-01 08:00:00", chunks[0].StartStamp)
	assert.Equal(t, "2025-03-01 08:05:12", chunks[0].EndStamp)
}

func TestExtractTimestamp_Formats(t *testing.T) {
	t.Parallel()

	cases := []struct {
		line string
		want string
	}{
		{"2025-03-01T08:00:00Z INFO", "2025-03-01T08:00:00"},
		{"at 2025-03-01 08:00:00 something", "2025-03-01 08:00:00"},
		{"03/01/2025 08:00:00 legacy", "03/01/2025 08:00:00"},
		{"Mar  1 08:00:00 host daemon[1]:", "Mar  1 08:00:00"},
		{"no stamp here", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, extractTimestamp(tc.line), "line %q", tc.line)
	}
}

func TestPlanLogChunks_EmptyFile(t *testing.T) {
	t.Parallel()

	planner := NewPlanner(Config{}, nil, nil)
	path := filepath.Join(t.TempDir(), "empty.log")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	chunks, err := planner.PlanLogChunks(path)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestShouldChunkLog_SizeThreshold(t *testing.T) {
	t.Parallel()

	planner := NewPlanner(Config{LogSizeThreshold: 1024}, nil, nil)

	small := writeLog(t, numberedLines(10))
	assert.False(t, planner.ShouldChunkLog(small))

	big := writeLog(t, numberedLines(200))
	assert.True(t, planner.ShouldChunkLog(big))
}

func TestPlanLogChunks_MissingFileErrors(t *testing.T) {
	t.Parallel()

	planner := NewPlanner(Config{}, nil, nil)

	_, err := planner.PlanLogChunks(filepath.Join(t.TempDir(), "nope.log"))
	require.Error(t, err)
}
