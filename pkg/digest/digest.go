// Package digest provides the built-in operations run over chunk plans: a
// file inventory with language detection and a per-window log summary.
package digest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/src-d/enry/v2"

	"github.com/ballast-dev/ballast/pkg/chunker"
	"github.com/ballast-dev/ballast/pkg/safeconv"
	"github.com/ballast-dev/ballast/pkg/textutil"
)

// Files inventories one chunk of a file set: detected language, line count,
// and size per file, plus an aggregate line. Chunk plans bound the aggregate
// member size, so reading each file whole stays cheap.
func Files(ctx context.Context, members []string) (string, error) {
	var (
		sb    strings.Builder
		total int64
	)

	for _, path := range members {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}

		total += int64(len(data))

		fmt.Fprintf(&sb, "%s\t%s\t%s\n",
			path, describeContent(path, data), humanize.Bytes(safeconv.MustIntToUint64(len(data))))
	}

	fmt.Fprintf(&sb, "%d files, %s total\n", len(members), humanize.Bytes(safeconv.MustInt64ToUint64(total)))

	return sb.String(), nil
}

// describeContent classifies one file's content for the inventory line.
func describeContent(path string, data []byte) string {
	if textutil.IsBinary(data) {
		return "binary"
	}

	lang := enry.GetLanguage(filepath.Base(path), data)
	if lang == "" {
		lang = "unknown"
	}

	return fmt.Sprintf("%s, %d lines", lang, textutil.CountLines(data))
}

// LogWindow summarizes one log window: line and severity counts plus the
// window's byte size.
func LogWindow(ctx context.Context, chunk chunker.LogChunk) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var lines, errorLines, warnLines int

	for line := range strings.Lines(chunk.Content) {
		lines++

		upper := strings.ToUpper(line)
		switch {
		case strings.Contains(upper, "ERROR"), strings.Contains(upper, "FATAL"):
			errorLines++
		case strings.Contains(upper, "WARN"):
			warnLines++
		}
	}

	return fmt.Sprintf("%d lines (%d error, %d warning), %s\n",
		lines, errorLines, warnLines, humanize.Bytes(safeconv.MustInt64ToUint64(chunk.SizeBytes))), nil
}
