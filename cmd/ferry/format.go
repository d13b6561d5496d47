package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"ferry/internal/records"
)

func formatSize(size *int64) string {
	if size == nil || *size < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(*size))
}

// formatWhen renders an absolute timestamp followed by a relative hint.
func formatWhen(t *time.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05") + " (" + humanize.RelTime(*t, now, "ago", "from now") + ")"
}

func formatCount(n int) string {
	return humanize.Comma(int64(n))
}

func formatPages(pages *int) string {
	if pages == nil {
		return "-"
	}
	return strconv.Itoa(*pages)
}

func dashIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

// truncate shortens value to width runes for table cells.
func truncate(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if width <= 1 || len(runes) <= width {
		return value
	}
	return string(runes[:width-1]) + "…"
}

func statusLabel(rec *records.Record) string {
	return rec.UploadStatus.String() + "/" + rec.ProcessingStatus.String()
}
