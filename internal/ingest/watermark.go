package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// timestampLayout is the 14-digit publish-time form embedded in filenames
// and stored in published_at.
const timestampLayout = "20060102150405"

// placeholderText seeds an empty member directory so the watermark always
// has a baseline and an empty directory never triggers a full-history fetch.
const placeholderText = "DON'T DELETE ME！"

// trackedExts are the file kinds that participate in watermark computation.
var trackedExts = map[string]struct{}{
	".txt": {},
	".jpg": {},
	".m4a": {},
	".mp4": {},
}

// ensureBaseline writes the placeholder file 0_0_{today}000000.txt when the
// directory holds no tracked files.
func ensureBaseline(dir string, now time.Time) error {
	if _, ok := latestFileTimestamp(dir); ok {
		return nil
	}

	name := fmt.Sprintf("0_0_%s000000.txt", now.UTC().Format("20060102"))
	if err := os.WriteFile(filepath.Join(dir, name), []byte(placeholderText), 0o644); err != nil {
		return fmt.Errorf("failed to write baseline file: %w", err)
	}
	return nil
}

// latestFileTimestamp returns the publish timestamp embedded in the name of
// the most recently written tracked file in dir. Recency is decided by file
// modification time, not by name order; the files are written once and never
// rewritten, so modification time equals creation time.
func latestFileTimestamp(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	var (
		latest    time.Time
		timestamp string
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := trackedExts[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		ts, ok := timestampFromFilename(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if timestamp == "" || info.ModTime().After(latest) {
			latest = info.ModTime()
			timestamp = ts
		}
	}

	return timestamp, timestamp != ""
}

// timestampFromFilename extracts the 14-digit publish time from a filename
// of the form {msg_id}_{typeIndex}_{published_at}.{ext}.
func timestampFromFilename(name string) (string, bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return "", false
	}

	ts := parts[2]
	if len(ts) < len(timestampLayout) {
		return "", false
	}
	ts = ts[:len(timestampLayout)]

	if _, err := time.ParseInLocation(timestampLayout, ts, time.UTC); err != nil {
		return "", false
	}
	return ts, true
}

// watermark returns the fetch-since instant for a member directory: the
// timestamp of the most recent tracked file, or today at midnight UTC when
// the directory has no qualifying files.
func watermark(dir string, now time.Time) (time.Time, error) {
	ts, ok := latestFileTimestamp(dir)
	if !ok {
		ts = now.UTC().Format("20060102") + "000000"
	}

	parsed, err := time.ParseInLocation(timestampLayout, ts, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid watermark %q: %w", ts, err)
	}
	return parsed, nil
}

// normalizePublishedAt reduces an ISO-8601 instant to the 14-digit form by
// stripping the separators.
func normalizePublishedAt(s string) string {
	replacer := strings.NewReplacer("-", "", ":", "", "T", "", "Z", "")
	return replacer.Replace(s)
}
