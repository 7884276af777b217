package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFileWithModTime(t *testing.T, dir, name string, modTime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("failed to set mtime of %s: %v", name, err)
	}
}

func TestLatestFileTimestampPicksMostRecentlyWritten(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	writeFileWithModTime(t, dir, "100_0_20240101120000.txt", base)
	writeFileWithModTime(t, dir, "101_1_20240101130000.jpg", base.Add(time.Hour))

	ts, ok := latestFileTimestamp(dir)
	if !ok {
		t.Fatal("expected a timestamp")
	}
	if ts != "20240101130000" {
		t.Errorf("got %q, want %q", ts, "20240101130000")
	}
}

func TestLatestFileTimestampIgnoresNameOrder(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// The lexicographically larger name is the older file; recency is
	// decided by write time, not name order.
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	writeFileWithModTime(t, dir, "999_2_20240105000000.mp4", base)
	writeFileWithModTime(t, dir, "100_0_20240101120000.txt", base.Add(time.Hour))

	ts, ok := latestFileTimestamp(dir)
	if !ok {
		t.Fatal("expected a timestamp")
	}
	if ts != "20240101120000" {
		t.Errorf("got %q, want %q", ts, "20240101120000")
	}
}

func TestLatestFileTimestampSkipsUntrackedFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	writeFileWithModTime(t, dir, "100_0_20240101120000.txt", base)
	writeFileWithModTime(t, dir, "101_1_20240202000000.tmp", base.Add(time.Hour))
	writeFileWithModTime(t, dir, "notes.txt", base.Add(2*time.Hour))

	ts, ok := latestFileTimestamp(dir)
	if !ok {
		t.Fatal("expected a timestamp")
	}
	if ts != "20240101120000" {
		t.Errorf("got %q, want %q", ts, "20240101120000")
	}
}

func TestLatestFileTimestampEmptyDir(t *testing.T) {
	t.Parallel()

	if ts, ok := latestFileTimestamp(t.TempDir()); ok {
		t.Errorf("expected no timestamp for empty dir, got %q", ts)
	}
}

func TestTimestampFromFilename(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "text file", input: "100_0_20240101120000.txt", want: "20240101120000", wantOK: true},
		{name: "media file", input: "101_1_20240101130000.jpg", want: "20240101130000", wantOK: true},
		{name: "trailing suffix after timestamp", input: "5_2_20240101130000extra.mp4", want: "20240101130000", wantOK: true},
		{name: "too few segments", input: "justaname.txt", wantOK: false},
		{name: "short timestamp", input: "100_0_2024.txt", wantOK: false},
		{name: "non-numeric timestamp", input: "100_0_notatimestamp00.txt", wantOK: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := timestampFromFilename(tc.input)
			if ok != tc.wantOK {
				t.Fatalf("got ok=%v, want %v", ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEnsureBaselineSeedsEmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	now := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	if err := ensureBaseline(dir, now); err != nil {
		t.Fatalf("ensureBaseline failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "0_0_20240315000000.txt"))
	if err != nil {
		t.Fatalf("placeholder not written: %v", err)
	}
	if string(data) != placeholderText {
		t.Errorf("placeholder content %q, want %q", data, placeholderText)
	}

	ts, ok := latestFileTimestamp(dir)
	if !ok || ts != "20240315000000" {
		t.Errorf("baseline watermark %q (ok=%v), want 20240315000000", ts, ok)
	}
}

func TestEnsureBaselineLeavesPopulatedDirAlone(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	writeFileWithModTime(t, dir, "100_0_20240101120000.txt", time.Now())
	if err := ensureBaseline(dir, time.Now()); err != nil {
		t.Fatalf("ensureBaseline failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file, found %d", len(entries))
	}
}

func TestWatermarkDefaultsToMidnightToday(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 15, 17, 45, 12, 0, time.UTC)
	since, err := watermark(t.TempDir(), now)
	if err != nil {
		t.Fatalf("watermark failed: %v", err)
	}

	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if !since.Equal(want) {
		t.Errorf("got %v, want %v", since, want)
	}
}

func TestNormalizePublishedAt(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "iso instant", input: "2024-01-01T12:34:56Z", want: "20240101123456"},
		{name: "already normalized", input: "20240101123456", want: "20240101123456"},
		{name: "empty", input: "", want: ""},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := normalizePublishedAt(tc.input); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
