package csvlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLogger_WritesRowsAndRotatesByDay(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, zerolog.Nop())

	ts := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC).UnixMilli()
	l.Log(Row{
		TimestampMS: ts, BucketStart: "100.0", BucketEnd: "100.1",
		BidVol: "5", AskVol: "3", RecentBuyVol: "1", RecentSellVol: "0",
		SignalKind: "BUY", BidRate: 1.5, AskRate: 0.6,
	})
	l.Close()

	// Give the background goroutine a moment to flush and exit after Close.
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(dir, "2026-07-30.csv")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "timestamp_ms,bucket_start") {
		t.Fatalf("missing header, got: %s", content)
	}
	if !strings.Contains(content, "BUY") {
		t.Fatalf("missing signal kind in row, got: %s", content)
	}
}

func TestLogger_DropsRowsWhenChannelFull(t *testing.T) {
	dir := t.TempDir()
	l := &Logger{ch: make(chan Row), dir: dir, log: zerolog.Nop()} // unbuffered, no goroutine consuming
	l.Log(Row{TimestampMS: 1}) // must not block
}
