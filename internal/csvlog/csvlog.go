// Package csvlog is the async CSV writer for bucket aggregation and signal
// rows. It sits entirely off the hot path: the engine sends rows over a
// buffered channel and drops them if the logger falls behind, never
// blocking the Synchronizer or Signal Detector.
//
// Grounded on the teacher's internal/logger/csv.go architecture (engine
// goroutine -> buffered channel -> dedicated logger goroutine -> daily CSV
// rotation, bufio-buffered with a periodic flush), with the schema and
// decision-layer helpers replaced: per DESIGN NOTES, "serialization is an
// external collaborator", so this package only ever renders what the core
// already computed, nothing more.
package csvlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const (
	chanSize    = 4096
	bufSize     = 1 << 20 // 1 MB
	flushPeriod = 1 * time.Second
)

// Row is one bucket-aggregation-plus-signal observation, pre-computed by the
// engine goroutine (not the hot path).
type Row struct {
	TimestampMS  int64
	BucketStart  string
	BucketEnd    string
	BidVol       string
	AskVol       string
	RecentBuyVol string
	RecentSellVol string
	SignalKind   string // empty if no signal fired this round for this bucket
	BidRate      float64
	AskRate      float64
}

// Logger is the async CSV writer.
type Logger struct {
	ch  chan Row
	dir string
	log zerolog.Logger
}

// New creates a Logger writing daily-rotated CSV files under dir and starts
// its background goroutine.
func New(dir string, log zerolog.Logger) *Logger {
	l := &Logger{
		ch:  make(chan Row, chanSize),
		dir: dir,
		log: log.With().Str("component", "csvlog").Logger(),
	}
	go l.run()
	return l
}

// Log is a non-blocking send; the row is dropped if the logger is backed up.
func (l *Logger) Log(row Row) {
	select {
	case l.ch <- row:
	default:
	}
}

// Close stops the background goroutine after flushing and closing the
// current file.
func (l *Logger) Close() {
	close(l.ch)
}

func (l *Logger) run() {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		l.log.Error().Err(err).Str("dir", l.dir).Msg("failed to create csv log dir")
		return
	}

	var (
		currentDay string
		file       *os.File
		writer     *bufio.Writer
	)

	ticker := time.NewTicker(flushPeriod)
	defer ticker.Stop()

	openFile := func(day string) {
		if file != nil {
			writer.Flush()
			file.Close()
		}
		path := filepath.Join(l.dir, day+".csv")
		var err error
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			l.log.Error().Err(err).Str("path", path).Msg("failed to open csv log file")
			return
		}
		writer = bufio.NewWriterSize(file, bufSize)

		info, _ := file.Stat()
		if info != nil && info.Size() == 0 {
			fmt.Fprintln(writer, "timestamp_ms,bucket_start,bucket_end,bid_vol,ask_vol,recent_buy_vol,recent_sell_vol,signal_kind,bid_rate,ask_rate")
		}
		currentDay = day
	}

	for {
		select {
		case row, ok := <-l.ch:
			if !ok {
				if writer != nil {
					writer.Flush()
				}
				if file != nil {
					file.Close()
				}
				return
			}
			day := time.UnixMilli(row.TimestampMS).UTC().Format("2006-01-02")
			if day != currentDay {
				openFile(day)
			}
			if writer == nil {
				continue
			}
			fmt.Fprintf(writer, "%d,%s,%s,%s,%s,%s,%s,%s,%.6f,%.6f\n",
				row.TimestampMS, row.BucketStart, row.BucketEnd, row.BidVol, row.AskVol,
				row.RecentBuyVol, row.RecentSellVol, row.SignalKind, row.BidRate, row.AskRate)
		case <-ticker.C:
			if writer != nil {
				writer.Flush()
			}
		}
	}
}
