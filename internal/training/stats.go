package training

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// StatsRow is one per-step training statistics record, appended to the
// CSV sink after every optimizer step.
type StatsRow struct {
	Round      int
	Loss       float32
	ValueLoss  float32
	PolicyLoss float32
	BufferSize int
}

var statsHeader = []string{"round", "loss", "value_loss", "policy_loss", "buffer_size"}

// StatsWriter appends training statistics rows to a CSV file. The
// header is written once when the file is created; later server runs
// append to the existing history.
type StatsWriter struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// NewStatsWriter opens (or creates) the CSV file at path, creating
// parent directories as needed.
func NewStatsWriter(path string) (*StatsWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating stats directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening stats file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat stats file: %w", err)
	}

	sw := &StatsWriter{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := sw.w.Write(statsHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("writing stats header: %w", err)
		}
		sw.w.Flush()
	}
	return sw, nil
}

// Append writes one row and flushes it, so a crashed training run still
// leaves a complete history on disk.
func (sw *StatsWriter) Append(row StatsRow) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	record := []string{
		strconv.Itoa(row.Round),
		formatFloat(row.Loss),
		formatFloat(row.ValueLoss),
		formatFloat(row.PolicyLoss),
		strconv.Itoa(row.BufferSize),
	}
	if err := sw.w.Write(record); err != nil {
		return err
	}
	sw.w.Flush()
	return sw.w.Error()
}

// Close flushes and closes the underlying file.
func (sw *StatsWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.w.Flush()
	if err := sw.w.Error(); err != nil {
		_ = sw.f.Close()
		return err
	}
	return sw.f.Close()
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}
