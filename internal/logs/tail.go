package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const maxLineBytes = 1024 * 1024

// Options narrows the lines returned by Tail and Follow.
type Options struct {
	Lines int
	RunID string
}

// Result holds tailed lines and the file offset to resume from.
type Result struct {
	Lines  []string
	Offset int64
}

// Tail returns the last opts.Lines lines of path that belong to opts.RunID.
// Lines <= 0 returns every matching line and an empty RunID matches all runs.
// A missing file yields an empty result.
func Tail(path string, opts Options) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return Result{}, fmt.Errorf("log path %q is a directory", path)
	}

	match := matcher(opts.RunID)
	if opts.Lines <= 0 {
		var lines []string
		offset, err := scan(file, func(line string) {
			if match(line) {
				lines = append(lines, line)
			}
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Lines: lines, Offset: offset}, nil
	}

	ring := make([]string, opts.Lines)
	count, idx := 0, 0
	offset, err := scan(file, func(line string) {
		if !match(line) {
			return
		}
		ring[idx] = line
		idx = (idx + 1) % opts.Lines
		if count < opts.Lines {
			count++
		}
	})
	if err != nil {
		return Result{}, err
	}

	lines := make([]string, count)
	if count == opts.Lines {
		for i := range count {
			lines[i] = ring[(idx+i)%opts.Lines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return Result{Lines: lines, Offset: offset}, nil
}

// Follow polls path for lines appended after offset and hands each matching
// line to emit. It returns ctx.Err() once the context ends. A truncated file
// is read again from the start.
func Follow(ctx context.Context, path string, offset int64, opts Options, poll time.Duration, emit func(string)) error {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	match := matcher(opts.RunID)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, func(line string) {
			if match(line) {
				emit(line)
			}
		})
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, fn func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	read, err := scan(file, fn)
	if err != nil {
		return offset, err
	}
	return offset + read, nil
}

// scan feeds every complete line of r to fn and reports the number of bytes
// consumed. A trailing line without newline is left for the next read.
func scan(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		if err != nil {
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		if len(line) > maxLineBytes {
			continue
		}
		fn(strings.TrimRight(line, "\r\n"))
	}
}

func matcher(runID string) func(string) bool {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return func(string) bool { return true }
	}
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return func(line string) bool {
		if strings.HasPrefix(line, "{") {
			var record struct {
				RunID string `json:"run_id"`
			}
			if json.Unmarshal([]byte(line), &record) == nil {
				return strings.HasPrefix(record.RunID, runID)
			}
		}
		return strings.Contains(line, "["+short)
	}
}
