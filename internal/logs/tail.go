package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	defaultPoll   = 250 * time.Millisecond
	maxLineLength = 1024 * 1024
)

// TailOptions controls Tail.
type TailOptions struct {
	// Lines is how many existing lines to emit first. Zero starts at the end.
	Lines  int
	Follow bool
	Poll   time.Duration
	Filter Filter
}

// Tail emits the last opts.Lines matching lines of path, then with Follow
// keeps emitting appended lines until ctx ends. A missing file is treated as
// empty. It returns the number of lines emitted.
func Tail(ctx context.Context, path string, opts TailOptions, emit func(string)) (int, error) {
	if opts.Poll <= 0 {
		opts.Poll = defaultPoll
	}

	lines, offset, err := readLastLines(path, opts.Lines, opts.Filter)
	if err != nil {
		return 0, err
	}
	for _, line := range lines {
		emit(line)
	}
	emitted := len(lines)
	if !opts.Follow {
		return emitted, nil
	}

	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return emitted, nil
		case <-ticker.C:
		}
		fresh, next, err := readForward(path, offset)
		if err != nil {
			return emitted, err
		}
		offset = next
		for _, line := range fresh {
			if opts.Filter.Match(line) {
				emit(line)
				emitted++
			}
		}
	}
}

// readLastLines keeps the last limit matching lines in a ring and returns the
// end-of-file offset.
func readLastLines(path string, limit int, filter Filter) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	if limit <= 0 {
		return nil, info.Size(), nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	ring := make([]string, limit)
	count, idx := 0, 0
	for scanner.Scan() {
		line := scanner.Text()
		if !filter.Match(line) {
			continue
		}
		ring[idx] = line
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}

	lines := make([]string, count)
	if count == limit {
		for i := range count {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, offset, nil
}

// readForward returns the complete lines written after offset. A partial
// trailing line is left for the next read. Truncation restarts from the top.
func readForward(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var lines []string
	for {
		chunk, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, offset, nil
			}
			return lines, offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(chunk))
		lines = append(lines, trimNewline(chunk))
	}
}

func trimNewline(s string) string {
	s = s[:len(s)-1]
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}
