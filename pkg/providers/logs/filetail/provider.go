// Package filetail follows a growing log file, surviving truncation and rotation.
package filetail

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/modoterra/tailcast/pkg/core"
)

// Source tails a single log file.
type Source struct {
	path    string
	f       *os.File
	reader  *bufio.Reader
	info    os.FileInfo // identity of the last opened file
	offset  int64       // bytes consumed from f
	start   int64       // follow position at first Open, the backfill boundary
	opened  bool
	pending string
	logger  *slog.Logger
}

// New creates a file source for path.
func New(path string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{path: path, logger: logger}
}

func (s *Source) Name() string { return core.SourceID(core.KindFile, s.path) }

// Path returns the followed file path.
func (s *Source) Path() string { return s.path }

// Open opens the file. The first Open starts at the beginning of the last
// line present, so an unterminated tail is completed by later writes.
// Reopening the same file resumes where reading stopped; a file that
// replaced it since is read from the start.
func (s *Source) Open(_ context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", s.path, err)
	}

	var pos int64
	switch {
	case !s.opened:
		if pos, err = lineStart(f, info.Size()); err != nil {
			f.Close()
			return fmt.Errorf("read %s: %w", s.path, err)
		}
		s.start = pos
		s.opened = true
	case s.info != nil && os.SameFile(s.info, info):
		pos = s.offset - int64(len(s.pending))
		if pos > info.Size() {
			pos = 0
		}
	default:
		s.logger.Info("log file replaced while closed, reading it from the start", "path", s.path)
	}

	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("seek %s: %w", s.path, err)
	}
	s.f = f
	s.info = info
	s.reader = bufio.NewReaderSize(f, 64*1024)
	s.offset = pos
	s.pending = ""
	return nil
}

// ReadLine returns the next complete line. A trailing partial line is held
// back until its newline arrives.
func (s *Source) ReadLine(_ context.Context) (string, error) {
	if s.f == nil {
		return "", fmt.Errorf("read %s: source not open", s.path)
	}

	for {
		chunk, err := s.reader.ReadString('\n')
		s.offset += int64(len(chunk))
		if err == nil {
			line := s.pending + chunk
			s.pending = ""
			return strings.TrimRight(line, "\r\n"), nil
		}
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read %s: %w", s.path, err)
		}
		s.pending += chunk

		pathInfo, err := os.Stat(s.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				s.info = nil // whatever appears next at path is a new file
			}
			return "", fmt.Errorf("stat %s: %w", s.path, err)
		}
		openInfo, err := s.f.Stat()
		if err != nil {
			return "", fmt.Errorf("stat open handle %s: %w", s.path, err)
		}

		if !os.SameFile(pathInfo, openInfo) {
			if openInfo.Size() > s.offset {
				continue // the writer still holds the old file; finish it first
			}
			return s.rotate()
		}
		if openInfo.Size() < s.offset {
			return "", s.rewind(openInfo.Size())
		}
		return "", core.ErrNoData
	}
}

// rotate switches to the file now at the path. An unterminated last line
// of the old file is returned as a line of its own.
func (s *Source) rotate() (string, error) {
	s.logger.Info("log file rotated, following new file", "path", s.path)
	f, err := os.Open(s.path)
	if err != nil {
		return "", fmt.Errorf("reopen %s: %w", s.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return "", fmt.Errorf("stat %s: %w", s.path, err)
	}
	tail := strings.TrimRight(s.pending, "\r\n")

	s.f.Close()
	s.f = f
	s.info = info
	s.reader.Reset(f)
	s.offset = 0
	s.pending = ""
	if strings.TrimSpace(tail) != "" {
		return tail, nil
	}
	return "", core.ErrNoData
}

func (s *Source) rewind(size int64) error {
	s.logger.Info("log file truncated, rewinding", "path", s.path, "size", size, "offset", s.offset)
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind %s: %w", s.path, err)
	}
	s.reader.Reset(s.f)
	s.offset = 0
	s.pending = ""
	return core.ErrNoData
}

// lineStart returns the offset just past the last newline before end, or 0
// when there is none.
func lineStart(f *os.File, end int64) (int64, error) {
	buf := make([]byte, 4096)
	for pos := end; pos > 0; {
		n := min(int64(len(buf)), pos)
		pos -= n
		if _, err := f.ReadAt(buf[:n], pos); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			return pos + int64(i) + 1, nil
		}
	}
	return 0, nil
}

// Close closes the file. It is safe to call on a closed source.
func (s *Source) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	s.reader = nil
	return err
}

// Backfill returns at most n complete lines written before Open, oldest
// first.
func (s *Source) Backfill(n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	limit := s.start
	if !s.opened {
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat log: %w", err)
		}
		if limit, err = lineStart(f, info.Size()); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
	}
	return lastLines(io.LimitReader(f, limit), n)
}

// lastLines keeps the final n lines of r in a ring, in one pass.
func lastLines(r io.Reader, n int) ([]string, error) {
	ring := make([]string, n)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % n
		if count < n {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == n {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%n]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}
