package exec

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readAll(t *testing.T, s *Source) ([]string, error) {
	t.Helper()
	var lines []string
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		line, err := s.ReadLine(ctx)
		cancel()
		if err != nil {
			return lines, err
		}
		lines = append(lines, line)
	}
}

func TestMergedOutputAndExit(t *testing.T) {
	s := NewArgs("exec:test", []string{"sh", "-c", "echo out; echo err >&2; exit 3"}, testLogger())
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	lines, err := readAll(t, s)
	if !errors.Is(err, ErrExited) {
		t.Fatalf("expected ErrExited, got %v", err)
	}
	sort.Strings(lines)
	if len(lines) != 2 || lines[0] != "err" || lines[1] != "out" {
		t.Errorf("lines = %v", lines)
	}
}

func TestEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	s := New("sh -c pwd", dir, nil, testLogger())
	s.argv = []string{"sh", "-c", "echo $TAILCAST_TEST; pwd"}
	s.env = map[string]string{"TAILCAST_TEST": "hello"}
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	lines, _ := readAll(t, s)
	if len(lines) != 2 || lines[0] != "hello" {
		t.Errorf("lines = %v", lines)
	}
}

func TestReadLineHonoursContext(t *testing.T) {
	s := NewArgs("exec:sleep", []string{"sleep", "30"}, testLogger())
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.ReadLine(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}

	start := time.Now()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Close did not terminate the process promptly")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestReopenRestartsProcess(t *testing.T) {
	s := NewArgs("exec:echo", []string{"echo", "tick"}, testLogger())
	for i := 0; i < 2; i++ {
		if err := s.Open(context.Background()); err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		lines, _ := readAll(t, s)
		if len(lines) != 1 || lines[0] != "tick" {
			t.Errorf("run %d: lines = %v", i, lines)
		}
		s.Close()
	}
}

func TestEmptyCommand(t *testing.T) {
	s := New("   ", "", nil, testLogger())
	if err := s.Open(context.Background()); err == nil {
		t.Error("expected error for empty command")
	}
	if _, err := s.ReadLine(context.Background()); err == nil {
		t.Error("expected error reading unopened source")
	}
}

func TestOversizedLineDoesNotStall(t *testing.T) {
	script := `head -c 2000000 /dev/zero | tr '\0' a; echo; echo after`
	s := NewArgs("exec:long", []string{"sh", "-c", script}, testLogger())
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	lines, err := readAll(t, s)
	if !errors.Is(err, ErrExited) {
		t.Fatalf("expected ErrExited, got %v (after %d lines)", err, len(lines))
	}
	if len(lines) != 2 || lines[1] != "after" {
		t.Fatalf("got %d lines, want the long line then %q", len(lines), "after")
	}
	want := strings.Repeat("a", MaxLineBytes) + truncatedMark
	if lines[0] != want {
		t.Errorf("long line: len %d, want %d", len(lines[0]), len(want))
	}
}

func TestReadLineLimit(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		limit     int
		want      []string
		truncated []bool
	}{
		{"short lines", "a\nbb\n", 8, []string{"a", "bb"}, []bool{false, false}},
		{"crlf", "a\r\n", 8, []string{"a"}, []bool{false}},
		{"empty line", "\nx\n", 8, []string{"", "x"}, []bool{false, false}},
		{"no trailing newline", "tail", 8, []string{"tail"}, []bool{false}},
		{"exactly at limit", "abcd\n", 4, []string{"abcd"}, []bool{false}},
		{"over limit", "abcdefgh\nnext\n", 4, []string{"abcd", "next"}, []bool{true, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A reader buffer smaller than the lines forces fragmented reads.
			br := bufio.NewReaderSize(strings.NewReader(tt.input), 16)
			var got []string
			var truncated []bool
			for {
				line, cut, err := readLine(br, tt.limit)
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					t.Fatal(err)
				}
				got = append(got, line)
				truncated = append(truncated, cut)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Fatalf("lines = %q, want %q", got, tt.want)
			}
			for i := range truncated {
				if truncated[i] != tt.truncated[i] {
					t.Errorf("line %d truncated = %v, want %v", i, truncated[i], tt.truncated[i])
				}
			}
		})
	}
}
