package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/modoterra/tailcast/pkg/core"
	"github.com/modoterra/tailcast/pkg/transport/uds"
	"github.com/modoterra/tailcast/pkg/viewer"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// Point the root at a config that does not exist so a stray
	// tailcast.yaml on the test machine is never picked up.
	args = append(args, "--config", filepath.Join(t.TempDir(), "none.yaml"))
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "tailcast ") {
		t.Fatalf("output = %q", out)
	}
}

func TestConfigValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "tailcast.yaml")
	if err := os.WriteFile(good, []byte("source:\n  kind: file\n  path: /var/log/engine.log\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("[source]\nkind = \"journald\"\n\n[buffer]\ncapacity = 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "config", "validate", good)
	if err != nil {
		t.Fatalf("valid config rejected: %v\n%s", err, out)
	}
	if !strings.Contains(out, "valid (file source)") {
		t.Fatalf("output = %q", out)
	}

	out, err = execute(t, "config", "validate", bad)
	if err == nil {
		t.Fatalf("invalid config accepted:\n%s", out)
	}
	if !strings.Contains(out, "2 error(s)") || !strings.Contains(out, "unit is required") {
		t.Fatalf("output = %q", out)
	}

	if _, err := execute(t, "config", "validate", filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: err = %v", err)
	}
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tailcast.toml")

	if _, err := execute(t, "config", "init", "--output", path); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "config", "validate", path); err != nil {
		t.Fatalf("generated config does not validate: %v", err)
	}
	if _, err := execute(t, "config", "init", "--output", path); err == nil {
		t.Fatal("init overwrote an existing file without --force")
	}
}

func TestEmitLineFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newEmitLogger(&buf, "engine")
	at := time.Date(2026, 10, 17, 9, 30, 0, 123_000_000, time.UTC)

	emitLine(logger, at, zerolog.WarnLevel, "Quote for SPY is stale")

	want := "2026-10-17 09:30:00,123 - engine - WARNING - Quote for SPY is stale\n"
	if buf.String() != want {
		t.Fatalf("line = %q, want %q", buf.String(), want)
	}
}

func TestSyntheticLinesClassify(t *testing.T) {
	want := map[zerolog.Level]core.Severity{
		zerolog.ErrorLevel: core.SeverityError,
		zerolog.WarnLevel:  core.SeverityWarning,
		zerolog.InfoLevel:  core.SeverityInfo,
		zerolog.DebugLevel: core.SeverityDebug,
	}
	var buf bytes.Buffer
	logger := newEmitLogger(&buf, "trading_system")
	for n := range 500 {
		buf.Reset()
		level, msg := syntheticLine(n)
		emitLine(logger, time.Now(), level, msg)
		line := strings.TrimSuffix(buf.String(), "\n")
		if got := core.Classify(line); got != want[level] {
			t.Fatalf("Classify(%q) = %s, want %s", line, got, want[level])
		}
	}
}

func TestLevelName(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARNING"},
		{"error", "ERROR"},
		{"fatal", "CRITICAL"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := levelName(tt.in); got != tt.want {
			t.Errorf("levelName(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrinterReconnect(t *testing.T) {
	var out, errOut bytes.Buffer
	p := &printer{out: &out, errOut: &errOut}

	line := func(seq uint64, text string) viewer.Update {
		return viewer.Update{Kind: viewer.UpdateLine, Line: core.LogLine{Seq: seq, Text: text}}
	}
	for _, u := range []viewer.Update{
		{Kind: viewer.UpdateConnected},
		line(1, "first"),
		line(2, "second"),
		line(2, "second"),
		{Kind: viewer.UpdateStatus, Degraded: true},
		{Kind: viewer.UpdateDisconnected, Err: errors.New("EOF"), RetryIn: 5 * time.Second},
		{Kind: viewer.UpdateConnected},
		line(1, "first"),
		line(2, "second"),
		line(3, "third"),
	} {
		p.handle(u)
	}

	if got, want := out.String(), "first\nsecond\nfirst\nsecond\nthird\n"; got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
	notices := errOut.String()
	for _, s := range []string{"degraded", "stream lost (EOF), reconnecting in 5s", "reconnected"} {
		if !strings.Contains(notices, s) {
			t.Errorf("stderr missing %q:\n%s", s, notices)
		}
	}
}

func TestPrintStatus(t *testing.T) {
	started := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	st := uds.StatusResponse{
		Source:      "file:logs/trading_system.log",
		StartedAt:   started,
		Subscribers: 2,
		Buffered:    40,
		Capacity:    1000,
		LastSeq:     40,
		Published:   40,
		Degraded:    true,
		Reason:      "open logs/trading_system.log: no such file or directory",
	}
	var buf bytes.Buffer
	printStatus(&buf, st, started.Add(90*time.Minute))

	out := buf.String()
	for _, s := range []string{
		"file:logs/trading_system.log",
		"degraded (open logs/trading_system.log: no such file or directory)",
		"up 1h30m0s",
		"40/1000 lines",
	} {
		if !strings.Contains(out, s) {
			t.Errorf("status missing %q:\n%s", s, out)
		}
	}
}
