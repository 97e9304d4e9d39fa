package journald

import (
	"context"
	"reflect"
	"testing"
)

func TestNormalizeUnit(t *testing.T) {
	tests := map[string]string{
		"nginx":         "nginx.service",
		"nginx.service": "nginx.service",
		" trader ":      "trader.service",
		"backup.timer":  "backup.timer",
		"":              "",
	}
	for in, want := range tests {
		if got := normalizeUnit(in); got != want {
			t.Errorf("normalizeUnit(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestArgs(t *testing.T) {
	sys := New("trader", false, nil)
	if sys.Name() != "journald:trader.service" {
		t.Errorf("Name() = %q", sys.Name())
	}
	want := []string{"journalctl", "--unit", "trader.service", "--follow", "--output", "cat", "--lines", "0", "--no-pager"}
	if got := sys.followArgs(); !reflect.DeepEqual(got, want) {
		t.Errorf("followArgs() = %v", got)
	}

	user := New("trader.service", true, nil)
	want = []string{"journalctl", "--user-unit", "trader.service", "--output", "cat", "--lines", "50", "--no-pager"}
	if got := user.backfillArgs(50); !reflect.DeepEqual(got, want) {
		t.Errorf("backfillArgs() = %v", got)
	}
}

func TestReadBeforeOpen(t *testing.T) {
	s := New("trader", false, nil)
	if _, err := s.ReadLine(context.Background()); err == nil {
		t.Error("expected error reading unopened source")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on unopened source: %v", err)
	}
	if lines, err := s.Backfill(0); lines != nil || err != nil {
		t.Errorf("Backfill(0) = %v, %v", lines, err)
	}
}
