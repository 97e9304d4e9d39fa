// Package journald follows the journal of a single systemd unit.
package journald

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/modoterra/tailcast/pkg/core"
	execsrc "github.com/modoterra/tailcast/pkg/providers/logs/exec"
)

// ErrUnitNotFound is returned by Open when systemd does not know the unit.
var ErrUnitNotFound = errors.New("unit not found")

// Source streams `journalctl -f` output for one unit.
type Source struct {
	unit   string
	user   bool
	proc   *execsrc.Source
	logger *slog.Logger
}

// New creates a journald source. Names without a suffix get ".service".
func New(unit string, user bool, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{unit: normalizeUnit(unit), user: user, logger: logger}
}

func (s *Source) Name() string { return core.SourceID(core.KindJournald, s.unit) }

// Unit returns the normalized unit name.
func (s *Source) Unit() string { return s.unit }

// Open checks the unit over D-Bus and starts following its journal.
func (s *Source) Open(ctx context.Context) error {
	if err := s.checkUnit(ctx); err != nil {
		return err
	}
	s.proc = execsrc.NewArgs(s.Name(), s.followArgs(), s.logger)
	if err := s.proc.Open(ctx); err != nil {
		s.proc = nil
		return fmt.Errorf("journalctl start: %w", err)
	}
	s.logger.Info("following journal", "unit", s.unit, "user", s.user)
	return nil
}

func (s *Source) ReadLine(ctx context.Context) (string, error) {
	if s.proc == nil {
		return "", fmt.Errorf("%s: not open", s.Name())
	}
	return s.proc.ReadLine(ctx)
}

func (s *Source) Close() error {
	if s.proc == nil {
		return nil
	}
	err := s.proc.Close()
	s.proc = nil
	return err
}

// Backfill returns the last n journal lines for the unit.
func (s *Source) Backfill(n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	out, err := exec.Command("journalctl", s.backfillArgs(n)[1:]...).Output()
	if err != nil {
		return nil, fmt.Errorf("journalctl backfill: %w", err)
	}
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// checkUnit asks systemd whether the unit exists. When the bus itself is
// unreachable the check is skipped and journalctl is left to report.
func (s *Source) checkUnit(ctx context.Context) error {
	var conn *dbus.Conn
	var err error
	if s.user {
		conn, err = dbus.NewUserConnectionContext(ctx)
	} else {
		conn, err = dbus.NewWithContext(ctx)
	}
	if err != nil {
		s.logger.Debug("dbus unavailable, skipping unit check", "unit", s.unit, "err", err)
		return nil
	}
	defer conn.Close()

	units, err := conn.ListUnitsByNamesContext(ctx, []string{s.unit})
	if err != nil {
		return fmt.Errorf("list units: %w", err)
	}
	if len(units) == 0 || units[0].LoadState == "not-found" {
		return fmt.Errorf("%s: %w", s.unit, ErrUnitNotFound)
	}
	return nil
}

func (s *Source) unitFlag() string {
	if s.user {
		return "--user-unit"
	}
	return "--unit"
}

func (s *Source) followArgs() []string {
	return []string{"journalctl", s.unitFlag(), s.unit, "--follow", "--output", "cat", "--lines", "0", "--no-pager"}
}

func (s *Source) backfillArgs(n int) []string {
	return []string{"journalctl", s.unitFlag(), s.unit, "--output", "cat", "--lines", strconv.Itoa(n), "--no-pager"}
}

func normalizeUnit(unit string) string {
	unit = strings.TrimSpace(unit)
	if unit == "" || strings.Contains(unit, ".") {
		return unit
	}
	return unit + ".service"
}
