package daemon

import (
	"fmt"
	"log/slog"

	"github.com/modoterra/tailcast/pkg/config"
	"github.com/modoterra/tailcast/pkg/core"
	execsrc "github.com/modoterra/tailcast/pkg/providers/logs/exec"
	"github.com/modoterra/tailcast/pkg/providers/logs/filetail"
	"github.com/modoterra/tailcast/pkg/providers/logs/journald"
)

// NewSource builds the log source selected by cfg.
func NewSource(cfg config.SourceConfig, logger *slog.Logger) (core.Source, error) {
	switch core.Kind(cfg.Kind) {
	case core.KindFile:
		return filetail.New(cfg.Path, logger), nil
	case core.KindJournald:
		return journald.New(cfg.Unit, cfg.User, logger), nil
	case core.KindExec:
		return execsrc.New(cfg.Command, cfg.Dir, cfg.Env, logger), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}
