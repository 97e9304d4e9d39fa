package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoData is returned by Source.ReadLine when no complete line is available yet.
var ErrNoData = errors.New("no new data")

// Kind identifies the type of log source.
type Kind string

const (
	KindFile     Kind = "file"
	KindJournald Kind = "journald"
	KindExec     Kind = "exec"
)

// Source is an append-only stream of text lines.
type Source interface {
	// Name returns the source's identifier (see SourceID).
	Name() string

	// Open prepares the source for reading new output.
	Open(ctx context.Context) error

	// ReadLine returns the next complete line without its terminator,
	// or ErrNoData when nothing new has been produced.
	ReadLine(ctx context.Context) (string, error)

	// Close releases the underlying handle. Open may be called again afterwards.
	Close() error
}

// Backfiller is implemented by sources that can return output produced
// before Open, so a fresh daemon starts with a populated buffer.
type Backfiller interface {
	Backfill(n int) ([]string, error)
}

// SourceID constructs a source identifier.
// Format: kind:target
func SourceID(kind Kind, target string) string {
	return fmt.Sprintf("%s:%s", kind, target)
}

// ParseSourceID splits a source identifier into kind and target.
func ParseSourceID(id string) (Kind, string, error) {
	parts := strings.SplitN(id, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid source ID %q: expected kind:target", id)
	}
	return Kind(parts[0]), parts[1], nil
}
