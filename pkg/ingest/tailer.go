// Package ingest follows a log source and publishes each new line in order.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/modoterra/tailcast/pkg/core"
)

// Publisher receives lines from the tailer. hub.Hub implements it.
type Publisher interface {
	Publish(line core.LogLine)
	SetDegraded(degraded bool, reason string)
}

// Options configures a Tailer. Zero values fall back to defaults.
type Options struct {
	PollInterval  time.Duration
	ReadTimeout   time.Duration
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	DegradedAfter int
	Backfill      int // lines to prime from a Backfiller source; 0 disables
	Logger        *slog.Logger
}

const (
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultReadTimeout   = 2 * time.Second
	DefaultBackoffMin    = 250 * time.Millisecond
	DefaultBackoffMax    = 30 * time.Second
	DefaultDegradedAfter = 5
)

func (o *Options) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = DefaultBackoffMin
	}
	if o.BackoffMax < o.BackoffMin {
		o.BackoffMax = max(DefaultBackoffMax, o.BackoffMin)
	}
	if o.DegradedAfter <= 0 {
		o.DegradedAfter = DefaultDegradedAfter
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Tailer reads a Source and publishes LogLines with strictly increasing
// sequence numbers. It is the only writer of the sequence counter.
type Tailer struct {
	src        core.Source
	pub        Publisher
	opts       Options
	seq        uint64
	failures   int
	degraded   bool
	backfilled bool
	logger     *slog.Logger
}

// New creates a tailer for src publishing to pub.
func New(src core.Source, pub Publisher, opts Options) *Tailer {
	opts.setDefaults()
	return &Tailer{
		src:    src,
		pub:    pub,
		opts:   opts,
		logger: opts.Logger.With("source", src.Name()),
	}
}

// Seq returns the last assigned sequence number. Only safe to call from the
// goroutine running Run, or after Run has returned.
func (t *Tailer) Seq() uint64 {
	return t.seq
}

// Run follows the source until ctx is cancelled. Transient failures are
// logged and retried; Run only returns when ctx is done.
func (t *Tailer) Run(ctx context.Context) error {
	opened := false
	defer func() {
		if opened {
			t.src.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if !opened {
			if err := t.src.Open(ctx); err != nil {
				t.fail(ctx, "open", err)
				continue
			}
			opened = true
			t.logger.Info("source opened")
			t.backfill()
		}

		text, err := t.read(ctx)
		switch {
		case err == nil:
			t.recovered()
			t.emit(text)
		case errors.Is(err, core.ErrNoData):
			t.recovered()
			sleep(ctx, t.opts.PollInterval)
		default:
			if ctx.Err() != nil {
				return nil
			}
			t.src.Close()
			opened = false
			t.fail(ctx, "read", err)
		}
	}
}

// read bounds a single ReadLine call so a blocking source cannot hang the loop.
func (t *Tailer) read(ctx context.Context) (string, error) {
	rctx, cancel := context.WithTimeout(ctx, t.opts.ReadTimeout)
	defer cancel()

	text, err := t.src.ReadLine(rctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return "", core.ErrNoData
	}
	return text, err
}

func (t *Tailer) backfill() {
	if t.backfilled || t.opts.Backfill <= 0 {
		return
	}
	t.backfilled = true

	bf, ok := t.src.(core.Backfiller)
	if !ok {
		return
	}
	lines, err := bf.Backfill(t.opts.Backfill)
	if err != nil {
		t.logger.Warn("backfill failed", "err", err)
		return
	}
	n := 0
	for _, text := range lines {
		if t.emit(text) {
			n++
		}
	}
	t.logger.Info("backfilled", "lines", n)
}

// emit assigns the next sequence number and publishes. Blank lines are skipped.
func (t *Tailer) emit(text string) bool {
	text = strings.TrimRight(text, "\r\n")
	if strings.TrimSpace(text) == "" {
		return false
	}
	t.seq++
	t.pub.Publish(core.LogLine{
		Seq:        t.seq,
		Text:       text,
		ProducedAt: time.Now(),
	})
	return true
}

func (t *Tailer) fail(ctx context.Context, op string, err error) {
	t.failures++
	delay := backoff(t.failures, t.opts.BackoffMin, t.opts.BackoffMax)
	t.logger.Warn("source "+op+" failed", "err", err, "attempt", t.failures, "retry_in", delay)

	if !t.degraded && t.failures >= t.opts.DegradedAfter {
		t.degraded = true
		t.pub.SetDegraded(true, err.Error())
		t.logger.Error("source unavailable, serving buffered lines only", "err", err, "failures", t.failures)
	}
	sleep(ctx, delay)
}

func (t *Tailer) recovered() {
	if t.failures == 0 {
		return
	}
	if t.degraded {
		t.degraded = false
		t.pub.SetDegraded(false, "")
		t.logger.Info("source recovered", "failures", t.failures)
	}
	t.failures = 0
}

// backoff returns lo doubled per prior failure, capped at hi.
func backoff(failures int, lo, hi time.Duration) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := lo
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= hi {
			return hi
		}
	}
	if d > hi {
		d = hi
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
