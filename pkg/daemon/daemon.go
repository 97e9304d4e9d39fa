// Package daemon wires a log source, the ring, the hub and the transports
// into the tailcastd process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modoterra/tailcast/pkg/config"
	"github.com/modoterra/tailcast/pkg/core"
	"github.com/modoterra/tailcast/pkg/hub"
	"github.com/modoterra/tailcast/pkg/ingest"
	"github.com/modoterra/tailcast/pkg/providers/logs/filetail"
	"github.com/modoterra/tailcast/pkg/ring"
	"github.com/modoterra/tailcast/pkg/transport/sse"
	"github.com/modoterra/tailcast/pkg/transport/uds"
)

var errBadDate = errors.New("Invalid date format. Use YYYYMMDD")

// Daemon is the tailcastd process: one tailer feeding one hub, served over
// a control socket and an SSE endpoint.
type Daemon struct {
	cfg       *config.Config
	source    core.Source
	hub       *hub.Hub
	tailer    *ingest.Tailer
	server    *uds.Server
	http      *sse.Server
	notifier  Notifier
	loc       *time.Location
	startedAt time.Time
	logger    *slog.Logger
}

// New builds a daemon for cfg reading from src. A nil notifier disables
// service manager notifications.
func New(cfg *config.Config, src core.Source, notifier Notifier, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	h := hub.New(ring.New(cfg.Buffer.Capacity), hub.Options{
		QueueDepth: cfg.Hub.QueueDepth,
		Logger:     logger,
	})

	backfill := 0
	if cfg.Source.Backfill {
		backfill = cfg.Buffer.Capacity
	}
	t := ingest.New(src, h, ingest.Options{
		PollInterval:  cfg.Tailer.PollInterval.D(),
		ReadTimeout:   cfg.Tailer.ReadTimeout.D(),
		BackoffMin:    cfg.Tailer.BackoffMin.D(),
		BackoffMax:    cfg.Tailer.BackoffMax.D(),
		DegradedAfter: cfg.Tailer.DegradedAfter,
		Backfill:      backfill,
		Logger:        logger,
	})

	d := &Daemon{
		cfg:      cfg,
		source:   src,
		hub:      h,
		tailer:   t,
		notifier: notifier,
		loc:      loc,
		logger:   logger,
	}

	if cfg.Socket != "" {
		d.server = uds.NewServer(cfg.Socket, logger)
		d.server.SetWriteTimeout(cfg.HTTP.WriteTimeout.D())
		d.registerHandlers()
	}
	if cfg.HTTP.Listen != "" {
		d.http = sse.NewServer(h, sse.Options{
			WriteTimeout: cfg.HTTP.WriteTimeout.D(),
			Retry:        cfg.Viewer.ReconnectDelay.D(),
			Location:     loc,
			ByDate:       d.byDate(),
			Logger:       logger,
		})
	}
	return d, nil
}

// Hub returns the broadcast hub.
func (d *Daemon) Hub() *hub.Hub { return d.hub }

// Run starts every component and blocks until ctx is cancelled or a
// transport fails to start.
func (d *Daemon) Run(ctx context.Context) error {
	d.startedAt = time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		cancel()
	}
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	spawn(func() { _ = d.tailer.Run(ctx) })
	if d.server != nil {
		spawn(func() {
			if err := d.server.Start(ctx); err != nil {
				fail(err)
			}
		})
	}
	if d.http != nil {
		spawn(func() {
			if err := d.http.ListenAndServe(ctx, d.cfg.HTTP.Listen); err != nil {
				fail(err)
			}
		})
	}
	interval, watchdog := d.healthInterval()
	health := NewHealthLoop(d.hub, d.notifier, interval, watchdog, d.logger)
	spawn(func() { health.Run(ctx) })

	d.logger.Info("tailcastd started",
		"source", d.source.Name(),
		"capacity", d.cfg.Buffer.Capacity,
		"socket", d.cfg.Socket,
		"http", d.cfg.HTTP.Listen,
	)
	if err := d.notifier.Notify(sdReady); err != nil {
		d.logger.Warn("sd_notify ready failed", "err", err)
	}

	<-ctx.Done()
	d.logger.Info("shutting down")
	_ = d.notifier.Notify(sdStopping)
	d.shutdown()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return errors.Join(errs...)
}

func (d *Daemon) shutdown() {
	d.hub.Close()
	if d.http != nil {
		d.http.Stop()
	}
	if d.server != nil {
		d.server.Shutdown()
	}
}

// healthInterval pings the watchdog at half its timeout when one is set.
func (d *Daemon) healthInterval() (time.Duration, bool) {
	if w, ok := d.notifier.(interface{ WatchdogInterval() time.Duration }); ok {
		if iv := w.WatchdogInterval(); iv > 0 {
			return iv / 2, true
		}
	}
	return DefaultHealthInterval, false
}

// byDate returns a DayReader when the source is a dated file.
func (d *Daemon) byDate() sse.DayReader {
	fs, ok := d.source.(interface{ Path() string })
	if !ok {
		return nil
	}
	path := fs.Path()
	return func(day time.Time) ([]string, error) {
		return filetail.ByDate(path, day)
	}
}

// Status reports the hub status together with the source and uptime.
func (d *Daemon) Status() uds.StatusResponse {
	st := d.hub.Status()
	return uds.StatusResponse{
		Source:      d.source.Name(),
		StartedAt:   d.startedAt,
		Subscribers: st.Subscribers,
		Buffered:    st.Buffered,
		Capacity:    st.Capacity,
		LastSeq:     st.LastSeq,
		Published:   st.Published,
		Dropped:     st.Dropped,
		Degraded:    st.Degraded,
		Reason:      st.Reason,
	}
}

func (d *Daemon) logsByDate(date string) (uds.LogsByDateResponse, error) {
	day, err := filetail.ParseDay(date, d.loc)
	if err != nil {
		return uds.LogsByDateResponse{}, errBadDate
	}
	read := d.byDate()
	if read == nil {
		return uds.LogsByDateResponse{}, fmt.Errorf("source %s has no dated file", d.source.Name())
	}
	lines, err := read(day)
	if err != nil {
		return uds.LogsByDateResponse{}, err
	}
	return uds.LogsByDateResponse{Date: day.Format(filetail.DayLayout), Lines: lines}, nil
}
