package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modoterra/tailcast/pkg/config"
	"github.com/modoterra/tailcast/pkg/hub"
	"github.com/modoterra/tailcast/pkg/transport/uds"
)

type recordNotifier struct {
	mu     sync.Mutex
	states []string
}

func (r *recordNotifier) Notify(state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return nil
}

func (r *recordNotifier) has(prefix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDaemonEndToEnd(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "trading_system.log")
	initial := "2024-01-02 09:30:00,000 - engine - INFO - open\n" +
		"2024-01-02 09:31:00,000 - engine - WARNING - spread wide\n" +
		"2024-01-03 09:30:00,000 - engine - INFO - next day\n"
	if err := os.WriteFile(logPath, []byte(initial), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Source.Path = logPath
	cfg.Socket = filepath.Join(dir, "d.sock")
	cfg.HTTP.Listen = ""
	cfg.Timezone = "UTC"
	cfg.Tailer.PollInterval = config.Duration(10 * time.Millisecond)

	src, err := NewSource(cfg.Source, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	notifier := &recordNotifier{}
	d, err := New(cfg, src, notifier, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	stopped := false
	defer func() {
		if !stopped {
			cancel()
			<-done
		}
	}()

	waitFor(t, "socket", func() bool {
		_, err := os.Stat(cfg.Socket)
		return err == nil
	})
	waitFor(t, "backfill", func() bool { return d.Hub().Status().LastSeq == 3 })

	client, err := uds.Dial(cfg.Socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer reqCancel()

	var st uds.StatusResponse
	if err := client.Call(reqCtx, uds.MethodStatus, nil, &st); err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Buffered != 3 || st.Capacity != 1000 || st.Source != "file:"+logPath {
		t.Errorf("status = %+v", st)
	}

	var day uds.LogsByDateResponse
	if err := client.Call(reqCtx, uds.MethodLogsByDate, uds.LogsByDateRequest{Date: "20240102"}, &day); err != nil {
		t.Fatalf("by date: %v", err)
	}
	if len(day.Lines) != 2 {
		t.Errorf("by date lines = %v", day.Lines)
	}
	if err := client.Call(reqCtx, uds.MethodLogsByDate, uds.LogsByDateRequest{Date: "2024-01-02"}, &day); err == nil {
		t.Error("expected error for malformed date")
	}

	lines := make(chan uds.LogsLineEvent, 16)
	client.OnEvent(func(msg uds.Message) {
		if msg.Method != uds.EventLogsLine {
			return
		}
		var line uds.LogsLineEvent
		if err := msg.UnmarshalData(&line); err == nil {
			lines <- line
		}
	})
	var ack uds.LogsSubscribeResponse
	if err := client.Call(reqCtx, uds.MethodLogsSubscribe, nil, &ack); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if ack.Replayed != 3 {
		t.Errorf("replayed = %d, want 3", ack.Replayed)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("2024-01-03 09:32:00,000 - engine - ERROR - rejected\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	for want := uint64(1); want <= 4; want++ {
		select {
		case line := <-lines:
			if line.Seq != want {
				t.Fatalf("seq = %d, want %d", line.Seq, want)
			}
			if want == 4 && !strings.HasSuffix(line.Text, "rejected") {
				t.Errorf("live line = %q", line.Text)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout waiting for seq %d", want)
		}
	}

	if err := client.Call(reqCtx, uds.MethodLogsSubscribe, nil, nil); err == nil {
		t.Error("double subscribe should fail")
	}
	if err := client.Call(reqCtx, uds.MethodLogsUnsubscribe, nil, nil); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	waitFor(t, "unsubscribe", func() bool { return d.Hub().Status().Subscribers == 0 })

	if !notifier.has("READY=1") || !notifier.has("STATUS=") {
		t.Errorf("notifications = %v", notifier.states)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	stopped = true
	if !notifier.has("STOPPING=1") {
		t.Error("missing STOPPING=1")
	}
}

type fixedStatus struct {
	mu sync.Mutex
	st hub.Status
}

func (f *fixedStatus) Status() hub.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func TestHealthLoopNotifiesOnChange(t *testing.T) {
	src := &fixedStatus{st: hub.Status{Subscribers: 1, Buffered: 10, Capacity: 100, LastSeq: 10}}
	n := &recordNotifier{}
	hl := NewHealthLoop(src, n, time.Hour, false, quietLogger())

	hl.tick()
	hl.tick()
	if len(n.states) != 1 {
		t.Fatalf("states = %v, want one STATUS", n.states)
	}
	if want := "STATUS=following; 1 viewers, 10/100 lines, seq 10"; n.states[0] != want {
		t.Errorf("status = %q, want %q", n.states[0], want)
	}

	src.st.Degraded = true
	src.st.Reason = "open failed"
	hl.tick()
	if len(n.states) != 2 || !strings.Contains(n.states[1], "degraded (open failed)") {
		t.Errorf("states = %v", n.states)
	}
}

func TestHealthLoopWatchdog(t *testing.T) {
	n := &recordNotifier{}
	hl := NewHealthLoop(&fixedStatus{}, n, time.Hour, true, quietLogger())
	hl.tick()
	hl.tick()

	count := 0
	for _, s := range n.states {
		if s == sdWatchdog {
			count++
		}
	}
	if count != 2 {
		t.Errorf("watchdog pings = %d, want 2 (%v)", count, n.states)
	}
}

func TestNewSource(t *testing.T) {
	tests := []struct {
		cfg      config.SourceConfig
		wantName string
		wantErr  bool
	}{
		{config.SourceConfig{Kind: "file", Path: "logs/app.log"}, "file:logs/app.log", false},
		{config.SourceConfig{Kind: "journald", Unit: "trader"}, "journald:trader.service", false},
		{config.SourceConfig{Kind: "exec", Command: "tail -F x.log"}, "exec:tail -F x.log", false},
		{config.SourceConfig{Kind: "docker"}, "", true},
	}
	for _, tt := range tests {
		src, err := NewSource(tt.cfg, quietLogger())
		if tt.wantErr {
			if err == nil {
				t.Errorf("NewSource(%s) expected error", tt.cfg.Kind)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NewSource(%s): %v", tt.cfg.Kind, err)
		}
		if src.Name() != tt.wantName {
			t.Errorf("Name() = %q, want %q", src.Name(), tt.wantName)
		}
	}
}
